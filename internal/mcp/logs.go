package mcp

import (
	"context"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// maxMatches caps the lines returned by a log search.
const maxMatches = 200

type logsParams struct {
	Query string `json:"query,omitempty" jsonschema:"text to search for in every log"`
	Name  string `json:"name,omitempty" jsonschema:"log file name to read, as listed"`
}

func (h *handler) logsHandler(ctx context.Context, req *mcp.CallToolRequest, params logsParams) (*mcp.CallToolResult, any, error) {
	if h.logs == nil {
		return errorResult("Logging is disabled.")
	}
	switch {
	case params.Query != "":
		matches, err := h.logs.Search(params.Query)
		if err != nil {
			return errorResult(err.Error())
		}
		if len(matches) == 0 {
			return textResult(fmt.Sprintf("No log lines contain %q.", params.Query))
		}
		var b strings.Builder
		for i, m := range matches {
			if i == maxMatches {
				fmt.Fprintf(&b, "... %d more matches\n", len(matches)-maxMatches)
				break
			}
			fmt.Fprintf(&b, "%s:%d: %s\n", m.File, m.Line, m.Text)
		}
		return textResult(b.String())

	case params.Name != "":
		text, err := h.logs.Read(params.Name)
		if err != nil {
			return errorResult(err.Error())
		}
		return textResult(text)
	}

	entries, err := h.logs.List()
	if err != nil {
		return errorResult(err.Error())
	}
	if len(entries) == 0 {
		return textResult("No logs.")
	}
	var b strings.Builder
	for _, e := range entries {
		fmt.Fprintf(&b, "%s  %s  %d bytes\n", e.Name, e.Operation, e.Size)
	}
	return textResult(b.String())
}
