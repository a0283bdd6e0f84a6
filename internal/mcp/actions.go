package mcp

import (
	"context"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

type actionsParams struct{}

func (h *handler) actionsHandler(ctx context.Context, req *mcp.CallToolRequest, _ actionsParams) (*mcp.CallToolResult, any, error) {
	var b strings.Builder
	for _, a := range h.engine.Catalog.All() {
		fmt.Fprintf(&b, "%s%s: %s\n", ToolPrefix, a.ID, a.Title)
		for _, f := range a.Fields {
			note := ""
			if f.Required {
				note = ", required"
			}
			fmt.Fprintf(&b, "    %s (%s%s)\n", f.Name, f.Kind, note)
		}
	}
	return textResult(b.String())
}
