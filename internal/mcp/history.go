package mcp

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/deixis/entractl/internal/report"
)

const defaultHistoryLimit = 20

type historyParams struct {
	Limit  int    `json:"limit,omitempty" jsonschema:"maximum number of runs to list, default 20"`
	Action string `json:"action,omitempty" jsonschema:"only runs of this action id"`
}

func (h *handler) historyHandler(ctx context.Context, req *mcp.CallToolRequest, params historyParams) (*mcp.CallToolResult, any, error) {
	lister, ok := h.store.(report.Lister)
	if !ok {
		return errorResult("The history store cannot list runs.")
	}
	limit := params.Limit
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	fetch := limit
	if params.Action != "" {
		fetch = 0
	}
	runs, err := lister.List(fetch)
	if err != nil {
		return errorResult(fmt.Sprintf("Failed to list runs: %v", err))
	}

	var b strings.Builder
	n := 0
	for _, rr := range runs {
		if params.Action != "" && rr.Action != params.Action {
			continue
		}
		if n == limit {
			break
		}
		n++
		fmt.Fprintf(&b, "%s  %s  %-26s %-7s %s\n",
			rr.ID, rr.Started.Local().Format(time.DateTime), rr.Action, rr.Status, historyDetail(rr))
	}
	if n == 0 {
		return textResult("No runs recorded.")
	}
	return textResult(b.String())
}

func historyDetail(rr *report.RunResult) string {
	if !rr.OK() {
		msg, _, _ := strings.Cut(rr.Message, "\n")
		return rr.ErrorKind + ": " + msg
	}
	return rr.Summary().String()
}
