package mcp

import (
	"context"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/deixis/entractl/internal/extract"
	"github.com/deixis/entractl/internal/report"
)

type inspectParams struct {
	RunID   string `json:"run_id" jsonschema:"the run ID printed by an action tool or entra_history"`
	Outcome string `json:"outcome,omitempty" jsonschema:"only records with this outcome: success, failure, warning or unknown"`
	Match   string `json:"match,omitempty" jsonschema:"only records with a value containing this text, case-insensitive"`
}

func (h *handler) inspectHandler(ctx context.Context, req *mcp.CallToolRequest, params inspectParams) (*mcp.CallToolResult, any, error) {
	if params.RunID == "" {
		return errorResult("run_id is required")
	}
	var want *extract.Outcome
	if params.Outcome != "" {
		var o extract.Outcome
		if err := o.UnmarshalText([]byte(params.Outcome)); err != nil {
			return errorResult(err.Error())
		}
		want = &o
	}

	result, err := h.store.Load(params.RunID)
	if err != nil {
		return errorResult(fmt.Sprintf("Failed to load run %s: %v", params.RunID, err))
	}

	recs := result.Filter(want, params.Match)
	return textResult(formatInspectOutput(result, recs, len(recs) != len(result.Records)))
}

func formatInspectOutput(rr *report.RunResult, recs []extract.Record, filtered bool) string {
	var b strings.Builder
	writeRunHeader(&b, rr)
	if !rr.OK() {
		fmt.Fprintf(&b, "\nFailed (%s, exit %d):\n%s\n", rr.ErrorKind, rr.ExitCode, rr.Message)
		return b.String()
	}
	fmt.Fprintf(&b, "Summary: %s\n\n", rr.Summary())
	if len(recs) == 0 {
		if filtered {
			fmt.Fprintln(&b, "No records match the filter.")
		} else {
			fmt.Fprintln(&b, "No records.")
		}
		return b.String()
	}
	if filtered {
		fmt.Fprintf(&b, "%d of %d records:\n", len(recs), len(rr.Records))
	}
	writeRecords(&b, recs, 0)
	return b.String()
}
