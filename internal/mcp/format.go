package mcp

import (
	"fmt"
	"strings"
	"time"

	"github.com/deixis/entractl/internal/extract"
	"github.com/deixis/entractl/internal/report"
)

// maxInlineRecords caps the records printed in an action tool's reply.
// The full set stays available through entra_inspect.
const maxInlineRecords = 50

func formatRun(rr *report.RunResult) string {
	var b strings.Builder
	writeRunHeader(&b, rr)

	if !rr.OK() {
		fmt.Fprintf(&b, "\nFailed (%s, exit %d):\n", rr.ErrorKind, rr.ExitCode)
		for _, line := range strings.Split(strings.TrimRight(rr.Message, "\n"), "\n") {
			fmt.Fprintf(&b, "    %s\n", line)
		}
		return b.String()
	}

	fmt.Fprintf(&b, "Summary: %s\n", rr.Summary())
	if len(rr.Records) > 0 {
		fmt.Fprintln(&b)
		writeRecords(&b, rr.Records, maxInlineRecords)
		if len(rr.Records) > maxInlineRecords {
			fmt.Fprintf(&b, "... %d more; call entra_inspect with run_id %s\n", len(rr.Records)-maxInlineRecords, rr.ID)
		}
	}
	return b.String()
}

func writeRunHeader(b *strings.Builder, rr *report.RunResult) {
	fmt.Fprintf(b, "Run: %s (%s) %s in %s\n", rr.ID, rr.Action, rr.Status, rr.Duration().Round(time.Millisecond))
	if len(rr.Args) > 0 {
		fmt.Fprintf(b, "Args: %s\n", strings.Join(rr.Args, " "))
	}
	for _, w := range rr.Warnings {
		fmt.Fprintf(b, "Warning: %s\n", w)
	}
	if rr.LogPath != "" {
		fmt.Fprintf(b, "Log: %s\n", rr.LogPath)
	}
	if rr.Truncated {
		fmt.Fprintln(b, "Output was truncated; the log holds what was kept.")
	}
}

// writeRecords prints one line per record: its outcome then every column
// in script order.
func writeRecords(b *strings.Builder, recs []extract.Record, limit int) {
	for i, rec := range recs {
		if limit > 0 && i == limit {
			return
		}
		fmt.Fprintf(b, "[%s] %s\n", rec.Outcome(), formatRecord(rec))
	}
}

func formatRecord(rec extract.Record) string {
	vals := rec.Map()
	parts := make([]string, 0, rec.Len())
	for _, k := range rec.Keys() {
		parts = append(parts, k+"="+vals[k])
	}
	return strings.Join(parts, "; ")
}
