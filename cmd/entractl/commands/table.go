package commands

import (
	"fmt"
	"io"
	"slices"
	"strings"
	"text/tabwriter"

	"github.com/deixis/entractl/internal/extract"
)

// printRecords writes records as a table whose columns are the union of
// their keys in first-seen order, prefixed by the record outcome.
func printRecords(w io.Writer, recs []extract.Record) {
	var cols []string
	for _, rec := range recs {
		for _, k := range rec.Keys() {
			if !slices.Contains(cols, k) {
				cols = append(cols, k)
			}
		}
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "OUTCOME\t%s\n", strings.ToUpper(strings.Join(cols, "\t")))
	for _, rec := range recs {
		vals := rec.Map()
		row := make([]string, len(cols))
		for i, c := range cols {
			row[i] = oneLine(vals[c])
		}
		fmt.Fprintf(tw, "%s\t%s\n", rec.Outcome(), strings.Join(row, "\t"))
	}
	_ = tw.Flush()
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
