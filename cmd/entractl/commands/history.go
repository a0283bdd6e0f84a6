package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/deixis/entractl/internal/report"
)

func newHistoryCmd(opts *globalOptions) *cobra.Command {
	var (
		limit  int
		name   string
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List past runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer a.Close()

			lister, err := a.lister()
			if err != nil {
				return err
			}
			fetch := limit
			if name != "" {
				fetch = 0
			}
			runs, err := lister.List(fetch)
			if err != nil {
				return fmt.Errorf("listing runs: %w", err)
			}
			runs = filterRuns(runs, name, limit)

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(runs)
			}
			if len(runs) == 0 {
				_, _ = fmt.Fprintln(out, "no runs recorded")
				return nil
			}
			tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tSTARTED\tACTION\tSTATUS\tDETAIL")
			for _, rr := range runs {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
					rr.ID, rr.Started.Local().Format(time.DateTime), rr.Action, rr.Status, runDetail(rr))
			}
			return tw.Flush()
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum number of runs (0 for all)")
	cmd.Flags().StringVar(&name, "action", "", "only runs of this action")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print runs as JSON")

	cmd.AddCommand(newHistoryPruneCmd(opts))
	return cmd
}

func newHistoryPruneCmd(opts *globalOptions) *cobra.Command {
	var olderThan time.Duration
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete runs older than a given age",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if olderThan <= 0 {
				return errors.New("--older-than must be positive")
			}
			a, err := newApp(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer a.Close()
			if a.db == nil {
				return errors.New("prune needs the sqlite history driver")
			}
			n, err := a.db.Prune(time.Now().Add(-olderThan))
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "deleted %d run(s)\n", n)
			return nil
		},
	}
	cmd.Flags().DurationVar(&olderThan, "older-than", 30*24*time.Hour, "age of the oldest run to keep")
	return cmd
}

// filterRuns keeps runs of the named action, up to limit (0 for all).
func filterRuns(runs []*report.RunResult, name string, limit int) []*report.RunResult {
	var out []*report.RunResult
	for _, rr := range runs {
		if name != "" && rr.Action != name {
			continue
		}
		if limit > 0 && len(out) == limit {
			break
		}
		out = append(out, rr)
	}
	return out
}

func runDetail(rr *report.RunResult) string {
	if !rr.OK() {
		msg, _, _ := strings.Cut(strings.TrimSpace(rr.Message), "\n")
		return rr.ErrorKind + ": " + msg
	}
	return rr.Summary().String()
}
