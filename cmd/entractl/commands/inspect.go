package commands

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/deixis/entractl/internal/extract"
)

func newInspectCmd(opts *globalOptions) *cobra.Command {
	var (
		outcome string
		match   string
		asJSON  bool
	)
	cmd := &cobra.Command{
		Use:   "inspect <run-id>",
		Short: "Show the records of a past run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var want *extract.Outcome
			if outcome != "" {
				var o extract.Outcome
				if err := o.UnmarshalText([]byte(outcome)); err != nil {
					return err
				}
				want = &o
			}

			a, err := newApp(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer a.Close()

			rr, err := a.store.Load(args[0])
			if err != nil {
				return err
			}
			filtered := *rr
			filtered.Records = rr.Filter(want, match)

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(&filtered)
			}
			printRun(out, &filtered)
			if len(filtered.Records) != len(rr.Records) {
				_, _ = fmt.Fprintf(out, "(%d of %d records shown)\n", len(filtered.Records), len(rr.Records))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&outcome, "outcome", "", "only records with this outcome (success, failure, warning, unknown)")
	cmd.Flags().StringVar(&match, "match", "", "only records with a value containing this text")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the run as JSON")
	return cmd
}
