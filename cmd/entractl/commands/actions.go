package commands

import (
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/deixis/entractl/internal/action"
)

func newActionsCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "actions",
		Short: "List the available actions and their parameters",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			all := action.Builtin().All()
			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(all)
			}

			tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			for _, a := range all {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", a.ID, a.Title, a.Script)
				for _, f := range a.Fields {
					var flags []string
					flags = append(flags, f.Kind.String())
					if f.Required {
						flags = append(flags, "required")
					}
					fmt.Fprintf(tw, "  %s\t%s\t%s\n", f.Name, strings.Join(flags, ", "), f.Help)
				}
			}
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the catalog as JSON")
	return cmd
}
