package commands

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/deixis/entractl/internal/logs"
)

func newLogsCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Browse and search script transcripts",
	}

	logDir := func() (*logs.Dir, error) {
		cfg, err := loadConfig(opts)
		if err != nil {
			return nil, err
		}
		return logs.NewDir(cfg.LogDir()), nil
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List transcripts, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := logDir()
			if err != nil {
				return err
			}
			entries, err := d.List()
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			for _, e := range entries {
				fmt.Fprintf(tw, "%s\t%s\t%d\n", e.Name, e.Operation, e.Size)
			}
			return tw.Flush()
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "show <name>",
		Short: "Print one transcript",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := logDir()
			if err != nil {
				return err
			}
			text, err := d.Read(args[0])
			if err != nil {
				return err
			}
			_, err = fmt.Fprint(cmd.OutOrStdout(), text)
			return err
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "search <text>",
		Short: "Find lines containing text in every transcript",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := logDir()
			if err != nil {
				return err
			}
			matches, err := d.Search(args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, m := range matches {
				fmt.Fprintf(out, "%s:%d: %s\n", m.File, m.Line, m.Text)
			}
			return nil
		},
	})

	return cmd
}
