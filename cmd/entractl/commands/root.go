// Package commands implements the entractl command tree.
package commands

import (
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/deixis/entractl"
	"github.com/deixis/entractl/internal/action"
	"github.com/deixis/entractl/internal/command"
	"github.com/deixis/entractl/internal/directory"
	"github.com/deixis/entractl/internal/runner"
)

// NewRootCmd constructs the entractl root command.
func NewRootCmd() *cobra.Command {
	opts := &globalOptions{}

	cmd := &cobra.Command{
		Use:   "entractl",
		Short: "Run Entra ID administration scripts",
		Long: `entractl runs directory administration scripts against one tenant,
turns their output into records and keeps a searchable history of every run.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if opts.verbose {
				enableLogging()
			}
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.workspace, "dir", "C", "", "workspace directory (default: current directory)")
	cmd.PersistentFlags().DurationVar(&opts.timeout, "timeout", 0, "override configured script timeout (e.g. 5m)")
	cmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "log warnings from the engine to stderr")

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), entractl.Version)
		},
	})

	cmd.AddCommand(newActionsCmd())
	cmd.AddCommand(newRunCmd(opts))
	cmd.AddCommand(newHistoryCmd(opts))
	cmd.AddCommand(newInspectCmd(opts))
	cmd.AddCommand(newLogsCmd(opts))
	cmd.AddCommand(newTenantCmd(opts))
	cmd.AddCommand(newMCPCmd(opts))

	return cmd
}

// enableLogging sends every package logger to stderr.
func enableLogging() {
	for _, l := range []*log.Logger{action.Logger, command.Logger, directory.Logger, runner.Logger} {
		l.SetOutput(os.Stderr)
	}
}
