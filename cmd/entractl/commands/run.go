package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/deixis/entractl/cmd/entractl/internal/clierr"
	"github.com/deixis/entractl/internal/action"
	"github.com/deixis/entractl/internal/report"
	"github.com/deixis/entractl/internal/runner"
)

func newRunCmd(opts *globalOptions) *cobra.Command {
	var (
		params []string
		stream bool
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "run <action> [--param Name=Value]...",
		Short: "Run one action and print its records",
		Long: `Run one catalog action and wait for it to finish.

Parameters are given as Name=Value. Repeat a list parameter once per item;
a bare Name sets a switch. Use "entractl actions" to see the parameters of
each action.`,
		Example: `  entractl run assign_groups -p UserPrincipalName=a@contoso.com -p GroupNames=Sales -p GroupNames=Ops
  entractl run bulk_create_users -p CsvPath=new-hires.csv --stream`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			input, err := parseParams(params)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			a, err := newApp(ctx, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			out := cmd.OutOrStdout()
			var onLine func(string)
			if stream {
				lines := out
				if asJSON {
					lines = cmd.ErrOrStderr()
				}
				onLine = func(line string) { _, _ = fmt.Fprintln(lines, line) }
			}

			rr, err := a.engine.Dispatch(ctx, args[0], input, onLine)
			if err != nil && rr == nil {
				return inputError(err)
			}
			if err != nil {
				log.Print(err)
			}

			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				if err := enc.Encode(rr); err != nil {
					return err
				}
			} else {
				printRun(out, rr)
			}
			return runError(rr)
		},
	}

	cmd.Flags().StringArrayVarP(&params, "param", "p", nil, "action parameter as Name=Value (repeatable)")
	cmd.Flags().BoolVar(&stream, "stream", false, "print script output while it runs")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the run result as JSON")
	return cmd
}

// parseParams turns Name=Value pairs into engine input. A repeated name
// becomes a list; a bare name is a switch set to true.
func parseParams(pairs []string) (map[string]any, error) {
	input := make(map[string]any, len(pairs))
	for _, p := range pairs {
		name, value, ok := strings.Cut(p, "=")
		name = strings.TrimSpace(name)
		if name == "" {
			return nil, clierr.Newf(clierr.CodeFailure, "invalid parameter %q: want Name=Value", p)
		}
		if !ok {
			input[name] = true
			continue
		}
		switch prev := input[name].(type) {
		case nil:
			input[name] = value
		case string:
			input[name] = []any{prev, value}
		case []any:
			input[name] = append(prev, value)
		default:
			return nil, clierr.Newf(clierr.CodeFailure, "parameter %s given both as a switch and with a value", name)
		}
	}
	return input, nil
}

// inputError adds a hint to errors raised before anything was launched.
func inputError(err error) error {
	var missing *action.MissingFieldError
	switch {
	case errors.Is(err, action.ErrUnknownAction):
		return clierr.Wrap(clierr.CodeFailure, "", fmt.Errorf("%w (see entractl actions)", err))
	case errors.As(err, &missing):
		return clierr.Wrap(clierr.CodeFailure, "", fmt.Errorf("%w (pass them with -p Name=Value)", err))
	}
	return err
}

// runError maps a failed run to its exit code.
func runError(rr *report.RunResult) error {
	if rr.OK() {
		return nil
	}
	code := clierr.CodeFailure
	switch runner.ErrorKind(rr.ErrorKind) {
	case runner.KindLaunch:
		code = clierr.CodeLaunch
	case runner.KindNonZeroExit:
		code = clierr.CodeScript
	}
	msg, _, _ := strings.Cut(strings.TrimSpace(rr.Message), "\n")
	return clierr.Newf(code, "%s %s: %s", rr.Action, rr.ErrorKind, msg)
}

// printRun writes a run header followed by its records as a table.
func printRun(w io.Writer, rr *report.RunResult) {
	fmt.Fprintf(w, "Run %s: %s %s (%s)\n", rr.ID, rr.Action, rr.Status, rr.Duration().Round(time.Millisecond))
	for _, warn := range rr.Warnings {
		fmt.Fprintf(w, "warning: %s\n", warn)
	}
	if rr.LogPath != "" {
		fmt.Fprintf(w, "log: %s\n", rr.LogPath)
	}
	if !rr.OK() {
		fmt.Fprintf(w, "\n%s\n", strings.TrimRight(rr.Message, "\n"))
		return
	}
	fmt.Fprintln(w)
	printRecords(w, rr.Records)
	fmt.Fprintf(w, "\n%s\n", rr.Summary())
}
