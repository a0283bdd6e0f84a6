// Package runner executes invocations off the caller's goroutine, with
// workspace bounds, optional timeouts and output size limits, and reports
// exactly one Result per invocation.
package runner

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/deixis/entractl/internal/command"
	"github.com/deixis/entractl/internal/logs"
	"github.com/google/uuid"
)

// Logger receives diagnostics that do not change an invocation's outcome,
// such as a log artifact that could not be created.
var Logger = log.New(io.Discard, "runner: ", 0)

// DefaultMaxOutput caps each captured stream when MaxOutput is zero.
const DefaultMaxOutput = 4 << 20

const waitDelay = 5 * time.Second

// Runner executes invocations within a workspace boundary.
type Runner struct {
	Workspace string        // invocation dirs must stay inside it; "" disables the check
	Timeout   time.Duration // 0 means no deadline
	MaxOutput int           // bytes per stream
	Logs      *logs.Dir     // nil disables transcripts
}

// Run executes inv in buffered mode: stdout and stderr are captured
// separately and the Result is produced when the process exits.
func (r *Runner) Run(ctx context.Context, inv *command.Invocation) *Result {
	return r.run(ctx, uuid.New().String(), inv, nil)
}

// Stream executes inv in streaming mode: each stdout line is passed to
// onLine as soon as it is read, in the order the child wrote it, and
// appended to the log artifact.
func (r *Runner) Stream(ctx context.Context, inv *command.Invocation, onLine func(string)) *Result {
	if onLine == nil {
		onLine = func(string) {}
	}
	return r.run(ctx, uuid.New().String(), inv, onLine)
}

func (r *Runner) run(ctx context.Context, runID string, inv *command.Invocation, onLine func(string)) *Result {
	res := &Result{
		RunID:     runID,
		Operation: inv.Operation(),
		ExitCode:  -1,
		Started:   time.Now(),
	}

	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	cmd, err := r.command(ctx, inv)
	if err != nil {
		return r.launchFailed(res, err)
	}

	limit := r.maxOutput()
	var stdout, stderr bytes.Buffer
	cmd.Stderr = &limitWriter{buf: &stderr, limit: limit}

	var pipe io.ReadCloser
	if onLine != nil {
		pipe, err = cmd.StdoutPipe()
		if err != nil {
			return r.launchFailed(res, err)
		}
	} else {
		cmd.Stdout = &limitWriter{buf: &stdout, limit: limit}
	}

	if err := cmd.Start(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			res.Finished = time.Now()
			res.Failure = &Failure{Kind: KindCanceled, Message: ctxErr.Error(), ExitCode: -1, Err: ctxErr}
			return res
		}
		return r.launchFailed(res, fmt.Errorf("starting %s: %w", inv.Path(), err))
	}

	// The log artifact exists only for processes that actually started.
	var artifact *logs.Artifact
	if r.Logs != nil {
		artifact, err = r.Logs.Create(inv.Operation(), res.Started)
		if err != nil {
			Logger.Printf("run %s: %v", runID, err)
		} else {
			res.LogPath = artifact.Path()
			defer func() { _ = artifact.Close() }()
		}
	}

	if onLine != nil {
		out := &limitWriter{buf: &stdout, limit: limit}
		readLines(pipe, func(line string) {
			onLine(line)
			_, _ = out.Write([]byte(line + "\n"))
			if artifact != nil {
				if err := artifact.WriteLine(line); err != nil {
					Logger.Printf("run %s: writing log: %v", runID, err)
				}
			}
		})
	}

	waitErr := cmd.Wait()
	res.Finished = time.Now()
	res.Stdout = stdout.Bytes()
	res.Stderr = stderr.Bytes()
	res.Truncated = stdout.Len() >= limit || stderr.Len() >= limit

	if artifact != nil {
		if onLine == nil {
			_ = artifact.WriteText(stdout.String())
		}
		_ = artifact.WriteText(stderr.String())
	}

	res.ExitCode, res.Failure = classify(ctx, waitErr, res.Stdout, res.Stderr)
	return res
}

// command builds the exec.Cmd for inv. The process never sees a shell.
func (r *Runner) command(ctx context.Context, inv *command.Invocation) (*exec.Cmd, error) {
	if inv.Path() == "" {
		return nil, errors.New("empty executable")
	}
	dir, err := r.resolveDir(inv.Dir())
	if err != nil {
		return nil, err
	}
	cmd := exec.CommandContext(ctx, inv.Path(), inv.Args()...)
	cmd.Dir = dir
	cmd.Env = inv.Environ(os.Environ())
	// Grandchildren holding the output pipes open must not block Wait forever
	// once the context is done.
	cmd.WaitDelay = waitDelay
	return cmd, nil
}

func (r *Runner) launchFailed(res *Result, err error) *Result {
	res.Finished = time.Now()
	res.Failure = &Failure{Kind: KindLaunch, Message: err.Error(), ExitCode: -1, Err: err}
	return res
}

func (r *Runner) maxOutput() int {
	if r.MaxOutput > 0 {
		return r.MaxOutput
	}
	return DefaultMaxOutput
}

// classify maps the error returned by Wait to an exit code and failure.
func classify(ctx context.Context, waitErr error, stdout, stderr []byte) (int, *Failure) {
	if waitErr == nil {
		return 0, nil
	}
	code := -1
	var exitErr *exec.ExitError
	if errors.As(waitErr, &exitErr) {
		code = exitErr.ExitCode()
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return code, &Failure{Kind: KindCanceled, Message: ctxErr.Error(), ExitCode: code, Err: ctxErr}
	}
	if exitErr != nil {
		return code, &Failure{Kind: KindNonZeroExit, Message: failureMessage(code, stdout, stderr), ExitCode: code, Err: waitErr}
	}
	return code, &Failure{Kind: KindLaunch, Message: waitErr.Error(), ExitCode: code, Err: waitErr}
}

// failureMessage prefers stderr, falls back to stdout and is never empty.
func failureMessage(code int, stdout, stderr []byte) string {
	if strings.TrimSpace(string(stderr)) != "" {
		return string(stderr)
	}
	if strings.TrimSpace(string(stdout)) != "" {
		return string(stdout)
	}
	return fmt.Sprintf("process exited with status %d and no output", code)
}

// readLines delivers every line of rd to fn, without the line terminator.
// A final line without a newline is delivered too.
func readLines(rd io.Reader, fn func(string)) {
	br := bufio.NewReader(rd)
	for {
		line, err := br.ReadString('\n')
		if len(line) > 0 {
			line = strings.TrimSuffix(line, "\n")
			fn(strings.TrimSuffix(line, "\r"))
		}
		if err != nil {
			return
		}
	}
}

// resolveDir resolves dir relative to the workspace and validates it
// is within the workspace boundary.
func (r *Runner) resolveDir(dir string) (string, error) {
	if r.Workspace == "" {
		return dir, nil
	}
	if dir == "" {
		return r.Workspace, nil
	}

	var resolved string
	if filepath.IsAbs(dir) {
		resolved = filepath.Clean(dir)
	} else {
		resolved = filepath.Clean(filepath.Join(r.Workspace, dir))
	}

	rel, err := filepath.Rel(r.Workspace, resolved)
	if err != nil {
		return "", fmt.Errorf("resolving dir: %w", err)
	}
	if strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("dir %q is outside workspace %q", dir, r.Workspace)
	}
	return resolved, nil
}

// limitWriter writes up to limit bytes to buf, then silently discards the rest.
type limitWriter struct {
	buf   *bytes.Buffer
	limit int
}

func (w *limitWriter) Write(p []byte) (int, error) {
	remaining := w.limit - w.buf.Len()
	if remaining <= 0 {
		return len(p), nil // discard
	}
	if len(p) > remaining {
		// Report all bytes as consumed to avoid short write errors from io.Copy.
		w.buf.Write(p[:remaining])
		return len(p), nil
	}
	return w.buf.Write(p)
}
