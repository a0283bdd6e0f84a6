package runner

import (
	"fmt"
	"time"
)

// ErrorKind classifies why an invocation did not succeed.
type ErrorKind string

const (
	// KindLaunch means the executable could not be started.
	KindLaunch ErrorKind = "launch_error"
	// KindNonZeroExit means the process ran and exited with a non-zero status.
	KindNonZeroExit ErrorKind = "non_zero_exit"
	// KindCanceled means the context was cancelled or the timeout elapsed.
	KindCanceled ErrorKind = "canceled"
)

// Failure is the terminal error of an invocation.
type Failure struct {
	Kind     ErrorKind
	Message  string // stderr, falling back to stdout, for KindNonZeroExit
	ExitCode int    // -1 when the process never exited normally
	Err      error  // underlying cause, if any
}

func (f *Failure) Error() string {
	switch f.Kind {
	case KindNonZeroExit:
		return fmt.Sprintf("exit status %d: %s", f.ExitCode, f.Message)
	default:
		return fmt.Sprintf("%s: %s", f.Kind, f.Message)
	}
}

func (f *Failure) Unwrap() error { return f.Err }

// Result holds the single outcome of one invocation.
type Result struct {
	RunID     string    // unique identifier for this run
	Operation string    // logical operation name
	ExitCode  int       // process exit code, -1 if it never ran
	Stdout    []byte    // captured stdout (may be truncated)
	Stderr    []byte    // captured stderr (may be truncated)
	Truncated bool      // true if output exceeded the size cap
	LogPath   string    // transcript path, "" when no log directory is set
	Started   time.Time // launch time
	Finished  time.Time // exit or launch-failure time
	Failure   *Failure  // nil on success
}

// OK reports whether the invocation succeeded.
func (r *Result) OK() bool { return r.Failure == nil }

// Err returns the failure as an error, or nil.
func (r *Result) Err() error {
	if r.Failure == nil {
		return nil
	}
	return r.Failure
}
