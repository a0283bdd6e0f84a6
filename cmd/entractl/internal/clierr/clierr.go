// Package clierr carries process exit codes through cobra's error return.
package clierr

import (
	"errors"
	"fmt"
)

// Exit codes.
const (
	CodeFailure = 1 // anything else: bad input, config, history
	CodeScript  = 2 // the script exited non-zero
	CodeLaunch  = 3 // the interpreter could not be started
)

// ExitCoder is an error that selects the process exit code.
type ExitCoder interface {
	error
	ExitCode() int
}

// ExitError is an error with an explicit exit code. It wraps its cause.
type ExitError struct {
	code  int
	msg   string
	cause error
}

func (e *ExitError) Error() string {
	if e.cause == nil {
		return e.msg
	}
	if e.msg == "" {
		return e.cause.Error()
	}
	return fmt.Sprintf("%s: %v", e.msg, e.cause)
}

func (e *ExitError) ExitCode() int { return e.code }

func (e *ExitError) Unwrap() error { return e.cause }

// New creates an ExitError with a message.
func New(code int, msg string) error {
	return &ExitError{code: normalize(code), msg: msg}
}

// Wrap creates an ExitError around cause.
func Wrap(code int, msg string, cause error) error {
	if cause == nil {
		return New(code, msg)
	}
	return &ExitError{code: normalize(code), msg: msg, cause: cause}
}

// Newf is a formatted variant of New.
func Newf(code int, format string, args ...any) error {
	return &ExitError{code: normalize(code), msg: fmt.Sprintf(format, args...)}
}

// ExitCodeOf extracts an exit code from any error, defaulting to 1.
func ExitCodeOf(err error) int {
	if err == nil {
		return 0
	}
	var ec ExitCoder
	if errors.As(err, &ec) {
		return ec.ExitCode()
	}
	return CodeFailure
}

func normalize(code int) int {
	if code <= 0 {
		return CodeFailure
	}
	return code
}
