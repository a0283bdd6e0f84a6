// Package report provides structured persistence and retrieval of
// action run results. Every completed run is stored as a RunResult
// and can be listed or inspected later by run id.
package report

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/deixis/entractl/internal/extract"
)

// Status is the terminal state of a run.
type Status string

const (
	// Succeeded means the script exited 0.
	Succeeded Status = "success"
	// Failed means the script could not be launched, exited non-zero or
	// was cancelled. ErrorKind tells which.
	Failed Status = "failure"
)

// ErrNotFound is returned by Load when no run has the requested id.
var ErrNotFound = errors.New("run not found")

// Store persists and retrieves run results.
type Store interface {
	Save(result *RunResult) error
	Load(runID string) (*RunResult, error)
}

// Lister is implemented by stores that can enumerate past runs.
type Lister interface {
	// List returns at most limit runs, most recently started first.
	// A limit <= 0 means no limit.
	List(limit int) ([]*RunResult, error)
}

// RunResult holds the outcome of one action run.
type RunResult struct {
	ID     string `json:"id"`
	Action string `json:"action"`
	Status Status `json:"status"`

	// Failure fields.
	ErrorKind string `json:"error_kind,omitempty"`
	Message   string `json:"message,omitempty"`
	ExitCode  int    `json:"exit_code"`

	// Args is the argument vector with secrets redacted.
	Args     []string         `json:"args,omitempty"`
	Records  []extract.Record `json:"records,omitempty"`
	Warnings []string         `json:"warnings,omitempty"`

	LogPath   string    `json:"log_path,omitempty"`
	Truncated bool      `json:"truncated,omitempty"`
	Started   time.Time `json:"started"`
	Finished  time.Time `json:"finished"`
}

// OK reports whether the run succeeded.
func (r *RunResult) OK() bool { return r.Status == Succeeded }

// Duration returns the wall time of the run.
func (r *RunResult) Duration() time.Duration { return r.Finished.Sub(r.Started) }

// Summary counts the run's records by outcome.
func (r *RunResult) Summary() Summary {
	var s Summary
	for _, rec := range r.Records {
		switch rec.Outcome() {
		case extract.Success:
			s.Success++
		case extract.Failure:
			s.Failure++
		case extract.Warning:
			s.Warning++
		default:
			s.Unknown++
		}
	}
	return s
}

// Filter returns the records with outcome want (any outcome when nil) and
// a value containing match, case-insensitively (any value when empty).
func (r *RunResult) Filter(want *extract.Outcome, match string) []extract.Record {
	needle := strings.ToLower(match)
	var out []extract.Record
	for _, rec := range r.Records {
		if want != nil && rec.Outcome() != *want {
			continue
		}
		if needle != "" && !recordContains(rec, needle) {
			continue
		}
		out = append(out, rec)
	}
	return out
}

func recordContains(rec extract.Record, needle string) bool {
	for _, v := range rec.Map() {
		if strings.Contains(strings.ToLower(v), needle) {
			return true
		}
	}
	return false
}

// Summary is a per-outcome record count.
type Summary struct {
	Success int `json:"success"`
	Failure int `json:"failure"`
	Warning int `json:"warning"`
	Unknown int `json:"unknown"`
}

// Total returns the number of records counted.
func (s Summary) Total() int { return s.Success + s.Failure + s.Warning + s.Unknown }

func (s Summary) String() string {
	var parts []string
	add := func(n int, label string) {
		if n > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", n, label))
		}
	}
	add(s.Success, "succeeded")
	add(s.Failure, "failed")
	add(s.Warning, "with warnings")
	add(s.Unknown, "other")
	if len(parts) == 0 {
		return "no records"
	}
	return strings.Join(parts, ", ")
}

func notFound(runID string) error {
	return fmt.Errorf("%w: %s", ErrNotFound, runID)
}
