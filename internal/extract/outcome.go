package extract

import (
	"fmt"
	"strings"
)

// Outcome is the classification of a status string.
type Outcome int

const (
	Unknown Outcome = iota
	Success
	Failure
	Warning
)

func (o Outcome) String() string {
	switch o {
	case Success:
		return "success"
	case Failure:
		return "failure"
	case Warning:
		return "warning"
	}
	return "unknown"
}

// MarshalText implements encoding.TextMarshaler.
func (o Outcome) MarshalText() ([]byte, error) { return []byte(o.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (o *Outcome) UnmarshalText(b []byte) error {
	switch string(b) {
	case "success":
		*o = Success
	case "failure":
		*o = Failure
	case "warning":
		*o = Warning
	case "unknown", "":
		*o = Unknown
	default:
		return fmt.Errorf("unknown outcome %q", b)
	}
	return nil
}

var (
	successMarks = []string{"✅", "✔", "☑"}
	failureMarks = []string{"❌", "✖", "⛔"}
	warningMarks = []string{"⚠"}
)

// Classify maps a status string to an Outcome. A leading marker symbol
// decides first; otherwise keywords are matched case-insensitively, with
// failure words taking precedence over warning words over success.
func Classify(status string) Outcome {
	s := strings.TrimSpace(status)
	switch {
	case hasAnyPrefix(s, successMarks):
		return Success
	case hasAnyPrefix(s, failureMarks):
		return Failure
	case hasAnyPrefix(s, warningMarks):
		return Warning
	}

	lower := strings.ToLower(s)
	switch {
	case strings.Contains(lower, "fail"), strings.Contains(lower, "error"):
		return Failure
	case strings.Contains(lower, "already"), strings.Contains(lower, "warning"):
		return Warning
	case strings.Contains(lower, "success"):
		return Success
	}
	return Unknown
}

func hasAnyPrefix(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}
