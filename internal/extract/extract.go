// Package extract recovers structured result rows from script output.
//
// Scripts print free-form progress lines and then a single JSON value. The
// preferred contract wraps that value in ###TAG_START### / ###TAG_END###
// markers; output without markers is searched from the end for the last
// complete JSON array or object. When nothing parses, the whole output
// becomes one row so callers always have something to show.
package extract

import (
	"bytes"
	"encoding/json"
	"strings"
)

// DefaultStatus annotates rows promoted from bare array elements.
const DefaultStatus = "Processed"

// NoOutput is the status of the synthetic row for empty output.
const NoOutput = "(no output)"

// NoResults is the status of the synthetic row for an empty JSON array.
const NoResults = "(no results)"

// Option configures Extract.
type Option func(*options)

type options struct {
	tag string
}

// WithTag makes Extract look for a ###<tag>_START### ... ###<tag>_END###
// delimited payload before falling back to the backward scan.
func WithTag(tag string) Option {
	return func(o *options) { o.tag = tag }
}

// Extract returns the rows found in text. It never returns an empty slice.
func Extract(text string, opts ...Option) []Record {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	if o.tag != "" {
		if payload, ok := Tagged(text, o.tag); ok {
			if recs, ok := parse(payload); ok {
				return recs
			}
		}
	}
	if candidate, ok := Locate(text); ok {
		if recs, ok := parse(candidate); ok {
			return recs
		}
	}
	return []Record{Raw(text)}
}

// Raw returns the synthetic row carrying the entire trimmed text as status.
func Raw(text string) Record {
	s := strings.TrimSpace(text)
	if s == "" {
		s = NoOutput
	}
	return NewRecord("Status", s)
}

// Tagged returns the text between the last ###<tag>_START### marker and the
// ###<tag>_END### marker that follows it.
func Tagged(text, tag string) (string, bool) {
	start := "###" + tag + "_START###"
	end := "###" + tag + "_END###"
	i := strings.LastIndex(text, start)
	if i < 0 {
		return "", false
	}
	rest := text[i+len(start):]
	j := strings.Index(rest, end)
	if j < 0 {
		return "", false
	}
	return strings.TrimSpace(rest[:j]), true
}

// Locate finds the JSON payload candidate at the end of text: the last
// complete array spanning to the end, else the last complete object, else
// whatever follows the last '[' or '{'.
func Locate(text string) (string, bool) {
	trimmed := strings.TrimSpace(text)
	if strings.HasSuffix(trimmed, "]") {
		if s, ok := lastValid(trimmed, '['); ok {
			return s, true
		}
	}
	if strings.HasSuffix(trimmed, "}") {
		if s, ok := lastValid(trimmed, '{'); ok {
			return s, true
		}
	}
	i := strings.LastIndexAny(trimmed, "[{")
	if i < 0 {
		return "", false
	}
	return strings.TrimSpace(trimmed[i:]), true
}

// lastValid scans backward for the opening bracket closest to the end from
// which the remainder of s is a valid JSON document.
func lastValid(s string, open byte) (string, bool) {
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] != open {
			continue
		}
		if json.Valid([]byte(s[i:])) {
			return s[i:], true
		}
	}
	return "", false
}

func parse(candidate string) ([]Record, bool) {
	data := []byte(strings.TrimSpace(candidate))
	if len(data) == 0 {
		return nil, false
	}
	switch data[0] {
	case '{':
		rec, err := decodeObject(data)
		if err != nil {
			return nil, false
		}
		return []Record{rec}, true
	case '[':
		var items []json.RawMessage
		if err := json.Unmarshal(data, &items); err != nil {
			return nil, false
		}
		if len(items) == 0 {
			return []Record{NewRecord("Status", NoResults)}, true
		}
		recs := make([]Record, 0, len(items))
		for _, item := range items {
			recs = append(recs, element(item))
		}
		return recs, true
	}
	return nil, false
}

// element turns one array item into a row. Objects pass through; anything
// else is promoted with the default status.
func element(item json.RawMessage) Record {
	item = bytes.TrimSpace(item)
	if len(item) > 0 && item[0] == '{' {
		if rec, err := decodeObject(item); err == nil {
			return rec
		}
	}
	return NewRecord("Value", scalarText(item), "Status", DefaultStatus)
}
