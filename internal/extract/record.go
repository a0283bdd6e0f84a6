package extract

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"
)

// Record is one row of operation outcome data. Keys keep the order in which
// the script printed them.
type Record struct {
	keys   []string
	values map[string]string
}

// NewRecord builds a record from alternating key, value arguments.
func NewRecord(kv ...string) Record {
	var r Record
	for i := 0; i+1 < len(kv); i += 2 {
		r.Set(kv[i], kv[i+1])
	}
	return r
}

// Set stores value under key. An existing key keeps its position.
func (r *Record) Set(key, value string) {
	if r.values == nil {
		r.values = make(map[string]string)
	}
	if _, ok := r.values[key]; !ok {
		r.keys = append(r.keys, key)
	}
	r.values[key] = value
}

// Keys returns the record's keys in order.
func (r Record) Keys() []string { return slices.Clone(r.keys) }

// Len returns the number of keys.
func (r Record) Len() int { return len(r.keys) }

// Get returns the value for key. An exact match wins over a case-insensitive one.
func (r Record) Get(key string) (string, bool) {
	if v, ok := r.values[key]; ok {
		return v, true
	}
	for _, k := range r.keys {
		if strings.EqualFold(k, key) {
			return r.values[k], true
		}
	}
	return "", false
}

// Map returns a copy of the record as a plain map.
func (r Record) Map() map[string]string {
	m := make(map[string]string, len(r.keys))
	for _, k := range r.keys {
		m[k] = r.values[k]
	}
	return m
}

var (
	subjectKeys = []string{"UserPrincipalName", "UserUPN", "UPN", "User", "Identity", "Subject", "DeviceName", "Device", "ComputerName", "Value"}
	targetKeys  = []string{"Group", "GroupName", "AccessPackage", "AccessPackageName", "Mailbox", "Target", "Resource"}
	statusKeys  = []string{"Status", "Result", "Outcome", "Message"}
)

// Subject returns the identity the row is about, e.g. a UPN.
func (r Record) Subject() string { return r.first(subjectKeys) }

// Target returns the group, package or mailbox the row refers to.
func (r Record) Target() string { return r.first(targetKeys) }

// Status returns the human-readable status text.
func (r Record) Status() string { return r.first(statusKeys) }

// Outcome classifies Status.
func (r Record) Outcome() Outcome { return Classify(r.Status()) }

func (r Record) first(aliases []string) string {
	for _, a := range aliases {
		if v, ok := r.Get(a); ok {
			return v
		}
	}
	return ""
}

// MarshalJSON encodes the record as an object with keys in order.
func (r Record) MarshalJSON() ([]byte, error) {
	var b bytes.Buffer
	b.WriteByte('{')
	for i, k := range r.keys {
		if i > 0 {
			b.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		vb, err := json.Marshal(r.values[k])
		if err != nil {
			return nil, err
		}
		b.Write(kb)
		b.WriteByte(':')
		b.Write(vb)
	}
	b.WriteByte('}')
	return b.Bytes(), nil
}

// UnmarshalJSON decodes an object, keeping key order. Non-string values
// are kept as their compact JSON text.
func (r *Record) UnmarshalJSON(data []byte) error {
	rec, err := decodeObject(data)
	if err != nil {
		return err
	}
	*r = rec
	return nil
}

func decodeObject(data []byte) (Record, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return Record{}, err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return Record{}, errors.New("not a JSON object")
	}
	var r Record
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return Record{}, err
		}
		key, ok := tok.(string)
		if !ok {
			return Record{}, fmt.Errorf("unexpected object key %v", tok)
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return Record{}, err
		}
		r.Set(key, scalarText(raw))
	}
	if _, err := dec.Token(); err != nil {
		return Record{}, err
	}
	if _, err := dec.Token(); err != io.EOF {
		return Record{}, errors.New("trailing data after JSON object")
	}
	if r.values == nil {
		r.values = map[string]string{}
	}
	return r, nil
}

// scalarText renders a JSON value for display: strings unquoted, null
// empty, everything else as compact JSON.
func scalarText(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	switch {
	case len(raw) == 0, bytes.Equal(raw, []byte("null")):
		return ""
	case raw[0] == '"':
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			return s
		}
	}
	var b bytes.Buffer
	if err := json.Compact(&b, raw); err != nil {
		return string(raw)
	}
	return b.String()
}
