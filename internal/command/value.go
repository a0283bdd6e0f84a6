package command

import (
	"encoding/base64"
	"strings"
)

// Kind identifies how a Value is rendered on the command line.
type Kind int

const (
	// KindString is a single literal argument.
	KindString Kind = iota
	// KindList is an ordered list joined with commas into one argument.
	KindList
	// KindSecret is a literal that is base64-encoded before it reaches argv.
	KindSecret
	// KindSwitch is a flag without a value.
	KindSwitch
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindList:
		return "list"
	case KindSecret:
		return "secret"
	case KindSwitch:
		return "switch"
	}
	return "unknown"
}

// Value is a single parameter value. Construct it with String, List,
// Base64 or Switch; the zero value is an empty string.
type Value struct {
	kind  Kind
	str   string
	list  []string
	isSet bool
}

// String returns a single literal value.
func String(s string) Value {
	return Value{kind: KindString, str: s}
}

// List returns an ordered list value.
func List(items ...string) Value {
	return Value{kind: KindList, list: append([]string(nil), items...)}
}

// Base64 returns a secret value. The receiving script is expected to decode
// it, so characters that would otherwise be mangled by quoting survive.
func Base64(plain string) Value {
	return Value{kind: KindSecret, str: plain}
}

// Switch returns a flag value. A false switch is omitted from argv.
func Switch(on bool) Value {
	return Value{kind: KindSwitch, isSet: on}
}

// Kind reports the value's variant.
func (v Value) Kind() Kind { return v.kind }

// Items returns a copy of a list value's elements.
func (v Value) Items() []string { return append([]string(nil), v.list...) }

// Empty reports whether the value contributes nothing to argv.
func (v Value) Empty() bool {
	switch v.kind {
	case KindList:
		return len(v.list) == 0
	case KindSwitch:
		return !v.isSet
	default:
		return v.str == ""
	}
}

// render returns the argument that follows the flag name. ok is false for
// switches, which take no argument.
func (v Value) render() (arg string, ok bool) {
	switch v.kind {
	case KindList:
		return strings.Join(v.list, ","), true
	case KindSecret:
		return base64.StdEncoding.EncodeToString([]byte(v.str)), true
	case KindSwitch:
		return "", false
	default:
		return v.str, true
	}
}

// Param is one named parameter.
type Param struct {
	Name  string
	Value Value
}

// Params is an ordered parameter list. Order is preserved on the command line.
type Params []Param

// Add appends a parameter and returns the extended list.
func (p Params) Add(name string, v Value) Params {
	return append(p, Param{Name: name, Value: v})
}

// Redacted returns argv-style output of p where secrets are masked.
func (p Params) Redacted() []string {
	var out []string
	for _, prm := range p {
		if prm.Value.Empty() {
			continue
		}
		out = append(out, flagName(prm.Name))
		if prm.Value.kind == KindSecret {
			out = append(out, "***")
			continue
		}
		if arg, ok := prm.Value.render(); ok {
			out = append(out, arg)
		}
	}
	return out
}
