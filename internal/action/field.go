package action

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/deixis/entractl/internal/command"
)

// FieldKind is the variant tag of a Field. Each kind owns the extractor
// that turns raw input into a command.Value.
type FieldKind int

const (
	Text FieldKind = iota
	List
	Secret
	Toggle
)

func (k FieldKind) String() string {
	switch k {
	case Text:
		return "text"
	case List:
		return "list"
	case Secret:
		return "secret"
	case Toggle:
		return "switch"
	}
	return "unknown"
}

// MarshalText implements encoding.TextMarshaler.
func (k FieldKind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

// Field describes one input of an action. Name is also the script
// parameter name.
type Field struct {
	Name     string    `json:"name"`
	Kind     FieldKind `json:"kind"`
	Required bool      `json:"required,omitempty"`
	Help     string    `json:"help,omitempty"`
	// UPN marks fields whose values are user principal names checked by
	// the directory preflight.
	UPN bool `json:"upn,omitempty"`
}

// Value extracts the field's value from raw input as decoded from JSON or
// collected from flags. A nil raw yields the empty value of the kind.
func (f Field) Value(raw any) (command.Value, error) {
	v, err := extractors[f.Kind](raw)
	if err != nil {
		return command.Value{}, fmt.Errorf("field %s: %w", f.Name, err)
	}
	return v, nil
}

var extractors = map[FieldKind]func(any) (command.Value, error){
	Text:   textValue,
	List:   listValue,
	Secret: secretValue,
	Toggle: toggleValue,
}

func textValue(raw any) (command.Value, error) {
	s, err := scalar(raw)
	if err != nil {
		return command.Value{}, err
	}
	return command.String(strings.TrimSpace(s)), nil
}

// listValue accepts a list of scalars or a newline separated string.
// Blank entries are dropped.
func listValue(raw any) (command.Value, error) {
	var items []string
	switch v := raw.(type) {
	case nil:
	case string:
		items = strings.Split(v, "\n")
	case []string:
		items = v
	case []any:
		for _, e := range v {
			s, err := scalar(e)
			if err != nil {
				return command.Value{}, err
			}
			items = append(items, s)
		}
	default:
		return command.Value{}, fmt.Errorf("expected a list, got %T", raw)
	}
	out := make([]string, 0, len(items))
	for _, it := range items {
		if it = strings.TrimSpace(it); it != "" {
			out = append(out, it)
		}
	}
	return command.List(out...), nil
}

// secretValue keeps the secret verbatim; surrounding spaces may be part of
// a password.
func secretValue(raw any) (command.Value, error) {
	switch v := raw.(type) {
	case nil:
		return command.Base64(""), nil
	case string:
		return command.Base64(v), nil
	}
	return command.Value{}, fmt.Errorf("expected a string, got %T", raw)
}

func toggleValue(raw any) (command.Value, error) {
	switch v := raw.(type) {
	case nil:
		return command.Switch(false), nil
	case bool:
		return command.Switch(v), nil
	case string:
		if strings.TrimSpace(v) == "" {
			return command.Switch(false), nil
		}
		on, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return command.Value{}, fmt.Errorf("expected true or false, got %q", v)
		}
		return command.Switch(on), nil
	}
	return command.Value{}, fmt.Errorf("expected a boolean, got %T", raw)
}

func scalar(raw any) (string, error) {
	switch v := raw.(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	case json.Number:
		return v.String(), nil
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	case int:
		return strconv.Itoa(v), nil
	case int64:
		return strconv.FormatInt(v, 10), nil
	case bool:
		return strconv.FormatBool(v), nil
	}
	return "", fmt.Errorf("expected a scalar, got %T", raw)
}
