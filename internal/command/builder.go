// Package command turns a named administrative operation and its parameters
// into a concrete process invocation. Arguments are passed straight to the
// executable; no shell is involved.
package command

import (
	"fmt"
	"io"
	"log"
	"maps"
	"path/filepath"
	"slices"
	"strings"
)

// Logger receives warnings about parameters that cannot be encoded
// unambiguously. It discards output until the caller redirects it.
var Logger = log.New(io.Discard, "command: ", 0)

// Invocation is a fully specified launch request. It is immutable once built.
type Invocation struct {
	operation string
	path      string
	args      []string
	redacted  []string
	dir       string
	env       map[string]string
	warnings  []string
}

// NewInvocation builds an Invocation for an arbitrary executable.
func NewInvocation(operation, path string, args []string, dir string, env map[string]string) *Invocation {
	return &Invocation{
		operation: operation,
		path:      path,
		args:      slices.Clone(args),
		redacted:  slices.Clone(args),
		dir:       dir,
		env:       maps.Clone(env),
	}
}

// Operation returns the logical operation name.
func (i *Invocation) Operation() string { return i.operation }

// Path returns the executable name or path.
func (i *Invocation) Path() string { return i.path }

// Args returns a copy of the argument vector, excluding the executable.
func (i *Invocation) Args() []string { return slices.Clone(i.args) }

// Argv returns the executable followed by its arguments.
func (i *Invocation) Argv() []string { return append([]string{i.path}, i.args...) }

// RedactedArgs returns the argument vector with secret values masked.
func (i *Invocation) RedactedArgs() []string { return slices.Clone(i.redacted) }

// Dir returns the working directory override, or "".
func (i *Invocation) Dir() string { return i.dir }

// Env returns a copy of the environment override map.
func (i *Invocation) Env() map[string]string { return maps.Clone(i.env) }

// Warnings returns encoding problems detected while building.
func (i *Invocation) Warnings() []string { return slices.Clone(i.warnings) }

// Environ merges the override map over base and returns KEY=VALUE pairs.
// Keys are emitted in sorted order after the base entries they replace are dropped.
func (i *Invocation) Environ(base []string) []string {
	out := make([]string, 0, len(base)+len(i.env))
	for _, kv := range base {
		k, _, _ := strings.Cut(kv, "=")
		if _, overridden := i.env[k]; overridden {
			continue
		}
		out = append(out, kv)
	}
	for _, k := range slices.Sorted(maps.Keys(i.env)) {
		out = append(out, k+"="+i.env[k])
	}
	return out
}

// FormatArgs renders params as "-Name value" pairs in order. Empty values are
// omitted, lists are joined with commas and secrets are base64-encoded.
func FormatArgs(params Params) []string {
	args, _ := formatArgs(params)
	return args
}

func formatArgs(params Params) ([]string, []string) {
	var args, warnings []string
	for _, p := range params {
		if p.Value.Empty() {
			continue
		}
		args = append(args, flagName(p.Name))
		if p.Value.kind == KindList {
			for _, item := range p.Value.list {
				if strings.Contains(item, ",") {
					w := fmt.Sprintf("parameter %s: value %q contains a comma and will be split by the receiving script", p.Name, item)
					Logger.Print(w)
					warnings = append(warnings, w)
				}
			}
		}
		if arg, ok := p.Value.render(); ok {
			args = append(args, arg)
		}
	}
	return args, warnings
}

func flagName(name string) string {
	if strings.HasPrefix(name, "-") {
		return name
	}
	return "-" + name
}

// Builder maps operations onto scripts run by an interpreter.
type Builder struct {
	// Executable is the interpreter, e.g. "pwsh".
	Executable string
	// BaseArgs precede the script path, e.g. ["-NoProfile", "-File"].
	BaseArgs []string
	// ScriptsDir is joined with relative script names.
	ScriptsDir string
	// Scripts maps an operation name to its script file.
	Scripts map[string]string
	// Dir is the working directory for every invocation.
	Dir string
	// Env overrides environment variables of every invocation.
	Env map[string]string
}

// Script returns the script path for operation. Operations without an entry
// resolve to "<operation>.ps1".
func (b *Builder) Script(operation string) string {
	script, ok := b.Scripts[operation]
	if !ok {
		script = operation + ".ps1"
	}
	if filepath.IsAbs(script) || b.ScriptsDir == "" {
		return script
	}
	return filepath.Join(b.ScriptsDir, script)
}

// Build returns the Invocation for operation. It never fails: a bad script
// path or malformed value surfaces when the process is launched.
func (b *Builder) Build(operation string, params Params) *Invocation {
	return b.BuildWithEnv(operation, params, nil)
}

// BuildWithEnv is Build with additional per-invocation environment entries,
// applied over the Builder's Env.
func (b *Builder) BuildWithEnv(operation string, params Params, extra map[string]string) *Invocation {
	paramArgs, warnings := formatArgs(params)

	prefix := append(slices.Clone(b.BaseArgs), b.Script(operation))
	args := append(slices.Clone(prefix), paramArgs...)
	redacted := append(slices.Clone(prefix), params.Redacted()...)

	env := maps.Clone(b.Env)
	if env == nil && len(extra) > 0 {
		env = make(map[string]string, len(extra))
	}
	maps.Copy(env, extra)

	return &Invocation{
		operation: operation,
		path:      b.Executable,
		args:      args,
		redacted:  redacted,
		dir:       b.Dir,
		env:       env,
		warnings:  warnings,
	}
}
