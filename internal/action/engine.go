package action

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"maps"
	"strings"
	"sync"

	"github.com/deixis/entractl/internal/command"
	"github.com/deixis/entractl/internal/directory"
	"github.com/deixis/entractl/internal/extract"
	"github.com/deixis/entractl/internal/report"
	"github.com/deixis/entractl/internal/runner"
)

// TenantEnv carries the tenant id into every script's environment.
const TenantEnv = "ENTRA_TENANT_ID"

// Logger receives warnings about runs. Discarded unless replaced.
var Logger = log.New(io.Discard, "action: ", 0)

var (
	// ErrUnknownAction is returned for ids not in the catalog.
	ErrUnknownAction = errors.New("unknown action")
	// ErrUnknownField is returned for input keys no field declares.
	ErrUnknownField = errors.New("unknown field")
)

// MissingFieldError lists required fields that were absent or empty.
type MissingFieldError struct {
	Action string
	Fields []string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("%s: missing required field(s): %s", e.Action, strings.Join(e.Fields, ", "))
}

// PreflightError lists users the directory does not know.
type PreflightError struct {
	Missing []string
}

func (e *PreflightError) Error() string {
	return fmt.Sprintf("user(s) not found: %s", strings.Join(e.Missing, ", "))
}

func (e *PreflightError) Unwrap() error { return directory.ErrUserNotFound }

// Starter launches invocations asynchronously. Implemented by runner.Runner.
type Starter interface {
	Start(ctx context.Context, inv *command.Invocation, opts ...runner.StartOption) *runner.Job
}

// Call is one action request on its way to a script.
type Call struct {
	Action *Action
	Input  map[string]any
	Params command.Params
	OnLine func(string)
}

// Handler launches a call. Most actions use the plain script handler;
// some validate their input first.
type Handler func(ctx context.Context, c *Call) (*Run, error)

// Engine holds shared dependencies for running actions. It is consumed by
// both the MCP server and the CLI commands.
type Engine struct {
	Catalog  *Catalog
	Builder  *command.Builder
	Runner   Starter
	Store    report.Store       // nil disables history
	Resolver directory.Resolver // nil disables the preflight
	TenantID string

	once     sync.Once
	mu       sync.RWMutex // guards handlers
	handlers map[string]Handler
}

func (e *Engine) table() map[string]Handler {
	e.once.Do(func() {
		e.handlers = make(map[string]Handler)
		for _, a := range e.Catalog.All() {
			e.handlers[a.ID] = e.launch
		}
		if _, ok := e.handlers["bulk_create_users"]; ok {
			e.handlers["bulk_create_users"] = e.bulkCreate
		}
	})
	return e.handlers
}

// Handle replaces the handler of a catalog action. It is safe to call
// while other goroutines start actions.
func (e *Engine) Handle(id string, h Handler) {
	t := e.table()
	e.mu.Lock()
	t[id] = h
	e.mu.Unlock()
}

func (e *Engine) handler(id string) (Handler, bool) {
	t := e.table()
	e.mu.RLock()
	defer e.mu.RUnlock()
	h, ok := t[id]
	return h, ok
}

// Params extracts the action's script parameters from input, in field
// order. Required fields must be present and non-empty.
func (a *Action) Params(input map[string]any) (command.Params, error) {
	for k := range input {
		if _, ok := a.Field(k); !ok {
			return nil, fmt.Errorf("%s: %w %q", a.ID, ErrUnknownField, k)
		}
	}
	var params command.Params
	var missing []string
	for _, f := range a.Fields {
		v, err := f.Value(input[f.Name])
		if err != nil {
			return nil, fmt.Errorf("%s: %w", a.ID, err)
		}
		if f.Required && v.Empty() {
			missing = append(missing, f.Name)
			continue
		}
		params = params.Add(f.Name, v)
	}
	if len(missing) > 0 {
		return nil, &MissingFieldError{Action: a.ID, Fields: missing}
	}
	return params, nil
}

// Start validates input and launches the action's script. Errors are
// returned only when nothing was launched; everything after launch is
// reported through the Run.
//
// Stdout lines go to onLine as they are read when onLine is non-nil or
// the action streams; otherwise output is buffered.
func (e *Engine) Start(ctx context.Context, id string, input map[string]any, onLine func(string)) (*Run, error) {
	a, ok := e.Catalog.Lookup(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAction, id)
	}
	h, ok := e.handler(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAction, id)
	}
	params, err := a.Params(input)
	if err != nil {
		return nil, err
	}
	if err := e.preflight(ctx, a, input); err != nil {
		return nil, err
	}
	return h(ctx, &Call{Action: a, Input: input, Params: params, OnLine: onLine})
}

// Dispatch runs the action to completion and returns its saved result.
func (e *Engine) Dispatch(ctx context.Context, id string, input map[string]any, onLine func(string)) (*report.RunResult, error) {
	run, err := e.Start(ctx, id, input, onLine)
	if err != nil {
		return nil, err
	}
	// The runner ends the process when ctx is done, so this returns.
	<-run.Done()
	return run.result, run.err
}

// launch is the script handler.
func (e *Engine) launch(ctx context.Context, c *Call) (*Run, error) {
	var env map[string]string
	if e.TenantID != "" {
		env = map[string]string{TenantEnv: e.TenantID}
	}
	inv := e.Builder.BuildWithEnv(c.Action.ID, c.Params, env)

	run := &Run{Action: c.Action, Args: inv.RedactedArgs(), done: make(chan struct{})}
	opts := []runner.StartOption{runner.OnComplete(func(res *runner.Result) {
		run.complete(e, inv, res)
	})}
	if c.OnLine != nil {
		opts = append(opts, runner.WithLines(c.OnLine))
	} else if c.Action.Mode == Streaming {
		opts = append(opts, runner.WithLines(func(string) {}))
	}
	run.job = e.Runner.Start(ctx, inv, opts...)
	run.ID = run.job.ID()
	return run, nil
}

// preflight checks every UPN field value against the directory.
// Lookups that fail for reasons other than a missing user are logged and
// do not block the run.
func (e *Engine) preflight(ctx context.Context, a *Action, input map[string]any) error {
	if e.Resolver == nil {
		return nil
	}
	var missing []string
	for _, f := range a.Fields {
		if !f.UPN {
			continue
		}
		v, err := listValue(input[f.Name])
		if err != nil {
			continue
		}
		for _, upn := range v.Items() {
			_, err := e.Resolver.LookupUser(ctx, upn)
			switch {
			case err == nil:
			case errors.Is(err, directory.ErrUserNotFound):
				missing = append(missing, upn)
			default:
				Logger.Printf("preflight %s: %v", upn, err)
			}
		}
	}
	if len(missing) > 0 {
		return &PreflightError{Missing: missing}
	}
	return nil
}

// Run is a launched action.
type Run struct {
	ID     string
	Action *Action
	Args   []string // redacted

	job    *runner.Job
	done   chan struct{}
	result *report.RunResult
	err    error
}

// Done is closed once the result has been built and saved.
func (r *Run) Done() <-chan struct{} { return r.done }

// Wait blocks until the run completes or ctx is done. The error reports a
// history store failure; the run's own failure is in the result.
func (r *Run) Wait(ctx context.Context) (*report.RunResult, error) {
	select {
	case <-r.done:
		return r.result, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (r *Run) complete(e *Engine, inv *command.Invocation, res *runner.Result) {
	defer close(r.done)
	r.result = newRunResult(r.Action, inv, res)
	if e.Store == nil {
		return
	}
	if err := e.Store.Save(maskRecords(r.result, r.Action)); err != nil {
		Logger.Printf("saving run %s: %v", r.result.ID, err)
		r.err = fmt.Errorf("saving run %s: %w", r.result.ID, err)
	}
}

func newRunResult(a *Action, inv *command.Invocation, res *runner.Result) *report.RunResult {
	rr := &report.RunResult{
		ID:        res.RunID,
		Action:    a.ID,
		Status:    report.Succeeded,
		ExitCode:  res.ExitCode,
		Args:      inv.RedactedArgs(),
		Warnings:  inv.Warnings(),
		LogPath:   res.LogPath,
		Truncated: res.Truncated,
		Started:   res.Started,
		Finished:  res.Finished,
	}
	if f := res.Failure; f != nil {
		rr.Status = report.Failed
		rr.ErrorKind = string(f.Kind)
		rr.Message = f.Message
		return rr
	}
	var opts []extract.Option
	if a.Tag != "" {
		opts = append(opts, extract.WithTag(a.Tag))
	}
	rr.Records = extract.Extract(string(res.Stdout), opts...)
	return rr
}

// secretColumns are record keys never written to history.
var secretColumns = map[string][]string{
	"generate_tap":      {"TemporaryAccessPass", "TAP"},
	"get_laps_password": {"Password", "LapsPassword"},
}

// maskRecords returns rr with secret record values replaced, copying only
// when something is masked.
func maskRecords(rr *report.RunResult, a *Action) *report.RunResult {
	cols := secretColumns[a.ID]
	if len(cols) == 0 || len(rr.Records) == 0 {
		return rr
	}
	masked := *rr
	masked.Records = make([]extract.Record, len(rr.Records))
	for i, rec := range rr.Records {
		m := extract.NewRecord()
		vals := rec.Map()
		for _, k := range rec.Keys() {
			v := vals[k]
			for _, c := range cols {
				if strings.EqualFold(k, c) && v != "" {
					v = "***"
				}
			}
			m.Set(k, v)
		}
		masked.Records[i] = m
	}
	return &masked
}

// cloneInput returns a shallow copy of input that handlers may modify.
func cloneInput(input map[string]any) map[string]any {
	out := maps.Clone(input)
	if out == nil {
		out = map[string]any{}
	}
	return out
}
