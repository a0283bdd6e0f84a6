package runner

import (
	"context"
	"sync"

	"github.com/deixis/entractl/internal/command"
	"github.com/google/uuid"
)

// Job is an invocation running on its own goroutine. It completes exactly
// once; after Done is closed Result never changes.
type Job struct {
	id     string
	done   chan struct{}
	once   sync.Once
	result *Result
}

// ID returns the run id the Result will carry.
func (j *Job) ID() string { return j.id }

// Done is closed when the Result is available.
func (j *Job) Done() <-chan struct{} { return j.done }

// Result returns the outcome, or nil while the job is running.
func (j *Job) Result() *Result {
	select {
	case <-j.done:
		return j.result
	default:
		return nil
	}
}

// Wait blocks until the job completes or ctx is done. In the latter case it
// returns nil and the job keeps running.
func (j *Job) Wait(ctx context.Context) *Result {
	select {
	case <-j.done:
		return j.result
	case <-ctx.Done():
		return nil
	}
}

func (j *Job) complete(res *Result, onComplete func(*Result)) {
	j.once.Do(func() {
		j.result = res
		close(j.done)
		if onComplete != nil {
			onComplete(res)
		}
	})
}

// StartOption configures Start.
type StartOption func(*startOptions)

type startOptions struct {
	onLine     func(string)
	onComplete func(*Result)
}

// WithLines selects streaming mode and delivers each stdout line to fn.
func WithLines(fn func(string)) StartOption {
	return func(o *startOptions) { o.onLine = fn }
}

// OnComplete registers fn to receive the Result exactly once.
func OnComplete(fn func(*Result)) StartOption {
	return func(o *startOptions) { o.onComplete = fn }
}

// Start launches inv on a new goroutine and returns immediately.
// The context bounds the process lifetime; cancelling it ends the
// invocation with a KindCanceled failure.
func (r *Runner) Start(ctx context.Context, inv *command.Invocation, opts ...StartOption) *Job {
	var o startOptions
	for _, opt := range opts {
		opt(&o)
	}
	j := &Job{id: uuid.New().String(), done: make(chan struct{})}
	go func() {
		j.complete(r.run(ctx, j.id, inv, o.onLine), o.onComplete)
	}()
	return j
}
