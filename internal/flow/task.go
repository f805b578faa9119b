package flow

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// Task is one invocation running on its own goroutine.
type Task struct {
	flow string
	done chan struct{}
	res  *Result
	err  error
}

// InvokeAsync starts Invoke on a new goroutine and returns immediately.
// Cancel ctx to abandon the model call.
func (r *Registry) InvokeAsync(ctx context.Context, name string, input map[string]any, opts ...InvokeOption) *Task {
	t := &Task{flow: name, done: make(chan struct{})}
	go func() {
		defer close(t.done)
		t.res, t.err = r.Invoke(ctx, name, input, opts...)
	}()
	return t
}

func (t *Task) Flow() string { return t.flow }

// Done is closed when the invocation finishes.
func (t *Task) Done() <-chan struct{} { return t.done }

// Wait blocks until the task finishes or ctx ends. Giving up on the wait does
// not stop the invocation.
func (t *Task) Wait(ctx context.Context) (*Result, error) {
	select {
	case <-t.done:
		return t.res, t.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// ErrRunning is returned by Task.Result while the invocation is in flight.
var ErrRunning = errors.New("flow task still running")

// Result reports the outcome without blocking.
func (t *Task) Result() (*Result, error) {
	select {
	case <-t.done:
		return t.res, t.err
	default:
		return nil, ErrRunning
	}
}

// Call is one element of a batch.
type Call struct {
	Flow  string         `json:"flow"`
	Input map[string]any `json:"input"`
	Model string         `json:"model,omitempty"`
}

// Outcome pairs a call with its own result or error.
type Outcome struct {
	Flow   string
	Result *Result
	Err    error
}

var ErrEmptyBatch = errors.New("batch has no calls")

// InvokeAll runs calls concurrently. A failing call never cancels the
// others; outcomes are returned in call order.
func (r *Registry) InvokeAll(ctx context.Context, calls []Call) ([]Outcome, error) {
	if len(calls) == 0 {
		return nil, ErrEmptyBatch
	}
	outcomes := make([]Outcome, len(calls))
	var g errgroup.Group
	if r.batchMax > 0 {
		g.SetLimit(r.batchMax)
	}
	for i, c := range calls {
		g.Go(func() error {
			defer func() {
				if p := recover(); p != nil {
					outcomes[i] = Outcome{Flow: c.Flow, Err: fmt.Errorf("flow %s panicked: %v", c.Flow, p)}
				}
			}()
			var opts []InvokeOption
			if c.Model != "" {
				opts = append(opts, WithModel(c.Model))
			}
			res, err := r.Invoke(ctx, c.Flow, c.Input, opts...)
			outcomes[i] = Outcome{Flow: c.Flow, Result: res, Err: err}
			return nil
		})
	}
	_ = g.Wait()
	return outcomes, nil
}
