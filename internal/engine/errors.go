package engine

import (
	"context"
	"errors"
	"fmt"
)

var ErrInvocation = errors.New("model invocation failed")

// HTTPError is a non-2xx upstream response.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	if e == nil {
		return "upstream http error"
	}
	if e.Body == "" {
		return fmt.Sprintf("upstream http error: status=%d", e.StatusCode)
	}
	return fmt.Sprintf("upstream http error: status=%d body=%s", e.StatusCode, e.Body)
}

// InvocationError is any failure to obtain a usable response from a model.
type InvocationError struct {
	Backend    string
	Model      string
	Op         string
	StatusCode int
	Err        error
}

func (e *InvocationError) Error() string {
	if e == nil {
		return ErrInvocation.Error()
	}
	msg := fmt.Sprintf("%s %s", e.Backend, e.Op)
	if e.Model != "" {
		msg += " " + e.Model
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *InvocationError) Unwrap() error { return e.Err }

func (e *InvocationError) Is(target error) bool { return target == ErrInvocation }

// Timeout reports whether the call ran out of time.
func (e *InvocationError) Timeout() bool {
	return errors.Is(e.Err, context.DeadlineExceeded)
}

// Canceled reports whether the caller abandoned the call.
func (e *InvocationError) Canceled() bool {
	return errors.Is(e.Err, context.Canceled)
}

// Wrap converts err into an *InvocationError, keeping an existing one intact.
func Wrap(backend, model, op string, err error) error {
	if err == nil {
		return nil
	}
	var ie *InvocationError
	if errors.As(err, &ie) {
		return err
	}
	out := &InvocationError{Backend: backend, Model: model, Op: op, Err: err}
	var he *HTTPError
	if errors.As(err, &he) {
		out.StatusCode = he.StatusCode
	}
	return out
}
