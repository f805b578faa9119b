package apierr

import (
	"fmt"
	"net/http"
)

// Error carries the HTTP status and machine-readable code a handler should
// respond with. Details is optional structured context (field errors, etc).
type Error struct {
	Status  int
	Code    string
	Message string
	Details any
	Err     error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	if e.Code != "" {
		return e.Code
	}
	if e.Status != 0 {
		return fmt.Sprintf("api error (%d)", e.Status)
	}
	return "api error"
}

func (e *Error) Unwrap() error { return e.Err }

func New(status int, code string, err error) *Error {
	return &Error{Status: status, Code: code, Err: err}
}

// WithMessage overrides the client-facing message while keeping the cause.
func (e *Error) WithMessage(msg string) *Error {
	e.Message = msg
	return e
}

func (e *Error) WithDetails(d any) *Error {
	e.Details = d
	return e
}

// StatusOrDefault returns e.Status, falling back to 500.
func (e *Error) StatusOrDefault() int {
	if e == nil || e.Status == 0 {
		return http.StatusInternalServerError
	}
	return e.Status
}
