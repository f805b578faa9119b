package schema

import (
	"errors"
	"strings"
)

var ErrValidation = errors.New("validation failed")

// Constraint names reported in FieldError.Constraint.
const (
	ConstraintRequired  = "required"
	ConstraintType      = "type"
	ConstraintMin       = "minimum"
	ConstraintMax       = "maximum"
	ConstraintMinLength = "minLength"
	ConstraintMaxLength = "maxLength"
	ConstraintBlank     = "nonBlank"
	ConstraintEnum      = "enum"
	ConstraintMinItems  = "minItems"
	ConstraintMaxItems  = "maxItems"
	ConstraintFormat    = "format"
)

type FieldError struct {
	Path       string `json:"path"`
	Constraint string `json:"constraint"`
	Message    string `json:"message"`
}

// ValidationError lists every field that failed, in schema order.
type ValidationError struct {
	Schema string       `json:"schema,omitempty"`
	Fields []FieldError `json:"fields"`
}

func (e *ValidationError) Error() string {
	if e == nil || len(e.Fields) == 0 {
		return "validation failed"
	}
	msgs := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		msgs = append(msgs, f.Message)
	}
	return strings.Join(msgs, "; ")
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// Field returns the first error recorded for path.
func (e *ValidationError) Field(path string) (FieldError, bool) {
	if e == nil {
		return FieldError{}, false
	}
	for _, f := range e.Fields {
		if f.Path == path {
			return f, true
		}
	}
	return FieldError{}, false
}

// Messages returns the human readable messages.
func (e *ValidationError) Messages() []string {
	if e == nil {
		return nil
	}
	out := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		out[i] = f.Message
	}
	return out
}
