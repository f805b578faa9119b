package flow

import (
	"context"
	"errors"
	"fmt"

	"github.com/yungbote/equilix-backend/internal/engine"
	"github.com/yungbote/equilix-backend/internal/router"
	"github.com/yungbote/equilix-backend/internal/schema"
)

var (
	ErrNotFound         = errors.New("flow not found")
	ErrOutputValidation = errors.New("model output failed validation")
)

type NotFoundError struct {
	Name string
}

func (e *NotFoundError) Error() string { return fmt.Sprintf("flow %q not found", e.Name) }

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// OutputValidationError is a model reply that could not be turned into a
// schema-valid output. Raw holds the reply text for logs, never for clients.
type OutputValidationError struct {
	Flow  string
	Cause *schema.ValidationError
	Raw   string
	Err   error
}

func (e *OutputValidationError) Error() string {
	switch {
	case e.Cause != nil:
		return fmt.Sprintf("flow %s: invalid model output: %s", e.Flow, e.Cause.Error())
	case e.Err != nil:
		return fmt.Sprintf("flow %s: invalid model output: %s", e.Flow, e.Err.Error())
	default:
		return fmt.Sprintf("flow %s: invalid model output", e.Flow)
	}
}

func (e *OutputValidationError) Unwrap() error {
	if e.Cause != nil {
		return e.Cause
	}
	return e.Err
}

func (e *OutputValidationError) Is(target error) bool { return target == ErrOutputValidation }

// Error kinds reported by Kind.
const (
	KindValidation       = "validation"
	KindNotFound         = "not_found"
	KindUnknownModel     = "unknown_model"
	KindModelInvocation  = "model_invocation"
	KindOutputValidation = "output_validation"
	KindCanceled         = "canceled"
	KindInternal         = "internal"
)

// Kind classifies err for logs, events and transport mapping. It returns ""
// for nil.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, router.ErrUnknownModel):
		return KindUnknownModel
	case errors.Is(err, ErrOutputValidation):
		// checked before ErrValidation: the cause chain holds a ValidationError
		return KindOutputValidation
	case errors.Is(err, schema.ErrValidation):
		return KindValidation
	case errors.Is(err, context.Canceled):
		return KindCanceled
	case errors.Is(err, engine.ErrInvocation):
		return KindModelInvocation
	default:
		return KindInternal
	}
}
