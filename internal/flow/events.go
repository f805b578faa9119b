package flow

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/equilix-backend/internal/engine"
)

const (
	StatusOK    = "ok"
	StatusError = "error"
)

// UnknownFlow stands in for Event.Flow when the requested name is not
// registered, so observers only ever see registered names.
const UnknownFlow = "unknown"


// Event is invocation metadata. It never carries prompts, inputs or outputs.
type Event struct {
	ID        uuid.UUID
	Flow      string
	Model     string
	Mode      engine.Mode
	Status    string
	ErrorKind string
	Fallback  bool
	RequestID string
	Started   time.Time
	Duration  time.Duration
}

// Observer is notified after every invocation, on the invoking goroutine.
// It cannot change the outcome.
type Observer interface {
	ObserveInvocation(ctx context.Context, ev Event)
}

type ObserverFunc func(ctx context.Context, ev Event)

func (f ObserverFunc) ObserveInvocation(ctx context.Context, ev Event) { f(ctx, ev) }
