package flow

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/yungbote/equilix-backend/internal/engine"
	"github.com/yungbote/equilix-backend/internal/router"
	"github.com/yungbote/equilix-backend/internal/schema"
)

func TestKind(t *testing.T) {
	ve := &schema.ValidationError{Schema: "x", Fields: []schema.FieldError{{Path: "a", Message: "a is required"}}}
	cases := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{&NotFoundError{Name: "x"}, KindNotFound},
		{fmt.Errorf("flow x: %w", ve), KindValidation},
		{fmt.Errorf("flow x: %w", router.ErrUnknownModel), KindUnknownModel},
		{&OutputValidationError{Flow: "x", Cause: ve}, KindOutputValidation},
		{engine.Wrap("gemini", "m", "generate", errors.New("dial tcp: refused")), KindModelInvocation},
		{engine.Wrap("gemini", "m", "generate", context.Canceled), KindCanceled},
		{errors.New("boom"), KindInternal},
	}
	for _, c := range cases {
		if got := Kind(c.err); got != c.want {
			t.Fatalf("Kind(%v) = %q, want %q", c.err, got, c.want)
		}
	}
}

func TestOutputValidationErrorMessage(t *testing.T) {
	err := &OutputValidationError{Flow: "chat", Err: engine.ErrEmptyResponse}
	if err.Error() != "flow chat: invalid model output: empty model response" {
		t.Fatalf("got %q", err.Error())
	}
	if !errors.Is(err, engine.ErrEmptyResponse) {
		t.Fatal("unwrap lost the cause")
	}
}
