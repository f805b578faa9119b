package mock

import (
	"context"
	"sync"

	"github.com/yungbote/equilix-backend/internal/engine"
)

// Call is one recorded Generate request.
type Call struct {
	Model   string
	Request engine.Request
}

// SpeechCall is one recorded Synthesize request.
type SpeechCall struct {
	Model   string
	Request engine.SpeechRequest
}

// Stub returns scripted responses and records every request it receives.
// It is safe for concurrent use.
type Stub struct {
	mu     sync.Mutex
	calls  []Call
	speech []SpeechCall

	generate   func(ctx context.Context, model string, req engine.Request) (*engine.Response, error)
	synthesize func(ctx context.Context, model string, req engine.SpeechRequest) (*engine.Audio, error)
}

func NewStub() *Stub {
	fallback := New()
	return &Stub{generate: fallback.Generate, synthesize: fallback.Synthesize}
}

// OnGenerate installs a custom handler.
func (s *Stub) OnGenerate(fn func(ctx context.Context, model string, req engine.Request) (*engine.Response, error)) *Stub {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.generate = fn
	return s
}

func (s *Stub) OnSynthesize(fn func(ctx context.Context, model string, req engine.SpeechRequest) (*engine.Audio, error)) *Stub {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.synthesize = fn
	return s
}

// RespondJSON makes every Generate call return obj.
func (s *Stub) RespondJSON(obj map[string]any) *Stub {
	return s.OnGenerate(func(ctx context.Context, model string, req engine.Request) (*engine.Response, error) {
		return &engine.Response{JSON: copyMap(obj), Model: model}, nil
	})
}

// RespondText makes every Generate call return text.
func (s *Stub) RespondText(text string) *Stub {
	return s.OnGenerate(func(ctx context.Context, model string, req engine.Request) (*engine.Response, error) {
		return &engine.Response{Text: text, Model: model}, nil
	})
}

// Fail makes every Generate call return err.
func (s *Stub) Fail(err error) *Stub {
	return s.OnGenerate(func(ctx context.Context, model string, req engine.Request) (*engine.Response, error) {
		return nil, err
	})
}

func (s *Stub) Generate(ctx context.Context, model string, req engine.Request) (*engine.Response, error) {
	s.mu.Lock()
	s.calls = append(s.calls, Call{Model: model, Request: req})
	fn := s.generate
	s.mu.Unlock()
	return fn(ctx, model, req)
}

func (s *Stub) Synthesize(ctx context.Context, model string, req engine.SpeechRequest) (*engine.Audio, error) {
	s.mu.Lock()
	s.speech = append(s.speech, SpeechCall{Model: model, Request: req})
	fn := s.synthesize
	s.mu.Unlock()
	return fn(ctx, model, req)
}

func (s *Stub) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Call(nil), s.calls...)
}

func (s *Stub) SpeechCalls() []SpeechCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]SpeechCall(nil), s.speech...)
}

func copyMap(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
