// Package mock provides offline engines: a deterministic generator for local
// runs and a scripted stub for tests.
package mock

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"sort"
	"strings"

	"github.com/yungbote/equilix-backend/internal/audio"
	"github.com/yungbote/equilix-backend/internal/engine"
)

// Engine fabricates schema-conformant output from the request alone, so the
// same request always yields the same response.
type Engine struct {
	// SpeechMillis is the length of the silent clip Synthesize returns.
	SpeechMillis int
}

func New() *Engine {
	return &Engine{SpeechMillis: 250}
}

func (e *Engine) Generate(ctx context.Context, model string, req engine.Request) (*engine.Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, engine.Wrap("mock", model, "generate", err)
	}
	switch req.Mode {
	case engine.ModeJSON:
		seed := seedFor(model, req.PromptText())
		obj, _ := fabricate(req.Schema, "", seed).(map[string]any)
		if obj == nil {
			obj = map[string]any{}
		}
		return &engine.Response{JSON: obj, Model: model}, nil
	case engine.ModeAudio:
		a, err := e.silence()
		if err != nil {
			return nil, engine.Wrap("mock", model, "generate", err)
		}
		return &engine.Response{Audio: a, Model: model}, nil
	default:
		text := strings.TrimSpace(req.PromptText())
		if text == "" {
			return &engine.Response{Text: "mock: ok", Model: model}, nil
		}
		if len(text) > 120 {
			text = text[len(text)-120:]
		}
		return &engine.Response{Text: fmt.Sprintf("mock: %s", text), Model: model}, nil
	}
}

func (e *Engine) Synthesize(ctx context.Context, model string, req engine.SpeechRequest) (*engine.Audio, error) {
	if err := ctx.Err(); err != nil {
		return nil, engine.Wrap("mock", model, "synthesize", err)
	}
	return e.silence()
}

func (e *Engine) silence() (*engine.Audio, error) {
	ms := e.SpeechMillis
	if ms <= 0 {
		ms = 250
	}
	f := audio.DefaultFormat
	pcm := make([]byte, f.SampleRate*ms/1000*f.Channels*f.BitsPerSample/8)
	wav, err := audio.EncodeWAV(pcm, f)
	if err != nil {
		return nil, err
	}
	return &engine.Audio{MIMEType: audio.MIMETypeWAV, Data: wav, Format: f}, nil
}

func seedFor(model, prompt string) uint64 {
	h := sha256.Sum256([]byte(model + "\n" + prompt))
	return binary.LittleEndian.Uint64(h[:8])
}

// fabricate walks a JSON Schema fragment and produces a value satisfying it.
func fabricate(s map[string]any, name string, seed uint64) any {
	if s == nil {
		return nil
	}
	if enum, ok := s["enum"].([]string); ok && len(enum) > 0 {
		return enum[seed%uint64(len(enum))]
	}
	if enum, ok := s["enum"].([]any); ok && len(enum) > 0 {
		return enum[seed%uint64(len(enum))]
	}
	switch s["type"] {
	case "object":
		props, _ := s["properties"].(map[string]any)
		keys := make([]string, 0, len(props))
		for k := range props {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := make(map[string]any, len(keys))
		for i, k := range keys {
			sub, _ := props[k].(map[string]any)
			out[k] = fabricate(sub, k, seed+uint64(i)+1)
		}
		return out
	case "array":
		n := intOf(s["minItems"], 1)
		if n == 0 {
			n = 1
		}
		if max := intOf(s["maxItems"], n); max < n {
			n = max
		}
		items, _ := s["items"].(map[string]any)
		out := make([]any, 0, n)
		for i := 0; i < n; i++ {
			out = append(out, fabricate(items, fmt.Sprintf("%s %d", name, i+1), seed+uint64(i)))
		}
		return out
	case "number", "integer":
		lo := floatOf(s["minimum"], 0)
		hi := floatOf(s["maximum"], lo+100)
		if hi < lo {
			hi = lo
		}
		if s["type"] == "integer" {
			span := uint64(hi-lo) + 1
			return lo + float64(seed%span)
		}
		return lo + (hi-lo)*float64(seed%1000)/1000
	case "boolean":
		return seed%2 == 0
	default:
		v := "mock " + strings.TrimSpace(name)
		if name == "" {
			v = "mock value"
		}
		if maxLen := intOf(s["maxLength"], 0); maxLen > 0 && len(v) > maxLen {
			v = v[:maxLen]
		}
		return v
	}
}

func intOf(v any, def int) int {
	switch n := v.(type) {
	case int:
		return n
	case float64:
		return int(n)
	default:
		return def
	}
}

func floatOf(v any, def float64) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	default:
		return def
	}
}
