package flow

import (
	"fmt"
	"strings"

	"github.com/yungbote/equilix-backend/internal/engine"
	"github.com/yungbote/equilix-backend/internal/schema"
)

// structuredOutput turns a structured reply into a schema-valid output.
func (e *entry) structuredOutput(resp *engine.Response) (map[string]any, error) {
	raw := resp.JSON
	if raw == nil {
		decoded, err := engine.DecodeJSONObject(resp.Text)
		if err != nil {
			return nil, &OutputValidationError{Flow: e.def.Name, Raw: resp.Text, Err: err}
		}
		raw = decoded
	}
	raw = deepCopy(raw).(map[string]any)
	if e.def.Coerce != nil {
		raw = e.def.Coerce(raw)
	}
	return e.validateOutput(raw, resp.Text)
}

// textOutput wraps free text into the output's text field. A blank reply
// becomes the flow's fallback text.
func (e *entry) textOutput(resp *engine.Response) (map[string]any, bool, error) {
	field := e.def.textField()
	text := resp.Text
	fallback := false
	if strings.TrimSpace(text) == "" {
		if e.def.Fallback.Text == "" {
			return nil, false, &OutputValidationError{Flow: e.def.Name, Err: engine.ErrEmptyResponse}
		}
		text = e.def.Fallback.Text
		fallback = true
	}
	return map[string]any{field: text}, fallback, nil
}

func (e *entry) audioOutput(resp *engine.Response) (map[string]any, error) {
	if resp.Audio == nil || len(resp.Audio.Data) == 0 {
		return nil, &OutputValidationError{Flow: e.def.Name, Err: engine.ErrEmptyResponse}
	}
	return map[string]any{e.def.audioField(): resp.Audio.DataURI()}, nil
}

func (e *entry) validateOutput(raw map[string]any, rawText string) (map[string]any, error) {
	out, err := schema.Validate(e.def.Output, raw)
	if err != nil {
		ve, _ := err.(*schema.ValidationError)
		return nil, &OutputValidationError{Flow: e.def.Name, Cause: ve, Raw: rawText, Err: err}
	}
	if e.output != nil {
		if msgs := e.output.Check(out); len(msgs) > 0 {
			return nil, &OutputValidationError{Flow: e.def.Name, Raw: rawText, Err: fmt.Errorf("json schema: %s", strings.Join(msgs, "; "))}
		}
	}
	return out, nil
}

func deepCopy(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = deepCopy(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = deepCopy(val)
		}
		return out
	default:
		return v
	}
}
