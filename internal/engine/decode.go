package engine

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/yungbote/equilix-backend/internal/audio"
)

// ErrEmptyResponse marks a reply that carried no usable content for the mode.
var ErrEmptyResponse = errors.New("empty model response")

// SanitizeJSONText strips markdown code fences some models wrap JSON in.
func SanitizeJSONText(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	firstNL := strings.IndexByte(s, '\n')
	if firstNL == -1 {
		return strings.TrimSpace(strings.Trim(s, "`"))
	}
	s = s[firstNL+1:]
	if idx := strings.LastIndex(s, "```"); idx != -1 {
		s = s[:idx]
	}
	return strings.TrimSpace(s)
}

// DecodeJSONObject parses a structured-output reply into a JSON object.
func DecodeJSONObject(text string) (map[string]any, error) {
	clean := SanitizeJSONText(text)
	if clean == "" {
		return nil, ErrEmptyResponse
	}
	dec := json.NewDecoder(bytes.NewReader([]byte(clean)))
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("invalid json: %w", err)
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("invalid json: expected object, got %T", v)
	}
	return obj, nil
}

// DecodeStructured fills r.JSON from r.Text. Text that is not a JSON object
// stays on r.Text with r.JSON nil so the caller can reject it as bad output;
// only a blank reply is an error.
func (r *Response) DecodeStructured() error {
	if SanitizeJSONText(r.Text) == "" {
		return ErrEmptyResponse
	}
	if obj, err := DecodeJSONObject(r.Text); err == nil {
		r.JSON = obj
	}
	return nil
}

// AudioFromPCM wraps provider audio as WAV. Bytes that already carry a RIFF
// header are passed through.
func AudioFromPCM(data []byte, mime string) (*Audio, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: no audio data", ErrEmptyResponse)
	}
	if audio.IsWAV(data) {
		f, _, err := audio.DecodeHeader(data)
		if err != nil {
			return nil, err
		}
		return &Audio{MIMEType: audio.MIMETypeWAV, Data: data, Format: f}, nil
	}
	f := audio.FormatFromMIME(mime)
	wav, err := audio.EncodeWAV(data, f)
	if err != nil {
		return nil, fmt.Errorf("encode wav: %w", err)
	}
	return &Audio{MIMEType: audio.MIMETypeWAV, Data: wav, Format: f}, nil
}

// StyledParts prefixes Instructions to the first text part, for speech
// models that only take style from the prompt itself.
func (r Request) StyledParts() []Part {
	style := strings.TrimSpace(r.Instructions)
	if style == "" {
		return r.Parts
	}
	out := make([]Part, 0, len(r.Parts)+1)
	styled := false
	for _, p := range r.Parts {
		if !styled && p.Media == nil {
			p.Text = style + ": " + p.Text
			styled = true
		}
		out = append(out, p)
	}
	if !styled {
		out = append([]Part{TextPart(style + ":")}, out...)
	}
	return out
}

// PromptText concatenates the text parts of the request.
func (r Request) PromptText() string {
	var b strings.Builder
	for _, p := range r.Parts {
		b.WriteString(p.Text)
	}
	return b.String()
}
