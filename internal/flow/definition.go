// Package flow binds schemas, prompt templates and model engines into named,
// invocable capabilities.
package flow

import (
	"github.com/yungbote/equilix-backend/internal/engine"
	"github.com/yungbote/equilix-backend/internal/prompt"
	"github.com/yungbote/equilix-backend/internal/schema"
)

// Definition describes one flow. It is copied on registration and never
// mutated afterwards.
type Definition struct {
	Name        string
	Description string

	Input  schema.Schema
	Output schema.Schema

	Template *prompt.Template
	Options  Options
	Fallback Fallback

	// Coerce rewrites a decoded structured reply before output validation.
	Coerce CoerceFunc

	// HistoryField names an input array of {role, text} objects sent to the
	// model as prior conversation turns, in order.
	HistoryField string
}

type Options struct {
	// Model is a configured model id. Empty uses the router default.
	Model       string
	Mode        engine.Mode
	Temperature *float64

	// VoiceField names an optional input string that selects the voice for
	// audio output. Voice is the fallback.
	VoiceField string
	Voice      string
	// Instructions is the spoken style for ModeAudio flows.
	Instructions string

	// Speech, when set, speaks the generated text in a second call.
	Speech *SpeechOptions
}

type SpeechOptions struct {
	// Model is a configured model id for synthesis. Empty reuses the
	// generation route.
	Model        string
	Voice        string
	Instructions string
	// OutputField receives the audio data URI.
	OutputField string
	// SkipField names an optional boolean input; false skips synthesis.
	SkipField string
}

// Fallback is returned locally when a free-text model reply is blank.
type Fallback struct {
	Text string
}

// CoerceFunc maps a structured model reply onto the flow's documented output.
// It receives a private copy and may modify it.
type CoerceFunc func(out map[string]any) map[string]any

// textField is the output field that carries generated text.
func (d *Definition) textField() string {
	speech := ""
	if d.Options.Speech != nil {
		speech = d.Options.Speech.OutputField
	}
	for _, f := range d.Output.Fields {
		if f.Kind == schema.KindString && f.Format != schema.FormatDataURI && f.Name != speech {
			return f.Name
		}
	}
	return ""
}

// audioField is the output field that carries audio for audio-mode flows.
func (d *Definition) audioField() string {
	for _, f := range d.Output.Fields {
		if f.Kind == schema.KindString && f.Format == schema.FormatDataURI {
			return f.Name
		}
	}
	return ""
}
