// Package engine is the contract between flows and hosted generative models.
package engine

import (
	"context"

	"github.com/yungbote/equilix-backend/internal/audio"
)

type Role string

const (
	RoleUser   Role = "user"
	RoleModel  Role = "model"
	RoleSystem Role = "system"
)

// Turn is one prior message of a conversation, in caller order.
type Turn struct {
	Role Role
	Text string
}

type Media struct {
	MIMEType string
	Data     []byte
}

// Part is one element of a multi-part prompt: text or inline media.
type Part struct {
	Text  string
	Media *Media
}

func TextPart(s string) Part { return Part{Text: s} }

type Mode string

const (
	ModeText  Mode = "text"
	ModeJSON  Mode = "json"
	ModeAudio Mode = "audio"
)

type Request struct {
	System  string
	History []Turn
	Parts   []Part
	Mode    Mode

	// Schema is the JSON Schema requested for ModeJSON.
	Schema     map[string]any
	SchemaName string

	Temperature *float64
	// Voice names a prebuilt voice for ModeAudio.
	Voice string
	// Instructions is spoken style for ModeAudio. It is never read aloud.
	Instructions string
}

type Audio struct {
	MIMEType string
	Data     []byte
	Format   audio.Format
}

func (a *Audio) DataURI() string {
	if a == nil {
		return ""
	}
	return audio.DataURI(a.Data)
}

type Response struct {
	Text  string
	JSON  map[string]any
	Audio *Audio
	// Model is the upstream model that served the call.
	Model string
}

type SpeechRequest struct {
	Text  string
	Voice string
	// Instructions is optional style guidance ("speak warmly").
	Instructions string
}

// Engine makes exactly one upstream round trip per call and never retries.
// Transport, status and decode failures are returned as *InvocationError.
// An empty text completion is not an error.
type Engine interface {
	Generate(ctx context.Context, model string, req Request) (*Response, error)
	Synthesize(ctx context.Context, model string, req SpeechRequest) (*Audio, error)
}
