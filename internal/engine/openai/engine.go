// Package openai serves the engine contract from OpenAI-compatible chat and
// speech endpoints.
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	oa "github.com/sashabaranov/go-openai"

	"github.com/yungbote/equilix-backend/internal/config"
	"github.com/yungbote/equilix-backend/internal/engine"
	"github.com/yungbote/equilix-backend/internal/schema"
)

const backendName = "openai"

// pcmMIME describes what the speech endpoint returns for response_format=pcm.
const pcmMIME = "audio/L16;codec=pcm;rate=24000"

type Engine struct {
	client      *oa.Client
	timeout     time.Duration
	speechModel string
	voice       string
}

func New(cfg config.EngineConfig) (*Engine, error) {
	return NewWithHTTPClient(cfg, nil)
}

// NewWithHTTPClient is intended for tests; it avoids network access by using a custom RoundTripper.
func NewWithHTTPClient(cfg config.EngineConfig, httpClient *http.Client) (*Engine, error) {
	key := strings.TrimSpace(cfg.APIKey)
	if key == "" {
		return nil, errors.New("openai: api_key required")
	}
	oc := oa.DefaultConfig(key)
	if cfg.BaseURL != "" {
		oc.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	if httpClient != nil {
		oc.HTTPClient = httpClient
	}
	timeout := cfg.Timeout.Duration
	if timeout <= 0 {
		timeout = config.DefaultModelTimeout
	}
	speechModel := strings.TrimSpace(cfg.SpeechModel)
	if speechModel == "" {
		speechModel = string(oa.TTSModelGPT4oMini)
	}
	voice := strings.TrimSpace(cfg.Voice)
	if voice == "" {
		voice = string(oa.VoiceAlloy)
	}
	return &Engine{
		client:      oa.NewClientWithConfig(oc),
		timeout:     timeout,
		speechModel: speechModel,
		voice:       voice,
	}, nil
}

// rawSchema lets a plain map satisfy json.Marshaler for response_format.
type rawSchema map[string]any

func (r rawSchema) MarshalJSON() ([]byte, error) { return json.Marshal(map[string]any(r)) }

func (e *Engine) Generate(ctx context.Context, model string, req engine.Request) (*engine.Response, error) {
	if req.Mode == engine.ModeAudio {
		a, err := e.Synthesize(ctx, model, engine.SpeechRequest{Text: req.PromptText(), Voice: req.Voice, Instructions: req.Instructions})
		if err != nil {
			return nil, err
		}
		return &engine.Response{Audio: a, Model: e.speechModel}, nil
	}

	msgs, err := toMessages(req)
	if err != nil {
		return nil, engine.Wrap(backendName, model, "generate", err)
	}
	creq := oa.ChatCompletionRequest{Model: model, Messages: msgs}
	if req.Temperature != nil {
		creq.Temperature = float32(*req.Temperature)
	}
	if req.Mode == engine.ModeJSON {
		name := req.SchemaName
		if name == "" {
			name = "output"
		}
		creq.ResponseFormat = &oa.ChatCompletionResponseFormat{
			Type: oa.ChatCompletionResponseFormatTypeJSONSchema,
			JSONSchema: &oa.ChatCompletionResponseFormatJSONSchema{
				Name:   name,
				Schema: rawSchema(req.Schema),
			},
		}
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	resp, err := e.client.CreateChatCompletion(ctx, creq)
	if err != nil {
		return nil, wrapError(model, "generate", err)
	}
	if len(resp.Choices) == 0 {
		return nil, &engine.InvocationError{Backend: backendName, Model: model, Op: "generate", Err: fmt.Errorf("%w: no choices", engine.ErrEmptyResponse)}
	}

	out := &engine.Response{Text: resp.Choices[0].Message.Content, Model: model}
	if resp.Model != "" {
		out.Model = resp.Model
	}
	if req.Mode == engine.ModeJSON {
		if err := out.DecodeStructured(); err != nil {
			return nil, engine.Wrap(backendName, model, "decode", err)
		}
	}
	return out, nil
}

// Synthesize requests raw 24kHz PCM and wraps it as WAV. The model argument is
// the chat model; speech always uses the configured speech model.
func (e *Engine) Synthesize(ctx context.Context, _ string, req engine.SpeechRequest) (*engine.Audio, error) {
	voice := strings.TrimSpace(req.Voice)
	if voice == "" {
		voice = e.voice
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	raw, err := e.client.CreateSpeech(ctx, oa.CreateSpeechRequest{
		Model:          oa.SpeechModel(e.speechModel),
		Input:          req.Text,
		Voice:          oa.SpeechVoice(voice),
		Instructions:   req.Instructions,
		ResponseFormat: oa.SpeechResponseFormatPcm,
	})
	if err != nil {
		return nil, wrapError(e.speechModel, "synthesize", err)
	}
	defer raw.Close()

	pcm, err := io.ReadAll(io.LimitReader(raw, 64<<20))
	if err != nil {
		return nil, engine.Wrap(backendName, e.speechModel, "synthesize", err)
	}
	a, err := engine.AudioFromPCM(pcm, pcmMIME)
	if err != nil {
		return nil, engine.Wrap(backendName, e.speechModel, "synthesize", err)
	}
	return a, nil
}

func toMessages(req engine.Request) ([]oa.ChatCompletionMessage, error) {
	msgs := make([]oa.ChatCompletionMessage, 0, len(req.History)+2)
	if strings.TrimSpace(req.System) != "" {
		msgs = append(msgs, oa.ChatCompletionMessage{Role: oa.ChatMessageRoleSystem, Content: req.System})
	}
	for _, turn := range req.History {
		role := oa.ChatMessageRoleUser
		switch turn.Role {
		case engine.RoleModel:
			role = oa.ChatMessageRoleAssistant
		case engine.RoleSystem:
			role = oa.ChatMessageRoleSystem
		}
		msgs = append(msgs, oa.ChatCompletionMessage{Role: role, Content: turn.Text})
	}

	hasMedia := false
	for _, p := range req.Parts {
		if p.Media != nil {
			hasMedia = true
			break
		}
	}
	if !hasMedia {
		text := req.PromptText()
		if text == "" {
			return nil, errors.New("empty prompt")
		}
		return append(msgs, oa.ChatCompletionMessage{Role: oa.ChatMessageRoleUser, Content: text}), nil
	}

	parts := make([]oa.ChatMessagePart, 0, len(req.Parts))
	for _, p := range req.Parts {
		switch {
		case p.Media != nil:
			if !strings.HasPrefix(p.Media.MIMEType, "image/") {
				return nil, fmt.Errorf("unsupported media type %q", p.Media.MIMEType)
			}
			parts = append(parts, oa.ChatMessagePart{
				Type:     oa.ChatMessagePartTypeImageURL,
				ImageURL: &oa.ChatMessageImageURL{URL: schema.EncodeDataURI(p.Media.MIMEType, p.Media.Data)},
			})
		case p.Text != "":
			parts = append(parts, oa.ChatMessagePart{Type: oa.ChatMessagePartTypeText, Text: p.Text})
		}
	}
	return append(msgs, oa.ChatCompletionMessage{Role: oa.ChatMessageRoleUser, MultiContent: parts}), nil
}

func wrapError(model, op string, err error) error {
	out := &engine.InvocationError{Backend: backendName, Model: model, Op: op, Err: err}
	var apiErr *oa.APIError
	var reqErr *oa.RequestError
	switch {
	case errors.As(err, &apiErr):
		out.StatusCode = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		out.StatusCode = reqErr.HTTPStatusCode
	}
	return out
}
