// Package genai serves the engine contract through the Google Gen AI SDK,
// against either the Gemini API or Vertex AI.
package genai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	sdk "google.golang.org/genai"

	"github.com/yungbote/equilix-backend/internal/config"
	"github.com/yungbote/equilix-backend/internal/engine"
)

const backendName = "genai"

const defaultVoice = "Kore"

// Models is the slice of the SDK client this engine needs.
type Models interface {
	GenerateContent(ctx context.Context, model string, contents []*sdk.Content, cfg *sdk.GenerateContentConfig) (*sdk.GenerateContentResponse, error)
}

type Engine struct {
	models      Models
	timeout     time.Duration
	speechModel string
	voice       string
}

func New(ctx context.Context, cfg config.EngineConfig) (*Engine, error) {
	return NewWithHTTPClient(ctx, cfg, nil)
}

// NewWithHTTPClient lets tests point the SDK at a stub transport.
func NewWithHTTPClient(ctx context.Context, cfg config.EngineConfig, httpClient *http.Client) (*Engine, error) {
	cc := &sdk.ClientConfig{HTTPClient: httpClient}
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case "vertex_ai":
		cc.Backend = sdk.BackendVertexAI
		cc.Project = cfg.Project
		cc.Location = cfg.Location
	default:
		cc.Backend = sdk.BackendGeminiAPI
		cc.APIKey = strings.TrimSpace(cfg.APIKey)
		if cc.APIKey == "" {
			return nil, errors.New("genai: api_key required")
		}
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions.BaseURL = cfg.BaseURL
	}
	client, err := sdk.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("genai client: %w", err)
	}
	return NewWithModels(client.Models, cfg), nil
}

// NewWithModels wraps an existing SDK models service.
func NewWithModels(models Models, cfg config.EngineConfig) *Engine {
	timeout := cfg.Timeout.Duration
	if timeout <= 0 {
		timeout = config.DefaultModelTimeout
	}
	voice := strings.TrimSpace(cfg.Voice)
	if voice == "" {
		voice = defaultVoice
	}
	return &Engine{models: models, timeout: timeout, speechModel: strings.TrimSpace(cfg.SpeechModel), voice: voice}
}

func (e *Engine) Generate(ctx context.Context, model string, req engine.Request) (*engine.Response, error) {
	if req.Mode == engine.ModeAudio {
		req.Parts = req.StyledParts()
	}
	contents, err := toContents(req)
	if err != nil {
		return nil, engine.Wrap(backendName, model, "generate", err)
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	resp, err := e.models.GenerateContent(ctx, model, contents, e.generateConfig(req))
	if err != nil {
		return nil, wrapSDKError(model, err)
	}
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		reason := "no candidates"
		if resp != nil && resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
			reason = "prompt blocked: " + string(resp.PromptFeedback.BlockReason)
		}
		return nil, &engine.InvocationError{Backend: backendName, Model: model, Op: "generate", Err: fmt.Errorf("%w: %s", engine.ErrEmptyResponse, reason)}
	}

	out := &engine.Response{Model: model}
	if resp.ModelVersion != "" {
		out.Model = resp.ModelVersion
	}

	switch req.Mode {
	case engine.ModeAudio:
		for _, p := range resp.Candidates[0].Content.Parts {
			if p == nil || p.InlineData == nil || !strings.HasPrefix(strings.ToLower(p.InlineData.MIMEType), "audio/") {
				continue
			}
			a, err := engine.AudioFromPCM(p.InlineData.Data, p.InlineData.MIMEType)
			if err != nil {
				return nil, engine.Wrap(backendName, model, "generate", err)
			}
			out.Audio = a
			return out, nil
		}
		return nil, &engine.InvocationError{Backend: backendName, Model: model, Op: "generate", Err: fmt.Errorf("%w: no audio part", engine.ErrEmptyResponse)}
	case engine.ModeJSON:
		out.Text = resp.Text()
		if err := out.DecodeStructured(); err != nil {
			return nil, engine.Wrap(backendName, model, "decode", err)
		}
	default:
		out.Text = resp.Text()
	}
	return out, nil
}

func (e *Engine) Synthesize(ctx context.Context, model string, req engine.SpeechRequest) (*engine.Audio, error) {
	if e.speechModel != "" {
		model = e.speechModel
	}
	resp, err := e.Generate(ctx, model, engine.Request{
		Parts:        []engine.Part{engine.TextPart(req.Text)},
		Mode:         engine.ModeAudio,
		Voice:        req.Voice,
		Instructions: req.Instructions,
	})
	if err != nil {
		return nil, err
	}
	return resp.Audio, nil
}

func (e *Engine) generateConfig(req engine.Request) *sdk.GenerateContentConfig {
	gc := &sdk.GenerateContentConfig{}
	if strings.TrimSpace(req.System) != "" {
		gc.SystemInstruction = &sdk.Content{Parts: []*sdk.Part{sdk.NewPartFromText(req.System)}}
	}
	if req.Temperature != nil {
		gc.Temperature = sdk.Ptr(float32(*req.Temperature))
	}
	switch req.Mode {
	case engine.ModeJSON:
		gc.ResponseMIMEType = "application/json"
		gc.ResponseJsonSchema = req.Schema
	case engine.ModeAudio:
		voice := strings.TrimSpace(req.Voice)
		if voice == "" {
			voice = e.voice
		}
		gc.ResponseModalities = []string{"AUDIO"}
		gc.SpeechConfig = &sdk.SpeechConfig{
			VoiceConfig: &sdk.VoiceConfig{PrebuiltVoiceConfig: &sdk.PrebuiltVoiceConfig{VoiceName: voice}},
		}
	}
	return gc
}

func toContents(req engine.Request) ([]*sdk.Content, error) {
	contents := make([]*sdk.Content, 0, len(req.History)+1)
	for _, turn := range req.History {
		role := sdk.RoleUser
		if turn.Role == engine.RoleModel {
			role = sdk.RoleModel
		}
		contents = append(contents, &sdk.Content{Role: role, Parts: []*sdk.Part{sdk.NewPartFromText(turn.Text)}})
	}
	var parts []*sdk.Part
	for _, p := range req.Parts {
		switch {
		case p.Media != nil:
			parts = append(parts, sdk.NewPartFromBytes(p.Media.Data, p.Media.MIMEType))
		case p.Text != "":
			parts = append(parts, sdk.NewPartFromText(p.Text))
		}
	}
	if len(parts) == 0 {
		return nil, errors.New("empty prompt")
	}
	return append(contents, &sdk.Content{Role: sdk.RoleUser, Parts: parts}), nil
}

func wrapSDKError(model string, err error) error {
	out := &engine.InvocationError{Backend: backendName, Model: model, Op: "generate", Err: err}
	var apiErr sdk.APIError
	if errors.As(err, &apiErr) {
		out.StatusCode = apiErr.Code
	}
	return out
}
