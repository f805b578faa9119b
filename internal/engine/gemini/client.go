// Package gemini talks to the Gemini generateContent REST endpoint directly.
package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/yungbote/equilix-backend/internal/config"
	"github.com/yungbote/equilix-backend/internal/engine"
)

const backendName = "gemini"

// DefaultVoice is used for audio output when neither the request nor config names one.
const DefaultVoice = "Kore"

type Engine struct {
	baseURL     string
	apiKey      string
	timeout     time.Duration
	speechModel string
	voice       string

	httpClient *http.Client
}

func New(cfg config.EngineConfig) (*Engine, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = config.DefaultGeminiBaseURL
	}
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errors.New("gemini: api_key required")
	}

	tr := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	timeout := cfg.Timeout.Duration
	if timeout <= 0 {
		timeout = config.DefaultModelTimeout
	}
	voice := strings.TrimSpace(cfg.Voice)
	if voice == "" {
		voice = DefaultVoice
	}

	return &Engine{
		baseURL:     baseURL,
		apiKey:      apiKey,
		timeout:     timeout,
		speechModel: strings.TrimSpace(cfg.SpeechModel),
		voice:       voice,
		httpClient:  &http.Client{Transport: tr},
	}, nil
}

// NewWithHTTPClient is intended for tests; it avoids network access by using a custom RoundTripper.
func NewWithHTTPClient(cfg config.EngineConfig, httpClient *http.Client) (*Engine, error) {
	e, err := New(cfg)
	if err != nil {
		return nil, err
	}
	if httpClient != nil {
		e.httpClient = httpClient
	}
	return e, nil
}

func (e *Engine) Generate(ctx context.Context, model string, req engine.Request) (*engine.Response, error) {
	if req.Mode == engine.ModeAudio {
		req.Parts = req.StyledParts()
	}
	body, err := e.buildRequest(req)
	if err != nil {
		return nil, engine.Wrap(backendName, model, "generate", err)
	}

	var resp generateResponse
	if err := e.doJSON(ctx, model, body, &resp); err != nil {
		return nil, engine.Wrap(backendName, model, "generate", err)
	}
	if resp.Error != nil {
		return nil, &engine.InvocationError{
			Backend: backendName, Model: model, Op: "generate", StatusCode: resp.Error.Code,
			Err: fmt.Errorf("%s: %s", resp.Error.Status, resp.Error.Message),
		}
	}
	if len(resp.Candidates) == 0 {
		reason := "no candidates"
		if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
			reason = "prompt blocked: " + resp.PromptFeedback.BlockReason
		}
		return nil, &engine.InvocationError{Backend: backendName, Model: model, Op: "generate", Err: fmt.Errorf("%w: %s", engine.ErrEmptyResponse, reason)}
	}

	out := &engine.Response{Model: model}
	if resp.ModelVersion != "" {
		out.Model = resp.ModelVersion
	}
	parts := resp.Candidates[0].Content.Parts

	switch req.Mode {
	case engine.ModeAudio:
		for _, p := range parts {
			if p.InlineData == nil || !strings.HasPrefix(strings.ToLower(p.InlineData.MimeType), "audio/") {
				continue
			}
			a, err := engine.AudioFromPCM(p.InlineData.Data, p.InlineData.MimeType)
			if err != nil {
				return nil, engine.Wrap(backendName, model, "generate", err)
			}
			out.Audio = a
			return out, nil
		}
		return nil, &engine.InvocationError{Backend: backendName, Model: model, Op: "generate", Err: fmt.Errorf("%w: no audio part", engine.ErrEmptyResponse)}
	case engine.ModeJSON:
		out.Text = joinText(parts)
		if err := out.DecodeStructured(); err != nil {
			return nil, engine.Wrap(backendName, model, "decode", err)
		}
	default:
		out.Text = joinText(parts)
	}
	return out, nil
}

// Synthesize runs a single-speaker TTS generation and wraps the PCM as WAV.
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

func (e *Engine) buildRequest(req engine.Request) (*generateRequest, error) {
	out := &generateRequest{}
	if strings.TrimSpace(req.System) != "" {
		out.SystemInstruction = &content{Parts: []part{{Text: req.System}}}
	}
	for _, turn := range req.History {
		role := "user"
		switch turn.Role {
		case engine.RoleModel:
			role = "model"
		case engine.RoleSystem:
			// Gemini contents only carry user/model turns.
			role = "user"
		}
		out.Contents = append(out.Contents, content{Role: role, Parts: []part{{Text: turn.Text}}})
	}

	current := content{Role: "user"}
	for _, p := range req.Parts {
		if p.Media != nil {
			current.Parts = append(current.Parts, part{InlineData: &inlineData{MimeType: p.Media.MIMEType, Data: p.Media.Data}})
			continue
		}
		if p.Text != "" {
			current.Parts = append(current.Parts, part{Text: p.Text})
		}
	}
	if len(current.Parts) == 0 {
		return nil, errors.New("empty prompt")
	}
	out.Contents = append(out.Contents, current)

	gc := &generationConfig{Temperature: req.Temperature}
	switch req.Mode {
	case engine.ModeJSON:
		gc.ResponseMimeType = "application/json"
		gc.ResponseJSONSchema = req.Schema
	case engine.ModeAudio:
		voice := strings.TrimSpace(req.Voice)
		if voice == "" {
			voice = e.voice
		}
		gc.ResponseModalities = []string{"AUDIO"}
		gc.SpeechConfig = &speechConfig{VoiceConfig: &voiceConfig{PrebuiltVoiceConfig: &prebuiltVoiceConfig{VoiceName: voice}}}
	}
	out.GenerationConfig = gc
	return out, nil
}

func joinText(parts []part) string {
	var b strings.Builder
	for _, p := range parts {
		b.WriteString(p.Text)
	}
	return b.String()
}

// ---------------- HTTP helpers ----------------

func (e *Engine) doJSON(ctx context.Context, model string, body any, out any) error {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return err
	}

	ctx2 := ctx
	var cancel context.CancelFunc
	if e.timeout > 0 {
		ctx2, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	endpoint := fmt.Sprintf("%s/v1beta/models/%s:generateContent", e.baseURL, url.PathEscape(model))
	req, err := http.NewRequestWithContext(ctx2, http.MethodPost, endpoint, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("x-goog-api-key", e.apiKey)

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		return &engine.HTTPError{StatusCode: resp.StatusCode, Body: string(raw)}
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 64<<20))
	if err != nil {
		return err
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return fmt.Errorf("%w: empty body", engine.ErrEmptyResponse)
	}
	return json.Unmarshal(raw, out)
}
