package flow

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/yungbote/equilix-backend/internal/engine"
	"github.com/yungbote/equilix-backend/internal/observability"
	"github.com/yungbote/equilix-backend/internal/platform/ctxutil"
	"github.com/yungbote/equilix-backend/internal/platform/logger"
	"github.com/yungbote/equilix-backend/internal/router"
	"github.com/yungbote/equilix-backend/internal/schema"
)

// Result is a successful invocation.
type Result struct {
	Flow  string
	Model string
	// Output always satisfies the flow's output schema.
	Output map[string]any
	// Fallback is true when Output came from the flow's local fallback.
	Fallback bool
	Duration time.Duration
}

type entry struct {
	def       Definition
	input     *schema.Compiled
	output    *schema.Compiled
	outSchema map[string]any
}

// Registry holds flow definitions and invokes them. It keeps no per-call
// state, so one Registry serves concurrent callers.
type Registry struct {
	router    *router.Router
	log       *logger.Logger
	tracer    trace.Tracer
	observers []Observer
	now       func() time.Time
	batchMax  int

	mu   sync.RWMutex
	defs map[string]*entry
}

type Option func(*Registry)

func WithLogger(log *logger.Logger) Option {
	return func(r *Registry) { r.log = log }
}

func WithObserver(o Observer) Option {
	return func(r *Registry) {
		if o != nil {
			r.observers = append(r.observers, o)
		}
	}
}

func WithTracer(t trace.Tracer) Option {
	return func(r *Registry) { r.tracer = t }
}

// WithBatchConcurrency caps concurrent invocations inside InvokeAll.
func WithBatchConcurrency(n int) Option {
	return func(r *Registry) { r.batchMax = n }
}

func NewRegistry(rt *router.Router, opts ...Option) *Registry {
	r := &Registry{
		router: rt,
		log:    logger.NewNop(),
		now:    time.Now,
		defs:   map[string]*entry{},
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.tracer == nil {
		r.tracer = observability.Tracer()
	}
	return r
}

// Register adds def. Names are unique and schemas must compile.
func (r *Registry) Register(def Definition) error {
	def.Name = strings.TrimSpace(def.Name)
	if def.Name == "" {
		return errors.New("flow name required")
	}
	if def.Template == nil {
		return fmt.Errorf("flow %s: template required", def.Name)
	}
	switch def.Options.Mode {
	case "":
		def.Options.Mode = engine.ModeJSON
	case engine.ModeJSON, engine.ModeText, engine.ModeAudio:
	default:
		return fmt.Errorf("flow %s: unsupported mode %q", def.Name, def.Options.Mode)
	}
	if def.Options.Mode == engine.ModeText && def.textField() == "" {
		return fmt.Errorf("flow %s: text mode needs a string output field", def.Name)
	}
	if def.Options.Mode == engine.ModeAudio && def.audioField() == "" {
		return fmt.Errorf("flow %s: audio mode needs a data URI output field", def.Name)
	}
	if sp := def.Options.Speech; sp != nil {
		if _, ok := def.Output.Field(sp.OutputField); !ok {
			return fmt.Errorf("flow %s: speech output field %q not in output schema", def.Name, sp.OutputField)
		}
		cp := *sp
		def.Options.Speech = &cp
	}
	if def.HistoryField != "" {
		if f, ok := def.Input.Field(def.HistoryField); !ok || f.Kind != schema.KindArray {
			return fmt.Errorf("flow %s: history field %q must be an input array", def.Name, def.HistoryField)
		}
	}
	if def.Options.Temperature != nil {
		t := *def.Options.Temperature
		def.Options.Temperature = &t
	}
	if def.Input.Name == "" {
		def.Input.Name = def.Name + "Input"
	}
	if def.Output.Name == "" {
		def.Output.Name = def.Name + "Output"
	}

	in, err := schema.Compile(def.Input)
	if err != nil {
		return fmt.Errorf("flow %s: %w", def.Name, err)
	}
	out, err := schema.Compile(def.Output)
	if err != nil {
		return fmt.Errorf("flow %s: %w", def.Name, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.defs[def.Name]; exists {
		return fmt.Errorf("flow %s already registered", def.Name)
	}
	r.defs[def.Name] = &entry{def: def, input: in, output: out, outSchema: def.Output.JSONSchema()}
	return nil
}

// MustRegister panics if Register fails.
func (r *Registry) MustRegister(def Definition) {
	if err := r.Register(def); err != nil {
		panic(err)
	}
}

func (r *Registry) lookup(name string) (*entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.defs[name]
	return e, ok
}

// Lookup returns a copy of the named definition.
func (r *Registry) Lookup(name string) (Definition, bool) {
	e, ok := r.lookup(name)
	if !ok {
		return Definition{}, false
	}
	return e.def, true
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.defs))
	for name := range r.defs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Descriptor is the public description of a registered flow.
type Descriptor struct {
	Name         string      `json:"name"`
	Description  string      `json:"description,omitempty"`
	Mode         engine.Mode `json:"mode"`
	InputSchema  any         `json:"inputSchema"`
	OutputSchema any         `json:"outputSchema"`
}

// Definitions describes every flow, sorted by name.
func (r *Registry) Definitions() []Descriptor {
	names := r.Names()
	out := make([]Descriptor, 0, len(names))
	for _, name := range names {
		e, ok := r.lookup(name)
		if !ok {
			continue
		}
		out = append(out, Descriptor{
			Name:         e.def.Name,
			Description:  e.def.Description,
			Mode:         e.def.Options.Mode,
			InputSchema:  e.input.Document(),
			OutputSchema: e.output.Document(),
		})
	}
	return out
}

type invokeConfig struct {
	model string
}

type InvokeOption func(*invokeConfig)

// WithModel overrides the flow's configured model for one call.
func WithModel(model string) InvokeOption {
	return func(c *invokeConfig) { c.model = strings.TrimSpace(model) }
}

// Invoke validates input, renders the prompt, calls the model and validates
// the reply. It stops at the first failure and never retries.
func (r *Registry) Invoke(ctx context.Context, name string, input map[string]any, opts ...InvokeOption) (res *Result, err error) {
	var cfg invokeConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	started := r.now()
	ev := Event{ID: uuid.New(), Flow: name, RequestID: ctxutil.RequestID(ctx), Started: started}
	ctx, span := r.tracer.Start(ctx, "flow.invoke", trace.WithAttributes(attribute.String("flow.name", name)))
	defer func() {
		ev.Duration = r.now().Sub(started)
		ev.Status = StatusOK
		if err != nil {
			ev.Status = StatusError
			ev.ErrorKind = Kind(err)
			span.RecordError(err)
			span.SetStatus(codes.Error, ev.ErrorKind)
		} else {
			ev.Fallback = res.Fallback
			res.Duration = ev.Duration
		}
		span.SetAttributes(attribute.String("flow.model", ev.Model), attribute.Bool("flow.fallback", ev.Fallback))
		span.End()
		r.emit(ctx, ev, err)
	}()

	e, ok := r.lookup(name)
	if !ok {
		ev.Flow = UnknownFlow
		return nil, &NotFoundError{Name: name}
	}
	def := &e.def
	ev.Mode = def.Options.Mode

	normalized, err := r.validateInput(ctx, def, input)
	if err != nil {
		return nil, err
	}

	model := cfg.model
	if model == "" {
		model = def.Options.Model
	}
	route, err := r.router.Resolve(model)
	if err != nil {
		return nil, fmt.Errorf("flow %s: %w", name, err)
	}
	ev.Model = route.PublicModel

	req, err := r.buildRequest(ctx, e, normalized)
	if err != nil {
		return nil, err
	}

	resp, err := r.generate(ctx, route, req)
	if err != nil {
		return nil, err
	}

	var (
		output   map[string]any
		fallback bool
	)
	_, cspan := r.tracer.Start(ctx, "flow.coerce")
	switch def.Options.Mode {
	case engine.ModeJSON:
		output, err = e.structuredOutput(resp)
	case engine.ModeAudio:
		output, err = e.audioOutput(resp)
	default:
		output, fallback, err = e.textOutput(resp)
	}
	endSpan(cspan, err)
	if err != nil {
		return nil, err
	}

	if sp := def.Options.Speech; sp != nil && speechWanted(sp, normalized) {
		uri, err := r.speak(ctx, def, route, output[def.textField()], normalized)
		if err != nil {
			return nil, err
		}
		output[sp.OutputField] = uri
	}

	if def.Options.Mode != engine.ModeJSON || def.Options.Speech != nil {
		if output, err = e.validateOutput(output, resp.Text); err != nil {
			return nil, err
		}
	}
	return &Result{Flow: name, Model: route.PublicModel, Output: output, Fallback: fallback}, nil
}

func (r *Registry) validateInput(ctx context.Context, def *Definition, input map[string]any) (map[string]any, error) {
	_, span := r.tracer.Start(ctx, "flow.validate")
	out, err := schema.Validate(def.Input, input)
	endSpan(span, err)
	if err != nil {
		return nil, fmt.Errorf("flow %s: %w", def.Name, err)
	}
	return out, nil
}

func (r *Registry) buildRequest(ctx context.Context, e *entry, input map[string]any) (engine.Request, error) {
	def := &e.def
	_, span := r.tracer.Start(ctx, "flow.render")
	rendered, err := def.Template.Render(input)
	if err == nil {
		span.SetAttributes(attribute.Int("prompt.parts", len(rendered.Parts)))
	}
	endSpan(span, err)
	if err != nil {
		return engine.Request{}, fmt.Errorf("flow %s: %w", def.Name, err)
	}

	req := engine.Request{
		System:      rendered.System,
		Parts:       rendered.Parts,
		Mode:        def.Options.Mode,
		Temperature: def.Options.Temperature,
		Voice:       voiceFrom(def, input, def.Options.Voice),
	}
	if def.HistoryField != "" {
		req.History = historyFrom(input[def.HistoryField])
	}
	if def.Options.Mode == engine.ModeAudio {
		req.Instructions = def.Options.Instructions
	}
	if def.Options.Mode == engine.ModeJSON {
		req.Schema = e.outSchema
		req.SchemaName = def.Output.Name
	}
	return req, nil
}

func (r *Registry) generate(ctx context.Context, route router.Route, req engine.Request) (*engine.Response, error) {
	ctx, span := r.tracer.Start(ctx, "engine.generate", trace.WithAttributes(
		attribute.String("engine.backend", route.Backend),
		attribute.String("engine.model", route.UpstreamModel),
		attribute.String("engine.mode", string(req.Mode)),
	))
	resp, err := route.Engine.Generate(ctx, route.UpstreamModel, req)
	if err == nil && resp == nil {
		err = engine.ErrEmptyResponse
	}
	err = engine.Wrap(route.Backend, route.UpstreamModel, "generate", err)
	endSpan(span, err)
	return resp, err
}

func (r *Registry) speak(ctx context.Context, def *Definition, route router.Route, text any, input map[string]any) (string, error) {
	sp := def.Options.Speech
	s, _ := text.(string)
	if sp.Model != "" {
		speechRoute, err := r.router.Resolve(sp.Model)
		if err != nil {
			return "", fmt.Errorf("flow %s: %w", def.Name, err)
		}
		route = speechRoute
	}
	voice := voiceFrom(def, input, sp.Voice)

	ctx, span := r.tracer.Start(ctx, "engine.synthesize", trace.WithAttributes(
		attribute.String("engine.backend", route.Backend),
		attribute.String("engine.model", route.UpstreamModel),
	))
	audio, err := route.Engine.Synthesize(ctx, route.UpstreamModel, engine.SpeechRequest{
		Text:         s,
		Voice:        voice,
		Instructions: sp.Instructions,
	})
	if err == nil && (audio == nil || len(audio.Data) == 0) {
		err = engine.ErrEmptyResponse
	}
	err = engine.Wrap(route.Backend, route.UpstreamModel, "synthesize", err)
	endSpan(span, err)
	if err != nil {
		return "", err
	}
	return audio.DataURI(), nil
}

func (r *Registry) emit(ctx context.Context, ev Event, err error) {
	if err != nil {
		r.log.Warn("flow invocation failed",
			"flow", ev.Flow,
			"model", ev.Model,
			"kind", ev.ErrorKind,
			"request_id", ev.RequestID,
			"duration_ms", ev.Duration.Milliseconds(),
			"error", err,
		)
	} else {
		r.log.Debug("flow invocation",
			"flow", ev.Flow,
			"model", ev.Model,
			"fallback", ev.Fallback,
			"request_id", ev.RequestID,
			"duration_ms", ev.Duration.Milliseconds(),
		)
	}
	for _, o := range r.observers {
		o.ObserveInvocation(ctx, ev)
	}
}

// voiceFrom prefers a non-blank voice named by the flow's VoiceField input.
func voiceFrom(def *Definition, input map[string]any, fallback string) string {
	if def.Options.VoiceField == "" {
		return fallback
	}
	if v, ok := input[def.Options.VoiceField].(string); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return fallback
}

func speechWanted(sp *SpeechOptions, input map[string]any) bool {
	if sp.SkipField == "" {
		return true
	}
	v, ok := input[sp.SkipField].(bool)
	return !ok || v
}

// historyFrom converts validated {role, text} objects into turns, keeping order.
func historyFrom(v any) []engine.Turn {
	items, _ := v.([]any)
	if len(items) == 0 {
		return nil
	}
	turns := make([]engine.Turn, 0, len(items))
	for _, it := range items {
		m, ok := it.(map[string]any)
		if !ok {
			continue
		}
		text, _ := m["text"].(string)
		role, _ := m["role"].(string)
		switch strings.ToLower(role) {
		case "model", "assistant":
			turns = append(turns, engine.Turn{Role: engine.RoleModel, Text: text})
		case "system":
			turns = append(turns, engine.Turn{Role: engine.RoleSystem, Text: text})
		default:
			turns = append(turns, engine.Turn{Role: engine.RoleUser, Text: text})
		}
	}
	return turns
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
