package router

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/yungbote/equilix-backend/internal/config"
	"github.com/yungbote/equilix-backend/internal/engine"
	"github.com/yungbote/equilix-backend/internal/engine/gemini"
	"github.com/yungbote/equilix-backend/internal/engine/genai"
	"github.com/yungbote/equilix-backend/internal/engine/mock"
	"github.com/yungbote/equilix-backend/internal/engine/openai"
)

// ErrUnknownModel is returned by Resolve for a model id with no route.
var ErrUnknownModel = errors.New("model not configured")

type Route struct {
	PublicModel   string
	UpstreamModel string
	Backend       string
	Engine        engine.Engine
}

type Router struct {
	routes       map[string]Route
	defaultModel string
}

func New(ctx context.Context, cfg *config.Config) (*Router, error) {
	r := &Router{routes: map[string]Route{}, defaultModel: strings.TrimSpace(cfg.DefaultModel)}
	for _, m := range cfg.Models {
		id := strings.TrimSpace(m.ID)
		if id == "" {
			return nil, fmt.Errorf("model id required")
		}
		if _, exists := r.routes[id]; exists {
			return nil, fmt.Errorf("duplicate model id: %s", id)
		}

		var eng engine.Engine
		switch strings.ToLower(strings.TrimSpace(m.Engine.Type)) {
		case "mock":
			eng = mock.New()
		case "gemini":
			e, err := gemini.New(m.Engine)
			if err != nil {
				return nil, err
			}
			eng = e
		case "genai":
			e, err := genai.New(ctx, m.Engine)
			if err != nil {
				return nil, err
			}
			eng = e
		case "openai":
			e, err := openai.New(m.Engine)
			if err != nil {
				return nil, err
			}
			eng = e
		default:
			return nil, fmt.Errorf("unsupported engine type %q for model %q", m.Engine.Type, id)
		}

		upstream := strings.TrimSpace(m.UpstreamModel)
		if upstream == "" {
			upstream = id
		}
		r.routes[id] = Route{PublicModel: id, UpstreamModel: upstream, Backend: m.Engine.Type, Engine: eng}
	}
	if r.defaultModel == "" && len(cfg.Models) > 0 {
		r.defaultModel = strings.TrimSpace(cfg.Models[0].ID)
	}
	if _, ok := r.routes[r.defaultModel]; !ok {
		return nil, fmt.Errorf("default model %q not configured", r.defaultModel)
	}
	return r, nil
}

// Single builds a router with one engine under id. Tests and embedders use it
// to inject stubs.
func Single(id string, eng engine.Engine) *Router {
	return &Router{
		routes:       map[string]Route{id: {PublicModel: id, UpstreamModel: id, Backend: "custom", Engine: eng}},
		defaultModel: id,
	}
}

func (r *Router) ListModels() []string {
	out := make([]string, 0, len(r.routes))
	for id := range r.routes {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func (r *Router) RouteForModel(model string) (Route, bool) {
	route, ok := r.routes[strings.TrimSpace(model)]
	return route, ok
}

// Resolve returns the route for model, or the default route when model is empty.
func (r *Router) Resolve(model string) (Route, error) {
	model = strings.TrimSpace(model)
	if model == "" {
		model = r.defaultModel
	}
	route, ok := r.routes[model]
	if !ok {
		return Route{}, fmt.Errorf("%w: %q", ErrUnknownModel, model)
	}
	return route, nil
}

func (r *Router) DefaultModel() string { return r.defaultModel }
