package router

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/yungbote/equilix-backend/internal/config"
	"github.com/yungbote/equilix-backend/internal/engine/mock"
)

func TestNewBuildsRoutes(t *testing.T) {
	cfg := &config.Config{
		Models: []config.ModelConfig{
			{ID: "local", Engine: config.EngineConfig{Type: "mock"}},
			{ID: "flash", UpstreamModel: "gemini-2.5-flash", Engine: config.EngineConfig{Type: "gemini", APIKey: "k"}},
			{ID: "gpt", UpstreamModel: "gpt-4o-mini", Engine: config.EngineConfig{Type: "openai", APIKey: "k"}},
		},
		DefaultModel: "flash",
	}
	r, err := New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if diff := cmp.Diff([]string{"flash", "gpt", "local"}, r.ListModels()); diff != "" {
		t.Fatalf("models (-want +got):\n%s", diff)
	}
	route, err := r.Resolve("")
	if err != nil || route.UpstreamModel != "gemini-2.5-flash" {
		t.Fatalf("default route: %+v %v", route, err)
	}
	if _, err := r.Resolve("nope"); err == nil {
		t.Fatal("unknown model should fail")
	}
}

func TestNewRejectsUnknownType(t *testing.T) {
	cfg := &config.Config{Models: []config.ModelConfig{{ID: "x", Engine: config.EngineConfig{Type: "bard"}}}}
	if _, err := New(context.Background(), cfg); err == nil {
		t.Fatal("expected error")
	}
}

func TestSingle(t *testing.T) {
	stub := mock.NewStub()
	r := Single("stub", stub)
	route, err := r.Resolve("")
	if err != nil || route.Engine != stub {
		t.Fatalf("route: %+v %v", route, err)
	}
}
