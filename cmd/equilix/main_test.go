package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/yungbote/equilix-backend/internal/audio"
)

func mockConfig(t *testing.T) string {
	t.Helper()
	for _, k := range []string{"EQUILIX_BACKEND", "EQUILIX_MODEL", "EQUILIX_STORE_DRIVER", "REDIS_ADDR", "OTEL_ENABLED"} {
		t.Setenv(k, "")
	}
	p := filepath.Join(t.TempDir(), "equilix.yaml")
	cfg := "env: test\nmodels:\n  - id: local\n    engine:\n      type: mock\n"
	if err := os.WriteFile(p, []byte(cfg), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return p
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestFlowsCommand(t *testing.T) {
	out, err := run(t, "flows", "--config", mockConfig(t))
	if err != nil {
		t.Fatalf("flows: %v", err)
	}
	for _, name := range []string{"analyzeWellness", "detectEmotion", "textToSpeech"} {
		if !strings.Contains(out, name) {
			t.Fatalf("missing %s in:\n%s", name, out)
		}
	}
}

func TestInvokeCommand(t *testing.T) {
	out, err := run(t, "invoke", "chat", "--config", mockConfig(t), "--input", `{"message":"I can't sleep"}`)
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	var res struct {
		Flow   string         `json:"flow"`
		Model  string         `json:"model"`
		Output map[string]any `json:"output"`
	}
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if res.Flow != "chat" || res.Model != "local" || res.Output["response"] == "" {
		t.Fatalf("result: %+v", res)
	}
}

func TestInvokeWritesAudio(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "tts.json")
	if err := os.WriteFile(in, []byte(`{"text":"Breathe out slowly."}`), 0o600); err != nil {
		t.Fatal(err)
	}
	wav := filepath.Join(dir, "out.wav")
	out, err := run(t, "invoke", "textToSpeech", "--config", mockConfig(t), "--input-file", in, "--out-audio", wav)
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	b, err := os.ReadFile(wav)
	if err != nil {
		t.Fatalf("read wav: %v", err)
	}
	if !audio.IsWAV(b) {
		t.Fatalf("not a wav file: % x", b[:12])
	}
	if strings.Contains(out, "data:audio") || !strings.Contains(out, wav) {
		t.Fatalf("output:\n%s", out)
	}
}

func TestInvokeRequiresInput(t *testing.T) {
	if _, err := run(t, "invoke", "chat", "--config", mockConfig(t)); err == nil {
		t.Fatal("expected missing input error")
	}
	if _, err := run(t, "invoke", "chat", "--config", mockConfig(t), "--input", "[1]"); err == nil {
		t.Fatal("expected non-object input error")
	}
}

func TestInvokeValidationError(t *testing.T) {
	_, err := run(t, "invoke", "analyzeWellness", "--config", mockConfig(t), "--input", `{"age":30,"mood":500,"thoughts":"x"}`)
	if err == nil || !strings.Contains(err.Error(), "mood") {
		t.Fatalf("err = %v", err)
	}
}
