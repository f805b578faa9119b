package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/equilix-backend/internal/config"
	"github.com/yungbote/equilix-backend/internal/engine"
	"github.com/yungbote/equilix-backend/internal/engine/mock"
	"github.com/yungbote/equilix-backend/internal/flow"
	"github.com/yungbote/equilix-backend/internal/flows/wellness"
	"github.com/yungbote/equilix-backend/internal/observability"
	"github.com/yungbote/equilix-backend/internal/platform/logger"
	"github.com/yungbote/equilix-backend/internal/ratelimit"
	"github.com/yungbote/equilix-backend/internal/router"
	"github.com/yungbote/equilix-backend/internal/store"
)

func testConfig() *config.Config {
	return &config.Config{
		HTTP:    config.HTTPConfig{MaxRequestBytes: 1 << 10},
		Tracing: config.TracingConfig{ServiceName: "equilix-test"},
		Metrics: config.MetricsConfig{Enabled: true, Path: "/metrics"},
	}
}

func testDeps(t *testing.T, eng engine.Engine, opts ...flow.Option) Deps {
	t.Helper()
	reg := flow.NewRegistry(router.Single("stub", eng), opts...)
	if err := wellness.Register(reg); err != nil {
		t.Fatalf("Register: %v", err)
	}
	return Deps{
		Config:   testConfig(),
		Log:      logger.NewNop(),
		Registry: reg,
		Metrics:  observability.NewMetrics(),
	}
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) errorBody {
	t.Helper()
	var env struct {
		Error struct {
			Message string            `json:"message"`
			Code    string            `json:"code"`
			Details []json.RawMessage `json:"details"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode error body %q: %v", rr.Body.String(), err)
	}
	var details any
	if len(env.Error.Details) > 0 {
		details = env.Error.Details
	}
	return errorBody{Message: env.Error.Message, Code: env.Error.Code, Details: details}
}

var wellnessReply = map[string]any{
	"mood":              "Neutral",
	"summary":           "A steady day.",
	"suggestions":       []any{"Walk", "Stretch", "Sleep early"},
	"recommendedAction": "Take a short walk.",
}

func TestHealthAndReady(t *testing.T) {
	d := testDeps(t, mock.NewStub())
	h := NewHandler(d)
	if rr := do(t, h, http.MethodGet, "/healthz", ""); rr.Code != http.StatusOK || rr.Body.String() != "ok" {
		t.Fatalf("healthz: %d %q", rr.Code, rr.Body.String())
	}

	d.Ready = func(context.Context) error { return errors.New("db down") }
	h = NewHandler(d)
	if rr := do(t, h, http.MethodGet, "/readyz", ""); rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("readyz: %d", rr.Code)
	}
}

func TestListFlows(t *testing.T) {
	h := NewHandler(testDeps(t, mock.NewStub()))
	rr := do(t, h, http.MethodGet, "/v1/flows", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
	}
	var out struct {
		Flows []struct {
			Name        string         `json:"name"`
			Mode        string         `json:"mode"`
			InputSchema map[string]any `json:"inputSchema"`
		} `json:"flows"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out.Flows) != 7 || out.Flows[0].Name != wellness.AIFriend || out.Flows[0].InputSchema == nil {
		t.Fatalf("flows: %+v", out.Flows)
	}
}

func TestInvokeFlow(t *testing.T) {
	stub := mock.NewStub().RespondJSON(wellnessReply)
	h := NewHandler(testDeps(t, stub))

	req := httptest.NewRequest(http.MethodPost, "/v1/flows/analyzeWellness/invoke", strings.NewReader(`{"age":30,"mood":55,"thoughts":"fine"}`))
	req.Header.Set("X-Request-Id", "req-abc")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
	}
	if got := rr.Header().Get("X-Request-Id"); got != "req-abc" {
		t.Fatalf("request id header %q", got)
	}
	var out invokeResponse
	if err := json.NewDecoder(rr.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Flow != wellness.AnalyzeWellness || out.Model != "stub" || out.Output["mood"] != "Neutral" || out.Fallback {
		t.Fatalf("response: %+v", out)
	}
}

func TestInvokeErrors(t *testing.T) {
	cases := []struct {
		name   string
		eng    engine.Engine
		path   string
		body   string
		status int
		code   string
	}{
		{"validation", mock.NewStub(), "/v1/flows/analyzeWellness/invoke", `{"age":30,"mood":101,"thoughts":"x"}`, http.StatusBadRequest, "validation_failed"},
		{"not found", mock.NewStub(), "/v1/flows/nope/invoke", `{}`, http.StatusNotFound, "flow_not_found"},
		{"unknown model", mock.NewStub(), "/v1/flows/chat/invoke?model=gpt-x", `{"message":"hi"}`, http.StatusBadRequest, "unknown_model"},
		{"model down", mock.NewStub().Fail(&engine.HTTPError{StatusCode: 503, Body: "overloaded"}), "/v1/flows/chat/invoke", `{"message":"hi"}`, http.StatusBadGateway, "model_unreachable"},
		{"bad output", mock.NewStub().RespondJSON(map[string]any{"mood": "Neutral", "secret": "raw-model-text"}), "/v1/flows/analyzeWellness/invoke", `{"age":30,"mood":50,"thoughts":"x"}`, http.StatusBadGateway, "invalid_model_output"},
		{"bad json", mock.NewStub(), "/v1/flows/chat/invoke", `[1,2`, http.StatusBadRequest, "bad_request"},
		{"too large", mock.NewStub(), "/v1/flows/chat/invoke", `{"message":"` + strings.Repeat("a", 2048) + `"}`, http.StatusRequestEntityTooLarge, "request_too_large"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			h := NewHandler(testDeps(t, c.eng))
			rr := do(t, h, http.MethodPost, c.path, c.body)
			if rr.Code != c.status {
				t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
			}
			body := decodeError(t, rr)
			if body.Code != c.code || body.Message == "" {
				t.Fatalf("error body: %+v", body)
			}
			if strings.Contains(rr.Body.String(), "raw-model-text") {
				t.Fatal("model output leaked to client")
			}
		})
	}
}

func TestInvokeValidationDetails(t *testing.T) {
	h := NewHandler(testDeps(t, mock.NewStub()))
	rr := do(t, h, http.MethodPost, "/v1/flows/analyzeWellness/invoke", `{"mood":-1}`)
	var env struct {
		Error struct {
			Details []struct {
				Path    string `json:"path"`
				Message string `json:"message"`
			} `json:"details"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode: %v", err)
	}
	paths := map[string]bool{}
	for _, d := range env.Error.Details {
		paths[d.Path] = true
	}
	if !paths["age"] || !paths["mood"] || !paths["thoughts"] {
		t.Fatalf("details: %+v", env.Error.Details)
	}
}

func TestInvokeCanceled(t *testing.T) {
	stub := mock.NewStub().OnGenerate(func(ctx context.Context, _ string, _ engine.Request) (*engine.Response, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	h := NewHandler(testDeps(t, stub))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest(http.MethodPost, "/v1/flows/chat/invoke", strings.NewReader(`{"message":"hi"}`)).WithContext(ctx)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != StatusClientClosedRequest || decodeError(t, rr).Code != "request_canceled" {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
	}
}

func TestBatch(t *testing.T) {
	stub := mock.NewStub().RespondText("Try a short walk.")
	h := NewHandler(testDeps(t, stub))

	body := `{"calls":[{"flow":"chat","input":{"message":"hi"}},{"flow":"missing","input":{}},{"flow":"chat","input":{}}]}`
	rr := do(t, h, http.MethodPost, "/v1/flows/batch", body)
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
	}
	var out batchResponse
	if err := json.NewDecoder(rr.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out.Results) != 3 {
		t.Fatalf("results: %+v", out.Results)
	}
	if r := out.Results[0]; r.Result == nil || r.Result.Output["response"] != "Try a short walk." {
		t.Fatalf("first: %+v", r)
	}
	if r := out.Results[1]; r.Error == nil || r.Error.Code != "flow_not_found" {
		t.Fatalf("second: %+v", r)
	}
	if r := out.Results[2]; r.Error == nil || r.Error.Code != "validation_failed" {
		t.Fatalf("third: %+v", r)
	}

	if rr := do(t, h, http.MethodPost, "/v1/flows/batch", `{"calls":[]}`); rr.Code != http.StatusBadRequest {
		t.Fatalf("empty batch: %d", rr.Code)
	}
}

func TestRateLimit(t *testing.T) {
	d := testDeps(t, mock.NewStub())
	d.Limiter = ratelimit.NewMemory(1, time.Minute, nil)
	h := NewHandler(d)

	if rr := do(t, h, http.MethodGet, "/v1/flows", ""); rr.Code != http.StatusOK {
		t.Fatalf("first: %d", rr.Code)
	}
	rr := do(t, h, http.MethodGet, "/v1/flows", "")
	if rr.Code != http.StatusTooManyRequests || decodeError(t, rr).Code != "rate_limited" {
		t.Fatalf("second: %d %s", rr.Code, rr.Body.String())
	}
	if rr.Header().Get("Retry-After") == "" {
		t.Fatal("missing Retry-After")
	}
	// probes are not limited
	if rr := do(t, h, http.MethodGet, "/healthz", ""); rr.Code != http.StatusOK {
		t.Fatalf("healthz: %d", rr.Code)
	}

	metrics := do(t, h, http.MethodGet, "/metrics", "").Body.String()
	if !strings.Contains(metrics, "equilix_rate_limited_total 1") {
		t.Fatalf("metrics:\n%s", metrics)
	}
}

type failingLimiter struct{}

func (failingLimiter) Allow(context.Context, string) (ratelimit.Decision, error) {
	return ratelimit.Decision{}, errors.New("redis: connection refused")
}

func TestRateLimitFailsOpen(t *testing.T) {
	d := testDeps(t, mock.NewStub())
	d.Limiter = failingLimiter{}
	if rr := do(t, NewHandler(d), http.MethodGet, "/v1/flows", ""); rr.Code != http.StatusOK {
		t.Fatalf("status=%d", rr.Code)
	}
}

func TestInvocationEndpoints(t *testing.T) {
	db, err := store.Open(config.StoreConfig{Driver: "sqlite", DSN: "file:" + uuid.NewString() + "?mode=memory&cache=shared"})
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { _ = store.Close(db) })
	repo := store.NewInvocationRepo(db, logger.NewNop())

	d := testDeps(t, mock.NewStub().RespondText(""), flow.WithObserver(store.NewObserver(repo, logger.NewNop())))
	d.Invocations = repo
	h := NewHandler(d)

	if rr := do(t, h, http.MethodPost, "/v1/flows/chat/invoke", `{"message":"hi"}`); rr.Code != http.StatusOK {
		t.Fatalf("invoke: %d %s", rr.Code, rr.Body.String())
	}
	_ = do(t, h, http.MethodPost, "/v1/flows/chat/invoke", `{}`)

	rr := do(t, h, http.MethodGet, "/v1/invocations?flow=chat&limit=10", "")
	var list struct {
		Invocations []store.InvocationRecord `json:"invocations"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &list); err != nil || len(list.Invocations) != 2 {
		t.Fatalf("list: %s %v", rr.Body.String(), err)
	}
	if list.Invocations[0].Status != flow.StatusError || list.Invocations[1].Fallback != true {
		t.Fatalf("records: %+v", list.Invocations)
	}

	rr = do(t, h, http.MethodGet, "/v1/invocations/stats?since=1h", "")
	var stats struct {
		Stats []store.FlowStat `json:"stats"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &stats); err != nil || len(stats.Stats) != 2 {
		t.Fatalf("stats: %s %v", rr.Body.String(), err)
	}

	if rr := do(t, h, http.MethodGet, "/v1/invocations?limit=-3", ""); rr.Code != http.StatusBadRequest {
		t.Fatalf("bad limit: %d", rr.Code)
	}
	if rr := do(t, h, http.MethodGet, "/v1/invocations/stats?since=yesterday", ""); rr.Code != http.StatusBadRequest {
		t.Fatalf("bad since: %d", rr.Code)
	}
}

func TestInvocationsDisabled(t *testing.T) {
	h := NewHandler(testDeps(t, mock.NewStub()))
	rr := do(t, h, http.MethodGet, "/v1/invocations", "")
	if rr.Code != http.StatusServiceUnavailable || decodeError(t, rr).Code != "store_disabled" {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
	}
}
