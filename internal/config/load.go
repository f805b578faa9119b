package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/yungbote/equilix-backend/internal/platform/envutil"
)

const (
	DefaultGeminiBaseURL = "https://generativelanguage.googleapis.com"
	DefaultOpenAIBaseURL = "https://api.openai.com/v1"
	DefaultModelTimeout  = 60 * time.Second
)

func (d *Duration) UnmarshalJSON(b []byte) error {
	return d.parse(strings.TrimSpace(string(b)))
}

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	return d.parse(strings.TrimSpace(node.Value))
}

func (d Duration) MarshalYAML() (any, error) { return d.Duration.String(), nil }

func (d *Duration) parse(s string) error {
	if s == "" || s == "null" || s == `""` {
		d.Duration = 0
		return nil
	}
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		u, err := strconv.Unquote(s)
		if err != nil {
			return err
		}
		s = strings.TrimSpace(u)
		if s == "" {
			d.Duration = 0
			return nil
		}
	}
	if dd, err := time.ParseDuration(s); err == nil {
		d.Duration = dd
		return nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return fmt.Errorf("duration must be a string like \"5s\" or an int nanoseconds: %w", err)
	}
	d.Duration = time.Duration(n)
	return nil
}

func defaultConfig() *Config {
	return &Config{
		Env: "development",
		HTTP: HTTPConfig{
			Addr:              ":8080",
			ReadHeaderTimeout: Duration{Duration: 5 * time.Second},
			IdleTimeout:       Duration{Duration: 2 * time.Minute},
			ShutdownTimeout:   Duration{Duration: 15 * time.Second},
			MaxRequestBytes:   12 << 20,
			CORSOrigins: []string{
				"http://localhost:3000",
				"http://localhost:5173",
				"http://127.0.0.1:3000",
				"http://127.0.0.1:5173",
			},
		},
		Models: []ModelConfig{
			{ID: "mock", Engine: EngineConfig{Type: "mock"}},
		},
		DefaultModel: "mock",
		Store:        StoreConfig{Driver: "disabled"},
		RateLimit: RateLimitConfig{
			Backend: "memory",
			Limit:   60,
			Window:  Duration{Duration: time.Minute},
		},
		Tracing: TracingConfig{ServiceName: "equilix", SamplerRatio: 0.1},
		Metrics: MetricsConfig{Enabled: true, Path: "/metrics"},
	}
}

// Load resolves configuration as defaults, then the YAML file, then env.
// An empty path falls back to EQUILIX_CONFIG, then ./config/equilix.yaml if present.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	path = strings.TrimSpace(path)
	if path == "" {
		path = strings.TrimSpace(os.Getenv("EQUILIX_CONFIG"))
	}
	if path == "" {
		if wd, err := os.Getwd(); err == nil {
			p := filepath.Join(wd, "config", "equilix.yaml")
			if _, err := os.Stat(p); err == nil {
				path = p
			}
		}
	}
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(b, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	applyEnv(cfg)

	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.Env = envutil.String("LOG_MODE", cfg.Env)
	cfg.HTTP.Addr = envutil.String("EQUILIX_HTTP_ADDR", cfg.HTTP.Addr)

	// EQUILIX_BACKEND / EQUILIX_MODEL replace the model table with a single entry.
	backend := strings.TrimSpace(os.Getenv("EQUILIX_BACKEND"))
	model := strings.TrimSpace(os.Getenv("EQUILIX_MODEL"))
	if backend != "" || model != "" {
		if backend == "" {
			backend = "gemini"
		}
		if model == "" {
			model = "gemini-2.5-flash"
		}
		cfg.Models = []ModelConfig{{ID: model, Engine: EngineConfig{
			Type:        backend,
			Voice:       os.Getenv("EQUILIX_VOICE"),
			SpeechModel: os.Getenv("EQUILIX_SPEECH_MODEL"),
		}}}
		cfg.DefaultModel = model
	}

	timeout := envutil.Duration("EQUILIX_MODEL_TIMEOUT", 0)
	for i := range cfg.Models {
		e := &cfg.Models[i].Engine
		if e.APIKey == "" {
			e.APIKey = apiKeyFromEnv(e.Type)
		}
		if timeout > 0 {
			e.Timeout = Duration{Duration: timeout}
		}
	}

	cfg.Store.Driver = envutil.String("EQUILIX_STORE_DRIVER", cfg.Store.Driver)
	cfg.Store.DSN = envutil.String("EQUILIX_STORE_DSN", cfg.Store.DSN)

	if addr := strings.TrimSpace(os.Getenv("REDIS_ADDR")); addr != "" {
		cfg.RateLimit.RedisAddr = addr
		cfg.RateLimit.Backend = "redis"
	}
	cfg.RateLimit.Enabled = envutil.Bool("EQUILIX_RATE_LIMIT_ENABLED", cfg.RateLimit.Enabled)
	cfg.RateLimit.Limit = envutil.Int("EQUILIX_RATE_LIMIT", cfg.RateLimit.Limit)

	cfg.Tracing.Enabled = envutil.Bool("OTEL_ENABLED", cfg.Tracing.Enabled)
	cfg.Tracing.Endpoint = envutil.String("OTEL_EXPORTER_OTLP_ENDPOINT", cfg.Tracing.Endpoint)
	cfg.Tracing.Insecure = envutil.Bool("OTEL_EXPORTER_OTLP_INSECURE", cfg.Tracing.Insecure)
	if raw := strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_HEADERS")); raw != "" {
		cfg.Tracing.Headers = parseHeaders(raw)
	}
	if v := strings.TrimSpace(os.Getenv("OTEL_SAMPLER_RATIO")); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Tracing.SamplerRatio = f
		}
	}

	cfg.Metrics.Enabled = envutil.Bool("METRICS_ENABLED", cfg.Metrics.Enabled)
}

func apiKeyFromEnv(engineType string) string {
	if v := strings.TrimSpace(os.Getenv("EQUILIX_API_KEY")); v != "" {
		return v
	}
	switch strings.ToLower(strings.TrimSpace(engineType)) {
	case "gemini", "genai":
		if v := strings.TrimSpace(os.Getenv("GEMINI_API_KEY")); v != "" {
			return v
		}
		return strings.TrimSpace(os.Getenv("GOOGLE_API_KEY"))
	case "openai":
		return strings.TrimSpace(os.Getenv("OPENAI_API_KEY"))
	}
	return ""
}

func parseHeaders(raw string) map[string]string {
	headers := map[string]string{}
	for _, part := range strings.Split(raw, ",") {
		kv := strings.SplitN(strings.TrimSpace(part), "=", 2)
		if len(kv) != 2 {
			continue
		}
		key, val := strings.TrimSpace(kv[0]), strings.TrimSpace(kv[1])
		if key == "" || val == "" {
			continue
		}
		headers[key] = val
	}
	if len(headers) == 0 {
		return nil
	}
	return headers
}

func (cfg *Config) normalize() error {
	if cfg.Env == "" {
		cfg.Env = "development"
	}
	if strings.TrimSpace(cfg.HTTP.Addr) == "" {
		cfg.HTTP.Addr = ":8080"
	}
	if cfg.HTTP.MaxRequestBytes <= 0 {
		cfg.HTTP.MaxRequestBytes = 12 << 20
	}
	if cfg.HTTP.ShutdownTimeout.Duration <= 0 {
		cfg.HTTP.ShutdownTimeout = Duration{Duration: 15 * time.Second}
	}
	if len(cfg.Models) == 0 {
		return errors.New("config must define at least one model")
	}

	seen := map[string]bool{}
	for i := range cfg.Models {
		m := &cfg.Models[i]
		m.ID = strings.TrimSpace(m.ID)
		if m.ID == "" {
			return errors.New("model id is required")
		}
		if seen[m.ID] {
			return fmt.Errorf("duplicate model id %q", m.ID)
		}
		seen[m.ID] = true
		if strings.TrimSpace(m.UpstreamModel) == "" {
			m.UpstreamModel = m.ID
		}

		e := &m.Engine
		e.Type = strings.ToLower(strings.TrimSpace(e.Type))
		e.BaseURL = strings.TrimRight(strings.TrimSpace(e.BaseURL), "/")
		if e.Timeout.Duration < 0 {
			return fmt.Errorf("model %q invalid engine.timeout", m.ID)
		}
		if e.Timeout.Duration == 0 {
			e.Timeout = Duration{Duration: DefaultModelTimeout}
		}

		switch e.Type {
		case "gemini", "gemini_rest":
			e.Type = "gemini"
			if e.BaseURL == "" {
				e.BaseURL = DefaultGeminiBaseURL
			}
			if e.APIKey == "" {
				return fmt.Errorf("model %q (gemini) missing engine.api_key (or GEMINI_API_KEY)", m.ID)
			}
		case "genai":
			e.Backend = strings.ToLower(strings.TrimSpace(e.Backend))
			switch e.Backend {
			case "", "gemini_api":
				e.Backend = "gemini_api"
				if e.APIKey == "" {
					return fmt.Errorf("model %q (genai) missing engine.api_key (or GEMINI_API_KEY)", m.ID)
				}
			case "vertex_ai":
				if strings.TrimSpace(e.Project) == "" || strings.TrimSpace(e.Location) == "" {
					return fmt.Errorf("model %q (genai vertex_ai) requires engine.project and engine.location", m.ID)
				}
			default:
				return fmt.Errorf("model %q invalid engine.backend=%q", m.ID, e.Backend)
			}
		case "openai":
			if e.BaseURL == "" {
				e.BaseURL = DefaultOpenAIBaseURL
			}
			if e.APIKey == "" {
				return fmt.Errorf("model %q (openai) missing engine.api_key (or OPENAI_API_KEY)", m.ID)
			}
		case "mock":
		case "":
			return fmt.Errorf("model %q missing engine.type", m.ID)
		default:
			return fmt.Errorf("model %q unsupported engine.type=%q", m.ID, e.Type)
		}
	}

	cfg.DefaultModel = strings.TrimSpace(cfg.DefaultModel)
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = cfg.Models[0].ID
	}
	if !seen[cfg.DefaultModel] {
		return fmt.Errorf("default_model %q is not a configured model", cfg.DefaultModel)
	}

	cfg.Store.Driver = strings.ToLower(strings.TrimSpace(cfg.Store.Driver))
	switch cfg.Store.Driver {
	case "", "disabled", "none":
		cfg.Store.Driver = "disabled"
	case "sqlite":
		if cfg.Store.DSN == "" {
			cfg.Store.DSN = "equilix.db"
		}
	case "postgres":
		if cfg.Store.DSN == "" {
			return errors.New("store.dsn required for postgres")
		}
	default:
		return fmt.Errorf("unsupported store.driver=%q", cfg.Store.Driver)
	}

	cfg.RateLimit.Backend = strings.ToLower(strings.TrimSpace(cfg.RateLimit.Backend))
	if cfg.RateLimit.Enabled {
		switch cfg.RateLimit.Backend {
		case "", "memory":
			cfg.RateLimit.Backend = "memory"
		case "redis":
			if cfg.RateLimit.RedisAddr == "" {
				return errors.New("rate_limit.redis_addr required for redis backend")
			}
		default:
			return fmt.Errorf("unsupported rate_limit.backend=%q", cfg.RateLimit.Backend)
		}
		if cfg.RateLimit.Limit <= 0 {
			return errors.New("rate_limit.limit must be positive")
		}
		if cfg.RateLimit.Window.Duration <= 0 {
			cfg.RateLimit.Window = Duration{Duration: time.Minute}
		}
	}

	if cfg.Tracing.SamplerRatio < 0 {
		cfg.Tracing.SamplerRatio = 0
	}
	if cfg.Tracing.SamplerRatio > 1 {
		cfg.Tracing.SamplerRatio = 1
	}
	if cfg.Tracing.ServiceName == "" {
		cfg.Tracing.ServiceName = "equilix"
	}
	cfg.Metrics.Path = strings.TrimSpace(cfg.Metrics.Path)
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}
	if !strings.HasPrefix(cfg.Metrics.Path, "/") {
		return fmt.Errorf("metrics.path must start with /: %q", cfg.Metrics.Path)
	}
	return nil
}

// Model returns the configuration for id.
func (cfg *Config) Model(id string) (ModelConfig, bool) {
	for _, m := range cfg.Models {
		if m.ID == id {
			return m, true
		}
	}
	return ModelConfig{}, false
}
