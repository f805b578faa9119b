package config

import "time"

type Duration struct {
	Duration time.Duration
}

type HTTPConfig struct {
	Addr              string   `yaml:"addr" json:"addr"`
	ReadHeaderTimeout Duration `yaml:"read_header_timeout" json:"read_header_timeout"`
	IdleTimeout       Duration `yaml:"idle_timeout" json:"idle_timeout"`
	ShutdownTimeout   Duration `yaml:"shutdown_timeout" json:"shutdown_timeout"`
	MaxRequestBytes   int64    `yaml:"max_request_bytes" json:"max_request_bytes"`

	// CORSOrigins lists browser origins allowed to call the API.
	CORSOrigins []string `yaml:"cors_origins" json:"cors_origins,omitempty"`
}

// EngineConfig is what a backend constructor receives: credentials, endpoint
// and the per-call timeout.
type EngineConfig struct {
	// Type selects the backend: gemini (REST), genai (SDK), openai or mock.
	Type string `yaml:"type" json:"type"`

	APIKey  string   `yaml:"api_key" json:"api_key,omitempty"`
	BaseURL string   `yaml:"base_url" json:"base_url,omitempty"`
	Timeout Duration `yaml:"timeout" json:"timeout,omitempty"`

	// genai only: "gemini_api" (default) or "vertex_ai".
	Backend  string `yaml:"backend" json:"backend,omitempty"`
	Project  string `yaml:"project" json:"project,omitempty"`
	Location string `yaml:"location" json:"location,omitempty"`

	// Speech synthesis model and default voice. Gemini uses the generation
	// model itself when SpeechModel is empty.
	SpeechModel string `yaml:"speech_model" json:"speech_model,omitempty"`
	Voice       string `yaml:"voice" json:"voice,omitempty"`
}

type ModelConfig struct {
	ID string `yaml:"id" json:"id"`

	// UpstreamModel is the name sent to the provider. Defaults to ID.
	UpstreamModel string `yaml:"upstream_model" json:"upstream_model,omitempty"`

	Engine EngineConfig `yaml:"engine" json:"engine"`
}

type StoreConfig struct {
	// Driver is sqlite, postgres or disabled.
	Driver string `yaml:"driver" json:"driver"`
	DSN    string `yaml:"dsn" json:"dsn,omitempty"`
}

type RateLimitConfig struct {
	Enabled bool `yaml:"enabled" json:"enabled"`
	// Backend is memory or redis.
	Backend   string   `yaml:"backend" json:"backend"`
	RedisAddr string   `yaml:"redis_addr" json:"redis_addr,omitempty"`
	Limit     int      `yaml:"limit" json:"limit"`
	Window    Duration `yaml:"window" json:"window"`
}

type TracingConfig struct {
	Enabled      bool              `yaml:"enabled" json:"enabled"`
	ServiceName  string            `yaml:"service_name" json:"service_name"`
	Endpoint     string            `yaml:"endpoint" json:"endpoint,omitempty"`
	Headers      map[string]string `yaml:"headers" json:"headers,omitempty"`
	Insecure     bool              `yaml:"insecure" json:"insecure,omitempty"`
	SamplerRatio float64           `yaml:"sampler_ratio" json:"sampler_ratio"`
}

type MetricsConfig struct {
	Enabled bool `yaml:"enabled" json:"enabled"`
	// Path is where the Prometheus text exposition is served.
	Path string `yaml:"path" json:"path"`
}

type Config struct {
	Env          string          `yaml:"env" json:"env"`
	HTTP         HTTPConfig      `yaml:"http" json:"http"`
	Models       []ModelConfig   `yaml:"models" json:"models"`
	DefaultModel string          `yaml:"default_model" json:"default_model"`
	Store        StoreConfig     `yaml:"store" json:"store"`
	RateLimit    RateLimitConfig `yaml:"rate_limit" json:"rate_limit"`
	Tracing      TracingConfig   `yaml:"tracing" json:"tracing"`
	Metrics      MetricsConfig   `yaml:"metrics" json:"metrics"`
}
