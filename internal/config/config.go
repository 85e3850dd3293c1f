// Package config handles loading and validating Busara configuration.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/jkaninda/busara/internal/storage"
)

func init() {
	// Load .env file if it exists
	_ = godotenv.Load()
}

// Config is the root configuration for Busara.
type Config struct {
	Server        ServerConfig         `json:"server" yaml:"server"`
	Storage       *storage.Config      `json:"storage,omitempty" yaml:"storage,omitempty"` // nil = SQLite default
	Providers     ProvidersConfig      `json:"providers" yaml:"providers"`
	Selector      SelectorConfig       `json:"selector" yaml:"selector"`
	Observability *ObservabilityConfig `json:"observability,omitempty" yaml:"observability,omitempty"` // nil = observability disabled
	Scheduler     *SchedulerConfig     `json:"scheduler,omitempty" yaml:"scheduler,omitempty"`         // nil = cron scheduler disabled
}

// ServerConfig configures the HTTP/WebSocket gateway.
type ServerConfig struct {
	Addr   string `json:"addr" yaml:"addr"`       // Default: ":8080".
	APIKey string `json:"api_key" yaml:"api_key"` // Bearer token; empty disables auth. Override: BUSARA_API_KEY.

	ReadTimeoutS  int `json:"read_timeout_s" yaml:"read_timeout_s"`   // Default: 30.
	WriteTimeoutS int `json:"write_timeout_s" yaml:"write_timeout_s"` // Default: 120 (LLM dispatches are slow).

	RateLimit *RateLimitConfig `json:"rate_limit,omitempty" yaml:"rate_limit,omitempty"` // nil = no rate limiting.
}

// Address returns the listen address, defaulting to ":8080".
func (s *ServerConfig) Address() string {
	if s.Addr != "" {
		return s.Addr
	}
	return ":8080"
}

// ReadTimeout returns the read timeout with a default of 30s.
func (s *ServerConfig) ReadTimeout() time.Duration {
	if s.ReadTimeoutS > 0 {
		return time.Duration(s.ReadTimeoutS) * time.Second
	}
	return 30 * time.Second
}

// WriteTimeout returns the write timeout with a default of 2m.
func (s *ServerConfig) WriteTimeout() time.Duration {
	if s.WriteTimeoutS > 0 {
		return time.Duration(s.WriteTimeoutS) * time.Second
	}
	return 2 * time.Minute
}

// RateLimitConfig configures per-client request throttling.
type RateLimitConfig struct {
	RequestsPerMinute int `json:"requests_per_minute" yaml:"requests_per_minute"` // Default: 60.
	Burst             int `json:"burst" yaml:"burst"`                             // Default: 10.
}

// ProvidersConfig configures LLM provider credentials. API keys can be set
// here or via environment variables; environment variables take precedence.
type ProvidersConfig struct {
	Default   string          `json:"default" yaml:"default"` // "openai" (default), "anthropic", or "ollama".
	OpenAI    OpenAIConfig    `json:"openai" yaml:"openai"`
	Anthropic AnthropicConfig `json:"anthropic" yaml:"anthropic"`
	Fallback  []string        `json:"fallback,omitempty" yaml:"fallback,omitempty"` // Ordered provider names for the fallback chain.
}

// OpenAIConfig configures the OpenAI-compatible provider.
type OpenAIConfig struct {
	APIKey  string `json:"api_key" yaml:"api_key"`                       // Override: OPENAI_API_KEY.
	BaseURL string `json:"base_url,omitempty" yaml:"base_url,omitempty"` // Custom endpoint (Ollama, proxies).
	Model   string `json:"model,omitempty" yaml:"model,omitempty"`
}

// AnthropicConfig configures the Anthropic provider.
type AnthropicConfig struct {
	APIKey  string `json:"api_key" yaml:"api_key"` // Override: ANTHROPIC_API_KEY.
	BaseURL string `json:"base_url,omitempty" yaml:"base_url,omitempty"`
	Model   string `json:"model,omitempty" yaml:"model,omitempty"`
}

// SelectorConfig names the registry shortcuts used during selection.
type SelectorConfig struct {
	CreationAgent string `json:"creation_agent,omitempty" yaml:"creation_agent,omitempty"` // Agent handling create-agent intents.
	FallbackAgent string `json:"fallback_agent,omitempty" yaml:"fallback_agent,omitempty"` // Agent for file/data requests.
}

// ObservabilityConfig configures metrics and tracing.
// When nil, all observability features are disabled with zero overhead.
type ObservabilityConfig struct {
	Metrics *MetricsConfig `json:"metrics,omitempty" yaml:"metrics,omitempty"`
	Tracing *TracingConfig `json:"tracing,omitempty" yaml:"tracing,omitempty"`
}

// MetricsConfig configures Prometheus metrics exposition.
type MetricsConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Path    string `json:"path" yaml:"path"` // Default: "/metrics"
}

// TracingConfig configures OpenTelemetry distributed tracing.
type TracingConfig struct {
	Enabled     bool    `json:"enabled" yaml:"enabled"`
	Endpoint    string  `json:"endpoint" yaml:"endpoint"`         // OTLP endpoint, e.g. "localhost:4317"
	Protocol    string  `json:"protocol" yaml:"protocol"`         // "grpc" or "http". Default: "grpc"
	ServiceName string  `json:"service_name" yaml:"service_name"` // Default: "busara"
	SampleRate  float64 `json:"sample_rate" yaml:"sample_rate"`   // 0.0–1.0. Default: 1.0
	Insecure    bool    `json:"insecure" yaml:"insecure"`         // Skip TLS for dev
}

// SchedulerConfig configures cron-triggered workflow runs.
type SchedulerConfig struct {
	Enabled        bool   `json:"enabled" yaml:"enabled"`
	TriggerMessage string `json:"trigger_message,omitempty" yaml:"trigger_message,omitempty"` // Message for scheduled runs. Default: "scheduled run".
	RefreshS       int    `json:"refresh_s,omitempty" yaml:"refresh_s,omitempty"`             // Schedule refresh interval. Default: 60.
}

// RefreshInterval returns how often the scheduler re-reads the active
// workflow's schedule from the store.
func (s *SchedulerConfig) RefreshInterval() time.Duration {
	if s.RefreshS > 0 {
		return time.Duration(s.RefreshS) * time.Second
	}
	return time.Minute
}

// Default returns a zero-config setup: SQLite storage, no auth, OpenAI
// provider from the environment.
func Default() *Config {
	cfg := &Config{}
	cfg.applyEnv()
	return cfg
}

// Load reads a JSON or YAML config file and returns a validated Config.
// The format is detected by file extension: .yml/.yaml for YAML, everything
// else for JSON. API keys can be set in the config file or overridden by
// environment variables. Environment variables take precedence.
func Load(path string) (*Config, error) {
	resolved, err := resolvePath(path)
	if err != nil {
		return nil, fmt.Errorf("resolving config path %s: %w", path, err)
	}

	data, err := os.ReadFile(resolved)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", resolved, err)
	}

	var cfg Config
	switch ext := strings.ToLower(filepath.Ext(resolved)); ext {
	case ".yml", ".yaml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing YAML config %s: %w", resolved, err)
		}
	default:
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing JSON config %s: %w", resolved, err)
		}
	}

	cfg.applyEnv()

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// applyEnv applies environment variable overrides.
func (c *Config) applyEnv() {
	if envKey := os.Getenv("OPENAI_API_KEY"); envKey != "" {
		c.Providers.OpenAI.APIKey = envKey
	}
	if envKey := os.Getenv("ANTHROPIC_API_KEY"); envKey != "" {
		c.Providers.Anthropic.APIKey = envKey
	}
	if envKey := os.Getenv("BUSARA_API_KEY"); envKey != "" {
		c.Server.APIKey = envKey
	}
	if envDSN := os.Getenv("BUSARA_DB_DSN"); envDSN != "" {
		if c.Storage == nil {
			c.Storage = &storage.Config{}
		}
		c.Storage.Driver = storage.DriverPostgres
		c.Storage.Postgres.DSN = envDSN
	}
}

// StorageDriver returns the configured storage driver, defaulting to SQLite.
func (c *Config) StorageDriver() string {
	if c.Storage != nil && c.Storage.Driver != "" {
		return c.Storage.Driver
	}
	return storage.DefaultDriver
}

// DefaultProvider returns the default provider name.
func (c *Config) DefaultProvider() string {
	if c.Providers.Default != "" {
		return c.Providers.Default
	}
	return "openai"
}

// Message returns the scheduled-run trigger message with its default.
func (s *SchedulerConfig) Message() string {
	if s != nil && s.TriggerMessage != "" {
		return s.TriggerMessage
	}
	return "scheduled run"
}

func (c *Config) validate() error {
	switch c.StorageDriver() {
	case storage.DriverMemory, storage.DriverSQLite:
	case storage.DriverPostgres:
		if c.Storage == nil || c.Storage.Postgres.DSN == "" {
			return fmt.Errorf("postgres storage requires a dsn")
		}
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}

	switch c.DefaultProvider() {
	case "openai", "anthropic", "ollama":
	default:
		return fmt.Errorf("unknown default provider %q", c.Providers.Default)
	}

	for _, name := range c.Providers.Fallback {
		switch name {
		case "openai", "anthropic", "ollama":
		default:
			return fmt.Errorf("unknown fallback provider %q", name)
		}
	}

	if t := c.Tracing(); t != nil && t.Enabled {
		if t.Endpoint == "" {
			return fmt.Errorf("tracing requires an endpoint")
		}
		switch t.Protocol {
		case "", "grpc", "http":
		default:
			return fmt.Errorf("unknown tracing protocol %q", t.Protocol)
		}
	}
	return nil
}

// MetricsEnabled reports whether Prometheus exposition is on.
func (c *Config) MetricsEnabled() bool {
	return c.Observability != nil && c.Observability.Metrics != nil && c.Observability.Metrics.Enabled
}

// MetricsPath returns the metrics route, defaulting to "/metrics".
func (c *Config) MetricsPath() string {
	if c.Observability != nil && c.Observability.Metrics != nil && c.Observability.Metrics.Path != "" {
		return c.Observability.Metrics.Path
	}
	return "/metrics"
}

// Tracing returns the tracing section, nil when unset.
func (c *Config) Tracing() *TracingConfig {
	if c.Observability == nil {
		return nil
	}
	return c.Observability.Tracing
}

// resolvePath expands ~ to the user home directory and returns an absolute path.
func resolvePath(path string) (string, error) {
	if strings.HasPrefix(path, "~/") || path == "~" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolving home directory: %w", err)
		}
		if path == "~" {
			return home, nil
		}
		return filepath.Join(home, path[2:]), nil
	}
	return filepath.Abs(path)
}
