// Package config provides configuration file support for Rebound.
// It handles loading, validation, and environment variable interpolation
// for rebound.yaml configuration files.
package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the full Rebound configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	OpenAI    OpenAIConfig    `mapstructure:"openai"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Catalog   CatalogConfig   `mapstructure:"catalog"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port         int           `mapstructure:"port"`
	Host         string        `mapstructure:"host"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// OpenAIConfig holds remote model settings.
type OpenAIConfig struct {
	APIKey    string        `mapstructure:"api_key"`
	Model     string        `mapstructure:"model"`
	BaseURL   string        `mapstructure:"base_url"`
	Timeout   time.Duration `mapstructure:"timeout"`
	MaxTokens int           `mapstructure:"max_tokens"`
}

// RateLimitConfig holds sliding-window admission settings for remote calls.
type RateLimitConfig struct {
	PerMinute int `mapstructure:"per_minute"`
	PerHour   int `mapstructure:"per_hour"`
}

// CacheConfig holds response cache settings. MaxEntries is int64 so the
// value passes straight into cache.Config.
type CacheConfig struct {
	MaxEntries    int64         `mapstructure:"max_entries"`
	DefaultTTL    time.Duration `mapstructure:"default_ttl"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
}

// CatalogConfig holds exercise catalog settings.
type CatalogConfig struct {
	Backend string `mapstructure:"backend"` // memory or sqlite
	Path    string `mapstructure:"path"`    // sqlite database file
}

// AuthConfig holds authentication settings.
type AuthConfig struct {
	APIKeys []string `mapstructure:"api_keys"`
}

// TelemetryConfig holds observability settings.
type TelemetryConfig struct {
	Tracing TracingConfig `mapstructure:"tracing"`
}

// TracingConfig holds OpenTelemetry tracing settings.
type TracingConfig struct {
	Enabled    bool    `mapstructure:"enabled"`
	Exporter   string  `mapstructure:"exporter"`
	Endpoint   string  `mapstructure:"endpoint"`
	SampleRate float64 `mapstructure:"sample_rate"`
	Insecure   bool    `mapstructure:"insecure"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         8080,
			Host:         "0.0.0.0",
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 60 * time.Second,
		},
		OpenAI: OpenAIConfig{
			Model:   "gpt-4o",
			Timeout: 60 * time.Second,
		},
		RateLimit: RateLimitConfig{
			PerMinute: 10,
			PerHour:   100,
		},
		Cache: CacheConfig{
			MaxEntries:    10000,
			DefaultTTL:    24 * time.Hour,
			SweepInterval: time.Hour,
		},
		Catalog: CatalogConfig{
			Backend: "memory",
		},
		Auth: AuthConfig{
			APIKeys: []string{},
		},
		Telemetry: TelemetryConfig{
			Tracing: TracingConfig{
				Enabled:    false,
				Exporter:   "otlp",
				Endpoint:   "localhost:4317",
				SampleRate: 1.0,
				Insecure:   true,
			},
		},
	}
}

// Load reads configuration from the given viper instance and returns
// a validated Config. Environment variables in string values are
// interpolated using ${VAR} syntax.
func Load(v *viper.Viper) (*Config, error) {
	cfg := DefaultConfig()

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	// Interpolate environment variables in string fields
	interpolateConfig(cfg)

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadFromFile reads a specific config file and returns a validated Config.
func LoadFromFile(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	return Load(v)
}

// Validate checks the configuration for errors and returns a descriptive
// error if any field is invalid.
func Validate(cfg *Config) error {
	var errs []string

	// Server validation
	if cfg.Server.Port < 0 || cfg.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server.port: must be between 0 and 65535, got %d", cfg.Server.Port))
	}
	if cfg.Server.ReadTimeout < 0 {
		errs = append(errs, "server.read_timeout: must be non-negative")
	}
	if cfg.Server.WriteTimeout < 0 {
		errs = append(errs, "server.write_timeout: must be non-negative")
	}

	// OpenAI validation
	if cfg.OpenAI.Timeout < 0 {
		errs = append(errs, "openai.timeout: must be non-negative")
	}
	if cfg.OpenAI.MaxTokens < 0 {
		errs = append(errs, "openai.max_tokens: must be non-negative")
	}

	// Rate limit validation
	if cfg.RateLimit.PerMinute < 0 {
		errs = append(errs, "rate_limit.per_minute: must be non-negative")
	}
	if cfg.RateLimit.PerHour < 0 {
		errs = append(errs, "rate_limit.per_hour: must be non-negative")
	}

	// Cache validation
	if cfg.Cache.MaxEntries < 0 {
		errs = append(errs, "cache.max_entries: must be non-negative")
	}
	if cfg.Cache.DefaultTTL < 0 {
		errs = append(errs, "cache.default_ttl: must be non-negative")
	}
	if cfg.Cache.SweepInterval < 0 {
		errs = append(errs, "cache.sweep_interval: must be non-negative")
	}

	// Catalog validation
	validBackends := map[string]bool{"memory": true, "sqlite": true, "": true}
	if !validBackends[cfg.Catalog.Backend] {
		errs = append(errs, fmt.Sprintf("catalog.backend: unsupported backend %q (supported: memory, sqlite)", cfg.Catalog.Backend))
	}
	if cfg.Catalog.Backend == "sqlite" && cfg.Catalog.Path == "" {
		errs = append(errs, "catalog.path: required when catalog.backend is sqlite")
	}

	// Telemetry validation
	validExporters := map[string]bool{"otlp": true, "stdout": true, "none": true, "": true}
	if !validExporters[cfg.Telemetry.Tracing.Exporter] {
		errs = append(errs, fmt.Sprintf("telemetry.tracing.exporter: unsupported exporter %q (supported: otlp, stdout, none)", cfg.Telemetry.Tracing.Exporter))
	}
	if cfg.Telemetry.Tracing.SampleRate < 0 || cfg.Telemetry.Tracing.SampleRate > 1 {
		errs = append(errs, fmt.Sprintf("telemetry.tracing.sample_rate: must be between 0 and 1, got %f", cfg.Telemetry.Tracing.SampleRate))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return nil
}

// envVarPattern matches ${VAR} or ${VAR:-default} syntax.
var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// InterpolateEnv replaces ${VAR} and ${VAR:-default} patterns in a string
// with the corresponding environment variable values.
func InterpolateEnv(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := envVarPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		varName := parts[1]
		defaultVal := ""
		if len(parts) >= 3 {
			defaultVal = parts[2]
		}

		if val, ok := os.LookupEnv(varName); ok {
			return val
		}
		if defaultVal != "" {
			return defaultVal
		}
		return match
	})
}

// interpolateConfig applies environment variable interpolation to all
// string fields in the config.
func interpolateConfig(cfg *Config) {
	cfg.Server.Host = InterpolateEnv(cfg.Server.Host)
	cfg.OpenAI.APIKey = InterpolateEnv(cfg.OpenAI.APIKey)
	cfg.OpenAI.Model = InterpolateEnv(cfg.OpenAI.Model)
	cfg.OpenAI.BaseURL = InterpolateEnv(cfg.OpenAI.BaseURL)
	cfg.Catalog.Backend = InterpolateEnv(cfg.Catalog.Backend)
	cfg.Catalog.Path = InterpolateEnv(cfg.Catalog.Path)

	for i, key := range cfg.Auth.APIKeys {
		cfg.Auth.APIKeys[i] = InterpolateEnv(key)
	}

	cfg.Telemetry.Tracing.Exporter = InterpolateEnv(cfg.Telemetry.Tracing.Exporter)
	cfg.Telemetry.Tracing.Endpoint = InterpolateEnv(cfg.Telemetry.Tracing.Endpoint)
}

// GenerateTemplate returns a YAML template string with all available
// configuration options and their defaults, suitable for writing to
// a rebound.yaml file.
func GenerateTemplate() string {
	return `# Rebound Configuration

server:
  port: 8080
  host: 0.0.0.0
  read_timeout: 30s
  write_timeout: 60s

openai:
  api_key: ${OPENAI_API_KEY}
  model: gpt-4o
  base_url: ""         # override for compatible providers
  timeout: 60s
  max_tokens: 0        # 0 uses the provider default

rate_limit:
  per_minute: 10
  per_hour: 100

cache:
  max_entries: 10000
  default_ttl: 24h
  sweep_interval: 1h

catalog:
  backend: memory      # memory or sqlite
  path: ""             # required for sqlite

auth:
  api_keys:
    # - ${REBOUND_API_KEY}

telemetry:
  tracing:
    enabled: false
    exporter: otlp       # otlp, stdout, or none
    endpoint: localhost:4317
    sample_rate: 1.0     # 0.0 to 1.0
    insecure: true
`
}
