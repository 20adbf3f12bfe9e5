package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rebound-ai/rebound/pkg/cache"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Server.Port != 8080 {
		t.Errorf("expected default port 8080, got %d", cfg.Server.Port)
	}
	if cfg.Server.Host != "0.0.0.0" {
		t.Errorf("expected default host 0.0.0.0, got %s", cfg.Server.Host)
	}
	if cfg.RateLimit.PerMinute != 10 {
		t.Errorf("expected default per_minute 10, got %d", cfg.RateLimit.PerMinute)
	}
	if cfg.RateLimit.PerHour != 100 {
		t.Errorf("expected default per_hour 100, got %d", cfg.RateLimit.PerHour)
	}
	if cfg.Cache.MaxEntries != 10000 {
		t.Errorf("expected default max_entries 10000, got %d", cfg.Cache.MaxEntries)
	}
	if cfg.OpenAI.Model != "gpt-4o" {
		t.Errorf("expected default model gpt-4o, got %s", cfg.OpenAI.Model)
	}
	if cfg.Catalog.Backend != "memory" {
		t.Errorf("expected default catalog backend memory, got %s", cfg.Catalog.Backend)
	}
}

// The cache section must feed cache.New without conversions; this is the
// wiring both serve and mcp do.
func TestCacheConfigFeedsStore(t *testing.T) {
	cfg := DefaultConfig()
	store := cache.New(cache.Config{
		MaxEntries:    cfg.Cache.MaxEntries,
		DefaultTTL:    cfg.Cache.DefaultTTL,
		SweepInterval: cfg.Cache.SweepInterval,
	})
	defer func() { _ = store.Close() }()

	if got := store.Stats().MaxEntries; got != cfg.Cache.MaxEntries {
		t.Errorf("store max entries = %d, want %d", got, cfg.Cache.MaxEntries)
	}
}

func TestValidate_ValidConfig(t *testing.T) {
	cfg := DefaultConfig()
	if err := Validate(cfg); err != nil {
		t.Errorf("default config should be valid: %v", err)
	}
}

func TestValidate_InvalidPort(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Server.Port = 70000
	err := Validate(cfg)
	if err == nil {
		t.Error("expected error for invalid port")
	}
}

func TestValidate_NegativeRateLimit(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RateLimit.PerMinute = -1
	err := Validate(cfg)
	if err == nil {
		t.Error("expected error for negative per_minute")
	}
}

func TestValidate_InvalidCatalogBackend(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Catalog.Backend = "postgres"
	err := Validate(cfg)
	if err == nil {
		t.Error("expected error for unsupported catalog backend")
	}
}

func TestValidate_SQLiteRequiresPath(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Catalog.Backend = "sqlite"
	cfg.Catalog.Path = ""
	err := Validate(cfg)
	if err == nil {
		t.Error("expected error for sqlite backend without path")
	}
}

func TestValidate_InvalidSampleRate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Telemetry.Tracing.SampleRate = 1.5
	err := Validate(cfg)
	if err == nil {
		t.Error("expected error for sample_rate > 1")
	}
}

func TestValidate_MultipleErrors(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Server.Port = -1
	cfg.RateLimit.PerHour = -5
	cfg.Cache.MaxEntries = -1
	err := Validate(cfg)
	if err == nil {
		t.Error("expected multiple validation errors")
	}
}

func TestInterpolateEnv(t *testing.T) {
	t.Setenv("TEST_VAR", "hello")

	tests := []struct {
		input    string
		expected string
	}{
		{"${TEST_VAR}", "hello"},
		{"prefix-${TEST_VAR}-suffix", "prefix-hello-suffix"},
		{"${NONEXISTENT_VAR:-fallback}", "fallback"},
		{"${NONEXISTENT_VAR}", "${NONEXISTENT_VAR}"},
		{"no-vars-here", "no-vars-here"},
		{"${TEST_VAR:-default}", "hello"}, // env var exists, ignore default
	}

	for _, tt := range tests {
		result := InterpolateEnv(tt.input)
		if result != tt.expected {
			t.Errorf("InterpolateEnv(%q) = %q, want %q", tt.input, result, tt.expected)
		}
	}
}

func TestLoadFromFile(t *testing.T) {
	content := `
server:
  port: 9090
  host: 127.0.0.1

rate_limit:
  per_minute: 5
  per_hour: 50

cache:
  max_entries: 500
  default_ttl: 12h

catalog:
  backend: sqlite
  path: /var/lib/rebound/catalog.db
`
	tmpDir := t.TempDir()
	cfgPath := filepath.Join(tmpDir, "rebound.yaml")
	if err := os.WriteFile(cfgPath, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg, err := LoadFromFile(cfgPath)
	if err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("expected port 9090, got %d", cfg.Server.Port)
	}
	if cfg.Server.Host != "127.0.0.1" {
		t.Errorf("expected host 127.0.0.1, got %s", cfg.Server.Host)
	}
	if cfg.RateLimit.PerMinute != 5 {
		t.Errorf("expected per_minute 5, got %d", cfg.RateLimit.PerMinute)
	}
	if cfg.RateLimit.PerHour != 50 {
		t.Errorf("expected per_hour 50, got %d", cfg.RateLimit.PerHour)
	}
	if cfg.Cache.MaxEntries != 500 {
		t.Errorf("expected max_entries 500, got %d", cfg.Cache.MaxEntries)
	}
	if cfg.Cache.DefaultTTL != 12*time.Hour {
		t.Errorf("expected default_ttl 12h, got %s", cfg.Cache.DefaultTTL)
	}
	if cfg.Catalog.Backend != "sqlite" {
		t.Errorf("expected backend sqlite, got %s", cfg.Catalog.Backend)
	}
	if cfg.Catalog.Path != "/var/lib/rebound/catalog.db" {
		t.Errorf("expected catalog path, got %s", cfg.Catalog.Path)
	}
}

func TestLoadFromFile_WithEnvInterpolation(t *testing.T) {
	t.Setenv("TEST_API_KEY", "sk-test-123")

	content := `
auth:
  api_keys:
    - ${TEST_API_KEY}
`
	tmpDir := t.TempDir()
	cfgPath := filepath.Join(tmpDir, "rebound.yaml")
	if err := os.WriteFile(cfgPath, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg, err := LoadFromFile(cfgPath)
	if err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}

	if len(cfg.Auth.APIKeys) != 1 {
		t.Fatalf("expected 1 API key, got %d", len(cfg.Auth.APIKeys))
	}
	if cfg.Auth.APIKeys[0] != "sk-test-123" {
		t.Errorf("expected interpolated API key, got %s", cfg.Auth.APIKeys[0])
	}
}

func TestLoadFromFile_InvalidFile(t *testing.T) {
	_, err := LoadFromFile("/nonexistent/path/rebound.yaml")
	if err == nil {
		t.Error("expected error for nonexistent file")
	}
}

func TestLoadFromFile_InvalidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	cfgPath := filepath.Join(tmpDir, "rebound.yaml")
	if err := os.WriteFile(cfgPath, []byte("{{invalid yaml"), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	_, err := LoadFromFile(cfgPath)
	if err == nil {
		t.Error("expected error for invalid YAML")
	}
}

func TestLoadFromFile_InvalidValues(t *testing.T) {
	content := `
server:
  port: 99999
rate_limit:
  per_minute: -3
`
	tmpDir := t.TempDir()
	cfgPath := filepath.Join(tmpDir, "rebound.yaml")
	if err := os.WriteFile(cfgPath, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	_, err := LoadFromFile(cfgPath)
	if err == nil {
		t.Error("expected validation error")
	}
}

func TestLoadFromFile_DefaultsPreserved(t *testing.T) {
	// Partial config should preserve defaults for unset fields
	content := `
server:
  port: 3000
`
	tmpDir := t.TempDir()
	cfgPath := filepath.Join(tmpDir, "rebound.yaml")
	if err := os.WriteFile(cfgPath, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg, err := LoadFromFile(cfgPath)
	if err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}

	if cfg.Server.Port != 3000 {
		t.Errorf("expected port 3000, got %d", cfg.Server.Port)
	}
	// Defaults should be preserved for unset fields
	if cfg.RateLimit.PerMinute != 10 {
		t.Errorf("expected default per_minute 10, got %d", cfg.RateLimit.PerMinute)
	}
	if cfg.OpenAI.Model != "gpt-4o" {
		t.Errorf("expected default model, got %s", cfg.OpenAI.Model)
	}
}

func TestGenerateTemplate(t *testing.T) {
	tmpl := GenerateTemplate()

	// Verify key sections exist
	required := []string{
		"server:", "port:", "host:",
		"openai:", "api_key:", "model:",
		"rate_limit:", "per_minute:", "per_hour:",
		"cache:", "max_entries:", "default_ttl:",
		"catalog:", "backend:",
		"auth:", "api_keys:",
	}

	for _, s := range required {
		if !strings.Contains(tmpl, s) {
			t.Errorf("template missing %q", s)
		}
	}
}
