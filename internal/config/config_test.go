package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("PERPLEXITY_API_KEY", "")
	t.Setenv("ANTHROPIC_API_KEY", "")
	t.Setenv("OPENROUTER_API_KEY", "")
	t.Setenv("GEMINI_API_KEY", "")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Server.Address != ":9099" {
		t.Errorf("Expected :9099, got %s", cfg.Server.Address)
	}
	if cfg.Server.RequestTimeout != 120*time.Second {
		t.Errorf("Unexpected request timeout %s", cfg.Server.RequestTimeout)
	}
	if cfg.Log.Level != "info" || cfg.Log.Format != "json" {
		t.Errorf("Unexpected log config %+v", cfg.Log)
	}
	if cfg.Upstreams.OpenRouter != "https://openrouter.ai/api/v1" {
		t.Errorf("Unexpected OpenRouter URL %s", cfg.Upstreams.OpenRouter)
	}
	if cfg.Credentials.PerplexityAPIKey != "your-Perplexity-api-key-here" {
		t.Errorf("Expected placeholder, got %q", cfg.Credentials.PerplexityAPIKey)
	}
	if cfg.Credentials.GeminiAPIKey != "" {
		t.Errorf("Expected no Gemini key by default, got %q", cfg.Credentials.GeminiAPIKey)
	}
	if cfg.Upstreams.Google != "https://generativelanguage.googleapis.com/v1beta" {
		t.Errorf("Unexpected Google URL %s", cfg.Upstreams.Google)
	}
}

func TestLoadEnvironment(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("PIPELINES_SERVER_ADDRESS", ":8080")
	t.Setenv("PIPELINES_LOG_FORMAT", "console")
	t.Setenv("ANTHROPIC_API_KEY", "raw-key")
	t.Setenv("OPENROUTER_API_KEY", "raw")
	t.Setenv("PIPELINES_CREDENTIALS_OPENROUTER_API_KEY", "prefixed")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Server.Address != ":8080" {
		t.Errorf("Expected :8080, got %s", cfg.Server.Address)
	}
	if cfg.Log.Format != "console" {
		t.Errorf("Expected console, got %s", cfg.Log.Format)
	}
	if cfg.Credentials.AnthropicAPIKey != "raw-key" {
		t.Errorf("Expected raw-key, got %q", cfg.Credentials.AnthropicAPIKey)
	}
	if cfg.Credentials.OpenRouterAPIKey != "prefixed" {
		t.Errorf("Expected prefixed variable to win, got %q", cfg.Credentials.OpenRouterAPIKey)
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pipelines.yaml")
	data := []byte(`
server:
  api_key: secret
pipeline:
  rate_limit_rps: 5
  rate_limit_burst: 2
  circuit_failures: 3
`)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Server.APIKey != "secret" {
		t.Errorf("Expected api key from file, got %q", cfg.Server.APIKey)
	}
	if cfg.Pipeline.RateLimitRPS != 5 || cfg.Pipeline.RateLimitBurst != 2 || cfg.Pipeline.CircuitFailures != 3 {
		t.Errorf("Unexpected pipeline config %+v", cfg.Pipeline)
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Expected error for missing explicit config file")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "bad format", mutate: func(c *Config) { c.Log.Format = "xml" }, wantErr: true},
		{name: "no address", mutate: func(c *Config) { c.Server.Address = "" }, wantErr: true},
		{name: "negative rps", mutate: func(c *Config) { c.Pipeline.RateLimitRPS = -1 }, wantErr: true},
		{name: "zero burst", mutate: func(c *Config) { c.Pipeline.RateLimitRPS = 1; c.Pipeline.RateLimitBurst = 0 }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{
				Server:   ServerConfig{Address: ":9099"},
				Log:      LogConfig{Format: "json"},
				Pipeline: PipelineConfig{RateLimitBurst: 1},
			}
			tt.mutate(cfg)
			if err := cfg.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
