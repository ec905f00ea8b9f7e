// Package config loads the settings of the pipelines binary.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the pipelines server.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Log         LogConfig         `mapstructure:"log"`
	Upstreams   UpstreamsConfig   `mapstructure:"upstreams"`
	Pipeline    PipelineConfig    `mapstructure:"pipeline"`
	Credentials CredentialsConfig `mapstructure:"credentials"`
}

// ServerConfig contains HTTP server and auth settings.
type ServerConfig struct {
	Address         string        `mapstructure:"address"`
	APIKey          string        `mapstructure:"api_key"` // empty disables auth
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// LogConfig selects the zap logger.
type LogConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json or console
}

// UpstreamsConfig overrides upstream base URLs, mostly for testing.
type UpstreamsConfig struct {
	Perplexity string        `mapstructure:"perplexity"`
	Anthropic  string        `mapstructure:"anthropic"`
	OpenRouter string        `mapstructure:"openrouter"`
	Google     string        `mapstructure:"google"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

// PipelineConfig holds the reliability options applied to every pipeline.
type PipelineConfig struct {
	RateLimitRPS    float64       `mapstructure:"rate_limit_rps"` // 0 disables
	RateLimitBurst  int           `mapstructure:"rate_limit_burst"`
	CircuitFailures int           `mapstructure:"circuit_failures"` // 0 disables
	CircuitRecovery time.Duration `mapstructure:"circuit_recovery"`
	Debug           bool          `mapstructure:"debug"`
}

// CredentialsConfig holds the initial valves. The raw provider variable names
// (PERPLEXITY_API_KEY, ...) are honored as well as the prefixed ones.
type CredentialsConfig struct {
	PerplexityAPIKey string `mapstructure:"perplexity_api_key"`
	AnthropicAPIKey  string `mapstructure:"anthropic_api_key"`
	OpenRouterAPIKey string `mapstructure:"openrouter_api_key"`
	GeminiAPIKey     string `mapstructure:"gemini_api_key"` // empty leaves the Gemini pipeline out
}

// EnvPrefix is prepended to every environment override.
const EnvPrefix = "PIPELINES"

// Load reads the config file at path (or config.{yaml,json} in the usual
// places when path is empty), then applies environment overrides.
// A missing config file is not an error.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path == "" {
		v.SetConfigName("config")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	} else {
		v.SetConfigFile(path)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	bindCredential(v, "credentials.perplexity_api_key", "PERPLEXITY_API_KEY")
	bindCredential(v, "credentials.anthropic_api_key", "ANTHROPIC_API_KEY")
	bindCredential(v, "credentials.openrouter_api_key", "OPENROUTER_API_KEY")
	bindCredential(v, "credentials.gemini_api_key", "GEMINI_API_KEY")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.address", ":9099")
	v.SetDefault("server.api_key", "")
	v.SetDefault("server.request_timeout", 120*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("upstreams.perplexity", "https://api.perplexity.ai")
	v.SetDefault("upstreams.anthropic", "https://api.anthropic.com/v1")
	v.SetDefault("upstreams.openrouter", "https://openrouter.ai/api/v1")
	v.SetDefault("upstreams.google", "https://generativelanguage.googleapis.com/v1beta")
	v.SetDefault("upstreams.timeout", 60*time.Second)
	v.SetDefault("pipeline.rate_limit_rps", 0)
	v.SetDefault("pipeline.rate_limit_burst", 1)
	v.SetDefault("pipeline.circuit_failures", 0)
	v.SetDefault("pipeline.circuit_recovery", 30*time.Second)
	v.SetDefault("pipeline.debug", false)
	v.SetDefault("credentials.perplexity_api_key", "your-Perplexity-api-key-here")
	v.SetDefault("credentials.anthropic_api_key", "your-Anthropic-api-key-here")
	v.SetDefault("credentials.openrouter_api_key", "your-OpenRouter-api-key-here")
	v.SetDefault("credentials.gemini_api_key", "")
}

// bindCredential lets both PIPELINES_CREDENTIALS_X and the bare provider
// variable set a credential; the prefixed one wins.
func bindCredential(v *viper.Viper, key, raw string) {
	prefixed := EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
	_ = v.BindEnv(key, prefixed, raw)
}

// Validate checks values viper cannot type-check.
func (c *Config) Validate() error {
	switch c.Log.Format {
	case "json", "console":
	default:
		return fmt.Errorf("log.format must be json or console, got %q", c.Log.Format)
	}
	if c.Server.Address == "" {
		return fmt.Errorf("server.address is required")
	}
	if c.Pipeline.RateLimitRPS < 0 {
		return fmt.Errorf("pipeline.rate_limit_rps must not be negative")
	}
	if c.Pipeline.RateLimitRPS > 0 && c.Pipeline.RateLimitBurst < 1 {
		return fmt.Errorf("pipeline.rate_limit_burst must be at least 1")
	}
	if c.Pipeline.CircuitFailures < 0 {
		return fmt.Errorf("pipeline.circuit_failures must not be negative")
	}
	return nil
}
