package main

import (
	"os"

	"go.uber.org/zap"

	pipelines "github.com/neuromechanist/openwebui-piplines"
	"github.com/neuromechanist/openwebui-piplines/internal/config"
	"github.com/neuromechanist/openwebui-piplines/internal/observe"
	"github.com/neuromechanist/openwebui-piplines/variants"
)

// app is everything a command needs, built from one config.
type app struct {
	cfg      *config.Config
	logger   *zap.Logger
	metrics  *observe.Metrics
	observer *observe.Observer
	registry *variants.Registry
}

func newApp(cfgPath string) (*app, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}
	logger, err := observe.NewLogger(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, err
	}
	metrics := observe.NewMetrics(true)

	return &app{
		cfg:      cfg,
		logger:   logger,
		metrics:  metrics,
		observer: observe.Attach(logger, metrics),
		registry: buildRegistry(cfg),
	}, nil
}

func (a *app) close() {
	a.observer.Close()
	_ = a.logger.Sync()
}

// buildRegistry wires the shipped pipelines from the config. The Gemini
// pipeline is only added when a Gemini key is configured.
func buildRegistry(cfg *config.Config) *variants.Registry {
	endpoints := variants.Endpoints{
		Perplexity: cfg.Upstreams.Perplexity,
		Anthropic:  cfg.Upstreams.Anthropic,
		OpenRouter: cfg.Upstreams.OpenRouter,
		Google:     cfg.Upstreams.Google,
		Timeout:    cfg.Upstreams.Timeout,
	}
	opts := pipelineOptions(cfg.Pipeline)

	direct := variants.NewDirectStore(variants.DirectValves{
		PerplexityAPIKey: cfg.Credentials.PerplexityAPIKey,
		AnthropicAPIKey:  cfg.Credentials.AnthropicAPIKey,
	})
	openRouter := variants.NewOpenRouterStore(variants.OpenRouterValves{
		OpenRouterAPIKey: cfg.Credentials.OpenRouterAPIKey,
	})

	registry := variants.NewRegistry(
		variants.NewDirect(direct, endpoints, opts...),
		variants.NewOpenRouter(openRouter, endpoints, opts...),
	)
	if cfg.Credentials.GeminiAPIKey != "" {
		gemini := variants.NewGeminiStore(variants.GeminiValves{
			PerplexityAPIKey: cfg.Credentials.PerplexityAPIKey,
			GeminiAPIKey:     cfg.Credentials.GeminiAPIKey,
		})
		// ids are fixed and distinct, so this cannot collide
		_ = registry.Register(variants.NewGemini(gemini, endpoints, opts...))
	}
	return registry
}

// pipelineOptions maps the reliability settings onto pipeline options.
// Options apply inside out, so the rate limit sits outermost.
func pipelineOptions(cfg config.PipelineConfig) []pipelines.Option {
	var opts []pipelines.Option
	if cfg.Debug {
		opts = append(opts, pipelines.WithDebug(os.Stderr))
	}
	if cfg.CircuitFailures > 0 {
		opts = append(opts, pipelines.WithCircuitBreaker(cfg.CircuitFailures, cfg.CircuitRecovery))
	}
	if cfg.RateLimitRPS > 0 {
		opts = append(opts, pipelines.WithRateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst))
	}
	return opts
}
