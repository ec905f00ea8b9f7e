// Package observe turns pipeline events into zap log lines and Prometheus metrics.
package observe

import (
	"context"
	"fmt"
	"time"

	"github.com/zoobzio/capitan"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	pipelines "github.com/neuromechanist/openwebui-piplines"
)

// NewLogger builds a zap logger for level ("debug", "info", ...) and format
// ("json" or "console").
func NewLogger(level, format string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	cfg := zap.NewProductionConfig()
	if format == "console" {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return cfg.Build()
}

type stringKey interface {
	From(e *capitan.Event) (string, bool)
}

type intKey interface {
	From(e *capitan.Event) (int, bool)
}

// Logged fields, in output order.
var (
	stringFields = []struct {
		name string
		key  stringKey
	}{
		{"request_id", pipelines.RequestIDKey},
		{"pipeline", pipelines.PipelineIDKey},
		{"model_id", pipelines.ModelIDKey},
		{"provider", pipelines.ProviderKey},
		{"model", pipelines.ModelKey},
		{"shape", pipelines.ShapeKey},
		{"stripped", pipelines.StrippedKey},
		{"error_kind", pipelines.ErrorKindKey},
		{"stage", pipelines.StageKey},
	}
	intFields = []struct {
		name string
		key  intKey
	}{
		{"messages", pipelines.MessageCountKey},
		{"citations", pipelines.CitationCountKey},
		{"prompt_tokens", pipelines.PromptTokensKey},
		{"completion_tokens", pipelines.CompletionTokensKey},
		{"total_tokens", pipelines.TotalTokensKey},
		{"status", pipelines.HTTPStatusCodeKey},
		{"duration_ms", pipelines.DurationMsKey},
		{"valves_version", pipelines.ValvesVersionKey},
	}
)

// Observer forwards every capitan event to a logger and a metrics set.
type Observer struct {
	logger  *zap.Logger
	metrics *Metrics
	stop    func()
}

// Attach starts observing all events. Either sink may be nil.
func Attach(logger *zap.Logger, metrics *Metrics) *Observer {
	if logger == nil {
		logger = zap.NewNop()
	}
	o := &Observer{logger: logger, metrics: metrics}
	observer := capitan.Observe(o.Handle)
	o.stop = func() { observer.Close() }
	return o
}

// Close stops observing.
func (o *Observer) Close() {
	if o.stop != nil {
		o.stop()
	}
}

// Handle logs e and updates the metrics it affects.
func (o *Observer) Handle(_ context.Context, e *capitan.Event) {
	signal := e.Signal()
	fields := Fields(e)

	switch signal {
	case pipelines.RequestFailed, pipelines.ProviderCallFailed, pipelines.ResourceCloseFailed:
		if msg, ok := pipelines.ErrorKey.From(e); ok {
			fields = append(fields, zap.String("error", msg))
		}
		o.logger.Error(string(signal), fields...)
	case pipelines.RequestCompleted, pipelines.PipelineStartup, pipelines.PipelineShutdown, pipelines.ValvesUpdated:
		o.logger.Info(string(signal), fields...)
	default:
		o.logger.Debug(string(signal), fields...)
	}

	if o.metrics != nil {
		o.record(signal, e)
	}
}

// Fields extracts the known pipeline keys present on e as zap fields.
func Fields(e *capitan.Event) []zap.Field {
	fields := make([]zap.Field, 0, len(stringFields)+len(intFields))
	for _, f := range stringFields {
		if v, ok := f.key.From(e); ok {
			fields = append(fields, zap.String(f.name, v))
		}
	}
	for _, f := range intFields {
		if v, ok := f.key.From(e); ok {
			fields = append(fields, zap.Int(f.name, v))
		}
	}
	return fields
}

func (o *Observer) record(signal capitan.Signal, e *capitan.Event) {
	m := o.metrics
	pipeline, _ := pipelines.PipelineIDKey.From(e)
	provider, _ := pipelines.ProviderKey.From(e)
	duration := 0.0
	if ms, ok := pipelines.DurationMsKey.From(e); ok {
		duration = (time.Duration(ms) * time.Millisecond).Seconds()
	}

	switch signal {
	case pipelines.RequestCompleted:
		m.RequestsTotal.WithLabelValues(pipeline, "success").Inc()
		m.RequestDuration.WithLabelValues(pipeline).Observe(duration)
		if n, ok := pipelines.CitationCountKey.From(e); ok {
			m.CitationsTotal.WithLabelValues(pipeline).Add(float64(n))
		}
	case pipelines.RequestFailed:
		kind, ok := pipelines.ErrorKindKey.From(e)
		if !ok || kind == "" {
			kind = string(pipelines.KindUnknown)
		}
		m.RequestsTotal.WithLabelValues(pipeline, kind).Inc()
		m.RequestDuration.WithLabelValues(pipeline).Observe(duration)
	case pipelines.ProviderCallCompleted:
		m.UpstreamCalls.WithLabelValues(provider, "success").Inc()
		m.UpstreamDuration.WithLabelValues(provider).Observe(duration)
		if n, ok := pipelines.PromptTokensKey.From(e); ok {
			m.TokensTotal.WithLabelValues(provider, "prompt").Add(float64(n))
		}
		if n, ok := pipelines.CompletionTokensKey.From(e); ok {
			m.TokensTotal.WithLabelValues(provider, "completion").Add(float64(n))
		}
	case pipelines.ProviderCallFailed:
		m.UpstreamCalls.WithLabelValues(provider, "error").Inc()
		m.UpstreamDuration.WithLabelValues(provider).Observe(duration)
	}
}
