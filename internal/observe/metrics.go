package observe

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the pipeline collectors and the registry they live in.
type Metrics struct {
	registry *prometheus.Registry

	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	UpstreamCalls    *prometheus.CounterVec
	UpstreamDuration *prometheus.HistogramVec
	TokensTotal      *prometheus.CounterVec
	CitationsTotal   *prometheus.CounterVec
}

// NewMetrics registers the pipeline collectors on a fresh registry.
// Go runtime and process collectors are included when withRuntime is set.
func NewMetrics(withRuntime bool) *Metrics {
	registry := prometheus.NewRegistry()
	if withRuntime {
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,

		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pipelines_requests_total",
				Help: "Total number of pipeline executions",
			},
			[]string{"pipeline", "status"}, // status: success or an error kind
		),

		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pipelines_request_duration_seconds",
				Help:    "End-to-end pipeline latency in seconds",
				Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120},
			},
			[]string{"pipeline"},
		),

		UpstreamCalls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pipelines_upstream_calls_total",
				Help: "Total number of upstream model calls",
			},
			[]string{"provider", "status"}, // status: success, error
		),

		UpstreamDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pipelines_upstream_duration_seconds",
				Help:    "Upstream model call latency in seconds",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"provider"},
		),

		TokensTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pipelines_tokens_total",
				Help: "Total tokens reported by upstream models",
			},
			[]string{"provider", "type"}, // type: prompt, completion
		),

		CitationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pipelines_citations_total",
				Help: "Total citations appended to answers",
			},
			[]string{"pipeline"},
		),
	}
}

// Registry returns the registry the collectors are registered on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
