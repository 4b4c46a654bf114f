package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus metrics of the HTTP API
type Metrics struct {
	Registry *prometheus.Registry

	RequestTotal      *prometheus.CounterVec
	RequestDurationMs *prometheus.HistogramVec
	InvocationTotal   *prometheus.CounterVec
	TokensTotal       *prometheus.CounterVec
}

// NewMetrics creates the metrics on a dedicated registry
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		Registry: reg,
		RequestTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "llmswitch_http_request_total",
			Help: "Total number of HTTP requests.",
		}, []string{"route", "status"}),

		RequestDurationMs: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "llmswitch_http_request_duration_ms",
			Help:    "HTTP request duration in milliseconds, including backend latency.",
			Buckets: []float64{5, 50, 250, 1000, 2500, 5000, 10000, 30000, 60000},
		}, []string{"route"}),

		InvocationTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "llmswitch_invocation_total",
			Help: "Total number of app invocations by the variants used.",
		}, []string{"app", "prompt", "backend", "sampling"}),

		TokensTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "llmswitch_tokens_total",
			Help: "Total tokens reported by the backends.",
		}, []string{"app", "model", "direction"}),
	}
}

// RecordInvocation records the variants and the token usage of a result
func (m *Metrics) RecordInvocation(app, prompt, backend, sampling, model string, in, out int64) {
	m.InvocationTotal.WithLabelValues(app, prompt, backend, sampling).Inc()
	if in > 0 {
		m.TokensTotal.WithLabelValues(app, model, "input").Add(float64(in))
	}
	if out > 0 {
		m.TokensTotal.WithLabelValues(app, model, "output").Add(float64(out))
	}
}
