package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects Prometheus metrics for the engine. A Metrics created
// with Enabled=false is a no-op; every method is safe to call on it.
type Metrics struct {
	config MetricsConfig

	evaluationsTotal   *prometheus.CounterVec
	evaluationDuration *prometheus.HistogramVec
	nodesTotal         *prometheus.CounterVec
	provisionDuration  *prometheus.HistogramVec
	provisionErrors    *prometheus.CounterVec

	registry *prometheus.Registry
}

// NewMetrics creates a metrics collector.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		return &Metrics{config: cfg}, nil
	}

	buckets := cfg.HistogramBuckets
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}
	registry := prometheus.NewRegistry()

	m := &Metrics{
		config:   cfg,
		registry: registry,

		evaluationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Name:      "evaluations_total",
				Help:      "Total number of evaluation runs by terminal status",
			},
			[]string{"status"},
		),
		evaluationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Name:      "evaluation_duration_seconds",
				Help:      "Duration of evaluation runs in seconds",
				Buckets:   buckets,
			},
			[]string{"status"},
		),
		nodesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Name:      "nodes_total",
				Help:      "Declarations processed by kind and final state",
			},
			[]string{"kind", "state"},
		),
		provisionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Name:      "provision_duration_seconds",
				Help:      "Duration of provisioning calls in seconds",
				Buckets:   buckets,
			},
			[]string{"kind"},
		),
		provisionErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Name:      "provision_errors_total",
				Help:      "Failed provisioning calls by resource kind",
			},
			[]string{"kind"},
		),
	}

	registry.MustRegister(
		m.evaluationsTotal,
		m.evaluationDuration,
		m.nodesTotal,
		m.provisionDuration,
		m.provisionErrors,
	)
	return m, nil
}

// RecordEvaluation records one completed run.
func (m *Metrics) RecordEvaluation(status string, duration time.Duration) {
	if m.evaluationsTotal == nil {
		return
	}
	m.evaluationsTotal.WithLabelValues(status).Inc()
	m.evaluationDuration.WithLabelValues(status).Observe(duration.Seconds())
}

// RecordNode records the terminal state of one declaration.
func (m *Metrics) RecordNode(kind, state string) {
	if m.nodesTotal == nil {
		return
	}
	m.nodesTotal.WithLabelValues(kind, state).Inc()
}

// RecordProvision records one provisioning call.
func (m *Metrics) RecordProvision(kind string, duration time.Duration, err error) {
	if m.provisionDuration == nil {
		return
	}
	m.provisionDuration.WithLabelValues(kind).Observe(duration.Seconds())
	if err != nil {
		m.provisionErrors.WithLabelValues(kind).Inc()
	}
}

// Handler exposes the registry over HTTP. Returns a 404 handler when
// metrics are disabled.
func (m *Metrics) Handler() http.Handler {
	if m.registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
