// Package metrics holds the Prometheus collectors of the service.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Movement outcomes.
const (
	OutcomeOK       = "ok"
	OutcomeNoop     = "noop"
	OutcomeRejected = "rejected"
	OutcomeError    = "error"
)

// Metrics is the set of collectors registered on one registry.
type Metrics struct {
	reg *prometheus.Registry

	Movements       *prometheus.CounterVec
	HTTPRequests    *prometheus.CounterVec
	HTTPDuration    *prometheus.HistogramVec
	LoginFailures   prometheus.Counter
	ReconcileDrifts prometheus.Counter
}

// New creates a fresh registry with Go and process collectors and all
// service metrics.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)
	return &Metrics{
		reg: reg,
		Movements: f.NewCounterVec(prometheus.CounterOpts{
			Name: "efiling_file_movements_total",
			Help: "File movement operations by operation and outcome.",
		}, []string{"op", "outcome"}),
		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "efiling_http_requests_total",
			Help: "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		HTTPDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "efiling_http_request_duration_seconds",
			Help:    "HTTP request duration by method and route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		LoginFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "efiling_login_failures_total",
			Help: "Failed login attempts.",
		}),
		ReconcileDrifts: f.NewCounter(prometheus.CounterOpts{
			Name: "efiling_reconcile_drift_total",
			Help: "Held-file membership rows repaired by reconciliation.",
		}),
	}
}

// Movement counts one movement operation.
func (m *Metrics) Movement(op, outcome string) {
	if m == nil {
		return
	}
	m.Movements.WithLabelValues(op, outcome).Inc()
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}
