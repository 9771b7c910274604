// Package metrics exposes the daemon's Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the supervisor's collectors.
type Metrics struct {
	ActiveStreams  prometheus.Gauge
	ReconcileRuns  prometheus.Counter
	StreamStarts   prometheus.Counter
	StreamFailures prometheus.Counter
}

// New registers the collectors with reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		ActiveStreams: factory.NewGauge(prometheus.GaugeOpts{
			Name: "restreamd_active_streams",
			Help: "Number of stream jobs with a live encoder process.",
		}),
		ReconcileRuns: factory.NewCounter(prometheus.CounterOpts{
			Name: "restreamd_reconcile_runs_total",
			Help: "Reconciliation passes executed.",
		}),
		StreamStarts: factory.NewCounter(prometheus.CounterOpts{
			Name: "restreamd_stream_starts_total",
			Help: "Encoder processes launched.",
		}),
		StreamFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "restreamd_stream_failures_total",
			Help: "Stream jobs that entered the error state.",
		}),
	}
}
