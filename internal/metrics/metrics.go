// Package metrics exports Prometheus counters for the sync substructure.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "vocabsync"

// Metrics holds every collector the service updates.
type Metrics struct {
	SyncPushes       *prometheus.CounterVec // type, result
	SyncDeferred     *prometheus.CounterVec // type, result
	TrustRejections  *prometheus.CounterVec // reason
	QuotaRejections  *prometheus.CounterVec // kind
	BatchRecords     *prometheus.CounterVec // kind, mode, outcome
	HealthChecks     *prometheus.CounterVec // result
	Assignments      *prometheus.CounterVec // result
	SyncPushDuration *prometheus.HistogramVec
}

// New registers the collectors on reg.  Pass prometheus.DefaultRegisterer in
// production and a fresh registry in tests.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		SyncPushes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_push_total",
			Help:      "Signed sync pushes to other nodes by message type and result",
		}, []string{"type", "result"}),
		SyncDeferred: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_deferred_total",
			Help:      "Failed sync pushes handed to the deferred queue and their redelivery outcome",
		}, []string{"type", "result"}),
		TrustRejections: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "trust_rejections_total",
			Help:      "Inbound server-to-server requests rejected by signature verification",
		}, []string{"reason"}),
		QuotaRejections: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quota_rejections_total",
			Help:      "Creations refused because they would exceed the word limit",
		}, []string{"kind"}),
		BatchRecords: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batch_records_total",
			Help:      "Records processed by batch sync by kind, mode and outcome",
		}, []string{"kind", "mode", "outcome"}),
		HealthChecks: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "health_checks_total",
			Help:      "Data server probes by result",
		}, []string{"result"}),
		Assignments: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "assignments_total",
			Help:      "Data server assignment attempts by result",
		}, []string{"result"}),
		SyncPushDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sync_push_duration_seconds",
			Help:      "Latency of signed sync pushes",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"type"}),
	}
}
