package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"mercator-hq/themis/pkg/config"
)

// AuditMetrics tracks the audit write path.
//
// Metrics:
//   - themis_decision_audit_queue_depth: records awaiting background retry
//   - themis_decision_audit_pending_total: writes deferred to retry
//   - themis_decision_audit_dropped_records: records lost after retries
type AuditMetrics struct {
	queueDepth   prometheus.Gauge
	pendingTotal prometheus.Counter
	dropped      prometheus.Gauge
}

// NewAuditMetrics creates and registers audit metrics with the provided
// registry.
func NewAuditMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *AuditMetrics {
	am := &AuditMetrics{
		queueDepth: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "audit_queue_depth",
				Help:      "Number of audit records awaiting background retry",
			},
		),

		pendingTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "audit_pending_total",
				Help:      "Total number of audit writes deferred to background retry",
			},
		),

		dropped: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "audit_dropped_records",
				Help:      "Total number of audit records lost after exhausted retries",
			},
		),
	}

	registry.MustRegister(am.queueDepth, am.pendingTotal, am.dropped)
	return am
}

// RecordPending counts one deferred audit write.
func (am *AuditMetrics) RecordPending() {
	am.pendingTotal.Inc()
}

// SetQueueDepth publishes the current retry queue depth.
func (am *AuditMetrics) SetQueueDepth(n int) {
	am.queueDepth.Set(float64(n))
}

// SetDropped publishes the cumulative dropped-record count.
func (am *AuditMetrics) SetDropped(n uint64) {
	am.dropped.Set(float64(n))
}
