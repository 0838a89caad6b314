package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"mercator-hq/themis/pkg/config"
)

// DecisionMetrics tracks the decision path.
//
// Metrics:
//   - themis_decision_decisions_total: decisions by verdict and outcome
//   - themis_decision_duration_seconds: end-to-end decision latency
//   - themis_decision_evaluator_failures_total: evaluator unavailability
//   - themis_decision_policy_generation: current policy generation
//   - themis_decision_override_generation: current override generation
type DecisionMetrics struct {
	decisionsTotal *prometheus.CounterVec

	duration prometheus.Histogram

	evaluatorFailures prometheus.Counter

	policyGeneration   prometheus.Gauge
	overrideGeneration prometheus.Gauge
}

// NewDecisionMetrics creates and registers decision metrics with the
// provided registry.
func NewDecisionMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *DecisionMetrics {
	dm := &DecisionMetrics{
		decisionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "decisions_total",
				Help:      "Total number of decisions by verdict and outcome",
			},
			[]string{"verdict", "outcome"},
		),

		duration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "duration_seconds",
				Help:      "End-to-end decision latency in seconds",
				// The aggregate latency target is 100ms at p99.
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
			},
		),

		evaluatorFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "evaluator_failures_total",
				Help:      "Total number of evaluator calls that failed or timed out",
			},
		),

		policyGeneration: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "policy_generation",
				Help:      "Current active-policy generation",
			},
		),

		overrideGeneration: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "override_generation",
				Help:      "Current override generation",
			},
		),
	}

	registry.MustRegister(
		dm.decisionsTotal,
		dm.duration,
		dm.evaluatorFailures,
		dm.policyGeneration,
		dm.overrideGeneration,
	)

	return dm
}

// Record records one completed decision. outcome is one of "evaluated",
// "cached", "override", or "fallback".
func (dm *DecisionMetrics) Record(verdict, outcome string, duration time.Duration) {
	dm.decisionsTotal.WithLabelValues(verdict, outcome).Inc()
	dm.duration.Observe(duration.Seconds())
}

// RecordEvaluatorFailure counts one failed evaluator call.
func (dm *DecisionMetrics) RecordEvaluatorFailure() {
	dm.evaluatorFailures.Inc()
}

// SetGenerations publishes the current generation counters.
func (dm *DecisionMetrics) SetGenerations(policyGen, overrideGen uint64) {
	dm.policyGeneration.Set(float64(policyGen))
	dm.overrideGeneration.Set(float64(overrideGen))
}
