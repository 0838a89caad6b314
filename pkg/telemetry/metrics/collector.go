package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"mercator-hq/themis/pkg/config"
)

// Collector owns the Prometheus registry and the metric subsystems of the
// decision service. All recording methods are safe for concurrent use and
// become no-ops when metrics are disabled.
type Collector struct {
	config   *config.MetricsConfig
	registry *prometheus.Registry

	decision *DecisionMetrics
	cache    *CacheMetrics
	audit    *AuditMetrics
}

// NewCollector creates a metrics collector with the specified configuration
// and Prometheus registry. If registry is nil, a fresh registry is used.
func NewCollector(cfg *config.MetricsConfig, registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	if cfg.Namespace == "" {
		cfg.Namespace = "themis"
	}
	if cfg.Subsystem == "" {
		cfg.Subsystem = "decision"
	}

	c := &Collector{
		config:   cfg,
		registry: registry,
	}

	c.decision = NewDecisionMetrics(cfg, registry)
	c.cache = NewCacheMetrics(cfg, registry)
	c.audit = NewAuditMetrics(cfg, registry)

	return c
}

// Decision returns the decision metrics subsystem.
func (c *Collector) Decision() *DecisionMetrics {
	return c.decision
}

// Cache returns the cache metrics subsystem.
func (c *Collector) Cache() *CacheMetrics {
	return c.cache
}

// Audit returns the audit metrics subsystem.
func (c *Collector) Audit() *AuditMetrics {
	return c.audit
}

// Enabled reports whether metrics recording is enabled.
func (c *Collector) Enabled() bool {
	return c.config.Enabled
}

// Registry returns the underlying Prometheus registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}
