package config

import "time"

// Default values applied to unset configuration fields. The engine fallback
// mode deliberately has no default; it must be configured explicitly.
const (
	DefaultListenAddress   = ":8080"
	DefaultReadTimeout     = 10 * time.Second
	DefaultWriteTimeout    = 10 * time.Second
	DefaultIdleTimeout     = 120 * time.Second
	DefaultShutdownTimeout = 30 * time.Second
	DefaultMaxHeaderBytes  = 1 << 20

	DefaultDecisionTimeout = 100 * time.Millisecond

	DefaultCacheTTL        = 5 * time.Minute
	DefaultCacheMaxEntries = 10000

	DefaultEvaluatorPath          = "/v1/data/governance"
	DefaultEvaluatorTimeout       = 50 * time.Millisecond
	DefaultEvaluatorReloadTimeout = 5 * time.Second

	DefaultDirectoryTimeout  = 30 * time.Millisecond
	DefaultClassifierTimeout = 30 * time.Millisecond

	DefaultStorePath        = "data/themis.db"
	DefaultStoreBusyTimeout = 5 * time.Second

	DefaultAuditPath            = "data/audit.db"
	DefaultAuditAsyncBuffer     = 1000
	DefaultAuditWriteTimeout    = 20 * time.Millisecond
	DefaultAuditRetryMaxElapsed = 30 * time.Second

	DefaultMetricsPath      = "/metrics"
	DefaultMetricsNamespace = "themis"

	DefaultTracingServiceName = "themis"
	DefaultTracingSampleRatio = 1.0
	DefaultTracingTimeout     = 10 * time.Second
)

// ApplyDefaults fills in default values for unset fields.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.ListenAddress == "" {
		cfg.Server.ListenAddress = DefaultListenAddress
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = DefaultReadTimeout
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = DefaultWriteTimeout
	}
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = DefaultIdleTimeout
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = DefaultShutdownTimeout
	}
	if cfg.Server.MaxHeaderBytes == 0 {
		cfg.Server.MaxHeaderBytes = DefaultMaxHeaderBytes
	}
	if len(cfg.Server.CORS.AllowedMethods) == 0 {
		cfg.Server.CORS.AllowedMethods = []string{"GET", "POST", "DELETE", "OPTIONS"}
	}
	if len(cfg.Server.CORS.AllowedHeaders) == 0 {
		cfg.Server.CORS.AllowedHeaders = []string{"Content-Type", "Authorization", "X-Request-ID"}
	}

	if cfg.Engine.DecisionTimeout == 0 {
		cfg.Engine.DecisionTimeout = DefaultDecisionTimeout
	}
	if cfg.Engine.Cache.TTL == 0 {
		cfg.Engine.Cache.TTL = DefaultCacheTTL
	}
	if cfg.Engine.Cache.MaxEntries == 0 {
		cfg.Engine.Cache.MaxEntries = DefaultCacheMaxEntries
	}

	if cfg.Evaluator.DecisionPath == "" {
		cfg.Evaluator.DecisionPath = DefaultEvaluatorPath
	}
	if cfg.Evaluator.Timeout == 0 {
		cfg.Evaluator.Timeout = DefaultEvaluatorTimeout
	}
	if cfg.Evaluator.ReloadTimeout == 0 {
		cfg.Evaluator.ReloadTimeout = DefaultEvaluatorReloadTimeout
	}

	if cfg.Resolver.DirectoryTimeout == 0 {
		cfg.Resolver.DirectoryTimeout = DefaultDirectoryTimeout
	}
	if cfg.Resolver.ClassifierTimeout == 0 {
		cfg.Resolver.ClassifierTimeout = DefaultClassifierTimeout
	}

	if cfg.Store.Path == "" {
		cfg.Store.Path = DefaultStorePath
	}
	if cfg.Store.BusyTimeout == 0 {
		cfg.Store.BusyTimeout = DefaultStoreBusyTimeout
	}

	if cfg.Audit.Path == "" {
		cfg.Audit.Path = DefaultAuditPath
	}
	if cfg.Audit.AsyncBuffer == 0 {
		cfg.Audit.AsyncBuffer = DefaultAuditAsyncBuffer
	}
	if cfg.Audit.WriteTimeout == 0 {
		cfg.Audit.WriteTimeout = DefaultAuditWriteTimeout
	}
	if cfg.Audit.RetryMaxElapsed == 0 {
		cfg.Audit.RetryMaxElapsed = DefaultAuditRetryMaxElapsed
	}

	if cfg.Telemetry.Logging.Level == "" {
		cfg.Telemetry.Logging.Level = "info"
	}
	if cfg.Telemetry.Logging.Format == "" {
		cfg.Telemetry.Logging.Format = "json"
	}
	if cfg.Telemetry.Metrics.Path == "" {
		cfg.Telemetry.Metrics.Path = DefaultMetricsPath
	}
	if cfg.Telemetry.Metrics.Namespace == "" {
		cfg.Telemetry.Metrics.Namespace = DefaultMetricsNamespace
	}
	if cfg.Telemetry.Tracing.ServiceName == "" {
		cfg.Telemetry.Tracing.ServiceName = DefaultTracingServiceName
	}
	if cfg.Telemetry.Tracing.SampleRatio == 0 {
		cfg.Telemetry.Tracing.SampleRatio = DefaultTracingSampleRatio
	}
	if cfg.Telemetry.Tracing.Timeout == 0 {
		cfg.Telemetry.Tracing.Timeout = DefaultTracingTimeout
	}
}
