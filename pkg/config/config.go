package config

import (
	"time"
)

// Config is the root configuration for the Themis decision service.
type Config struct {
	// Server contains HTTP server settings.
	Server ServerConfig `yaml:"server"`

	// Engine contains decision engine settings.
	Engine EngineConfig `yaml:"engine"`

	// Evaluator contains policy evaluator adapter settings.
	Evaluator EvaluatorConfig `yaml:"evaluator"`

	// Resolver contains context resolver settings.
	Resolver ResolverConfig `yaml:"resolver"`

	// Policy contains active-policy manager settings.
	Policy PolicyConfig `yaml:"policy"`

	// Store contains persistent store settings.
	Store StoreConfig `yaml:"store"`

	// Audit contains audit logger settings.
	Audit AuditConfig `yaml:"audit"`

	// Telemetry contains logging, metrics, and tracing settings.
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	// ListenAddress is the address the server listens on (e.g., ":8080").
	ListenAddress string `yaml:"listen_address"`

	// ReadTimeout is the maximum duration for reading a request.
	ReadTimeout time.Duration `yaml:"read_timeout"`

	// WriteTimeout is the maximum duration for writing a response.
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// IdleTimeout is the maximum duration to wait for the next request.
	IdleTimeout time.Duration `yaml:"idle_timeout"`

	// ShutdownTimeout is the grace period for in-flight requests on shutdown.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// MaxHeaderBytes limits the size of request headers.
	MaxHeaderBytes int `yaml:"max_header_bytes"`

	// CORS contains cross-origin settings for the admin endpoints.
	CORS CORSConfig `yaml:"cors"`
}

// CORSConfig contains cross-origin resource sharing settings.
type CORSConfig struct {
	Enabled          bool     `yaml:"enabled"`
	AllowedOrigins   []string `yaml:"allowed_origins"`
	AllowedMethods   []string `yaml:"allowed_methods"`
	AllowedHeaders   []string `yaml:"allowed_headers"`
	MaxAge           int      `yaml:"max_age"`
	AllowCredentials bool     `yaml:"allow_credentials"`
}

// FallbackMode selects the verdict applied when the policy evaluator is
// unreachable. There is no implicit default: the mode must be configured
// explicitly and is rejected by validation otherwise.
type FallbackMode string

const (
	// FallbackOpen returns ALLOW when the evaluator is unreachable.
	FallbackOpen FallbackMode = "fail-open"

	// FallbackClosed returns DENY when the evaluator is unreachable.
	FallbackClosed FallbackMode = "fail-closed"
)

// EngineConfig contains decision engine settings.
type EngineConfig struct {
	// FallbackMode is applied when the evaluator is unreachable.
	// Required: "fail-open" or "fail-closed".
	FallbackMode FallbackMode `yaml:"fallback_mode"`

	// DecisionTimeout bounds the total latency of a single decision.
	DecisionTimeout time.Duration `yaml:"decision_timeout"`

	// Cache contains decision cache settings.
	Cache CacheConfig `yaml:"cache"`
}

// CacheConfig contains decision cache settings.
type CacheConfig struct {
	// Enabled enables the decision cache.
	Enabled bool `yaml:"enabled"`

	// TTL is how long a cached verdict remains usable.
	TTL time.Duration `yaml:"ttl"`

	// MaxEntries bounds cache size; least-recently-used entries are
	// evicted beyond this.
	MaxEntries int `yaml:"max_entries"`
}

// EvaluatorConfig contains policy evaluator adapter settings.
type EvaluatorConfig struct {
	// URL is the base URL of the external rule-evaluation engine.
	URL string `yaml:"url"`

	// DecisionPath is the evaluation endpoint path.
	DecisionPath string `yaml:"decision_path"`

	// Timeout bounds a single evaluation call.
	Timeout time.Duration `yaml:"timeout"`

	// ReloadTimeout bounds a policy reload call.
	ReloadTimeout time.Duration `yaml:"reload_timeout"`
}

// ResolverConfig contains context resolver settings.
type ResolverConfig struct {
	// DirectoryURL is the user directory endpoint. Empty disables
	// directory lookups; user attributes then come from the request.
	DirectoryURL string `yaml:"directory_url"`

	// DirectoryTimeout bounds a single directory lookup.
	DirectoryTimeout time.Duration `yaml:"directory_timeout"`

	// ClassifierURL is the external content classifier endpoint. Empty
	// selects the built-in pattern classifier.
	ClassifierURL string `yaml:"classifier_url"`

	// ClassifierTimeout bounds a single classification call.
	ClassifierTimeout time.Duration `yaml:"classifier_timeout"`
}

// PolicyConfig contains active-policy manager settings.
type PolicyConfig struct {
	// DefinitionsDir is the directory containing policy definitions.
	DefinitionsDir string `yaml:"definitions_dir"`

	// DefaultDefinition is activated at install time when no persisted
	// active policy exists.
	DefaultDefinition string `yaml:"default_definition"`

	// Watch enables re-validation of the active definition when its
	// file changes on disk.
	Watch bool `yaml:"watch"`
}

// StoreConfig contains persistent store settings.
type StoreConfig struct {
	// Path is the SQLite database file path for overrides and the
	// active-policy record.
	Path string `yaml:"path"`

	// BusyTimeout is how long to wait for locks before failing.
	BusyTimeout time.Duration `yaml:"busy_timeout"`
}

// AuditConfig contains audit logger settings.
type AuditConfig struct {
	// Path is the SQLite database file path for decision records.
	Path string `yaml:"path"`

	// AsyncBuffer is the size of the async write channel buffer.
	AsyncBuffer int `yaml:"async_buffer"`

	// WriteTimeout bounds a single storage write.
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// RetryMaxElapsed bounds the total time spent retrying a failed write.
	RetryMaxElapsed time.Duration `yaml:"retry_max_elapsed"`

	// Retention contains record retention settings.
	Retention RetentionConfig `yaml:"retention"`
}

// RetentionConfig contains audit record retention settings.
type RetentionConfig struct {
	// Days is how long decision records are kept. Zero disables pruning.
	Days int `yaml:"days"`

	// PruneSchedule is a cron expression for the pruning job.
	PruneSchedule string `yaml:"prune_schedule"`
}

// TelemetryConfig contains logging, metrics, and tracing settings.
type TelemetryConfig struct {
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
	Tracing TracingConfig `yaml:"tracing"`
}

// LoggingConfig contains structured logging settings.
type LoggingConfig struct {
	// Level is the minimum log level ("debug", "info", "warn", "error").
	Level string `yaml:"level"`

	// Format is the output format ("json", "text").
	Format string `yaml:"format"`
}

// MetricsConfig contains Prometheus metrics settings.
type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Path      string `yaml:"path"`
	Namespace string `yaml:"namespace"`
	Subsystem string `yaml:"subsystem"`
}

// TracingConfig contains OpenTelemetry tracing settings.
type TracingConfig struct {
	Enabled     bool          `yaml:"enabled"`
	ServiceName string        `yaml:"service_name"`
	Endpoint    string        `yaml:"endpoint"`
	Insecure    bool          `yaml:"insecure"`
	SampleRatio float64       `yaml:"sample_ratio"`
	Timeout     time.Duration `yaml:"timeout"`
}
