package config

import (
	"fmt"
	"net/url"
	"strings"
)

// ValidationError describes a single invalid configuration field.
type ValidationError struct {
	Field   string
	Message string
}

// Error returns the error message.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("config field %q: %s", e.Field, e.Message)
}

// ValidationErrors aggregates all validation failures for a config.
type ValidationErrors struct {
	Errors []*ValidationError
}

// Error returns the combined error message.
func (e *ValidationErrors) Error() string {
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	msgs := make([]string, 0, len(e.Errors))
	for _, err := range e.Errors {
		msgs = append(msgs, err.Error())
	}
	return fmt.Sprintf("%d validation errors: %s", len(e.Errors), strings.Join(msgs, "; "))
}

// Validate checks the configuration for invalid or missing values.
// It collects all errors rather than stopping at the first.
func Validate(cfg *Config) error {
	errs := &ValidationErrors{}

	add := func(field, message string) {
		errs.Errors = append(errs.Errors, &ValidationError{Field: field, Message: message})
	}

	// Server
	if cfg.Server.ListenAddress == "" {
		add("server.listen_address", "must not be empty")
	}
	if cfg.Server.ReadTimeout < 0 {
		add("server.read_timeout", "must not be negative")
	}
	if cfg.Server.WriteTimeout < 0 {
		add("server.write_timeout", "must not be negative")
	}

	// Engine: the fallback mode is a deliberate deployment choice and is
	// never defaulted.
	switch cfg.Engine.FallbackMode {
	case FallbackOpen, FallbackClosed:
	case "":
		add("engine.fallback_mode", "required: set to \"fail-open\" or \"fail-closed\"")
	default:
		add("engine.fallback_mode", fmt.Sprintf("unknown mode %q: must be \"fail-open\" or \"fail-closed\"", cfg.Engine.FallbackMode))
	}
	if cfg.Engine.DecisionTimeout <= 0 {
		add("engine.decision_timeout", "must be positive")
	}
	if cfg.Engine.Cache.Enabled {
		if cfg.Engine.Cache.TTL <= 0 {
			add("engine.cache.ttl", "must be positive when cache is enabled")
		}
		if cfg.Engine.Cache.MaxEntries <= 0 {
			add("engine.cache.max_entries", "must be positive when cache is enabled")
		}
	}

	// Evaluator
	if cfg.Evaluator.URL == "" {
		add("evaluator.url", "must not be empty")
	} else if _, err := url.Parse(cfg.Evaluator.URL); err != nil {
		add("evaluator.url", fmt.Sprintf("invalid URL: %v", err))
	}
	if cfg.Evaluator.Timeout <= 0 {
		add("evaluator.timeout", "must be positive")
	}

	// Resolver
	if cfg.Resolver.DirectoryURL != "" {
		if _, err := url.Parse(cfg.Resolver.DirectoryURL); err != nil {
			add("resolver.directory_url", fmt.Sprintf("invalid URL: %v", err))
		}
	}
	if cfg.Resolver.ClassifierURL != "" {
		if _, err := url.Parse(cfg.Resolver.ClassifierURL); err != nil {
			add("resolver.classifier_url", fmt.Sprintf("invalid URL: %v", err))
		}
	}

	// Policy
	if cfg.Policy.DefinitionsDir == "" {
		add("policy.definitions_dir", "must not be empty")
	}
	if cfg.Policy.DefaultDefinition == "" {
		add("policy.default_definition", "must not be empty")
	}

	// Store / audit
	if cfg.Store.Path == "" {
		add("store.path", "must not be empty")
	}
	if cfg.Audit.Path == "" {
		add("audit.path", "must not be empty")
	}
	if cfg.Audit.AsyncBuffer <= 0 {
		add("audit.async_buffer", "must be positive")
	}
	if cfg.Audit.Retention.Days < 0 {
		add("audit.retention.days", "must not be negative")
	}
	if cfg.Audit.Retention.Days > 0 && cfg.Audit.Retention.PruneSchedule == "" {
		add("audit.retention.prune_schedule", "required when retention days is set")
	}

	// Telemetry
	switch cfg.Telemetry.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		add("telemetry.logging.level", fmt.Sprintf("unknown level %q", cfg.Telemetry.Logging.Level))
	}
	switch cfg.Telemetry.Logging.Format {
	case "json", "text":
	default:
		add("telemetry.logging.format", fmt.Sprintf("unknown format %q", cfg.Telemetry.Logging.Format))
	}
	if cfg.Telemetry.Tracing.Enabled && cfg.Telemetry.Tracing.Endpoint == "" {
		add("telemetry.tracing.endpoint", "required when tracing is enabled")
	}
	if cfg.Telemetry.Tracing.SampleRatio < 0 || cfg.Telemetry.Tracing.SampleRatio > 1 {
		add("telemetry.tracing.sample_ratio", "must be between 0 and 1")
	}

	if len(errs.Errors) > 0 {
		return errs
	}
	return nil
}
