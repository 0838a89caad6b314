// Package telemetry provides observability for the decision service.
//
// # Components
//
//   - logging: slog setup (JSON or text, configurable level)
//   - metrics: Prometheus metrics collection
//   - tracing: OpenTelemetry distributed tracing
//   - health: dependency health checks and the /health endpoint
//
// Each subpackage is configured from its section of TelemetryConfig and can
// be disabled independently; a disabled tracer is a noop and a disabled
// metrics collector records nothing.
package telemetry
