// Package tracing configures OpenTelemetry tracing with an OTLP gRPC
// exporter for the decision service.
package tracing
