// Package metrics provides Prometheus instrumentation for the decision
// service: decision counts and latency, cache effectiveness, generation
// counters, and audit write-path health.
package metrics
