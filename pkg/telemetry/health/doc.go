// Package health aggregates dependency probes (evaluator, store, audit
// sink) into the service health endpoint.
package health
