// Package middleware provides the HTTP middleware chain for the decision
// service: panic recovery, request logging, request ID propagation, CORS,
// and per-request timeouts.
package middleware
