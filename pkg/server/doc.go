// Package server provides the HTTP front of the decision service.
//
// It ties the assembled components (engine, policy manager, override store,
// audit recorder) to HTTP routes and manages server lifecycle: start,
// graceful shutdown, and OS signal handling.
//
// # Routes
//
// The server exposes the following HTTP endpoints:
//
//   - POST /decide - Evaluate a request and return the decision
//   - GET /policy/active - Currently active policy
//   - GET /policy/history - Activation history, most recent last
//   - GET /policy/definitions - Loadable policy definitions
//   - POST /policy/activate - Validate and activate a policy
//   - GET /overrides - List admin overrides
//   - POST /overrides - Create or replace an override
//   - DELETE /overrides/{resource_key} - Remove an override
//   - GET /stats/summary - Aggregate decision counts for a window
//   - GET /stats/violations - Recent DENY/REVIEW decisions
//   - GET /health - Dependency health report
//   - GET /metrics - Prometheus exposition (when enabled)
//
// # Middleware Chain
//
// Requests pass through the following middleware (innermost to outermost):
//  1. Timeout: Enforces per-request timeout
//  2. CORS: Adds Cross-Origin Resource Sharing headers
//  3. RequestID: Generates unique request ID for tracing
//  4. Logging: Logs request/response details
//  5. Recovery: Recovers from panics and returns 500 error
//
// # Graceful Shutdown
//
// The server shuts down on SIGTERM/SIGINT or context cancellation, waiting
// for in-flight requests up to the configured shutdown timeout.
package server
