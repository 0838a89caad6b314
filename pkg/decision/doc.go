// Package decision defines the core domain types of the decision service:
// requests, resolved contexts, verdicts, results, and the fingerprint used
// as the cache key.
package decision
