// Package policy manages which policy definition is live. Definitions are
// loaded from a local directory, activation pushes the definition into the
// external evaluator and persists an ActivePolicy record atomically, and
// the full activation history is retained for audit and rollback.
package policy
