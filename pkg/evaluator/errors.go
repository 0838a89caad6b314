package evaluator

import "fmt"

// UnavailableError indicates the rule engine could not produce a verdict:
// unreachable, timed out, or failing server-side. The caller decides whether
// to fail open or closed.
type UnavailableError struct {
	Endpoint string
	Cause    error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("rule engine unavailable at %s: %v", e.Endpoint, e.Cause)
}

func (e *UnavailableError) Unwrap() error {
	return e.Cause
}

// RejectedError indicates the engine refused a policy definition during
// reload. The definition is at fault, not the engine.
type RejectedError struct {
	PolicyID string
	Status   int
	Detail   string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("rule engine rejected policy %q (status %d): %s", e.PolicyID, e.Status, e.Detail)
}
