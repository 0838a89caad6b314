package policy

import (
	"errors"
	"fmt"
)

// ErrNoActivePolicy indicates no persisted active-policy record exists and
// no default definition is configured. The service must not serve decisions
// in this state.
var ErrNoActivePolicy = errors.New("no active policy record and no default definition configured")

// InvalidPolicyError indicates a definition could not be activated: it is
// unknown, empty, or was rejected by the evaluator. The previously active
// policy remains in effect.
type InvalidPolicyError struct {
	PolicyID string
	Reason   string
	Cause    error
}

func (e *InvalidPolicyError) Error() string {
	return fmt.Sprintf("invalid policy %q: %s", e.PolicyID, e.Reason)
}

func (e *InvalidPolicyError) Unwrap() error {
	return e.Cause
}

// ActivationError indicates activation failed for an operational reason
// (evaluator unreachable, store write failed) rather than a bad definition.
// The previously active policy remains in effect.
type ActivationError struct {
	PolicyID string
	Cause    error
}

func (e *ActivationError) Error() string {
	return fmt.Sprintf("failed to activate policy %q: %v", e.PolicyID, e.Cause)
}

func (e *ActivationError) Unwrap() error {
	return e.Cause
}
