package audit

import (
	"fmt"
	"time"

	"mercator-hq/themis/pkg/decision"
)

// DecisionRecord is the append-only audit entry for one decision. Records
// are never mutated or deleted by the evaluation path; retention pruning is
// the only writer after insert.
type DecisionRecord struct {
	// ID uniquely identifies the record.
	ID string `json:"id"`

	// RequestID correlates the record with logs and traces.
	RequestID string `json:"request_id"`

	// Fingerprint is the decision fingerprint, empty for override
	// short-circuits that never computed one.
	Fingerprint string `json:"fingerprint,omitempty"`

	// UserID is the requesting user.
	UserID string `json:"user_id"`

	// Department is the user's resolved department.
	Department string `json:"department,omitempty"`

	// ResourceKey is the normalized resource identity.
	ResourceKey string `json:"resource_key"`

	// Verdict is the resolved outcome.
	Verdict decision.Verdict `json:"decision"`

	// Reason explains the verdict.
	Reason string `json:"reason"`

	// RiskScore is the evaluator-assigned risk, zero for overrides.
	RiskScore int `json:"risk_score"`

	// Overridden indicates an admin override supplied the verdict.
	Overridden bool `json:"overridden"`

	// Cached indicates the verdict came from the decision cache.
	Cached bool `json:"cached"`

	// Degraded indicates a fallback verdict or partial context.
	Degraded bool `json:"degraded"`

	// PolicyGeneration is the active-policy generation used.
	PolicyGeneration uint64 `json:"policy_generation"`

	// OverrideGeneration is the override generation at decision time.
	OverrideGeneration uint64 `json:"override_generation"`

	// Source is the originating agent type.
	Source string `json:"source,omitempty"`

	// LatencyMillis is the total evaluation time in milliseconds.
	LatencyMillis int64 `json:"latency_ms"`

	// CreatedAt is when the decision completed.
	CreatedAt time.Time `json:"created_at"`
}

// EventType classifies administrative audit events.
type EventType string

const (
	EventPolicyActivated EventType = "policy_activated"
	EventOverrideSet     EventType = "override_set"
	EventOverrideRemoved EventType = "override_removed"
)

// AdminEvent is the append-only audit entry for one administrative
// mutation: a policy activation or an override change.
type AdminEvent struct {
	// ID uniquely identifies the event.
	ID string `json:"id"`

	// Type classifies the event.
	Type EventType `json:"type"`

	// Actor identifies the administrator.
	Actor string `json:"actor,omitempty"`

	// Subject is the policy ID or resource key the event applies to.
	Subject string `json:"subject"`

	// Detail carries event-specific context.
	Detail string `json:"detail,omitempty"`

	// Generation is the policy or override generation after the event.
	Generation uint64 `json:"generation"`

	// CreatedAt is when the event was committed.
	CreatedAt time.Time `json:"created_at"`
}

// Summary aggregates decision records over a period.
type Summary struct {
	Since            time.Time `json:"since"`
	Total            int64     `json:"total"`
	Allowed          int64     `json:"allowed"`
	Denied           int64     `json:"denied"`
	Review           int64     `json:"review"`
	Overridden       int64     `json:"overridden"`
	Cached           int64     `json:"cached"`
	Degraded         int64     `json:"degraded"`
	UniqueUsers      int64     `json:"unique_users"`
	AvgLatencyMillis float64   `json:"avg_latency_ms"`
}

// StorageError wraps a failure of the durable audit sink.
type StorageError struct {
	Backend string
	Op      string
	Cause   error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("audit storage %s: %s failed: %v", e.Backend, e.Op, e.Cause)
}

func (e *StorageError) Unwrap() error {
	return e.Cause
}

// NewStorageError creates a StorageError.
func NewStorageError(backend, op string, cause error) *StorageError {
	return &StorageError{Backend: backend, Op: op, Cause: cause}
}
