package decision

import (
	"time"
)

// Verdict is the outcome of a governance decision.
type Verdict string

const (
	// VerdictAllow permits the interaction.
	VerdictAllow Verdict = "ALLOW"

	// VerdictDeny blocks the interaction.
	VerdictDeny Verdict = "DENY"

	// VerdictReview defers the interaction to manual review.
	VerdictReview Verdict = "REVIEW"
)

// Valid reports whether v is one of the known verdicts.
func (v Verdict) Valid() bool {
	switch v {
	case VerdictAllow, VerdictDeny, VerdictReview:
		return true
	}
	return false
}

// User identifies the requesting user and carries resolved attributes.
type User struct {
	// ID is the stable user identifier.
	ID string `json:"id"`

	// Email is the user's email address.
	Email string `json:"email"`

	// Department is the user's organizational unit.
	Department string `json:"department"`

	// TrainingCompleted indicates the user finished AI-usage training.
	TrainingCompleted bool `json:"training_completed"`

	// Roles contains the user's resolved role set.
	Roles []string `json:"roles,omitempty"`
}

// Resource identifies the AI service being accessed.
type Resource struct {
	// URL is the resource URL or identifier.
	URL string `json:"url"`

	// Service is the service name, if known (e.g., "chatgpt").
	Service string `json:"service,omitempty"`

	// Type is the resource type. Default: "ai_service".
	Type string `json:"type,omitempty"`
}

// Request is a single inbound decision request. It is constructed per call
// and never persisted directly.
type Request struct {
	// User is the requesting user as supplied by the caller.
	User User `json:"user"`

	// Resource is the AI service being accessed.
	Resource Resource `json:"resource"`

	// Content is the optional payload to classify.
	Content string `json:"content,omitempty"`

	// Source is the originating agent type (e.g., "browser_plugin").
	Source string `json:"source,omitempty"`
}

// Finding is a single content-classifier result.
type Finding struct {
	// Category is the detected sensitive-data category (e.g., "ssn").
	Category string `json:"category"`

	// Severity is the finding severity ("low", "medium", "high", "critical").
	Severity string `json:"severity"`

	// Matches is the number of matches found.
	Matches int `json:"matches"`
}

// Context is the enriched form of a Request: resolved user attributes,
// resource classification, and content findings. It is owned exclusively
// by one evaluation call and never shared across requests.
type Context struct {
	// RequestID correlates the decision with logs and traces.
	RequestID string

	// User carries resolved user attributes.
	User User

	// Resource is the resource as requested.
	Resource Resource

	// ResourceKey is the normalized key used for overrides and caching.
	ResourceKey string

	// Category is the resolved resource category (e.g., "chatbot").
	Category string

	// KnownService indicates the resource matched the service catalog.
	KnownService bool

	// Findings contains content-classifier results.
	Findings []Finding

	// ClassificationDegraded is set when the content classifier was
	// unreachable and Findings is empty for that reason.
	ClassificationDegraded bool

	// Source is the originating agent type.
	Source string

	// ReceivedAt is when the request entered the engine.
	ReceivedAt time.Time
}

// Result is the outcome of a single decision, returned to the caller.
type Result struct {
	// DecisionID uniquely identifies this decision.
	DecisionID string `json:"decision_id"`

	// Verdict is the resolved outcome.
	Verdict Verdict `json:"decision"`

	// Reason explains the verdict.
	Reason string `json:"reason"`

	// RiskScore is the evaluator-assigned risk (0-100).
	RiskScore int `json:"risk_score"`

	// Cached indicates the verdict was served from the decision cache.
	Cached bool `json:"cached"`

	// Overridden indicates an admin override supplied the verdict.
	Overridden bool `json:"overridden"`

	// Degraded indicates a fallback verdict was applied because the
	// evaluator was unreachable, or the context was only partially
	// resolved.
	Degraded bool `json:"degraded"`

	// AuditPending indicates the audit record could not be written
	// synchronously and is being retried in the background.
	AuditPending bool `json:"audit_pending,omitempty"`

	// Duration is the total evaluation time.
	Duration time.Duration `json:"-"`

	// DurationMillis is the total evaluation time in milliseconds.
	DurationMillis int64 `json:"evaluation_duration_ms"`
}
