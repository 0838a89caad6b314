package audit

import (
	"context"
	"time"
)

// Storage is the durable audit sink.
type Storage interface {
	// WriteDecision appends a decision record.
	WriteDecision(ctx context.Context, record *DecisionRecord) error

	// WriteEvent appends an administrative event.
	WriteEvent(ctx context.Context, event *AdminEvent) error

	// RecentDecisions returns the newest decision records, newest first.
	RecentDecisions(ctx context.Context, limit int) ([]*DecisionRecord, error)

	// Violations returns the newest DENY and REVIEW records, newest first.
	Violations(ctx context.Context, limit int) ([]*DecisionRecord, error)

	// Summarize aggregates records created at or after since.
	Summarize(ctx context.Context, since time.Time) (*Summary, error)

	// Prune deletes decision records created before cutoff and returns
	// the number removed. Administrative events are never pruned.
	Prune(ctx context.Context, cutoff time.Time) (int64, error)

	// Close releases storage resources.
	Close() error
}
