package audit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"mercator-hq/themis/pkg/decision"
)

// flakyStorage fails the first failures writes, then succeeds.
type flakyStorage struct {
	mu       sync.Mutex
	failures int
	written  []*DecisionRecord
	events   []*AdminEvent
}

func (f *flakyStorage) WriteDecision(_ context.Context, record *DecisionRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failures > 0 {
		f.failures--
		return errors.New("sink unavailable")
	}
	f.written = append(f.written, record)
	return nil
}

func (f *flakyStorage) WriteEvent(_ context.Context, event *AdminEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
	return nil
}

func (f *flakyStorage) RecentDecisions(_ context.Context, _ int) ([]*DecisionRecord, error) {
	return nil, nil
}

func (f *flakyStorage) Violations(_ context.Context, _ int) ([]*DecisionRecord, error) {
	return nil, nil
}

func (f *flakyStorage) Summarize(_ context.Context, _ time.Time) (*Summary, error) {
	return &Summary{}, nil
}

func (f *flakyStorage) Prune(_ context.Context, _ time.Time) (int64, error) { return 0, nil }

func (f *flakyStorage) Close() error { return nil }

func (f *flakyStorage) writtenCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.written)
}

func testRecord() *DecisionRecord {
	return &DecisionRecord{
		RequestID:   "req-1",
		UserID:      "u-1",
		ResourceKey: "character.ai",
		Verdict:     decision.VerdictDeny,
		Reason:      "unknown service",
	}
}

func TestRecorder_SynchronousWrite(t *testing.T) {
	storage := &flakyStorage{}
	r := NewRecorder(storage, nil)
	defer r.Close()

	if err := r.Record(context.Background(), testRecord()); err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if storage.writtenCount() != 1 {
		t.Errorf("written = %d, want 1", storage.writtenCount())
	}
}

func TestRecorder_AssignsIDAndTimestamp(t *testing.T) {
	storage := &flakyStorage{}
	r := NewRecorder(storage, nil)
	defer r.Close()

	record := testRecord()
	if err := r.Record(context.Background(), record); err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if record.ID == "" {
		t.Error("record ID should be assigned")
	}
	if record.CreatedAt.IsZero() {
		t.Error("record timestamp should be assigned")
	}
}

func TestRecorder_PendingOnSinkFailure(t *testing.T) {
	storage := &flakyStorage{failures: 1}
	r := NewRecorder(storage, &RecorderConfig{
		AsyncBuffer:     10,
		WriteTimeout:    50 * time.Millisecond,
		RetryMaxElapsed: 5 * time.Second,
	})
	defer r.Close()

	err := r.Record(context.Background(), testRecord())
	if !errors.Is(err, ErrPending) {
		t.Fatalf("Record() error = %v, want ErrPending", err)
	}

	// The background retry should land the record.
	deadline := time.Now().Add(3 * time.Second)
	for storage.writtenCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if storage.writtenCount() != 1 {
		t.Errorf("written = %d after retry, want 1", storage.writtenCount())
	}
	if r.Dropped() != 0 {
		t.Errorf("dropped = %d, want 0", r.Dropped())
	}
}

func TestRecorder_SurvivesCallerCancellation(t *testing.T) {
	storage := &flakyStorage{}
	r := NewRecorder(storage, nil)
	defer r.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := r.Record(ctx, testRecord()); err != nil {
		t.Fatalf("Record() with cancelled caller context error = %v", err)
	}
	if storage.writtenCount() != 1 {
		t.Error("record should be written despite caller cancellation")
	}
}

func TestRecorder_CloseDrainsQueue(t *testing.T) {
	storage := &flakyStorage{failures: 2}
	r := NewRecorder(storage, &RecorderConfig{
		AsyncBuffer:     10,
		WriteTimeout:    50 * time.Millisecond,
		RetryMaxElapsed: 5 * time.Second,
	})

	if err := r.Record(context.Background(), testRecord()); !errors.Is(err, ErrPending) {
		t.Fatalf("Record() error = %v, want ErrPending", err)
	}

	r.Close()

	if storage.writtenCount() != 1 {
		t.Errorf("written = %d after Close, want 1 (queue drained)", storage.writtenCount())
	}
	if err := r.Record(context.Background(), testRecord()); err == nil {
		t.Error("Record() after Close should fail")
	}
}

func TestRecorder_RecordEvent(t *testing.T) {
	storage := &flakyStorage{}
	r := NewRecorder(storage, nil)
	defer r.Close()

	event := &AdminEvent{
		Type:       EventOverrideSet,
		Actor:      "admin@corp.com",
		Subject:    "character.ai",
		Generation: 4,
	}
	if err := r.RecordEvent(context.Background(), event); err != nil {
		t.Fatalf("RecordEvent() error = %v", err)
	}
	if event.ID == "" {
		t.Error("event ID should be assigned")
	}
	if len(storage.events) != 1 {
		t.Errorf("events = %d, want 1", len(storage.events))
	}
}
