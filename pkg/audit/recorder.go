package audit

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
)

// ErrPending indicates the record could not be written synchronously and
// was queued for background retry. The decision itself is unaffected.
var ErrPending = errors.New("audit record pending background retry")

// ErrRecorderClosed indicates the recorder has shut down.
var ErrRecorderClosed = errors.New("audit recorder closed")

// RecorderConfig contains configuration for the audit recorder.
type RecorderConfig struct {
	// AsyncBuffer is the size of the background retry queue.
	// Default: 1000
	AsyncBuffer int

	// WriteTimeout bounds a single storage write.
	// Default: 20 milliseconds
	WriteTimeout time.Duration

	// RetryMaxElapsed bounds the total time spent retrying one record.
	// Default: 30 seconds
	RetryMaxElapsed time.Duration
}

// DefaultRecorderConfig returns the default recorder configuration.
func DefaultRecorderConfig() *RecorderConfig {
	return &RecorderConfig{
		AsyncBuffer:     1000,
		WriteTimeout:    20 * time.Millisecond,
		RetryMaxElapsed: 30 * time.Second,
	}
}

// Recorder writes audit records durably without stalling the decision path.
//
// Record first attempts a synchronous write bounded by WriteTimeout. On
// failure the record is queued and retried in the background with
// exponential backoff, and the caller learns the write is pending so the
// response can be marked accordingly. A record is only ever dropped after
// retries are exhausted, and never silently.
type Recorder struct {
	storage Storage
	config  *RecorderConfig
	logger  *slog.Logger

	mu        sync.RWMutex
	closed    bool
	retryChan chan *DecisionRecord
	wg        sync.WaitGroup

	dropped atomic.Uint64
}

// NewRecorder creates a recorder over storage and starts its background
// retry worker.
func NewRecorder(storage Storage, config *RecorderConfig) *Recorder {
	if config == nil {
		config = DefaultRecorderConfig()
	}
	if config.AsyncBuffer <= 0 {
		config.AsyncBuffer = 1000
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = 20 * time.Millisecond
	}
	if config.RetryMaxElapsed <= 0 {
		config.RetryMaxElapsed = 30 * time.Second
	}

	r := &Recorder{
		storage:   storage,
		config:    config,
		logger:    slog.Default().With("component", "audit.recorder"),
		retryChan: make(chan *DecisionRecord, config.AsyncBuffer),
	}

	r.wg.Add(1)
	go r.worker()

	r.logger.Info("audit recorder initialized",
		"async_buffer", config.AsyncBuffer,
		"write_timeout", config.WriteTimeout,
		"retry_max_elapsed", config.RetryMaxElapsed,
	)
	return r
}

// Record appends a decision record. Returns nil when the record is durable,
// ErrPending when it was queued for background retry, or the storage error
// when the retry queue is full.
//
// The write is detached from the caller's cancellation: a disconnected
// client must not cost the trail a record.
func (r *Recorder) Record(ctx context.Context, record *DecisionRecord) error {
	if record.ID == "" {
		record.ID = uuid.New().String()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now()
	}

	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.config.WriteTimeout)
	defer cancel()

	err := r.storage.WriteDecision(writeCtx, record)
	if err == nil {
		return nil
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		r.logger.Error("audit record lost, recorder closed",
			"record_id", record.ID, "error", err)
		return ErrRecorderClosed
	}

	select {
	case r.retryChan <- record:
		r.logger.Warn("audit write deferred to background retry",
			"record_id", record.ID, "error", err)
		return ErrPending
	default:
		r.dropped.Add(1)
		r.logger.Error("audit record dropped, retry queue full",
			"record_id", record.ID, "error", err)
		return err
	}
}

// RecordEvent appends an administrative event synchronously. Administrative
// operations are rare and tolerate the write latency.
func (r *Recorder) RecordEvent(ctx context.Context, event *AdminEvent) error {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}
	return r.storage.WriteEvent(ctx, event)
}

// QueueDepth returns the number of records awaiting background retry.
func (r *Recorder) QueueDepth() int {
	return len(r.retryChan)
}

// Dropped returns the number of records lost after exhausted retries or a
// full queue.
func (r *Recorder) Dropped() uint64 {
	return r.dropped.Load()
}

// Close stops accepting records, drains the retry queue, and waits for the
// worker to finish.
func (r *Recorder) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	close(r.retryChan)
	r.mu.Unlock()

	r.wg.Wait()
	r.logger.Info("audit recorder stopped", "dropped", r.dropped.Load())
}

func (r *Recorder) worker() {
	defer r.wg.Done()

	for record := range r.retryChan {
		r.retryWrite(record)
	}
}

func (r *Recorder) retryWrite(record *DecisionRecord) {
	operation := func() (struct{}, error) {
		ctx, cancel := context.WithTimeout(context.Background(), r.config.WriteTimeout)
		defer cancel()
		return struct{}{}, r.storage.WriteDecision(ctx, record)
	}

	_, err := backoff.Retry(context.Background(), operation,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxElapsedTime(r.config.RetryMaxElapsed),
	)
	if err != nil {
		r.dropped.Add(1)
		r.logger.Error("audit record dropped after exhausted retries",
			"record_id", record.ID, "error", err)
		return
	}

	r.logger.Info("deferred audit record written", "record_id", record.ID)
}
