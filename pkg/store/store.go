package store

import (
	"context"
	"errors"
	"fmt"
)

// ErrClosed indicates the store has been closed.
var ErrClosed = errors.New("store is closed")

// Tx provides read/write access to the store within a transaction.
// Writes made through a Tx become visible atomically when the enclosing
// Update call returns successfully.
type Tx interface {
	// Get returns the value for key in bucket, and whether it exists.
	Get(bucket, key string) ([]byte, bool, error)

	// Put sets the value for key in bucket, replacing any prior value.
	Put(bucket, key string, value []byte) error

	// Delete removes key from bucket. Deleting a missing key is not an error.
	Delete(bucket, key string) error

	// List returns all key/value pairs in bucket.
	List(bucket string) (map[string][]byte, error)
}

// Store is a small transactional key-value store. It backs the override
// table and the active-policy record so that generation counters and
// content writes are committed together and survive process restart.
//
// Implementations must be safe for concurrent use. Update transactions
// are serialized (single-writer); View transactions may run concurrently.
type Store interface {
	// View runs fn in a read-only transaction.
	View(ctx context.Context, fn func(Tx) error) error

	// Update runs fn in a read-write transaction. If fn returns an error
	// the transaction is rolled back and no writes are visible.
	Update(ctx context.Context, fn func(Tx) error) error

	// Close releases resources held by the store.
	Close() error
}

// OpError describes a failed store operation.
type OpError struct {
	Backend string
	Op      string
	Cause   error
}

// Error returns the error message.
func (e *OpError) Error() string {
	return fmt.Sprintf("store %s: %s: %v", e.Backend, e.Op, e.Cause)
}

// Unwrap returns the underlying cause.
func (e *OpError) Unwrap() error {
	return e.Cause
}

// NewOpError creates a new OpError.
func NewOpError(backend, op string, cause error) *OpError {
	return &OpError{Backend: backend, Op: op, Cause: cause}
}
