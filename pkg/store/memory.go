package store

import (
	"context"
	"fmt"
	"sync"
)

// MemoryStore implements Store with in-memory maps. It provides the same
// transactional semantics as the SQLite backend (copy-on-write commit) but
// no durability; it is intended for tests and ephemeral deployments.
type MemoryStore struct {
	mu      sync.RWMutex
	buckets map[string]map[string][]byte
	closed  bool
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		buckets: make(map[string]map[string][]byte),
	}
}

// View runs fn against a read-only snapshot view of the store.
func (s *MemoryStore) View(ctx context.Context, fn func(Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}

	return fn(&memoryTx{store: s, readOnly: true})
}

// Update runs fn with writes staged in an overlay; the overlay is applied
// atomically under the write lock only if fn succeeds.
func (s *MemoryStore) Update(ctx context.Context, fn func(Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	tx := &memoryTx{
		store:   s,
		writes:  make(map[string]map[string][]byte),
		deletes: make(map[string]map[string]bool),
	}

	if err := fn(tx); err != nil {
		return err
	}

	// Commit the overlay.
	for bucket, keys := range tx.deletes {
		for key := range keys {
			delete(s.buckets[bucket], key)
		}
	}
	for bucket, kvs := range tx.writes {
		if s.buckets[bucket] == nil {
			s.buckets[bucket] = make(map[string][]byte)
		}
		for key, value := range kvs {
			s.buckets[bucket][key] = value
		}
	}

	return nil
}

// Close marks the store closed. Subsequent transactions fail with ErrClosed.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// memoryTx overlays staged writes on the store's committed state.
type memoryTx struct {
	store    *MemoryStore
	readOnly bool
	writes   map[string]map[string][]byte
	deletes  map[string]map[string]bool
}

func (t *memoryTx) Get(bucket, key string) ([]byte, bool, error) {
	if t.deletes[bucket][key] {
		return nil, false, nil
	}
	if value, ok := t.writes[bucket][key]; ok {
		return cloneBytes(value), true, nil
	}
	value, ok := t.store.buckets[bucket][key]
	if !ok {
		return nil, false, nil
	}
	return cloneBytes(value), true, nil
}

func (t *memoryTx) Put(bucket, key string, value []byte) error {
	if t.readOnly {
		return fmt.Errorf("put %s/%s: read-only transaction", bucket, key)
	}
	if t.writes[bucket] == nil {
		t.writes[bucket] = make(map[string][]byte)
	}
	t.writes[bucket][key] = cloneBytes(value)
	delete(t.deletes[bucket], key)
	return nil
}

func (t *memoryTx) Delete(bucket, key string) error {
	if t.readOnly {
		return fmt.Errorf("delete %s/%s: read-only transaction", bucket, key)
	}
	if t.deletes[bucket] == nil {
		t.deletes[bucket] = make(map[string]bool)
	}
	t.deletes[bucket][key] = true
	if t.writes[bucket] != nil {
		delete(t.writes[bucket], key)
	}
	return nil
}

func (t *memoryTx) List(bucket string) (map[string][]byte, error) {
	out := make(map[string][]byte)
	for key, value := range t.store.buckets[bucket] {
		if t.deletes[bucket][key] {
			continue
		}
		out[key] = cloneBytes(value)
	}
	for key, value := range t.writes[bucket] {
		out[key] = cloneBytes(value)
	}
	return out, nil
}

func cloneBytes(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
