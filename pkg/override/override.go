package override

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"mercator-hq/themis/pkg/decision"
	"mercator-hq/themis/pkg/store"
)

const (
	bucketOverrides = "overrides"
	bucketMeta      = "meta"
	keyGeneration   = "override_generation"
)

// Override pins the verdict for one resource key, taking precedence over
// both the decision cache and policy evaluation.
type Override struct {
	// ResourceKey is the normalized resource the override applies to.
	ResourceKey string `json:"resource_key"`

	// Verdict is the pinned outcome.
	Verdict decision.Verdict `json:"decision"`

	// Reason explains why the override exists.
	Reason string `json:"reason"`

	// CreatedBy identifies the administrator who set the override.
	CreatedBy string `json:"created_by,omitempty"`

	// CreatedAt is when the override was set.
	CreatedAt time.Time `json:"created_at"`

	// ExpiresAt, when non-nil, is the instant the override stops applying.
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// active reports whether the override applies at time now.
func (o *Override) active(now time.Time) bool {
	return o.ExpiresAt == nil || now.Before(*o.ExpiresAt)
}

// Store holds admin overrides, persisted together with a monotonically
// increasing generation counter. Every mutation commits the new override set
// and the bumped generation in one transaction, so a generation value always
// corresponds to exactly one override state.
//
// Reads are served from memory and never touch the backing store.
type Store struct {
	backing store.Store
	logger  *slog.Logger

	mu        sync.RWMutex // guards overrides; writers also serialize on it
	overrides map[string]*Override

	generation atomic.Uint64
}

// NewStore creates an override store and loads the persisted override set
// and generation from backing.
func NewStore(ctx context.Context, backing store.Store) (*Store, error) {
	s := &Store{
		backing:   backing,
		logger:    slog.Default().With("component", "override"),
		overrides: make(map[string]*Override),
	}

	err := backing.View(ctx, func(tx store.Tx) error {
		raw, ok, err := tx.Get(bucketMeta, keyGeneration)
		if err != nil {
			return err
		}
		if ok {
			gen, err := strconv.ParseUint(string(raw), 10, 64)
			if err != nil {
				return fmt.Errorf("corrupt override generation %q: %w", raw, err)
			}
			s.generation.Store(gen)
		}

		entries, err := tx.List(bucketOverrides)
		if err != nil {
			return err
		}
		for key, value := range entries {
			var o Override
			if err := json.Unmarshal(value, &o); err != nil {
				return fmt.Errorf("corrupt override record %q: %w", key, err)
			}
			s.overrides[key] = &o
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load overrides: %w", err)
	}

	s.logger.Info("override store loaded",
		"overrides", len(s.overrides),
		"generation", s.generation.Load(),
	)
	return s, nil
}

// Generation returns the current override generation. It is safe to call
// from any goroutine without blocking writers.
func (s *Store) Generation() uint64 {
	return s.generation.Load()
}

// Get returns the active override for resourceKey, if any. Expired
// overrides are reported as absent.
func (s *Store) Get(resourceKey string) (*Override, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	o, ok := s.overrides[resourceKey]
	if !ok || !o.active(time.Now()) {
		return nil, false
	}
	copied := *o
	return &copied, true
}

// Put creates or replaces the override for o.ResourceKey and bumps the
// generation. The override and the new generation are committed atomically.
func (s *Store) Put(ctx context.Context, o *Override) (uint64, error) {
	if o.ResourceKey == "" {
		return 0, &ValidationError{Field: "resource_key", Reason: "must not be empty"}
	}
	if !o.Verdict.Valid() {
		return 0, &ValidationError{Field: "decision", Reason: fmt.Sprintf("unknown verdict %q", o.Verdict)}
	}
	if o.ExpiresAt != nil && !o.ExpiresAt.After(time.Now()) {
		return 0, &ValidationError{Field: "expires_at", Reason: "must be in the future"}
	}
	if o.CreatedAt.IsZero() {
		o.CreatedAt = time.Now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	newGen := s.generation.Load() + 1
	value, err := json.Marshal(o)
	if err != nil {
		return 0, fmt.Errorf("failed to encode override: %w", err)
	}

	err = s.backing.Update(ctx, func(tx store.Tx) error {
		if err := tx.Put(bucketOverrides, o.ResourceKey, value); err != nil {
			return err
		}
		return tx.Put(bucketMeta, keyGeneration, []byte(strconv.FormatUint(newGen, 10)))
	})
	if err != nil {
		return 0, fmt.Errorf("failed to persist override: %w", err)
	}

	copied := *o
	s.overrides[o.ResourceKey] = &copied
	s.generation.Store(newGen)

	s.logger.Info("override set",
		"resource_key", o.ResourceKey,
		"decision", o.Verdict,
		"generation", newGen,
	)
	return newGen, nil
}

// Delete removes the override for resourceKey and bumps the generation.
// Returns *NotFoundError if no override exists for the key.
func (s *Store) Delete(ctx context.Context, resourceKey string) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.overrides[resourceKey]; !ok {
		return 0, &NotFoundError{ResourceKey: resourceKey}
	}

	newGen := s.generation.Load() + 1
	err := s.backing.Update(ctx, func(tx store.Tx) error {
		if err := tx.Delete(bucketOverrides, resourceKey); err != nil {
			return err
		}
		return tx.Put(bucketMeta, keyGeneration, []byte(strconv.FormatUint(newGen, 10)))
	})
	if err != nil {
		return 0, fmt.Errorf("failed to delete override: %w", err)
	}

	delete(s.overrides, resourceKey)
	s.generation.Store(newGen)

	s.logger.Info("override removed", "resource_key", resourceKey, "generation", newGen)
	return newGen, nil
}

// List returns all stored overrides sorted by resource key, including
// expired ones so administrators can see and clean them up.
func (s *Store) List() []*Override {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Override, 0, len(s.overrides))
	for _, o := range s.overrides {
		copied := *o
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ResourceKey < out[j].ResourceKey
	})
	return out
}
