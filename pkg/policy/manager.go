package policy

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"mercator-hq/themis/pkg/evaluator"
	"mercator-hq/themis/pkg/store"
)

const (
	bucketPolicy  = "policy"
	bucketHistory = "policy_history"
	keyActive     = "active"
)

// Manager tracks the currently active policy definition. Activation is
// atomic: a concurrent Current() reader sees either the full previous record
// or the full new one, never a torn state, and the system always has a
// current policy.
type Manager struct {
	backing store.Store
	eval    evaluator.Evaluator
	logger  *slog.Logger

	// mu serializes activations and definition reloads.
	mu      sync.Mutex
	defs    map[string]*Definition
	defsDir string

	current atomic.Pointer[ActivePolicy]
}

// NewManager loads the policy definitions from defsDir and recovers the
// persisted active-policy record. The recovered definition is loaded into
// the evaluator before NewManager returns, so the service never serves
// decision traffic under an unknown policy. When no record exists,
// defaultID is activated; if defaultID is empty, NewManager fails with
// ErrNoActivePolicy.
func NewManager(ctx context.Context, backing store.Store, eval evaluator.Evaluator, defsDir, defaultID string) (*Manager, error) {
	defs, err := LoadDefinitions(defsDir)
	if err != nil {
		return nil, err
	}

	m := &Manager{
		backing: backing,
		eval:    eval,
		logger:  slog.Default().With("component", "policy"),
		defs:    defs,
		defsDir: defsDir,
	}

	record, err := m.loadActiveRecord(ctx)
	if err != nil {
		return nil, err
	}

	if record == nil {
		if defaultID == "" {
			return nil, ErrNoActivePolicy
		}
		m.logger.Info("no persisted active policy, activating default", "policy_id", defaultID)
		if _, err := m.Activate(ctx, defaultID, "system"); err != nil {
			return nil, err
		}
		return m, nil
	}

	def, ok := defs[record.PolicyID]
	if !ok {
		return nil, fmt.Errorf("active policy %q has no definition in %s", record.PolicyID, defsDir)
	}
	if hashContent(def.Content) != record.ContentHash {
		m.logger.Warn("active policy definition changed on disk since activation",
			"policy_id", record.PolicyID,
			"activated_hash", record.ContentHash,
		)
	}
	if err := eval.Reload(ctx, def.ID, def.Content); err != nil {
		return nil, fmt.Errorf("failed to restore active policy %q into evaluator: %w", record.PolicyID, err)
	}

	m.current.Store(record)
	m.logger.Info("active policy restored",
		"policy_id", record.PolicyID,
		"generation", record.Generation,
	)
	return m, nil
}

func (m *Manager) loadActiveRecord(ctx context.Context) (*ActivePolicy, error) {
	var record *ActivePolicy
	err := m.backing.View(ctx, func(tx store.Tx) error {
		raw, ok, err := tx.Get(bucketPolicy, keyActive)
		if err != nil || !ok {
			return err
		}
		record = &ActivePolicy{}
		if err := json.Unmarshal(raw, record); err != nil {
			return fmt.Errorf("corrupt active policy record: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load active policy: %w", err)
	}
	return record, nil
}

// Activate makes policyID the current policy. The definition is pushed to
// the evaluator first, which also serves as syntactic validation, then the
// new record and history entry are committed in one transaction, then the
// current pointer is swapped. A rejected definition fails with
// *InvalidPolicyError and leaves the previous policy active.
func (m *Manager) Activate(ctx context.Context, policyID, actor string) (*ActivePolicy, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	def, ok := m.defs[policyID]
	if !ok {
		return nil, &InvalidPolicyError{PolicyID: policyID, Reason: "unknown definition"}
	}
	if len(bytes.TrimSpace(def.Content)) == 0 {
		return nil, &InvalidPolicyError{PolicyID: policyID, Reason: "empty definition"}
	}

	prev := m.current.Load()

	if err := m.eval.Reload(ctx, def.ID, def.Content); err != nil {
		var rejected *evaluator.RejectedError
		if errors.As(err, &rejected) {
			return nil, &InvalidPolicyError{PolicyID: policyID, Reason: "rejected by evaluator", Cause: err}
		}
		return nil, &ActivationError{PolicyID: policyID, Cause: err}
	}

	record := &ActivePolicy{
		PolicyID:    policyID,
		ContentHash: hashContent(def.Content),
		ActivatedAt: time.Now(),
		ActivatedBy: actor,
		Generation:  1,
	}
	if prev != nil {
		record.Generation = prev.Generation + 1
	}

	value, err := json.Marshal(record)
	if err != nil {
		return nil, &ActivationError{PolicyID: policyID, Cause: err}
	}

	err = m.backing.Update(ctx, func(tx store.Tx) error {
		if err := tx.Put(bucketPolicy, keyActive, value); err != nil {
			return err
		}
		return tx.Put(bucketHistory, fmt.Sprintf("%020d", record.Generation), value)
	})
	if err != nil {
		// The evaluator already holds the new definition. Restore the
		// previous one so the persisted record and the evaluator agree.
		if prev != nil {
			if prevDef, ok := m.defs[prev.PolicyID]; ok {
				if rerr := m.eval.Reload(ctx, prevDef.ID, prevDef.Content); rerr != nil {
					m.logger.Error("failed to restore previous policy after persistence failure",
						"policy_id", prev.PolicyID, "error", rerr)
				}
			}
		}
		return nil, &ActivationError{PolicyID: policyID, Cause: err}
	}

	m.current.Store(record)
	m.logger.Info("policy activated",
		"policy_id", policyID,
		"generation", record.Generation,
		"activated_by", actor,
	)

	copied := *record
	return &copied, nil
}

// Current returns the active policy record. Safe for concurrent use and
// never blocks activations.
func (m *Manager) Current() *ActivePolicy {
	record := m.current.Load()
	if record == nil {
		return nil
	}
	copied := *record
	return &copied
}

// Generation returns the current policy generation.
func (m *Manager) Generation() uint64 {
	if record := m.current.Load(); record != nil {
		return record.Generation
	}
	return 0
}

// History returns all activation records in activation order.
func (m *Manager) History(ctx context.Context) ([]*ActivePolicy, error) {
	var records []*ActivePolicy
	err := m.backing.View(ctx, func(tx store.Tx) error {
		entries, err := tx.List(bucketHistory)
		if err != nil {
			return err
		}
		for key, value := range entries {
			record := &ActivePolicy{}
			if err := json.Unmarshal(value, record); err != nil {
				return fmt.Errorf("corrupt history record %q: %w", key, err)
			}
			records = append(records, record)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load policy history: %w", err)
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].Generation < records[j].Generation
	})
	return records, nil
}

// Definitions returns the loadable definitions sorted by ID.
func (m *Manager) Definitions() []*Definition {
	m.mu.Lock()
	defer m.mu.Unlock()
	return SortedDefinitions(m.defs)
}

// ReloadDefinitions re-reads the definitions directory. The active policy
// is unaffected; a changed active definition takes effect only through a
// new activation.
func (m *Manager) ReloadDefinitions() error {
	defs, err := LoadDefinitions(m.defsDir)
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.defs = defs
	m.mu.Unlock()

	if record := m.current.Load(); record != nil {
		if def, ok := defs[record.PolicyID]; ok {
			if hashContent(def.Content) != record.ContentHash {
				m.logger.Warn("active policy definition changed on disk, reactivate to apply",
					"policy_id", record.PolicyID)
			}
		} else {
			m.logger.Warn("active policy definition removed from disk",
				"policy_id", record.PolicyID)
		}
	}
	return nil
}
