package engine

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"mercator-hq/themis/pkg/audit"
	"mercator-hq/themis/pkg/config"
	"mercator-hq/themis/pkg/decision"
	"mercator-hq/themis/pkg/decision/cache"
	"mercator-hq/themis/pkg/evaluator"
	"mercator-hq/themis/pkg/override"
	"mercator-hq/themis/pkg/policy"
	"mercator-hq/themis/pkg/resolver"
	"mercator-hq/themis/pkg/store"
	"mercator-hq/themis/pkg/telemetry/metrics"
)

type stubEvaluator struct {
	mu      sync.Mutex
	calls   int
	verdict decision.Verdict
	reason  string
	risk    int
	err     error
}

func (s *stubEvaluator) Evaluate(_ context.Context, _ *decision.Context) (*evaluator.Evaluation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return &evaluator.Evaluation{Verdict: s.verdict, Reason: s.reason, RiskScore: s.risk}, nil
}

func (s *stubEvaluator) Reload(_ context.Context, _ string, _ []byte) error { return nil }

func (s *stubEvaluator) Healthy(_ context.Context) error { return nil }

func (s *stubEvaluator) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type memAuditStorage struct {
	mu      sync.Mutex
	records []*audit.DecisionRecord
	fail    bool
}

func (m *memAuditStorage) WriteDecision(_ context.Context, record *audit.DecisionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return errors.New("sink down")
	}
	m.records = append(m.records, record)
	return nil
}

func (m *memAuditStorage) WriteEvent(_ context.Context, _ *audit.AdminEvent) error { return nil }

func (m *memAuditStorage) RecentDecisions(_ context.Context, _ int) ([]*audit.DecisionRecord, error) {
	return nil, nil
}

func (m *memAuditStorage) Violations(_ context.Context, _ int) ([]*audit.DecisionRecord, error) {
	return nil, nil
}

func (m *memAuditStorage) Summarize(_ context.Context, _ time.Time) (*audit.Summary, error) {
	return &audit.Summary{}, nil
}

func (m *memAuditStorage) Prune(_ context.Context, _ time.Time) (int64, error) { return 0, nil }

func (m *memAuditStorage) Close() error { return nil }

func (m *memAuditStorage) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}

func (m *memAuditStorage) last() *audit.DecisionRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.records) == 0 {
		return nil
	}
	return m.records[len(m.records)-1]
}

type harness struct {
	engine    *Engine
	eval      *stubEvaluator
	overrides *override.Store
	policies  *policy.Manager
	sink      *memAuditStorage
	recorder  *audit.Recorder
}

func newHarness(t *testing.T, fallback config.FallbackMode) *harness {
	t.Helper()

	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "standard.rego"), []byte("package governance\n"), 0o644); err != nil {
		t.Fatalf("failed to write definition: %v", err)
	}

	backing := store.NewMemoryStore()
	eval := &stubEvaluator{verdict: decision.VerdictAllow, reason: "policy allows", risk: 10}

	policies, err := policy.NewManager(context.Background(), backing, eval, dir, "standard")
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}

	overrides, err := override.NewStore(context.Background(), backing)
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}

	sink := &memAuditStorage{}
	recorder := audit.NewRecorder(sink, &audit.RecorderConfig{
		AsyncBuffer:     10,
		WriteTimeout:    100 * time.Millisecond,
		RetryMaxElapsed: time.Second,
	})
	t.Cleanup(recorder.Close)

	collector := metrics.NewCollector(&config.MetricsConfig{Enabled: true}, prometheus.NewRegistry())

	e := New(
		resolver.New(nil, resolver.NewPatternClassifier()),
		overrides,
		policies,
		cache.New(100),
		eval,
		recorder,
		collector,
		Config{FallbackMode: fallback, CacheTTL: time.Minute},
	)

	return &harness{engine: e, eval: eval, overrides: overrides, policies: policies, sink: sink, recorder: recorder}
}

func request() *decision.Request {
	return &decision.Request{
		User:     decision.User{ID: "u-1", Email: "u1@corp.com", Department: "eng"},
		Resource: decision.Resource{URL: "https://character.ai/chat"},
		Source:   "browser_plugin",
	}
}

func TestEngine_EvaluateThenCache(t *testing.T) {
	h := newHarness(t, config.FallbackClosed)
	ctx := context.Background()

	first, err := h.engine.Decide(ctx, request())
	if err != nil {
		t.Fatalf("Decide() error = %v", err)
	}
	if first.Verdict != decision.VerdictAllow || first.Cached {
		t.Errorf("first = %+v, want fresh ALLOW", first)
	}

	second, err := h.engine.Decide(ctx, request())
	if err != nil {
		t.Fatalf("second Decide() error = %v", err)
	}
	if !second.Cached {
		t.Error("identical request should be served from cache")
	}
	if h.eval.callCount() != 1 {
		t.Errorf("evaluator calls = %d, want 1", h.eval.callCount())
	}
	if h.sink.count() != 2 {
		t.Errorf("audit records = %d, want 2 (cached decisions are audited too)", h.sink.count())
	}
}

func TestEngine_OverrideShortCircuits(t *testing.T) {
	h := newHarness(t, config.FallbackClosed)
	ctx := context.Background()

	if _, err := h.overrides.Put(ctx, &override.Override{
		ResourceKey: "character.ai",
		Verdict:     decision.VerdictDeny,
		Reason:      "incident 42",
	}); err != nil {
		t.Fatalf("override Put() error = %v", err)
	}

	result, err := h.engine.Decide(ctx, request())
	if err != nil {
		t.Fatalf("Decide() error = %v", err)
	}
	if result.Verdict != decision.VerdictDeny || !result.Overridden {
		t.Errorf("result = %+v, want overridden DENY", result)
	}
	if h.eval.callCount() != 0 {
		t.Error("override must skip evaluation entirely")
	}

	record := h.sink.last()
	if record == nil || !record.Overridden {
		t.Errorf("audit record = %+v, want overridden", record)
	}
}

func TestEngine_OverridePrecedesCache(t *testing.T) {
	h := newHarness(t, config.FallbackClosed)
	ctx := context.Background()

	// Warm the cache with an ALLOW.
	if _, err := h.engine.Decide(ctx, request()); err != nil {
		t.Fatalf("Decide() error = %v", err)
	}

	if _, err := h.overrides.Put(ctx, &override.Override{
		ResourceKey: "character.ai",
		Verdict:     decision.VerdictDeny,
	}); err != nil {
		t.Fatalf("override Put() error = %v", err)
	}

	result, err := h.engine.Decide(ctx, request())
	if err != nil {
		t.Fatalf("Decide() error = %v", err)
	}
	if result.Verdict != decision.VerdictDeny || !result.Overridden || result.Cached {
		t.Errorf("result = %+v, want override to win over warm cache", result)
	}
}

func TestEngine_PolicyActivationInvalidatesCache(t *testing.T) {
	h := newHarness(t, config.FallbackClosed)
	ctx := context.Background()

	if _, err := h.engine.Decide(ctx, request()); err != nil {
		t.Fatalf("Decide() error = %v", err)
	}
	if h.eval.callCount() != 1 {
		t.Fatalf("evaluator calls = %d, want 1", h.eval.callCount())
	}

	// Reactivation bumps the policy generation.
	if _, err := h.policies.Activate(ctx, "standard", "admin"); err != nil {
		t.Fatalf("Activate() error = %v", err)
	}

	result, err := h.engine.Decide(ctx, request())
	if err != nil {
		t.Fatalf("Decide() error = %v", err)
	}
	if result.Cached {
		t.Error("cache entry from the previous generation must not be served")
	}
	if h.eval.callCount() != 2 {
		t.Errorf("evaluator calls = %d, want 2 (re-evaluation)", h.eval.callCount())
	}
}

func TestEngine_OverrideRemovalInvalidatesCache(t *testing.T) {
	h := newHarness(t, config.FallbackClosed)
	ctx := context.Background()

	if _, err := h.overrides.Put(ctx, &override.Override{
		ResourceKey: "chatgpt", Verdict: decision.VerdictDeny,
	}); err != nil {
		t.Fatalf("override Put() error = %v", err)
	}

	if _, err := h.engine.Decide(ctx, request()); err != nil {
		t.Fatalf("Decide() error = %v", err)
	}

	// Removing an unrelated override still bumps the generation, so the
	// cached entry is stale.
	if _, err := h.overrides.Delete(ctx, "chatgpt"); err != nil {
		t.Fatalf("override Delete() error = %v", err)
	}

	result, err := h.engine.Decide(ctx, request())
	if err != nil {
		t.Fatalf("Decide() error = %v", err)
	}
	if result.Cached {
		t.Error("cache entry from the previous override generation must not be served")
	}
}

func TestEngine_EvaluatorUnavailableFallback(t *testing.T) {
	tests := []struct {
		name    string
		mode    config.FallbackMode
		verdict decision.Verdict
	}{
		{"fail closed", config.FallbackClosed, decision.VerdictDeny},
		{"fail open", config.FallbackOpen, decision.VerdictAllow},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, tt.mode)
			h.eval.err = &evaluator.UnavailableError{Endpoint: "http://opa", Cause: errors.New("refused")}

			result, err := h.engine.Decide(context.Background(), request())
			if err != nil {
				t.Fatalf("Decide() error = %v", err)
			}
			if result.Verdict != tt.verdict {
				t.Errorf("verdict = %s, want %s", result.Verdict, tt.verdict)
			}
			if !result.Degraded {
				t.Error("fallback decision must be marked degraded")
			}

			// Fallback verdicts must not poison the cache.
			h.eval.err = nil
			followup, err := h.engine.Decide(context.Background(), request())
			if err != nil {
				t.Fatalf("followup Decide() error = %v", err)
			}
			if followup.Cached {
				t.Error("fallback verdict must not be served from cache")
			}
		})
	}
}

func TestEngine_ReviewNotCached(t *testing.T) {
	h := newHarness(t, config.FallbackClosed)
	h.eval.verdict = decision.VerdictReview
	h.eval.reason = "needs human approval"
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		result, err := h.engine.Decide(ctx, request())
		if err != nil {
			t.Fatalf("Decide() error = %v", err)
		}
		if result.Verdict != decision.VerdictReview || result.Cached {
			t.Errorf("result = %+v, want fresh REVIEW", result)
		}
	}
	if h.eval.callCount() != 2 {
		t.Errorf("evaluator calls = %d, want 2 (REVIEW is never cached)", h.eval.callCount())
	}
}

func TestEngine_AuditSinkDownMarksPending(t *testing.T) {
	h := newHarness(t, config.FallbackClosed)
	h.sink.fail = true

	result, err := h.engine.Decide(context.Background(), request())
	if err != nil {
		t.Fatalf("Decide() error = %v (decision must survive audit failure)", err)
	}
	if result.Verdict != decision.VerdictAllow {
		t.Errorf("verdict = %s, want ALLOW", result.Verdict)
	}
	if !result.AuditPending {
		t.Error("result should be marked audit-pending")
	}
}

func TestEngine_EveryPathAudited(t *testing.T) {
	h := newHarness(t, config.FallbackClosed)
	ctx := context.Background()

	// Evaluated.
	if _, err := h.engine.Decide(ctx, request()); err != nil {
		t.Fatalf("Decide() error = %v", err)
	}
	// Cached.
	if _, err := h.engine.Decide(ctx, request()); err != nil {
		t.Fatalf("Decide() error = %v", err)
	}
	// Override.
	if _, err := h.overrides.Put(ctx, &override.Override{
		ResourceKey: "character.ai", Verdict: decision.VerdictDeny,
	}); err != nil {
		t.Fatalf("override Put() error = %v", err)
	}
	if _, err := h.engine.Decide(ctx, request()); err != nil {
		t.Fatalf("Decide() error = %v", err)
	}
	// Fallback.
	if _, err := h.overrides.Delete(ctx, "character.ai"); err != nil {
		t.Fatalf("override Delete() error = %v", err)
	}
	h.eval.err = &evaluator.UnavailableError{Endpoint: "http://opa", Cause: errors.New("refused")}
	if _, err := h.engine.Decide(ctx, request()); err != nil {
		t.Fatalf("Decide() error = %v", err)
	}

	if h.sink.count() != 4 {
		t.Errorf("audit records = %d, want 4 (one per decision path)", h.sink.count())
	}
}

func TestEngine_DegradedClassificationNotCached(t *testing.T) {
	h := newHarness(t, config.FallbackClosed)
	ctx := context.Background()

	failing := resolver.New(nil, failingClassifier{})
	h.engine.resolver = failing

	req := request()
	req.Content = "some content"

	result, err := h.engine.Decide(ctx, req)
	if err != nil {
		t.Fatalf("Decide() error = %v", err)
	}
	if !result.Degraded {
		t.Error("degraded classification should mark the result degraded")
	}

	// A degraded context has an empty findings summary, which collides
	// with a genuinely clean request; it must not warm the cache.
	if _, err := h.engine.Decide(ctx, req); err != nil {
		t.Fatalf("Decide() error = %v", err)
	}
	if h.eval.callCount() != 2 {
		t.Errorf("evaluator calls = %d, want 2 (degraded results not cached)", h.eval.callCount())
	}
}

type failingClassifier struct{}

func (failingClassifier) Classify(_ context.Context, _ string) ([]decision.Finding, error) {
	return nil, errors.New("classifier down")
}
