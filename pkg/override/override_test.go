package override

import (
	"context"
	"errors"
	"testing"
	"time"

	"mercator-hq/themis/pkg/decision"
	"mercator-hq/themis/pkg/store"
)

func newTestStore(t *testing.T) (*Store, store.Store) {
	t.Helper()
	backing := store.NewMemoryStore()
	s, err := NewStore(context.Background(), backing)
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	return s, backing
}

func TestStore_PutGetDelete(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	gen, err := s.Put(ctx, &Override{
		ResourceKey: "character.ai",
		Verdict:     decision.VerdictDeny,
		Reason:      "blocked pending security review",
		CreatedBy:   "admin@corp.com",
	})
	if err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if gen != 1 {
		t.Errorf("generation = %d, want 1", gen)
	}

	got, ok := s.Get("character.ai")
	if !ok {
		t.Fatal("Get() should find the override")
	}
	if got.Verdict != decision.VerdictDeny {
		t.Errorf("verdict = %s, want DENY", got.Verdict)
	}

	gen, err = s.Delete(ctx, "character.ai")
	if err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if gen != 2 {
		t.Errorf("generation after delete = %d, want 2", gen)
	}
	if _, ok := s.Get("character.ai"); ok {
		t.Error("override should be gone after delete")
	}
}

func TestStore_DeleteMissing(t *testing.T) {
	s, _ := newTestStore(t)

	_, err := s.Delete(context.Background(), "nothing")
	var notFound *NotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("error = %v, want *NotFoundError", err)
	}
}

func TestStore_Validation(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	past := time.Now().Add(-time.Hour)

	tests := []struct {
		name string
		o    *Override
	}{
		{"empty resource key", &Override{Verdict: decision.VerdictDeny}},
		{"invalid verdict", &Override{ResourceKey: "x", Verdict: "MAYBE"}},
		{"expiry in the past", &Override{ResourceKey: "x", Verdict: decision.VerdictDeny, ExpiresAt: &past}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Put(ctx, tt.o)
			var vErr *ValidationError
			if !errors.As(err, &vErr) {
				t.Errorf("error = %v, want *ValidationError", err)
			}
		})
	}
}

func TestStore_ExpiredOverrideInactive(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	soon := time.Now().Add(30 * time.Millisecond)
	if _, err := s.Put(ctx, &Override{
		ResourceKey: "chatgpt",
		Verdict:     decision.VerdictAllow,
		ExpiresAt:   &soon,
	}); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	if _, ok := s.Get("chatgpt"); !ok {
		t.Fatal("override should be active before expiry")
	}

	time.Sleep(50 * time.Millisecond)

	if _, ok := s.Get("chatgpt"); ok {
		t.Error("expired override should not apply")
	}
	if len(s.List()) != 1 {
		t.Error("expired override should still be listed for cleanup")
	}
}

func TestStore_GenerationMonotonic(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	var last uint64
	for i, key := range []string{"a", "b", "c"} {
		gen, err := s.Put(ctx, &Override{ResourceKey: key, Verdict: decision.VerdictDeny})
		if err != nil {
			t.Fatalf("Put(%d) error = %v", i, err)
		}
		if gen <= last {
			t.Errorf("generation %d not greater than previous %d", gen, last)
		}
		last = gen
	}
	if s.Generation() != last {
		t.Errorf("Generation() = %d, want %d", s.Generation(), last)
	}
}

func TestStore_ReloadFromBacking(t *testing.T) {
	s, backing := newTestStore(t)
	ctx := context.Background()

	if _, err := s.Put(ctx, &Override{
		ResourceKey: "character.ai",
		Verdict:     decision.VerdictDeny,
		Reason:      "incident 42",
	}); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if _, err := s.Put(ctx, &Override{
		ResourceKey: "midjourney",
		Verdict:     decision.VerdictReview,
	}); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	reloaded, err := NewStore(ctx, backing)
	if err != nil {
		t.Fatalf("NewStore() after restart error = %v", err)
	}

	if reloaded.Generation() != 2 {
		t.Errorf("reloaded generation = %d, want 2", reloaded.Generation())
	}
	got, ok := reloaded.Get("character.ai")
	if !ok || got.Reason != "incident 42" {
		t.Errorf("reloaded override = %+v, want incident 42 record", got)
	}
	if len(reloaded.List()) != 2 {
		t.Errorf("reloaded List() = %d entries, want 2", len(reloaded.List()))
	}
}
