package cache

import (
	"fmt"
	"testing"
	"time"

	"mercator-hq/themis/pkg/decision"
)

func entry(verdict decision.Verdict, policyGen, overrideGen uint64) Entry {
	return Entry{
		Verdict:     verdict,
		Reason:      "test",
		PolicyGen:   policyGen,
		OverrideGen: overrideGen,
		TTL:         time.Minute,
	}
}

func TestCache_HitRequiresMatchingGenerations(t *testing.T) {
	c := New(10)
	fp := decision.Fingerprint("fp-1")
	c.Put(fp, entry(decision.VerdictDeny, 3, 7))

	tests := []struct {
		name        string
		policyGen   uint64
		overrideGen uint64
		wantHit     bool
	}{
		{"matching generations", 3, 7, true},
		{"newer policy generation", 4, 7, false},
		{"newer override generation", 3, 8, false},
		{"both newer", 4, 8, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Re-insert because a stale read removes the entry.
			c.Put(fp, entry(decision.VerdictDeny, 3, 7))

			got, hit := c.Get(fp, tt.policyGen, tt.overrideGen)
			if hit != tt.wantHit {
				t.Fatalf("Get() hit = %v, want %v", hit, tt.wantHit)
			}
			if hit && got.Verdict != decision.VerdictDeny {
				t.Errorf("Get() verdict = %s, want DENY", got.Verdict)
			}
		})
	}
}

func TestCache_TTLExpiry(t *testing.T) {
	c := New(10)
	fp := decision.Fingerprint("fp-ttl")

	e := entry(decision.VerdictAllow, 1, 1)
	e.TTL = 10 * time.Millisecond
	e.InsertedAt = time.Now().Add(-20 * time.Millisecond)
	c.Put(fp, e)

	if _, hit := c.Get(fp, 1, 1); hit {
		t.Error("expired entry should be a miss")
	}
	if c.Len() != 0 {
		t.Errorf("expired entry should be removed, len = %d", c.Len())
	}
}

func TestCache_LRUEviction(t *testing.T) {
	c := New(3)

	for i := 0; i < 3; i++ {
		c.Put(decision.Fingerprint(fmt.Sprintf("fp-%d", i)), entry(decision.VerdictAllow, 1, 1))
	}

	// Touch fp-0 so fp-1 becomes least recently used.
	if _, hit := c.Get(decision.Fingerprint("fp-0"), 1, 1); !hit {
		t.Fatal("fp-0 should be cached")
	}

	c.Put(decision.Fingerprint("fp-3"), entry(decision.VerdictAllow, 1, 1))

	if _, hit := c.Get(decision.Fingerprint("fp-1"), 1, 1); hit {
		t.Error("fp-1 should have been evicted as least recently used")
	}
	if _, hit := c.Get(decision.Fingerprint("fp-0"), 1, 1); !hit {
		t.Error("fp-0 should survive eviction")
	}
	if _, hit := c.Get(decision.Fingerprint("fp-3"), 1, 1); !hit {
		t.Error("fp-3 should be cached")
	}

	_, _, evictions := c.Stats()
	if evictions != 1 {
		t.Errorf("evictions = %d, want 1", evictions)
	}
}

func TestCache_PutIdempotentOrdering(t *testing.T) {
	c := New(10)
	fp := decision.Fingerprint("fp-race")

	// A slow evaluation under generation 2 finishing after a fast one
	// under generation 3 must not clobber the newer entry.
	c.Put(fp, entry(decision.VerdictAllow, 3, 3))
	c.Put(fp, entry(decision.VerdictDeny, 2, 3))

	got, hit := c.Get(fp, 3, 3)
	if !hit {
		t.Fatal("entry under generation 3 should remain")
	}
	if got.Verdict != decision.VerdictAllow {
		t.Errorf("verdict = %s, want ALLOW (older write must not win)", got.Verdict)
	}
}

func TestCache_PutReplacesSameGeneration(t *testing.T) {
	c := New(10)
	fp := decision.Fingerprint("fp-replace")

	c.Put(fp, entry(decision.VerdictAllow, 2, 2))
	c.Put(fp, entry(decision.VerdictDeny, 2, 2))

	got, hit := c.Get(fp, 2, 2)
	if !hit {
		t.Fatal("expected hit")
	}
	if got.Verdict != decision.VerdictDeny {
		t.Errorf("verdict = %s, want DENY (equal generations overwrite)", got.Verdict)
	}
}

func TestCache_Purge(t *testing.T) {
	c := New(10)
	c.Put(decision.Fingerprint("a"), entry(decision.VerdictAllow, 1, 1))
	c.Put(decision.Fingerprint("b"), entry(decision.VerdictDeny, 1, 1))

	c.Purge()

	if c.Len() != 0 {
		t.Errorf("Len() = %d after purge, want 0", c.Len())
	}
}

func TestCache_ConcurrentAccess(t *testing.T) {
	c := New(100)
	done := make(chan struct{})

	for g := 0; g < 8; g++ {
		go func(g int) {
			defer func() { done <- struct{}{} }()
			for i := 0; i < 500; i++ {
				fp := decision.Fingerprint(fmt.Sprintf("fp-%d", i%50))
				c.Put(fp, entry(decision.VerdictAllow, uint64(i%3), 1))
				c.Get(fp, uint64(i%3), 1)
			}
		}(g)
	}

	for g := 0; g < 8; g++ {
		<-done
	}
}
