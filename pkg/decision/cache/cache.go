package cache

import (
	"container/list"
	"sync"
	"time"

	"mercator-hq/themis/pkg/decision"
)

// Entry is a cached verdict tagged with the policy and override generations
// current at evaluation time.
type Entry struct {
	Verdict     decision.Verdict
	Reason      string
	RiskScore   int
	PolicyGen   uint64
	OverrideGen uint64
	InsertedAt  time.Time
	TTL         time.Duration
}

// expired reports whether the entry has outlived its TTL at time now.
func (e *Entry) expired(now time.Time) bool {
	return now.Sub(e.InsertedAt) > e.TTL
}

// Cache maps decision fingerprints to recent verdicts.
//
// An entry is served only when its stored generations equal the current
// policy and override generations and its TTL has not elapsed; anything
// else is a miss. The cache is advisory: losing entries never changes
// correctness, only latency.
//
// Size is bounded: beyond the configured capacity, the least-recently-used
// entry is evicted (last-access order, insertion order breaking ties, which
// list.MoveToFront provides naturally).
type Cache struct {
	mu      sync.Mutex
	entries map[decision.Fingerprint]*list.Element
	order   *list.List // front = most recently used
	max     int

	hits      uint64
	misses    uint64
	evictions uint64
}

type cacheItem struct {
	fp    decision.Fingerprint
	entry Entry
}

// New creates a cache bounded to maxEntries.
func New(maxEntries int) *Cache {
	if maxEntries <= 0 {
		maxEntries = 1
	}
	return &Cache{
		entries: make(map[decision.Fingerprint]*list.Element),
		order:   list.New(),
		max:     maxEntries,
	}
}

// Get returns the cached entry for fp if it is valid under the given
// generations and not expired. Stale or expired entries are removed and
// reported as a miss.
func (c *Cache) Get(fp decision.Fingerprint, policyGen, overrideGen uint64) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.entries[fp]
	if !ok {
		c.misses++
		return Entry{}, false
	}

	item := elem.Value.(*cacheItem)
	if item.entry.PolicyGen != policyGen ||
		item.entry.OverrideGen != overrideGen ||
		item.entry.expired(time.Now()) {
		c.removeLocked(elem)
		c.misses++
		return Entry{}, false
	}

	c.order.MoveToFront(elem)
	c.hits++
	return item.entry, true
}

// Put inserts or replaces the entry for fp.
//
// The write is idempotent with respect to concurrent evaluations: an
// existing entry is only overwritten by one carrying generation numbers
// greater than or equal to the stored ones, so the final stored entry is
// always an internally consistent (verdict, generation) pair regardless of
// write order.
func (c *Cache) Put(fp decision.Fingerprint, entry Entry) {
	if entry.InsertedAt.IsZero() {
		entry.InsertedAt = time.Now()
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.entries[fp]; ok {
		item := elem.Value.(*cacheItem)
		if entry.PolicyGen < item.entry.PolicyGen ||
			entry.OverrideGen < item.entry.OverrideGen {
			return
		}
		item.entry = entry
		c.order.MoveToFront(elem)
		return
	}

	for c.order.Len() >= c.max {
		oldest := c.order.Back()
		if oldest == nil {
			break
		}
		c.removeLocked(oldest)
		c.evictions++
	}

	elem := c.order.PushFront(&cacheItem{fp: fp, entry: entry})
	c.entries[fp] = elem
}

// Len returns the current number of entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Purge removes all entries.
func (c *Cache) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[decision.Fingerprint]*list.Element)
	c.order.Init()
}

// Stats returns cumulative hit, miss, and eviction counts.
func (c *Cache) Stats() (hits, misses, evictions uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses, c.evictions
}

func (c *Cache) removeLocked(elem *list.Element) {
	item := elem.Value.(*cacheItem)
	delete(c.entries, item.fp)
	c.order.Remove(elem)
}
