package market

import (
	"sync"
	"time"
)

// snapshotCache is a small read-through TTL cache keyed by pair, so a burst
// of callers observing the same trigger instant don't each pay for a fresh
// assembly. It holds at most one entry per pair.
type snapshotCache struct {
	mu      sync.RWMutex
	entries map[Pair]cacheEntry
	ttl     time.Duration
}

type cacheEntry struct {
	snapshot MarketSnapshot
	storedAt time.Time
}

func newSnapshotCache(ttl time.Duration) *snapshotCache {
	return &snapshotCache{entries: make(map[Pair]cacheEntry), ttl: ttl}
}

func (c *snapshotCache) get(pair Pair, now time.Time) (MarketSnapshot, bool) {
	if c.ttl <= 0 {
		return MarketSnapshot{}, false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[pair]
	if !ok || now.Sub(e.storedAt) > c.ttl {
		return MarketSnapshot{}, false
	}
	return e.snapshot, true
}

func (c *snapshotCache) set(pair Pair, snap MarketSnapshot, now time.Time) {
	if c.ttl <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[pair] = cacheEntry{snapshot: snap, storedAt: now}
}
