package querycache

import (
	"sync"
	"time"
)

// Entry is the last known good result for one cache key.
type Entry struct {
	Value      any
	StoredAt   time.Time
	Generation uint64
}

// resultCache stores at most one entry per key. Entries are only ever
// superseded, never evicted; staleness is decided by the reader's TTL.
type resultCache struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

func newResultCache() *resultCache {
	return &resultCache{entries: make(map[string]Entry)}
}

// get returns the entry for key regardless of age.
func (c *resultCache) get(key string) (Entry, bool) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()
	return entry, ok
}

// getFresh returns the entry for key when its age is below ttl.
func (c *resultCache) getFresh(key string, ttl time.Duration, now time.Time) (Entry, bool) {
	entry, ok := c.get(key)
	if !ok {
		return Entry{}, false
	}
	age := now.Sub(entry.StoredAt)
	if age < 0 || age >= ttl {
		return Entry{}, false
	}
	return entry, true
}

// set replaces the entry for key.
func (c *resultCache) set(key string, entry Entry) {
	c.mu.Lock()
	c.entries[key] = entry
	c.mu.Unlock()
}
