package querycache

import "sync/atomic"

// Stats is a point-in-time view of executor activity.
type Stats struct {
	// Hits counts reads served from a fresh cache entry.
	Hits uint64
	// Misses counts reads not served from the cache. A miss that finds the
	// entry fresh once it claims the key is reclassified as a hit.
	Misses uint64
	// Joins counts reads that shared another caller's generation.
	Joins uint64
	// Fetches counts fetch function invocations.
	Fetches uint64
	// Failures counts generations that ended in error.
	Failures uint64
}

type counters struct {
	hits     atomic.Uint64
	misses   atomic.Uint64
	joins    atomic.Uint64
	fetches  atomic.Uint64
	failures atomic.Uint64
}

func (c *counters) snapshot() Stats {
	return Stats{
		Hits:     c.hits.Load(),
		Misses:   c.misses.Load(),
		Joins:    c.joins.Load(),
		Fetches:  c.fetches.Load(),
		Failures: c.failures.Load(),
	}
}

// servedFromCache turns an already counted miss into a hit.
func (c *counters) servedFromCache() {
	c.misses.Add(^uint64(0))
	c.hits.Add(1)
}
