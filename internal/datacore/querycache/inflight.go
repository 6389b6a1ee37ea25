package querycache

import (
	"context"
	"sync"

	"golang.org/x/sync/singleflight"
)

// inflightRegistry deduplicates concurrent generations per key. singleflight
// makes the claim atomic; the generation counters are kept beside it so
// callers can tell generations apart.
type inflightRegistry struct {
	group singleflight.Group

	mu          sync.Mutex
	generations map[string]uint64
	active      map[string]uint64
}

func newInflightRegistry() *inflightRegistry {
	return &inflightRegistry{
		generations: make(map[string]uint64),
		active:      make(map[string]uint64),
	}
}

// begin allocates the next generation label for key and marks it active.
func (r *inflightRegistry) begin(key string) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.generations[key]++
	gen := r.generations[key]
	r.active[key] = gen
	return gen
}

// end clears the active marker when gen still owns key.
func (r *inflightRegistry) end(key string, gen uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active[key] == gen {
		delete(r.active, key)
	}
}

// inFlight reports whether a generation is running for key.
func (r *inflightRegistry) inFlight(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.active[key]
	return ok
}

// flightResult is what every caller joined on one generation receives.
type flightResult struct {
	value      any
	generation uint64
}

// join starts fn under key unless a generation is already running, in which
// case the caller shares that generation's outcome. joined reports the
// latter. The wait honours ctx; the generation itself does not.
func (r *inflightRegistry) join(ctx context.Context, key string, fn func() (flightResult, error)) (result flightResult, joined bool, err error) {
	started := false
	ch := r.group.DoChan(key, func() (any, error) {
		started = true
		return fn()
	})
	select {
	case res := <-ch:
		result, _ = res.Val.(flightResult)
		return result, !started, res.Err
	case <-ctx.Done():
		return flightResult{}, false, ctx.Err()
	}
}
