package querycache

import (
	"context"
	"sync"
	"time"
)

// State is what a view renders for one query.
type State struct {
	Data      any
	Loading   bool
	Err       error
	UpdatedAt time.Time
}

// QueryOptions controls one view-level query.
type QueryOptions struct {
	// TTL is the freshness window; zero uses the executor default.
	TTL time.Duration
	// Disabled queries never fetch and never report loading.
	Disabled bool
	// OnChange receives every state transition.
	OnChange func(State)
}

// Query binds one cache key and fetch function to view state: the
// data/loading/error triple plus refetch.
type Query struct {
	exec     *Executor
	key      string
	fetch    FetchFunc
	ttl      time.Duration
	disabled bool
	onChange func(State)

	mu    sync.Mutex
	state State
}

// NewQuery returns a query that starts in the loading state unless disabled.
func NewQuery(exec *Executor, key string, fetch FetchFunc, opts QueryOptions) *Query {
	return &Query{
		exec:     exec,
		key:      key,
		fetch:    fetch,
		ttl:      opts.TTL,
		disabled: opts.Disabled,
		onChange: opts.OnChange,
		state:    State{Loading: !opts.Disabled},
	}
}

// Key returns the cache key the query reads.
func (q *Query) Key() string {
	return q.key
}

// State returns the current view state.
func (q *Query) State() State {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.state
}

// Load reads through the cache.
func (q *Query) Load(ctx context.Context) (any, error) {
	return q.run(ctx, false)
}

// Refetch forces a read, joining a generation already in flight.
func (q *Query) Refetch(ctx context.Context) (any, error) {
	return q.run(ctx, true)
}

func (q *Query) run(ctx context.Context, force bool) (any, error) {
	if q.disabled {
		return nil, nil
	}
	// A fresh hit never flips the view back into loading.
	if force || !q.exec.Fresh(q.key, q.ttl) {
		q.update(func(s *State) {
			s.Loading = true
			s.Err = nil
		})
	}

	value, err := q.exec.Run(ctx, q.key, q.fetch, RunOptions{TTL: q.ttl, Force: force})
	if err != nil {
		q.update(func(s *State) {
			s.Loading = false
			s.Err = err
		})
		return nil, err
	}
	q.update(func(s *State) {
		s.Data = value
		s.Loading = false
		s.Err = nil
		if entry, ok := q.exec.Peek(q.key); ok {
			s.UpdatedAt = entry.StoredAt
		}
	})
	return value, nil
}

func (q *Query) update(mutate func(*State)) {
	q.mu.Lock()
	mutate(&q.state)
	next := q.state
	onChange := q.onChange
	q.mu.Unlock()

	if onChange != nil {
		onChange(next)
	}
}
