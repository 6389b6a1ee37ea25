package bookings

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/louisbranch/cargo.space/internal/datacore/querycache"
	"github.com/louisbranch/cargo.space/internal/datacore/realtime"
	"github.com/louisbranch/cargo.space/internal/integration/remote"
)

// DataSource runs backend queries. remote.Client implements it.
type DataSource interface {
	Execute(ctx context.Context, q remote.Query) (remote.Result, error)
}

// Deps are the process-wide collaborators shared by every view.
type Deps struct {
	Data     DataSource
	Executor *querycache.Executor
	Realtime *realtime.Multiplexer
	// QueryTTL overrides the executor default for view queries.
	QueryTTL time.Duration
	// Debounce is the realtime quiet period for channels a view opens.
	Debounce time.Duration
	Logf     func(format string, args ...any)
}

func (d Deps) validate() error {
	switch {
	case d.Data == nil:
		return errors.New("data source is required")
	case d.Executor == nil:
		return errors.New("query executor is required")
	case d.Realtime == nil:
		return errors.New("realtime multiplexer is required")
	}
	return nil
}

func (d Deps) logf() func(string, ...any) {
	if d.Logf != nil {
		return d.Logf
	}
	return log.Printf
}

func (d Deps) rows(q remote.Query) querycache.FetchFunc {
	return func(ctx context.Context) (any, error) {
		result, err := d.Data.Execute(ctx, q)
		if err != nil {
			return nil, err
		}
		return bookingsFromRows(result.Rows), nil
	}
}

// liveQuery is a cached query refetched whenever its realtime topic
// invalidates. Refetches run on a view-owned context so Close stops them.
type liveQuery struct {
	query  *querycache.Query
	cancel func()
	ctx    context.Context
	stop   context.CancelFunc
	logf   func(string, ...any)

	mu      sync.Mutex
	closed  bool
	pending sync.WaitGroup
}

func newLiveQuery(ctx context.Context, deps Deps, key string, fetch querycache.FetchFunc, topic realtime.Topic, disabled bool, onChange func(querycache.State)) (*liveQuery, error) {
	viewCtx, stop := context.WithCancel(context.WithoutCancel(ctx))
	lq := &liveQuery{
		ctx:  viewCtx,
		stop: stop,
		logf: deps.logf(),
	}
	lq.query = querycache.NewQuery(deps.Executor, key, fetch, querycache.QueryOptions{
		TTL:      deps.QueryTTL,
		Disabled: disabled,
		OnChange: onChange,
	})
	cancel, err := deps.Realtime.Subscribe(ctx, topic, lq.invalidate, realtime.SubscribeOptions{
		Disabled: disabled,
		Debounce: deps.Debounce,
	})
	if err != nil {
		stop()
		return nil, err
	}
	lq.cancel = cancel
	return lq, nil
}

// invalidate refetches off the fan-out goroutine.
func (lq *liveQuery) invalidate() {
	lq.mu.Lock()
	if lq.closed {
		lq.mu.Unlock()
		return
	}
	lq.pending.Add(1)
	lq.mu.Unlock()

	go func() {
		defer lq.pending.Done()
		if _, err := lq.query.Refetch(lq.ctx); err != nil && lq.ctx.Err() == nil {
			lq.logf("refetch %s: %v", lq.query.Key(), err)
		}
	}()
}

func (lq *liveQuery) close() {
	lq.cancel()
	lq.mu.Lock()
	lq.closed = true
	lq.mu.Unlock()
	lq.stop()
	lq.pending.Wait()
}
