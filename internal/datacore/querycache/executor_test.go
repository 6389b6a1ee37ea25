package querycache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	platformerrors "github.com/louisbranch/cargo.space/internal/platform/errors"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type booking struct {
	ID     string
	Status string
}

func TestRunConcurrentCallersShareOneFetch(t *testing.T) {
	exec := New(Config{})
	release := make(chan struct{})
	var calls atomic.Int32
	fetch := func(context.Context) (any, error) {
		calls.Add(1)
		<-release
		return []booking{{ID: "b1", Status: "placed"}}, nil
	}

	const callers = 16
	var wg sync.WaitGroup
	results := make([]any, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = exec.Run(context.Background(), "bookings-u1", fetch, RunOptions{TTL: time.Minute})
		}(i)
	}

	waitFor(t, func() bool { return exec.Stats().Misses == callers })
	close(release)
	wg.Wait()

	if got := calls.Load(); got != 1 {
		t.Fatalf("fetch calls = %d, want %d", got, 1)
	}
	for i := 0; i < callers; i++ {
		if errs[i] != nil {
			t.Fatalf("caller %d: %v", i, errs[i])
		}
		rows := results[i].([]booking)
		if &rows[0] != &results[0].([]booking)[0] {
			t.Fatalf("caller %d received a different result instance", i)
		}
	}
	if exec.InFlight("bookings-u1") {
		t.Fatal("expected in-flight slot to be released")
	}
}

func TestRunServesFreshCacheWithoutFetching(t *testing.T) {
	clock := newFakeClock()
	exec := New(Config{Clock: clock.Now})
	var calls atomic.Int32
	fetchBookings := func(context.Context) (any, error) {
		calls.Add(1)
		return []booking{{ID: "b1"}}, nil
	}

	first, err := exec.Run(context.Background(), "bookings-u1", fetchBookings, RunOptions{TTL: 60 * time.Second})
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	clock.Advance(10 * time.Millisecond)
	second, err := exec.Run(context.Background(), "bookings-u1", fetchBookings, RunOptions{TTL: 60 * time.Second})
	if err != nil {
		t.Fatalf("second run: %v", err)
	}

	if got := calls.Load(); got != 1 {
		t.Fatalf("fetch calls = %d, want %d", got, 1)
	}
	if &first.([]booking)[0] != &second.([]booking)[0] {
		t.Fatal("expected both calls to resolve to the cached instance")
	}
	stats := exec.Stats()
	if stats.Hits != 1 || stats.Fetches != 1 {
		t.Fatalf("stats = %+v, want 1 hit and 1 fetch", stats)
	}
}

// scriptedClock returns times in order and then repeats the last one.
type scriptedClock struct {
	mu    sync.Mutex
	times []time.Time
}

func (c *scriptedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.times[0]
	if len(c.times) > 1 {
		c.times = c.times[1:]
	}
	return now
}

func TestRunCountsHitWhenClaimFindsFreshEntry(t *testing.T) {
	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	// First run: lookup, claim check, store. Second run: the lookup sees a
	// stale entry, the claim check sees it fresh.
	clock := &scriptedClock{times: []time.Time{base, base, base, base.Add(2 * time.Minute), base.Add(time.Second)}}
	exec := New(Config{Clock: clock.Now})
	var calls atomic.Int32
	fetch := func(context.Context) (any, error) {
		calls.Add(1)
		return "bookings", nil
	}

	for i := 0; i < 2; i++ {
		if _, err := exec.Run(context.Background(), "bookings-u1", fetch, RunOptions{TTL: time.Minute}); err != nil {
			t.Fatalf("run %d: %v", i, err)
		}
	}
	if got := calls.Load(); got != 1 {
		t.Fatalf("fetch calls = %d, want %d", got, 1)
	}
	stats := exec.Stats()
	if stats.Hits != 1 || stats.Misses != 1 || stats.Fetches != 1 {
		t.Fatalf("stats = %+v, want 1 hit, 1 miss and 1 fetch", stats)
	}
}

func TestRunRefetchesAfterTTL(t *testing.T) {
	clock := newFakeClock()
	exec := New(Config{Clock: clock.Now})
	var calls atomic.Int32
	fetch := func(context.Context) (any, error) {
		return int(calls.Add(1)), nil
	}

	if _, err := exec.Run(context.Background(), "k", fetch, RunOptions{TTL: time.Second}); err != nil {
		t.Fatalf("run: %v", err)
	}
	clock.Advance(time.Second)
	value, err := exec.Run(context.Background(), "k", fetch, RunOptions{TTL: time.Second})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if value != 2 {
		t.Fatalf("value = %v, want %d", value, 2)
	}
	entry, ok := exec.Peek("k")
	if !ok || entry.Generation != 2 {
		t.Fatalf("entry = %+v, want generation 2", entry)
	}
}

func TestRefetchAlwaysInvokesFetch(t *testing.T) {
	exec := New(Config{})
	var calls atomic.Int32
	fetch := func(context.Context) (any, error) {
		return int(calls.Add(1)), nil
	}

	if _, err := exec.Run(context.Background(), "k", fetch, RunOptions{TTL: time.Hour}); err != nil {
		t.Fatalf("run: %v", err)
	}
	for i := 0; i < 3; i++ {
		if _, err := exec.Refetch(context.Background(), "k", fetch, time.Hour); err != nil {
			t.Fatalf("refetch: %v", err)
		}
	}
	if got := calls.Load(); got != 4 {
		t.Fatalf("fetch calls = %d, want %d", got, 4)
	}
	value, _ := exec.Run(context.Background(), "k", fetch, RunOptions{TTL: time.Hour})
	if value != 4 {
		t.Fatalf("cached value = %v, want %d", value, 4)
	}
}

func TestRefetchJoinsGenerationInFlight(t *testing.T) {
	exec := New(Config{})
	release := make(chan struct{})
	var calls atomic.Int32
	fetch := func(context.Context) (any, error) {
		calls.Add(1)
		<-release
		return "v", nil
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = exec.Run(context.Background(), "k", fetch, RunOptions{})
	}()
	waitFor(t, func() bool { return exec.InFlight("k") })

	refetched := make(chan error, 1)
	go func() {
		_, err := exec.Refetch(context.Background(), "k", fetch, 0)
		refetched <- err
	}()
	waitFor(t, func() bool { return exec.Stats().Misses == 2 })
	time.Sleep(20 * time.Millisecond) // let the refetch reach the registry
	close(release)
	<-done
	if err := <-refetched; err != nil {
		t.Fatalf("refetch: %v", err)
	}

	if got := calls.Load(); got != 1 {
		t.Fatalf("fetch calls = %d, want %d", got, 1)
	}
	if got := exec.Stats().Joins; got != 1 {
		t.Fatalf("joins = %d, want %d", got, 1)
	}
}

func TestRunFailurePropagatesAndLeavesCacheUntouched(t *testing.T) {
	clock := newFakeClock()
	exec := New(Config{Clock: clock.Now})
	boom := errors.New("boom")
	var calls atomic.Int32
	fetch := func(context.Context) (any, error) {
		if calls.Add(1) == 1 {
			return "first", nil
		}
		return nil, boom
	}

	if _, err := exec.Run(context.Background(), "k", fetch, RunOptions{TTL: time.Second}); err != nil {
		t.Fatalf("run: %v", err)
	}
	_, err := exec.Refetch(context.Background(), "k", fetch, time.Second)
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want %v", err, boom)
	}
	if !platformerrors.HasCode(err, platformerrors.CodeFetchFailed) {
		t.Fatalf("err = %v, want fetch failure code", err)
	}

	entry, ok := exec.Peek("k")
	if !ok || entry.Value != "first" || entry.Generation != 1 {
		t.Fatalf("entry = %+v, want first value from generation 1", entry)
	}
	if exec.InFlight("k") {
		t.Fatal("expected in-flight slot to be released after failure")
	}
	if got := exec.Stats().Failures; got != 1 {
		t.Fatalf("failures = %d, want %d", got, 1)
	}
}

func TestRunFailureReachesEveryJoinedCaller(t *testing.T) {
	exec := New(Config{})
	release := make(chan struct{})
	var calls atomic.Int32
	boom := errors.New("backend rejected")
	fetch := func(context.Context) (any, error) {
		calls.Add(1)
		<-release
		return nil, boom
	}

	const callers = 4
	errs := make(chan error, callers)
	for i := 0; i < callers; i++ {
		go func() {
			_, err := exec.Run(context.Background(), "k", fetch, RunOptions{})
			errs <- err
		}()
	}
	waitFor(t, func() bool { return exec.Stats().Misses == callers })
	time.Sleep(20 * time.Millisecond) // let the waiters reach the registry
	close(release)

	for i := 0; i < callers; i++ {
		if err := <-errs; !errors.Is(err, boom) {
			t.Fatalf("caller err = %v, want %v", err, boom)
		}
	}
	if got := calls.Load(); got != 1 {
		t.Fatalf("fetch calls = %d, want %d", got, 1)
	}

	// The next generation starts cleanly.
	value, err := exec.Run(context.Background(), "k", func(context.Context) (any, error) {
		return "recovered", nil
	}, RunOptions{})
	if err != nil || value != "recovered" {
		t.Fatalf("run = (%v, %v), want recovered", value, err)
	}
}

func TestRunPanickingFetchReleasesSlot(t *testing.T) {
	exec := New(Config{})

	_, err := exec.Run(context.Background(), "k", func(context.Context) (any, error) {
		panic("kaboom")
	}, RunOptions{})
	if err == nil {
		t.Fatal("expected error from panicking fetch")
	}
	if !platformerrors.HasCode(err, platformerrors.CodeFetchFailed) {
		t.Fatalf("err = %v, want fetch failure", err)
	}
	if exec.InFlight("k") {
		t.Fatal("expected in-flight slot to be released after panic")
	}
	if _, ok := exec.Peek("k"); ok {
		t.Fatal("expected no cache entry after panic")
	}
}

func TestRunCallerCancellationDoesNotCancelGeneration(t *testing.T) {
	exec := New(Config{})
	release := make(chan struct{})
	fetchCtxErr := make(chan error, 1)
	fetch := func(ctx context.Context) (any, error) {
		<-release
		fetchCtxErr <- ctx.Err()
		return "v", nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	starter := make(chan error, 1)
	go func() {
		_, err := exec.Run(ctx, "k", fetch, RunOptions{})
		starter <- err
	}()
	waitFor(t, func() bool { return exec.InFlight("k") })

	joined := make(chan any, 1)
	go func() {
		value, _ := exec.Run(context.Background(), "k", fetch, RunOptions{})
		joined <- value
	}()
	waitFor(t, func() bool { return exec.Stats().Misses == 2 })

	cancel()
	if err := <-starter; !errors.Is(err, context.Canceled) {
		t.Fatalf("starter err = %v, want %v", err, context.Canceled)
	}
	close(release)
	if value := <-joined; value != "v" {
		t.Fatalf("joined value = %v, want %q", value, "v")
	}
	if err := <-fetchCtxErr; err != nil {
		t.Fatalf("fetch ctx err = %v, want nil", err)
	}
}

func TestRunValidatesArguments(t *testing.T) {
	var nilExec *Executor
	if _, err := nilExec.Run(context.Background(), "k", nil, RunOptions{}); !errors.Is(err, ErrExecutorNotConfigured) {
		t.Fatalf("err = %v, want %v", err, ErrExecutorNotConfigured)
	}
	exec := New(Config{})
	if _, err := exec.Run(context.Background(), "", func(context.Context) (any, error) { return nil, nil }, RunOptions{}); !errors.Is(err, ErrKeyRequired) {
		t.Fatalf("err = %v, want %v", err, ErrKeyRequired)
	}
	if _, err := exec.Run(context.Background(), "k", nil, RunOptions{}); !errors.Is(err, ErrFetchRequired) {
		t.Fatalf("err = %v, want %v", err, ErrFetchRequired)
	}
}

func TestRunRecordsFetchSpans(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	exec := New(Config{TracerProvider: provider})

	_, _ = exec.Run(context.Background(), "ok", func(context.Context) (any, error) { return 1, nil }, RunOptions{})
	_, _ = exec.Run(context.Background(), "bad", func(context.Context) (any, error) { return nil, fmt.Errorf("nope") }, RunOptions{})

	spans := recorder.Ended()
	if len(spans) != 2 {
		t.Fatalf("spans = %d, want %d", len(spans), 2)
	}
	for _, span := range spans {
		if span.Name() != "querycache.fetch" {
			t.Fatalf("span name = %q, want %q", span.Name(), "querycache.fetch")
		}
	}
	if len(spans[1].Events()) == 0 {
		t.Fatal("expected failing span to record the error")
	}
}

func TestGetTyped(t *testing.T) {
	exec := New(Config{})
	rows, err := Get(context.Background(), exec, "bookings", func(context.Context) ([]booking, error) {
		return []booking{{ID: "b1"}}, nil
	}, RunOptions{})
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(rows) != 1 || rows[0].ID != "b1" {
		t.Fatalf("rows = %+v, want one booking b1", rows)
	}

	_, err = Get(context.Background(), exec, "bookings", func(context.Context) (string, error) {
		return "unused", nil
	}, RunOptions{})
	if err == nil {
		t.Fatal("expected type mismatch error")
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met before deadline")
		}
		time.Sleep(time.Millisecond)
	}
}
