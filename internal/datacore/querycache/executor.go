package querycache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	platformerrors "github.com/louisbranch/cargo.space/internal/platform/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	// DefaultTTL is the freshness window used when a caller passes no TTL.
	DefaultTTL = 2 * time.Minute

	tracerName = "github.com/louisbranch/cargo.space/internal/datacore/querycache"
)

var (
	// ErrExecutorNotConfigured indicates the executor is nil.
	ErrExecutorNotConfigured = errors.New("query executor is not configured")
	// ErrKeyRequired indicates an empty cache key.
	ErrKeyRequired = errors.New("cache key is required")
	// ErrFetchRequired indicates a nil fetch function.
	ErrFetchRequired = errors.New("fetch function is required")
)

// FetchFunc loads the current value for one cache key from the backend.
type FetchFunc func(ctx context.Context) (any, error)

// RunOptions controls one read.
type RunOptions struct {
	// TTL is the freshness window; zero uses the executor default.
	TTL time.Duration
	// Force skips the cache. It still joins a generation that is already in
	// flight for the key.
	Force bool
}

// Config controls executor defaults and collaborators.
type Config struct {
	DefaultTTL     time.Duration
	Clock          func() time.Time
	TracerProvider trace.TracerProvider
}

// Executor serves reads from the result cache when fresh and otherwise runs
// exactly one fetch per key at a time, sharing its outcome with every caller
// that arrives while it is running.
type Executor struct {
	cache      *resultCache
	flights    *inflightRegistry
	clock      func() time.Time
	defaultTTL time.Duration
	tracer     trace.Tracer
	stats      counters
}

// New builds an executor with empty cache state.
func New(cfg Config) *Executor {
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	ttl := cfg.DefaultTTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	provider := cfg.TracerProvider
	if provider == nil {
		provider = otel.GetTracerProvider()
	}
	return &Executor{
		cache:      newResultCache(),
		flights:    newInflightRegistry(),
		clock:      clock,
		defaultTTL: ttl,
		tracer:     provider.Tracer(tracerName),
	}
}

// Run returns the value for key: a fresh cached entry when one exists and
// opts.Force is false, otherwise the outcome of the key's current or a new
// fetch generation. Fetch failures leave the cache untouched and reach every
// caller joined on the failing generation.
func (e *Executor) Run(ctx context.Context, key string, fetch FetchFunc, opts RunOptions) (any, error) {
	if e == nil {
		return nil, ErrExecutorNotConfigured
	}
	if key == "" {
		return nil, ErrKeyRequired
	}
	if fetch == nil {
		return nil, ErrFetchRequired
	}
	if ctx == nil {
		ctx = context.Background()
	}
	ttl := e.ttl(opts.TTL)

	if !opts.Force {
		if entry, ok := e.cache.getFresh(key, ttl, e.clock()); ok {
			e.stats.hits.Add(1)
			return entry.Value, nil
		}
	}
	e.stats.misses.Add(1)

	detached := context.WithoutCancel(ctx)
	result, joined, err := e.flights.join(ctx, key, func() (flightResult, error) {
		// A previous generation may have settled between the cache check
		// above and this claim.
		if !opts.Force {
			if entry, ok := e.cache.getFresh(key, ttl, e.clock()); ok {
				e.stats.servedFromCache()
				return flightResult{value: entry.Value, generation: entry.Generation}, nil
			}
		}
		return e.fetchGeneration(detached, key, fetch, opts.Force)
	})
	if joined {
		e.stats.joins.Add(1)
	}
	if err != nil {
		return nil, err
	}
	return result.value, nil
}

// Refetch runs a forced read of key. When a generation is already in flight
// the caller joins it instead of issuing a second request.
func (e *Executor) Refetch(ctx context.Context, key string, fetch FetchFunc, ttl time.Duration) (any, error) {
	return e.Run(ctx, key, fetch, RunOptions{TTL: ttl, Force: true})
}

// Peek returns the cached entry for key regardless of age.
func (e *Executor) Peek(key string) (Entry, bool) {
	if e == nil {
		return Entry{}, false
	}
	return e.cache.get(key)
}

// Fresh reports whether key has an entry younger than ttl.
func (e *Executor) Fresh(key string, ttl time.Duration) bool {
	if e == nil {
		return false
	}
	_, ok := e.cache.getFresh(key, e.ttl(ttl), e.clock())
	return ok
}

// InFlight reports whether a fetch generation is running for key.
func (e *Executor) InFlight(key string) bool {
	if e == nil {
		return false
	}
	return e.flights.inFlight(key)
}

// Stats returns a snapshot of executor counters.
func (e *Executor) Stats() Stats {
	if e == nil {
		return Stats{}
	}
	return e.stats.snapshot()
}

func (e *Executor) ttl(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return e.defaultTTL
	}
	return ttl
}

// fetchGeneration performs one fetch and records its outcome. The in-flight
// marker is released on every path, a panicking fetch included.
func (e *Executor) fetchGeneration(ctx context.Context, key string, fetch FetchFunc, forced bool) (result flightResult, err error) {
	gen := e.flights.begin(key)
	defer e.flights.end(key, gen)

	ctx, span := e.tracer.Start(ctx, "querycache.fetch", trace.WithAttributes(
		attribute.String("cache.key", key),
		attribute.Int64("cache.generation", int64(gen)),
		attribute.Bool("cache.forced", forced),
	))
	defer span.End()
	e.stats.fetches.Add(1)

	defer func() {
		if recovered := recover(); recovered != nil {
			err = fetchFailure(key, gen, fmt.Errorf("fetch panicked: %v", recovered))
			result = flightResult{}
		}
		if err != nil {
			e.stats.failures.Add(1)
			span.RecordError(err)
			span.SetStatus(otelcodes.Error, "fetch failed")
		}
	}()

	value, fetchErr := fetch(ctx)
	if fetchErr != nil {
		return flightResult{}, fetchFailure(key, gen, fetchErr)
	}
	e.cache.set(key, Entry{Value: value, StoredAt: e.clock(), Generation: gen})
	return flightResult{value: value, generation: gen}, nil
}

func fetchFailure(key string, gen uint64, cause error) error {
	return platformerrors.WrapWithMetadata(
		platformerrors.CodeFetchFailed,
		"fetch "+key,
		map[string]string{
			"cache_key":  key,
			"generation": strconv.FormatUint(gen, 10),
		},
		cause,
	)
}

// Get is Run with a typed result. A cached value of another type is reported
// as an error rather than a panic.
func Get[T any](ctx context.Context, e *Executor, key string, fetch func(context.Context) (T, error), opts RunOptions) (T, error) {
	var zero T
	if fetch == nil {
		return zero, ErrFetchRequired
	}
	value, err := e.Run(ctx, key, func(ctx context.Context) (any, error) {
		return fetch(ctx)
	}, opts)
	if err != nil {
		return zero, err
	}
	typed, ok := value.(T)
	if !ok && value != nil {
		return zero, fmt.Errorf("cache key %s holds %T, want %T", key, value, zero)
	}
	return typed, nil
}
