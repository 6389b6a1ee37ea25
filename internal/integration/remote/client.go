package remote

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/louisbranch/cargo.space/internal/datacore/querycache"
	platformerrors "github.com/louisbranch/cargo.space/internal/platform/errors"
	platformgrpc "github.com/louisbranch/cargo.space/internal/platform/grpc"
	"github.com/louisbranch/cargo.space/internal/platform/timeouts"
	gogrpc "google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// SubscribeRetryDelay is the default wait before a dropped change stream is
// re-opened.
const SubscribeRetryDelay = timeouts.SubscriptionRetry

// ErrConnRequired indicates a client built without a connection.
var ErrConnRequired = errors.New("data service connection is required")

// Options controls Client behavior. Zero values use the shared timeouts.
type Options struct {
	RequestTimeout time.Duration
	OpenTimeout    time.Duration
	RetryDelay     time.Duration
	Logf           func(format string, args ...any)
}

// Client talks to a DataService backend. It implements
// realtime.EventSource.
type Client struct {
	conn           gogrpc.ClientConnInterface
	closer         func() error
	requestTimeout time.Duration
	openTimeout    time.Duration
	retryDelay     time.Duration
	logf           func(format string, args ...any)
}

// NewClient wraps an existing connection. Closing the client does not close
// conn.
func NewClient(conn gogrpc.ClientConnInterface, opts Options) (*Client, error) {
	if conn == nil {
		return nil, ErrConnRequired
	}
	c := &Client{
		conn:           conn,
		requestTimeout: opts.RequestTimeout,
		openTimeout:    opts.OpenTimeout,
		retryDelay:     opts.RetryDelay,
		logf:           opts.Logf,
	}
	if c.requestTimeout <= 0 {
		c.requestTimeout = timeouts.GRPCRequest
	}
	if c.openTimeout <= 0 {
		c.openTimeout = timeouts.SubscriptionOpen
	}
	if c.retryDelay <= 0 {
		c.retryDelay = SubscribeRetryDelay
	}
	if c.logf == nil {
		c.logf = log.Printf
	}
	return c, nil
}

// Dial connects to addr, waits for the DataService health check and returns
// a client owning the connection.
func Dial(ctx context.Context, addr string, opts Options) (*Client, error) {
	conn, err := platformgrpc.DialWithHealth(ctx, addr, platformgrpc.DialOptions{
		HealthService: ServiceName,
		Timeout:       timeouts.GRPCDial,
		Logf:          opts.Logf,
	})
	if err != nil {
		return nil, platformerrors.Wrap(platformerrors.CodeUnavailable, "dial data service", err)
	}
	client, err := NewClient(conn, opts)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	client.closer = conn.Close
	return client, nil
}

// Close releases the connection when the client owns it.
func (c *Client) Close() error {
	if c == nil || c.closer == nil {
		return nil
	}
	return c.closer()
}

// Execute runs one query. gRPC failures are returned as platform errors.
func (c *Client) Execute(ctx context.Context, q Query) (Result, error) {
	if c == nil || c.conn == nil {
		return Result{}, ErrConnRequired
	}
	req, err := q.Struct()
	if err != nil {
		return Result{}, err
	}
	if ctx == nil {
		ctx = context.Background()
	}
	callCtx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	out := new(structpb.Struct)
	if err := c.conn.Invoke(callCtx, ExecuteMethod, req, out); err != nil {
		return Result{}, platformerrors.FromGRPC(err)
	}
	return ResultFromStruct(out), nil
}

// Fetch adapts q to a query executor fetch function returning Result.
func (c *Client) Fetch(q Query) querycache.FetchFunc {
	return func(ctx context.Context) (any, error) {
		return c.Execute(ctx, q)
	}
}

// Rows adapts q to a fetch function returning only the rows.
func (c *Client) Rows(q Query) func(context.Context) ([]map[string]any, error) {
	return func(ctx context.Context) ([]map[string]any, error) {
		result, err := c.Execute(ctx, q)
		if err != nil {
			return nil, err
		}
		return result.Rows, nil
	}
}

// Count adapts q to a fetch function returning the matching row count.
func (c *Client) Count(q Query) func(context.Context) (int64, error) {
	q.CountOnly = true
	return func(ctx context.Context) (int64, error) {
		result, err := c.Execute(ctx, q)
		if err != nil {
			return 0, err
		}
		return result.Count, nil
	}
}
