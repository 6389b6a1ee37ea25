package remote

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/louisbranch/cargo.space/internal/datacore/realtime"
	platformerrors "github.com/louisbranch/cargo.space/internal/platform/errors"
	gogrpc "google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

var subscribeStreamDesc = gogrpc.StreamDesc{StreamName: "Subscribe", ServerStreams: true}

// OpenSubscription opens a Subscribe stream for topic and returns once the
// backend acknowledged it. ctx bounds only the open; afterwards the stream
// lives until Close. A dropped stream is re-opened after the retry delay and
// a RESYNC event is delivered once it is back.
func (c *Client) OpenSubscription(ctx context.Context, topic realtime.Topic, onEvent func(realtime.Event)) (realtime.Subscription, error) {
	if c == nil || c.conn == nil {
		return nil, ErrConnRequired
	}
	if onEvent == nil {
		return nil, errors.New("event handler is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	sub := &streamSubscription{
		client:  c,
		topic:   topic,
		onEvent: onEvent,
		done:    make(chan struct{}),
	}
	sub.ctx, sub.cancel = context.WithCancel(context.WithoutCancel(ctx))

	openCtx, cancelOpen := context.WithTimeout(ctx, c.openTimeout)
	defer cancelOpen()
	stream, stop, err := sub.connect(openCtx)
	if err != nil {
		sub.cancel()
		return nil, err
	}
	go sub.run(stream, stop)
	return sub, nil
}

type streamSubscription struct {
	client  *Client
	topic   realtime.Topic
	onEvent func(realtime.Event)

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	closeOnce sync.Once

	mu sync.Mutex
	id string
}

// Close stops the stream and waits for its receive loop to exit.
func (s *streamSubscription) Close() error {
	s.closeOnce.Do(func() {
		s.cancel()
		<-s.done
	})
	return nil
}

// ID returns the backend subscription id of the current stream.
func (s *streamSubscription) ID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}

// connect opens one stream and waits for the acknowledgement. openCtx
// cancels the stream only if it ends before the acknowledgement arrives. The
// returned stop func releases the stream.
func (s *streamSubscription) connect(openCtx context.Context) (gogrpc.ClientStream, context.CancelFunc, error) {
	streamCtx, cancelStream := context.WithCancel(s.ctx)
	stopOpenWatch := context.AfterFunc(openCtx, cancelStream)

	ack := new(structpb.Struct)
	stream, err := s.client.conn.NewStream(streamCtx, &subscribeStreamDesc, SubscribeMethod)
	if err == nil {
		err = stream.SendMsg(TopicStruct(s.topic))
	}
	if err == nil {
		err = stream.CloseSend()
	}
	if err == nil {
		err = stream.RecvMsg(ack)
	}
	watching := stopOpenWatch()

	if err == nil && !watching {
		err = openCtx.Err()
	}
	if err == nil && ack.GetFields()["kind"].GetStringValue() != KindSubscribed {
		err = fmt.Errorf("unexpected first message %q", ack.GetFields()["kind"].GetStringValue())
	}
	if err != nil {
		cancelStream()
		if ctxErr := openCtx.Err(); ctxErr != nil {
			return nil, nil, ctxErr
		}
		return nil, nil, platformerrors.FromGRPC(err)
	}

	s.mu.Lock()
	s.id = ack.GetFields()["subscription_id"].GetStringValue()
	s.mu.Unlock()
	return stream, cancelStream, nil
}

func (s *streamSubscription) run(stream gogrpc.ClientStream, stop context.CancelFunc) {
	defer close(s.done)
	for {
		err := s.receive(stream)
		stop()
		if s.ctx.Err() != nil {
			return
		}
		s.client.logf("remote subscription %s dropped: %v", s.topic, err)

		stream, stop = s.reconnect()
		if stream == nil {
			return
		}
		s.onEvent(realtime.Event{Topic: s.topic, Kind: realtime.EventResync, OccurredAt: time.Now().UTC()})
	}
}

func (s *streamSubscription) receive(stream gogrpc.ClientStream) error {
	for {
		msg := new(structpb.Struct)
		if err := stream.RecvMsg(msg); err != nil {
			return err
		}
		event := EventFromStruct(msg)
		if event.Topic.Resource == "" {
			event.Topic = s.topic
		}
		s.onEvent(event)
	}
}

// reconnect retries until a stream is acknowledged or the subscription is
// closed, in which case it returns a nil stream.
func (s *streamSubscription) reconnect() (gogrpc.ClientStream, context.CancelFunc) {
	for {
		if !waitRetry(s.ctx, s.client.retryDelay) {
			return nil, nil
		}
		openCtx, cancel := context.WithTimeout(s.ctx, s.client.openTimeout)
		stream, stop, err := s.connect(openCtx)
		cancel()
		if err == nil {
			return stream, stop
		}
		if s.ctx.Err() != nil {
			return nil, nil
		}
		s.client.logf("remote subscription %s reconnect: %v", s.topic, err)
	}
}

func waitRetry(ctx context.Context, delay time.Duration) bool {
	if delay <= 0 {
		delay = SubscribeRetryDelay
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
