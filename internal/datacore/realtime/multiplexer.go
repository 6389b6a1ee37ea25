// Package realtime shares upstream change subscriptions between views.
//
// A Multiplexer keeps at most one live upstream subscription per Topic no
// matter how many consumers subscribe to it. Upstream events are debounced per
// topic and fanned out to every registered callback in registration order.
// The upstream subscription is closed synchronously when the last consumer
// detaches.
package realtime

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"sync"
	"time"

	"github.com/louisbranch/cargo.space/internal/datacore/debounce"
	platformerrors "github.com/louisbranch/cargo.space/internal/platform/errors"
)

// DefaultDebounce is the quiet period applied when a subscriber passes none.
const DefaultDebounce = time.Second

var (
	// ErrSourceNotConfigured indicates the multiplexer has no event source.
	ErrSourceNotConfigured = errors.New("event source is not configured")
	// ErrResourceRequired indicates an empty topic resource.
	ErrResourceRequired = errors.New("subscription resource is required")
	// ErrCallbackRequired indicates a nil invalidate callback.
	ErrCallbackRequired = errors.New("invalidate callback is required")
	// ErrMultiplexerClosed indicates Subscribe after Close.
	ErrMultiplexerClosed = errors.New("subscription multiplexer is closed")
)

// SubscribeOptions controls one subscription.
type SubscribeOptions struct {
	// Disabled subscriptions are a no-op returning an inert cancel.
	Disabled bool
	// Debounce is the quiet period before fan-out. Only the subscriber that
	// opens a topic's channel decides it; zero uses the default.
	Debounce time.Duration
}

// Config controls multiplexer collaborators.
type Config struct {
	Source          EventSource
	DefaultDebounce time.Duration
	// Logf reports callback and close failures; nil uses log.Printf.
	Logf func(format string, args ...any)
}

// Multiplexer is the process-wide subscription registry. Build one at the
// application root and pass it to every consumer.
type Multiplexer struct {
	source          EventSource
	debouncer       *debounce.Debouncer
	defaultDebounce time.Duration
	logf            func(format string, args ...any)

	mu       sync.Mutex
	channels map[Topic]*channel
	nextID   uint64
	closed   bool
}

type channel struct {
	topic Topic
	// key names the channel's debounce timer and is unique per channel.
	key   string
	delay time.Duration

	// ready is closed once the upstream open has settled.
	ready   chan struct{}
	opening bool
	openErr error

	sub         Subscription
	subscribers []subscriber
	closed      bool
}

type subscriber struct {
	id uint64
	fn func()
}

// New builds an empty multiplexer.
func New(cfg Config) *Multiplexer {
	delay := cfg.DefaultDebounce
	if delay <= 0 {
		delay = DefaultDebounce
	}
	logf := cfg.Logf
	if logf == nil {
		logf = log.Printf
	}
	return &Multiplexer{
		source:          cfg.Source,
		debouncer:       debounce.New(),
		defaultDebounce: delay,
		logf:            logf,
		channels:        make(map[Topic]*channel),
	}
}

// Subscribe registers onInvalidate for topic and returns a cancel that
// detaches it. The first subscriber of a topic opens the upstream channel;
// concurrent subscribers wait for that open and share its outcome. A failed
// open leaves nothing registered, so the call can simply be retried.
func (m *Multiplexer) Subscribe(ctx context.Context, topic Topic, onInvalidate func(), opts SubscribeOptions) (func(), error) {
	if opts.Disabled {
		return func() {}, nil
	}
	if m == nil || m.source == nil {
		return nil, ErrSourceNotConfigured
	}
	topic = topic.normalized()
	if topic.Resource == "" {
		return nil, ErrResourceRequired
	}
	if onInvalidate == nil {
		return nil, ErrCallbackRequired
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrMultiplexerClosed
	}
	ch, exists := m.channels[topic]
	if !exists {
		delay := opts.Debounce
		if delay <= 0 {
			delay = m.defaultDebounce
		}
		m.nextID++
		ch = &channel{
			topic:   topic,
			key:     "channel-" + strconv.FormatUint(m.nextID, 10),
			delay:   delay,
			ready:   make(chan struct{}),
			opening: true,
		}
		m.channels[topic] = ch
	}
	m.nextID++
	id := m.nextID
	ch.subscribers = append(ch.subscribers, subscriber{id: id, fn: onInvalidate})
	m.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() { m.detach(ch, id) })
	}

	if !exists {
		m.open(ctx, ch)
	}
	select {
	case <-ch.ready:
	case <-ctx.Done():
		cancel()
		return nil, ctx.Err()
	}
	if ch.openErr != nil {
		return nil, ch.openErr
	}
	return cancel, nil
}

// open performs the upstream open for a freshly registered channel.
func (m *Multiplexer) open(ctx context.Context, ch *channel) {
	sub, err := m.openUpstream(ctx, ch)

	var orphan Subscription
	m.mu.Lock()
	ch.opening = false
	switch {
	case err != nil:
		ch.openErr = platformerrors.WrapWithMetadata(
			platformerrors.CodeSubscriptionOpenFailed,
			"open subscription "+ch.topic.String(),
			map[string]string{"resource": ch.topic.Resource, "filter": ch.topic.Filter},
			err,
		)
		m.dropLocked(ch)
	case m.closed:
		ch.openErr = ErrMultiplexerClosed
		m.dropLocked(ch)
		orphan = sub
	case len(ch.subscribers) == 0:
		// Everyone left while the open was in progress.
		m.dropLocked(ch)
		orphan = sub
	default:
		ch.sub = sub
	}
	close(ch.ready)
	m.mu.Unlock()

	if orphan != nil {
		m.closeUpstream(ch.topic, orphan)
	}
}

func (m *Multiplexer) openUpstream(ctx context.Context, ch *channel) (sub Subscription, err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			sub, err = nil, fmt.Errorf("open panicked: %v", recovered)
		}
	}()
	sub, err = m.source.OpenSubscription(ctx, ch.topic, func(event Event) {
		m.handleEvent(ch, event)
	})
	if err == nil && sub == nil {
		err = errors.New("event source returned no subscription")
	}
	return sub, err
}

// dropLocked marks ch closed and unregisters it. m.mu must be held.
func (m *Multiplexer) dropLocked(ch *channel) {
	ch.closed = true
	ch.subscribers = nil
	if m.channels[ch.topic] == ch {
		delete(m.channels, ch.topic)
	}
	m.debouncer.Cancel(ch.key)
}

// detach removes one subscriber and tears the channel down when it was the
// last one. A channel still opening is left to its opener.
func (m *Multiplexer) detach(ch *channel, id uint64) {
	m.mu.Lock()
	remaining := make([]subscriber, 0, len(ch.subscribers))
	for _, s := range ch.subscribers {
		if s.id != id {
			remaining = append(remaining, s)
		}
	}
	ch.subscribers = remaining
	if len(remaining) > 0 || ch.closed || ch.opening {
		m.mu.Unlock()
		return
	}
	sub := ch.sub
	m.dropLocked(ch)
	m.mu.Unlock()

	m.closeUpstream(ch.topic, sub)
}

func (m *Multiplexer) handleEvent(ch *channel, _ Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ch.closed {
		return
	}
	m.debouncer.Trigger(ch.key, ch.delay, func() {
		m.fanOut(ch)
	})
}

// fanOut invokes every current subscriber in registration order. A panicking
// callback does not stop delivery to the rest.
func (m *Multiplexer) fanOut(ch *channel) {
	m.mu.Lock()
	if ch.closed {
		m.mu.Unlock()
		return
	}
	subscribers := append([]subscriber(nil), ch.subscribers...)
	m.mu.Unlock()

	for _, s := range subscribers {
		m.invoke(ch.topic, s)
	}
}

func (m *Multiplexer) invoke(topic Topic, s subscriber) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err := platformerrors.WrapWithMetadata(
				platformerrors.CodeCallbackFailed,
				"invalidate callback on "+topic.String(),
				map[string]string{"resource": topic.Resource, "filter": topic.Filter},
				fmt.Errorf("%v", recovered),
			)
			m.logf("realtime fan-out: %v", err)
		}
	}()
	s.fn()
}

func (m *Multiplexer) closeUpstream(topic Topic, sub Subscription) {
	if sub == nil {
		return
	}
	if err := sub.Close(); err != nil {
		m.logf("realtime close %s: %v", topic, err)
	}
}

// Close tears down every open channel. Channels still opening are closed by
// their opener. Subscribe fails after Close.
func (m *Multiplexer) Close() error {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	var subs []Subscription
	for _, ch := range m.channels {
		if ch.opening {
			continue
		}
		subs = append(subs, ch.sub)
		m.dropLocked(ch)
	}
	m.mu.Unlock()

	var errs []error
	for _, sub := range subs {
		if err := sub.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Channels returns the number of registered channels.
func (m *Multiplexer) Channels() int {
	if m == nil {
		return 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.channels)
}

// Subscribers returns the number of callbacks registered for topic.
func (m *Multiplexer) Subscribers(topic Topic) int {
	if m == nil {
		return 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	ch, ok := m.channels[topic.normalized()]
	if !ok {
		return 0
	}
	return len(ch.subscribers)
}
