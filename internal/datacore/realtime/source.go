package realtime

import (
	"context"
	"strings"
	"time"
)

// Topic identifies one upstream channel: a resource plus an optional filter.
// An empty filter is the wildcard channel for the whole resource.
type Topic struct {
	Resource string
	Filter   string
}

// String returns a label for logs and errors. Distinct topics may share
// a label.
func (t Topic) String() string {
	filter := t.Filter
	if filter == "" {
		filter = "*"
	}
	return t.Resource + ":" + filter
}

func (t Topic) normalized() Topic {
	return Topic{
		Resource: strings.TrimSpace(t.Resource),
		Filter:   strings.TrimSpace(t.Filter),
	}
}

// EventKind describes the backend change behind an event.
type EventKind string

const (
	EventInsert EventKind = "INSERT"
	EventUpdate EventKind = "UPDATE"
	EventDelete EventKind = "DELETE"
	// EventResync is emitted after an upstream reconnect, when changes may
	// have been missed.
	EventResync EventKind = "RESYNC"
)

// Event is one upstream change notification. The multiplexer only uses it as
// an invalidation signal.
type Event struct {
	Topic      Topic
	Kind       EventKind
	RecordID   string
	OccurredAt time.Time
}

// Subscription is an open upstream channel.
type Subscription interface {
	Close() error
}

// EventSource opens upstream subscriptions. ctx bounds the open call only;
// the subscription lives until it is closed. onEvent may be called from any
// goroutine until then.
type EventSource interface {
	OpenSubscription(ctx context.Context, topic Topic, onEvent func(Event)) (Subscription, error)
}

// EventSourceFunc adapts a function to EventSource.
type EventSourceFunc func(ctx context.Context, topic Topic, onEvent func(Event)) (Subscription, error)

// OpenSubscription implements EventSource.
func (fn EventSourceFunc) OpenSubscription(ctx context.Context, topic Topic, onEvent func(Event)) (Subscription, error) {
	return fn(ctx, topic, onEvent)
}
