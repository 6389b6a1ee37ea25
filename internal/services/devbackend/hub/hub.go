// Package hub fans committed devbackend changes out to open Subscribe
// streams.
package hub

import (
	"log"
	"sync"

	"github.com/google/uuid"
	"github.com/louisbranch/cargo.space/internal/services/devbackend/filter"
	"github.com/louisbranch/cargo.space/internal/services/devbackend/storage"
	expr "google.golang.org/genproto/googleapis/api/expr/v1alpha1"
)

// DefaultBuffer is the per-subscriber change buffer.
const DefaultBuffer = 64

// Hub tracks subscribers by resource and delivers matching changes.
type Hub struct {
	mu        sync.Mutex
	resources map[string]map[string]*subscriber
	buffer    int
	logf      func(string, ...any)
}

type subscriber struct {
	schema  filter.Schema
	filter  *expr.Expr
	changes chan storage.Change
}

// New creates a hub. buffer <= 0 uses DefaultBuffer; a nil logf uses log.Printf.
func New(buffer int, logf func(string, ...any)) *Hub {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	if logf == nil {
		logf = log.Printf
	}
	return &Hub{
		resources: make(map[string]map[string]*subscriber),
		buffer:    buffer,
		logf:      logf,
	}
}

// Subscribe registers interest in one resource. A nil filter matches every
// change. The returned cancel is idempotent and closes the channel.
func (h *Hub) Subscribe(resource string, schema filter.Schema, parsed *expr.Expr) (string, <-chan storage.Change, func()) {
	id := uuid.NewString()
	sub := &subscriber{
		schema:  schema,
		filter:  parsed,
		changes: make(chan storage.Change, h.buffer),
	}

	h.mu.Lock()
	subs, ok := h.resources[resource]
	if !ok {
		subs = make(map[string]*subscriber)
		h.resources[resource] = subs
	}
	subs[id] = sub
	h.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			delete(subs, id)
			if len(subs) == 0 {
				delete(h.resources, resource)
			}
			close(sub.changes)
		})
	}
	return id, sub.changes, cancel
}

// Publish delivers change to every subscriber whose filter matches the
// changed record. A full subscriber buffer drops the change; subscribers
// treat changes as invalidation signals, so a later change still triggers a
// refetch.
func (h *Hub) Publish(change storage.Change) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for id, sub := range h.resources[change.Resource] {
		match, err := filter.Evaluate(sub.filter, filter.MapResolver(sub.schema, change.Record))
		if err != nil {
			h.logf("hub: evaluate filter for subscription %s: %v", id, err)
			continue
		}
		if !match {
			continue
		}
		select {
		case sub.changes <- change:
		default:
			h.logf("hub: subscription %s buffer full, dropping %s %s", id, change.Kind, change.Resource)
		}
	}
}

// Subscribers returns the number of subscribers for resource.
func (h *Hub) Subscribers(resource string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.resources[resource])
}
