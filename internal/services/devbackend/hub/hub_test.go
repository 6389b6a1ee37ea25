package hub

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/louisbranch/cargo.space/internal/services/devbackend/filter"
	"github.com/louisbranch/cargo.space/internal/services/devbackend/storage"
)

var bookingSchema = filter.Schema{
	"id":      {Type: filter.FieldString},
	"user_id": {Type: filter.FieldString},
	"status":  {Type: filter.FieldString},
}

func bookingChange(id, userID string) storage.Change {
	return storage.Change{
		Resource: storage.ResourceBookings,
		Kind:     storage.ChangeUpdate,
		Record:   storage.Record{"id": id, "user_id": userID, "status": "placed"},
		At:       time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestPublishMatchesFilter(t *testing.T) {
	h := New(4, t.Logf)
	parsed, err := filter.Parse(`user_id = "u1"`, bookingSchema)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	_, filtered, cancelFiltered := h.Subscribe(storage.ResourceBookings, bookingSchema, parsed)
	defer cancelFiltered()
	_, wildcard, cancelWildcard := h.Subscribe(storage.ResourceBookings, bookingSchema, nil)
	defer cancelWildcard()

	h.Publish(bookingChange("b1", "u2"))
	h.Publish(bookingChange("b2", "u1"))

	if got := (<-filtered).Record.ID(); got != "b2" {
		t.Fatalf("filtered record = %q, want b2", got)
	}
	if len(filtered) != 0 {
		t.Fatalf("filtered pending = %d, want 0", len(filtered))
	}
	if len(wildcard) != 2 {
		t.Fatalf("wildcard pending = %d, want 2", len(wildcard))
	}
}

func TestPublishIgnoresOtherResources(t *testing.T) {
	h := New(4, t.Logf)
	_, changes, cancel := h.Subscribe(storage.ResourceProfiles, nil, nil)
	defer cancel()

	h.Publish(bookingChange("b1", "u1"))
	if len(changes) != 0 {
		t.Fatalf("pending = %d, want 0", len(changes))
	}
}

func TestPublishDropsWhenBufferFull(t *testing.T) {
	var mu sync.Mutex
	var logs []string
	h := New(1, func(format string, args ...any) {
		mu.Lock()
		logs = append(logs, fmt.Sprintf(format, args...))
		mu.Unlock()
	})
	_, changes, cancel := h.Subscribe(storage.ResourceBookings, bookingSchema, nil)
	defer cancel()

	h.Publish(bookingChange("b1", "u1"))
	h.Publish(bookingChange("b2", "u1"))

	if len(changes) != 1 {
		t.Fatalf("pending = %d, want 1", len(changes))
	}
	mu.Lock()
	defer mu.Unlock()
	if len(logs) != 1 {
		t.Fatalf("logs = %v, want one drop", logs)
	}
}

func TestCancelClosesAndUnregisters(t *testing.T) {
	h := New(0, t.Logf)
	id, changes, cancel := h.Subscribe(storage.ResourceBookings, bookingSchema, nil)
	if id == "" {
		t.Fatal("expected subscription id")
	}
	if got := h.Subscribers(storage.ResourceBookings); got != 1 {
		t.Fatalf("subscribers = %d, want 1", got)
	}
	cancel()
	cancel()
	if _, ok := <-changes; ok {
		t.Fatal("expected closed channel")
	}
	if got := h.Subscribers(storage.ResourceBookings); got != 0 {
		t.Fatalf("subscribers = %d, want 0", got)
	}
	h.Publish(bookingChange("b1", "u1"))
}
