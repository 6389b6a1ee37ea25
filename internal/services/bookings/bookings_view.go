package bookings

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/louisbranch/cargo.space/internal/datacore/querycache"
	"github.com/louisbranch/cargo.space/internal/datacore/realtime"
	"github.com/louisbranch/cargo.space/internal/integration/remote"
)

// BookingsKey is the cache key of one user's bookings list.
func BookingsKey(userID string) string {
	return "bookings-" + userID
}

// BookingsTopic is the realtime topic covering one user's bookings.
func BookingsTopic(userID string) realtime.Topic {
	return realtime.Topic{Resource: resourceBookings, Filter: fmt.Sprintf("user_id = %q", userID)}
}

// BookingsView is a customer's bookings list, newest first, refetched when
// any of the user's bookings change.
type BookingsView struct {
	live     *liveQuery
	onChange func(querycache.State)

	mu     sync.Mutex
	search string
	status string
	once   sync.Once
}

// NewBookingsView subscribes to userID's bookings. An empty userID yields a
// disabled view that never fetches.
func NewBookingsView(ctx context.Context, deps Deps, userID string, onChange func(querycache.State)) (*BookingsView, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}
	userID = strings.TrimSpace(userID)
	disabled := userID == ""
	fetch := deps.rows(remote.Query{
		Resource: resourceBookings,
		Filter:   fmt.Sprintf("user_id = %q", userID),
		OrderBy:  "created_at desc",
	})
	v := &BookingsView{onChange: onChange}
	live, err := newLiveQuery(ctx, deps, BookingsKey(userID), fetch, BookingsTopic(userID), disabled, v.notify)
	if err != nil {
		return nil, fmt.Errorf("subscribe bookings for %s: %w", userID, err)
	}
	v.live = live
	return v, nil
}

func (v *BookingsView) notify(state querycache.State) {
	if v.onChange != nil {
		v.onChange(state)
	}
}

// Load reads the list through the cache.
func (v *BookingsView) Load(ctx context.Context) ([]Booking, error) {
	value, err := v.live.query.Load(ctx)
	if err != nil {
		return nil, err
	}
	bookings, _ := value.([]Booking)
	return bookings, nil
}

// Refetch forces a reload.
func (v *BookingsView) Refetch(ctx context.Context) error {
	_, err := v.live.query.Refetch(ctx)
	return err
}

// State returns the raw query state.
func (v *BookingsView) State() querycache.State {
	return v.live.query.State()
}

// SetFilters sets the client-side search term and status filter.
func (v *BookingsView) SetFilters(search, status string) {
	v.mu.Lock()
	v.search = search
	v.status = status
	v.mu.Unlock()
}

// Bookings returns the loaded bookings matching the current filters.
func (v *BookingsView) Bookings() []Booking {
	all, _ := v.State().Data.([]Booking)
	v.mu.Lock()
	search, status := v.search, v.status
	v.mu.Unlock()
	return filterBookings(all, search, status)
}

// Close detaches the realtime subscription and waits for pending refetches.
func (v *BookingsView) Close() {
	v.once.Do(v.live.close)
}
