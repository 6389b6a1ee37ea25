package bookings

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/louisbranch/cargo.space/internal/datacore/debounce"
	"github.com/louisbranch/cargo.space/internal/datacore/querycache"
	"github.com/louisbranch/cargo.space/internal/datacore/realtime"
	"github.com/louisbranch/cargo.space/internal/integration/remote"
)

// AdminOrdersKey is the cache key of the admin orders list.
const AdminOrdersKey = "admin-orders"

// DefaultSearchDelay is the quiet period before a search term applies.
const DefaultSearchDelay = 300 * time.Millisecond

// AdminOrdersView lists every booking for administrators. Search input is
// debounced; any booking change refetches the list.
type AdminOrdersView struct {
	live     *liveQuery
	search   *debounce.Value[string]
	onChange func(querycache.State)

	mu     sync.Mutex
	status string
	once   sync.Once
}

// NewAdminOrdersView subscribes to the wildcard bookings channel. A
// searchDelay of zero uses DefaultSearchDelay.
func NewAdminOrdersView(ctx context.Context, deps Deps, searchDelay time.Duration, onChange func(querycache.State)) (*AdminOrdersView, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}
	if searchDelay <= 0 {
		searchDelay = DefaultSearchDelay
	}
	v := &AdminOrdersView{onChange: onChange}
	v.search = debounce.NewValue("", searchDelay, func(string) {
		v.notify(v.State())
	})
	fetch := deps.rows(remote.Query{
		Resource: resourceBookings,
		OrderBy:  "created_at desc",
	})
	live, err := newLiveQuery(ctx, deps, AdminOrdersKey, fetch, realtime.Topic{Resource: resourceBookings}, false, v.notify)
	if err != nil {
		return nil, fmt.Errorf("subscribe admin orders: %w", err)
	}
	v.live = live
	return v, nil
}

func (v *AdminOrdersView) notify(state querycache.State) {
	if v.onChange != nil {
		v.onChange(state)
	}
}

// Load reads the list through the cache.
func (v *AdminOrdersView) Load(ctx context.Context) ([]Booking, error) {
	value, err := v.live.query.Load(ctx)
	if err != nil {
		return nil, err
	}
	bookings, _ := value.([]Booking)
	return bookings, nil
}

// State returns the raw query state.
func (v *AdminOrdersView) State() querycache.State {
	if v.live == nil {
		return querycache.State{}
	}
	return v.live.query.State()
}

// Search records a search term. It applies once typing pauses.
func (v *AdminOrdersView) Search(term string) {
	v.search.Set(term)
}

// SearchTerm returns the applied search term.
func (v *AdminOrdersView) SearchTerm() string {
	return v.search.Get()
}

// FilterStatus applies a status filter immediately; empty clears it.
func (v *AdminOrdersView) FilterStatus(status string) {
	v.mu.Lock()
	v.status = status
	v.mu.Unlock()
}

// Orders returns the loaded bookings matching the applied filters.
func (v *AdminOrdersView) Orders() []Booking {
	all, _ := v.State().Data.([]Booking)
	v.mu.Lock()
	status := v.status
	v.mu.Unlock()
	return filterBookings(all, v.search.Get(), status)
}

// Close stops the pending search and detaches the subscription.
func (v *AdminOrdersView) Close() {
	v.once.Do(func() {
		v.search.Stop()
		v.live.close()
	})
}
