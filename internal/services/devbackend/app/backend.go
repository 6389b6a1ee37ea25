package server

import (
	"context"
	"fmt"

	"github.com/louisbranch/cargo.space/internal/services/devbackend/hub"
	"github.com/louisbranch/cargo.space/internal/services/devbackend/storage"
	devsqlite "github.com/louisbranch/cargo.space/internal/services/devbackend/storage/sqlite"
)

// Backend applies mutations to storage and publishes each committed change.
type Backend struct {
	store *devsqlite.Store
	hub   *hub.Hub
}

// NewBackend creates a backend over store publishing to h.
func NewBackend(store *devsqlite.Store, h *hub.Hub) *Backend {
	return &Backend{store: store, hub: h}
}

func (b *Backend) publish(changes ...storage.Change) {
	for _, change := range changes {
		b.hub.Publish(change)
	}
}

// CreateBooking inserts a booking.
func (b *Backend) CreateBooking(ctx context.Context, booking storage.Booking) (storage.Record, error) {
	change, err := b.store.CreateBooking(ctx, booking)
	if err != nil {
		return nil, err
	}
	b.publish(change)
	return change.Record, nil
}

// UpdateBookingStatus moves a booking to a new status. When an
// administrator makes the change it is also written to the audit log.
func (b *Backend) UpdateBookingStatus(ctx context.Context, update storage.StatusUpdate, adminID string) (storage.Record, error) {
	changes, err := b.store.UpdateBookingStatus(ctx, update)
	if err != nil {
		return nil, err
	}
	b.publish(changes...)
	booking := changes[0].Record
	if adminID == "" {
		return booking, nil
	}
	oldStatus, _ := changes[1].Record["old_status"].(string)
	action, err := b.store.RecordAdminAction(ctx, storage.AdminAction{
		AdminID:     adminID,
		ActionType:  "status_update",
		TargetType:  "booking",
		TargetID:    booking.ID(),
		Description: fmt.Sprintf("Updated booking %v status to %s", booking["booking_id"], update.NewStatus),
		OldValues:   map[string]any{"status": oldStatus},
		NewValues:   map[string]any{"status": update.NewStatus},
	})
	if err != nil {
		return booking, fmt.Errorf("record admin action: %w", err)
	}
	b.publish(action)
	return booking, nil
}

// DeleteBooking removes a booking.
func (b *Backend) DeleteBooking(ctx context.Context, id string) error {
	change, err := b.store.DeleteBooking(ctx, id)
	if err != nil {
		return err
	}
	b.publish(change)
	return nil
}

// UpsertProfile creates or updates a profile.
func (b *Backend) UpsertProfile(ctx context.Context, profile storage.Profile) (storage.Record, error) {
	change, err := b.store.UpsertProfile(ctx, profile)
	if err != nil {
		return nil, err
	}
	b.publish(change)
	return change.Record, nil
}

// UpsertPricing creates or updates a pricing band.
func (b *Backend) UpsertPricing(ctx context.Context, pricing storage.Pricing) (storage.Record, error) {
	change, err := b.store.UpsertPricing(ctx, pricing)
	if err != nil {
		return nil, err
	}
	b.publish(change)
	return change.Record, nil
}

// AdvanceBooking moves a booking one step along the delivery pipeline. A
// completed booking is returned unchanged with false.
func (b *Backend) AdvanceBooking(ctx context.Context, id, adminID string) (storage.Record, bool, error) {
	record, err := b.store.Get(ctx, storage.ResourceBookings, id)
	if err != nil {
		return nil, false, err
	}
	current, _ := record["status"].(string)
	next, ok := nextStatus(current)
	if !ok {
		return record, false, nil
	}
	updated, err := b.UpdateBookingStatus(ctx, storage.StatusUpdate{
		BookingID: id,
		NewStatus: next,
		ChangedBy: adminID,
	}, adminID)
	if err != nil {
		return nil, false, err
	}
	return updated, true, nil
}

func nextStatus(current string) (string, bool) {
	for i, status := range storage.BookingStatuses {
		if status == current && i+1 < len(storage.BookingStatuses) {
			return storage.BookingStatuses[i+1], true
		}
	}
	return "", false
}
