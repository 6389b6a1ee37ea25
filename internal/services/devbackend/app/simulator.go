package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand/v2"
	"time"

	"github.com/louisbranch/cargo.space/internal/services/devbackend/storage"
)

// SimulatorAdminID is the admin recorded for simulated status changes.
const SimulatorAdminID = "simulator"

var errNoOpenBookings = errors.New("no open bookings")

// Simulator advances a random open booking on every tick so subscribed
// clients see live changes.
type Simulator struct {
	backend  *Backend
	interval time.Duration
	pick     func(n int) int
}

// NewSimulator creates a simulator ticking every interval.
func NewSimulator(backend *Backend, interval time.Duration) *Simulator {
	return &Simulator{backend: backend, interval: interval, pick: rand.IntN}
}

// Run ticks until ctx is done.
func (s *Simulator) Run(ctx context.Context) {
	if s == nil || s.interval <= 0 {
		return
	}
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			record, err := s.Step(ctx)
			switch {
			case errors.Is(err, errNoOpenBookings), errors.Is(err, context.Canceled):
			case err != nil:
				log.Printf("simulator step: %v", err)
			default:
				log.Printf("simulator moved %v to %v", record["booking_id"], record["status"])
			}
		}
	}
}

// Step advances one open booking.
func (s *Simulator) Step(ctx context.Context) (storage.Record, error) {
	result, err := s.backend.store.Query(ctx, storage.Query{
		Resource: storage.ResourceBookings,
		Columns:  []string{"id"},
		Filter:   `status != "completed"`,
	})
	if err != nil {
		return nil, fmt.Errorf("list open bookings: %w", err)
	}
	if len(result.Records) == 0 {
		return nil, errNoOpenBookings
	}
	target := result.Records[s.pick(len(result.Records))]
	record, _, err := s.backend.AdvanceBooking(ctx, target.ID(), SimulatorAdminID)
	if err != nil {
		return nil, err
	}
	return record, nil
}
