package server

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/louisbranch/cargo.space/internal/datacore/realtime"
	"github.com/louisbranch/cargo.space/internal/integration/remote"
	"github.com/louisbranch/cargo.space/internal/services/devbackend/storage"
)

func TestServer_QueryAndSubscribeRoundTrip(t *testing.T) {
	srv, err := New(context.Background(), Config{
		Addr:   "127.0.0.1:0",
		DBPath: filepath.Join(t.TempDir(), "devbackend.db"),
		Seed:   true,
	})
	if err != nil {
		t.Fatalf("new server: %v", err)
	}

	runCtx, runCancel := context.WithCancel(context.Background())
	defer runCancel()

	serveDone := make(chan error, 1)
	go func() {
		serveDone <- srv.Serve(runCtx)
	}()
	t.Cleanup(func() {
		runCancel()
		select {
		case serveErr := <-serveDone:
			if serveErr != nil {
				t.Fatalf("serve: %v", serveErr)
			}
		case <-time.After(5 * time.Second):
			t.Fatal("timeout waiting for server shutdown")
		}
	})

	client, err := remote.Dial(context.Background(), srv.Addr(), remote.Options{Logf: t.Logf})
	if err != nil {
		t.Fatalf("dial devbackend: %v", err)
	}
	t.Cleanup(func() {
		if closeErr := client.Close(); closeErr != nil {
			t.Fatalf("close client: %v", closeErr)
		}
	})

	result, err := client.Execute(context.Background(), remote.Query{
		Resource: storage.ResourceBookings,
		Filter:   `user_id = "` + SeedCustomerID + `"`,
	})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if len(result.Rows) != 2 {
		t.Fatalf("rows = %d, want 2 seeded bookings", len(result.Rows))
	}
	if _, ok := result.Rows[0]["created_at"].(string); !ok {
		t.Fatalf("created_at = %#v, want RFC3339 string", result.Rows[0]["created_at"])
	}

	count, err := client.Count(remote.Query{Resource: storage.ResourceProfiles, Filter: `role = "customer"`})(context.Background())
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 2 {
		t.Fatalf("customers = %d, want 2", count)
	}

	events := make(chan realtime.Event, 8)
	topic := realtime.Topic{Resource: storage.ResourceBookings, Filter: `user_id = "` + SeedCustomerID + `"`}
	sub, err := client.OpenSubscription(context.Background(), topic, func(event realtime.Event) {
		events <- event
	})
	if err != nil {
		t.Fatalf("open subscription: %v", err)
	}
	defer sub.Close()

	bookingID, _ := result.Rows[0]["id"].(string)
	if _, advanced, err := srv.Backend().AdvanceBooking(context.Background(), bookingID, SeedAdminID); err != nil || !advanced {
		t.Fatalf("advance booking: advanced=%v err=%v", advanced, err)
	}

	select {
	case event := <-events:
		if event.RecordID != bookingID || event.Kind != realtime.EventUpdate {
			t.Fatalf("event = %+v", event)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for change event")
	}
}

func TestServer_InvalidSubscriptionFilter(t *testing.T) {
	srv, err := New(context.Background(), Config{
		Addr:   "127.0.0.1:0",
		DBPath: filepath.Join(t.TempDir(), "devbackend.db"),
	})
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	runCtx, runCancel := context.WithCancel(context.Background())
	serveDone := make(chan error, 1)
	go func() {
		serveDone <- srv.Serve(runCtx)
	}()
	defer func() {
		runCancel()
		<-serveDone
	}()

	client, err := remote.Dial(context.Background(), srv.Addr(), remote.Options{Logf: t.Logf})
	if err != nil {
		t.Fatalf("dial devbackend: %v", err)
	}
	defer client.Close()

	_, err = client.OpenSubscription(context.Background(), realtime.Topic{
		Resource: storage.ResourceBookings,
		Filter:   `owner = "x"`,
	}, func(realtime.Event) {})
	if err == nil {
		t.Fatal("expected invalid filter error")
	}
}
