package bookingwatch

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	platformerrors "github.com/louisbranch/cargo.space/internal/platform/errors"
	"github.com/louisbranch/cargo.space/internal/services/bookings"
	server "github.com/louisbranch/cargo.space/internal/services/devbackend/app"
)

func TestParseConfigDefaults(t *testing.T) {
	fs := flag.NewFlagSet("bookingwatch", flag.ContinueOnError)
	cfg, err := ParseConfig(fs, nil)
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.DataAddr != "localhost:8090" {
		t.Fatalf("data addr = %q, want localhost:8090", cfg.DataAddr)
	}
	if cfg.QueryTTL != 2*time.Minute || cfg.RealtimeDebounce != time.Second {
		t.Fatalf("ttl = %v debounce = %v, want 2m and 1s", cfg.QueryTTL, cfg.RealtimeDebounce)
	}
	if cfg.Locale != "en" || !cfg.Dashboard {
		t.Fatalf("cfg = %+v, want en locale with dashboard", cfg)
	}
}

func TestParseConfigFlagsOverrideEnv(t *testing.T) {
	t.Setenv("CARGO_SPACE_USER_ID", "env-user")
	t.Setenv("CARGO_SPACE_QUERY_TTL", "10s")

	fs := flag.NewFlagSet("bookingwatch", flag.ContinueOnError)
	cfg, err := ParseConfig(fs, []string{"-user", "flag-user", "-dashboard=false"})
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.UserID != "flag-user" {
		t.Fatalf("user = %q, want flag-user", cfg.UserID)
	}
	if cfg.QueryTTL != 10*time.Second {
		t.Fatalf("ttl = %v, want 10s", cfg.QueryTTL)
	}
	if cfg.Dashboard {
		t.Fatal("expected dashboard disabled")
	}
}

func signedToken(t *testing.T, subject string) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{Subject: subject}).SignedString([]byte("test-key"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

func TestResolveUserID(t *testing.T) {
	tests := []struct {
		name    string
		userID  string
		token   string
		want    string
		wantErr bool
	}{
		{name: "explicit user wins", userID: " u1 ", token: signedToken(t, "u2"), want: "u1"},
		{name: "token subject", token: signedToken(t, "u2"), want: "u2"},
		{name: "token without subject", token: signedToken(t, ""), wantErr: true},
		{name: "malformed token", token: "not-a-jwt", wantErr: true},
		{name: "nothing", wantErr: true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := resolveUserID(tc.userID, tc.token)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("resolveUserID = %q, want error", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("resolveUserID: %v", err)
			}
			if got != tc.want {
				t.Fatalf("resolveUserID = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestResolveUserIDRequiresInput(t *testing.T) {
	if _, err := resolveUserID("", "  "); !errors.Is(err, errUserRequired) {
		t.Fatalf("err = %v, want errUserRequired", err)
	}
}

func TestReporterFormatsWithLocale(t *testing.T) {
	r := newReporter("en")
	lines := r.dashboard(bookings.DashboardStats{
		TotalBookings:   1200,
		TotalCustomers:  3,
		TotalRevenue:    1234.5,
		StatusBreakdown: map[string]int{"placed": 2, "completed": 1},
	})
	if lines[0] != "bookings: 1,200 total, 0 pending, 0 completed" {
		t.Fatalf("bookings line = %q", lines[0])
	}
	if !strings.HasPrefix(lines[2], "revenue: 1,234.50") {
		t.Fatalf("revenue line = %q", lines[2])
	}
	if lines[4] != "  Completed: 1" {
		t.Fatalf("first status line = %q, want sorted breakdown", lines[4])
	}
}

func TestReporterFallsBackOnBadLocale(t *testing.T) {
	r := newReporter("???")
	got := r.progress(bookings.DashboardProgress{Step: "Loading orders", Fraction: 1.0 / 3})
	if got != "dashboard: Loading orders (33%)" {
		t.Fatalf("progress = %q", got)
	}
}

func TestReporterLocalizesFailures(t *testing.T) {
	cause := errors.New("connection refused")
	err := platformerrors.WrapWithMetadata(platformerrors.CodeFetchFailed, "fetch bookings-u1",
		map[string]string{"cache_key": "bookings-u1"}, cause)

	got := newReporter("en").failure(fmt.Errorf("load: %w", err))
	if !strings.HasPrefix(got, "Could not load bookings-u1: ") {
		t.Fatalf("failure = %q", got)
	}
	if got := newReporter("en").failure(cause); got != "Something went wrong: connection refused" {
		t.Fatalf("plain failure = %q", got)
	}
	if got := newReporter("bn").failure(err); !strings.HasPrefix(got, "bookings-u1 লোড করা যায়নি") {
		t.Fatalf("bn failure = %q", got)
	}
}

type logCapture struct {
	mu    sync.Mutex
	lines []string
	seen  chan struct{}
	match string
	once  sync.Once
}

func (c *logCapture) logf(format string, args ...any) {
	line := fmt.Sprintf(format, args...)
	c.mu.Lock()
	c.lines = append(c.lines, line)
	c.mu.Unlock()
	if strings.Contains(line, c.match) {
		c.once.Do(func() { close(c.seen) })
	}
}

func (c *logCapture) contains(substr string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, line := range c.lines {
		if strings.Contains(line, substr) {
			return true
		}
	}
	return false
}

func TestWatchAgainstDevBackend(t *testing.T) {
	srv, err := server.New(context.Background(), server.Config{
		Addr:   "127.0.0.1:0",
		DBPath: filepath.Join(t.TempDir(), "devbackend.db"),
		Seed:   true,
	})
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	serveCtx, stopServe := context.WithCancel(context.Background())
	serveDone := make(chan error, 1)
	go func() { serveDone <- srv.Serve(serveCtx) }()
	t.Cleanup(func() {
		stopServe()
		<-serveDone
	})

	capture := &logCapture{seen: make(chan struct{}), match: server.SeedCustomerID + " has 2 bookings"}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- watch(ctx, Config{
			DataAddr:         srv.Addr(),
			SessionToken:     signedToken(t, server.SeedCustomerID),
			QueryTTL:         time.Minute,
			RealtimeDebounce: 10 * time.Millisecond,
			Locale:           "en",
			Dashboard:        true,
		}, capture.logf)
	}()

	select {
	case <-capture.seen:
	case err := <-done:
		t.Fatalf("watch returned early: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for bookings report")
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("watch: %v", err)
	}
	if !capture.contains("customers: 2") {
		t.Fatalf("missing customer count in %v", capture.lines)
	}
	if !capture.contains("dashboard: Loading recent activity (100%)") {
		t.Fatalf("missing final progress line in %v", capture.lines)
	}
}
