// Package bookingwatch parses booking watcher flags and runs a live view of
// one customer's bookings against a DataService backend.
package bookingwatch

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/louisbranch/cargo.space/internal/datacore/querycache"
	"github.com/louisbranch/cargo.space/internal/datacore/realtime"
	"github.com/louisbranch/cargo.space/internal/integration/remote"
	entrypoint "github.com/louisbranch/cargo.space/internal/platform/cmd"
	"github.com/louisbranch/cargo.space/internal/services/bookings"
	"go.opentelemetry.io/otel"
)

// Config holds bookingwatch command configuration.
type Config struct {
	DataAddr         string        `env:"DATA_ADDR" envDefault:"localhost:8090"`
	UserID           string        `env:"USER_ID"`
	SessionToken     string        `env:"SESSION_TOKEN"`
	QueryTTL         time.Duration `env:"QUERY_TTL" envDefault:"2m"`
	RealtimeDebounce time.Duration `env:"REALTIME_DEBOUNCE" envDefault:"1s"`
	Locale           string        `env:"LOCALE" envDefault:"en"`
	Dashboard        bool          `env:"DASHBOARD" envDefault:"true"`
}

// ParseConfig parses environment and flags into Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.StringVar(&cfg.DataAddr, "data-addr", cfg.DataAddr, "DataService gRPC address")
	fs.StringVar(&cfg.UserID, "user", cfg.UserID, "Customer whose bookings are watched")
	fs.StringVar(&cfg.SessionToken, "session", cfg.SessionToken, "Session token whose subject names the customer")
	fs.DurationVar(&cfg.QueryTTL, "ttl", cfg.QueryTTL, "How long cached query results stay fresh")
	fs.DurationVar(&cfg.RealtimeDebounce, "debounce", cfg.RealtimeDebounce, "Quiet period before a change burst triggers a refetch")
	fs.StringVar(&cfg.Locale, "locale", cfg.Locale, "Locale used to format figures")
	fs.BoolVar(&cfg.Dashboard, "dashboard", cfg.Dashboard, "Print the admin dashboard before watching")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run watches bookings until ctx is canceled.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceBookingWatch, func(ctx context.Context) error {
		return watch(ctx, cfg, log.Printf)
	})
}

func watch(ctx context.Context, cfg Config, logf func(string, ...any)) error {
	userID, err := resolveUserID(cfg.UserID, cfg.SessionToken)
	if err != nil {
		return err
	}

	client, err := remote.Dial(ctx, cfg.DataAddr, remote.Options{Logf: logf})
	if err != nil {
		return fmt.Errorf("dial data service: %w", err)
	}
	defer client.Close()

	mux := realtime.New(realtime.Config{
		Source:          client,
		DefaultDebounce: cfg.RealtimeDebounce,
		Logf:            logf,
	})
	defer mux.Close()

	deps := bookings.Deps{
		Data: client,
		Executor: querycache.New(querycache.Config{
			DefaultTTL:     cfg.QueryTTL,
			TracerProvider: otel.GetTracerProvider(),
		}),
		Realtime: mux,
		QueryTTL: cfg.QueryTTL,
		Debounce: cfg.RealtimeDebounce,
		Logf:     logf,
	}
	report := newReporter(cfg.Locale)

	if cfg.Dashboard {
		dashboard, err := bookings.NewAdminDashboard(deps)
		if err != nil {
			return err
		}
		stats, failed, err := dashboard.Load(ctx, func(p bookings.DashboardProgress) {
			logf("%s", report.progress(p))
		})
		if err != nil {
			return fmt.Errorf("load dashboard: %w", err)
		}
		for _, line := range report.dashboard(stats) {
			logf("%s", line)
		}
		if len(failed) > 0 {
			logf("dashboard steps failed: %v", failed)
		}
	}

	view, err := bookings.NewBookingsView(ctx, deps, userID, func(state querycache.State) {
		if state.Loading {
			return
		}
		if state.Err != nil {
			logf("bookings refresh failed: %s", report.failure(state.Err))
			return
		}
		list, _ := state.Data.([]bookings.Booking)
		for _, line := range report.bookings(userID, list) {
			logf("%s", line)
		}
	})
	if err != nil {
		return err
	}
	defer view.Close()

	if _, err := view.Load(ctx); err != nil {
		return fmt.Errorf("load bookings: %w", err)
	}
	<-ctx.Done()
	if errors.Is(ctx.Err(), context.Canceled) {
		return nil
	}
	return ctx.Err()
}
