package bookings

import (
	"context"
	"fmt"
	"time"

	"github.com/louisbranch/cargo.space/internal/datacore/progressive"
	"github.com/louisbranch/cargo.space/internal/datacore/querycache"
	"github.com/louisbranch/cargo.space/internal/integration/remote"
)

// Dashboard cache keys.
const (
	DashboardBookingsKey  = "admin-dashboard-bookings"
	DashboardCustomersKey = "admin-dashboard-customers"
	DashboardActivityKey  = "admin-dashboard-activity"
)

const (
	recentActivityWindow = 7 * 24 * time.Hour
	recentActivityLimit  = 10
	monthlyWindow        = 30 * 24 * time.Hour
)

// DashboardStats are the admin dashboard figures. Sections whose step
// failed keep their zero values.
type DashboardStats struct {
	TotalBookings     int
	PendingBookings   int
	CompletedBookings int
	TotalCustomers    int64
	TotalRevenue      float64
	AverageOrderValue float64
	StatusBreakdown   map[string]int
	WeeklyOrders      int
	MonthlyOrders     int
	RecentActivity    []AdminAction
}

// DashboardProgress is published after each dashboard step settles.
type DashboardProgress struct {
	Stats    DashboardStats
	Step     string
	Fraction float64
}

// AdminDashboard loads booking figures, the customer count and recent admin
// activity one after another.
type AdminDashboard struct {
	deps  Deps
	clock func() time.Time
}

// NewAdminDashboard creates a dashboard loader.
func NewAdminDashboard(deps Deps) (*AdminDashboard, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}
	return &AdminDashboard{deps: deps, clock: time.Now}, nil
}

// Load runs the dashboard steps in order. onProgress, when set, receives the
// partial figures after each step. Failed steps are returned in failed by
// name.
func (d *AdminDashboard) Load(ctx context.Context, onProgress func(DashboardProgress)) (stats DashboardStats, failed []string, err error) {
	if err := ctx.Err(); err != nil {
		return DashboardStats{}, nil, err
	}
	now := d.clock()
	steps := []progressive.Step{
		{Name: "Loading orders", Fetch: d.cached(DashboardBookingsKey, remote.Query{
			Resource: resourceBookings,
			Select:   []string{"status", "created_at", "total_charge"},
		}, func(result remote.Result) any {
			return bookingsFromRows(result.Rows)
		})},
		{Name: "Loading customers", Fetch: d.cached(DashboardCustomersKey, remote.Query{
			Resource:  resourceProfiles,
			Filter:    `role = "customer"`,
			CountOnly: true,
		}, func(result remote.Result) any {
			return result.Count
		})},
		{Name: "Loading recent activity", Fetch: d.cached(DashboardActivityKey, remote.Query{
			Resource: resourceAdminActions,
			Filter:   fmt.Sprintf("created_at >= timestamp(%q)", now.Add(-recentActivityWindow).UTC().Format(time.RFC3339)),
			OrderBy:  "created_at desc",
			Limit:    recentActivityLimit,
		}, func(result remote.Result) any {
			actions := make([]AdminAction, len(result.Rows))
			for i, row := range result.Rows {
				actions[i] = adminActionFromRow(row)
			}
			return actions
		})},
	}

	loader := progressive.Loader{Logf: d.deps.Logf}
	if onProgress != nil {
		loader.OnProgress = func(p progressive.Progress) {
			onProgress(DashboardProgress{
				Stats:    buildStats(p.Values(), now),
				Step:     p.CurrentStep,
				Fraction: p.Fraction,
			})
		}
	}
	result := loader.Run(ctx, steps)
	for _, i := range result.Failed() {
		failed = append(failed, steps[i].Name)
	}
	return buildStats(result.Values(), now), failed, nil
}

func (d *AdminDashboard) cached(key string, q remote.Query, decode func(remote.Result) any) func(context.Context) (any, error) {
	return func(ctx context.Context) (any, error) {
		return d.deps.Executor.Run(ctx, key, func(ctx context.Context) (any, error) {
			result, err := d.deps.Data.Execute(ctx, q)
			if err != nil {
				return nil, err
			}
			return decode(result), nil
		}, querycache.RunOptions{TTL: d.deps.QueryTTL})
	}
}

// buildStats derives the dashboard figures from the step values in order:
// bookings, customer count, recent activity. Nil values are skipped.
func buildStats(values []any, now time.Time) DashboardStats {
	stats := DashboardStats{StatusBreakdown: map[string]int{}}
	if len(values) > 0 {
		if all, ok := values[0].([]Booking); ok {
			applyBookingStats(&stats, all, now)
		}
	}
	if len(values) > 1 {
		if count, ok := values[1].(int64); ok {
			stats.TotalCustomers = count
		}
	}
	if len(values) > 2 {
		if actions, ok := values[2].([]AdminAction); ok {
			stats.RecentActivity = actions
		}
	}
	return stats
}

func applyBookingStats(stats *DashboardStats, all []Booking, now time.Time) {
	weekAgo := now.Add(-recentActivityWindow)
	monthAgo := now.Add(-monthlyWindow)
	stats.TotalBookings = len(all)
	for _, b := range all {
		if b.Status == StatusCompleted {
			stats.CompletedBookings++
		}
		stats.StatusBreakdown[b.Status]++
		stats.TotalRevenue += b.TotalCharge
		if !b.CreatedAt.Before(weekAgo) {
			stats.WeeklyOrders++
		}
		if !b.CreatedAt.Before(monthAgo) {
			stats.MonthlyOrders++
		}
	}
	stats.PendingBookings = stats.TotalBookings - stats.CompletedBookings
	if stats.TotalBookings > 0 {
		stats.AverageOrderValue = stats.TotalRevenue / float64(stats.TotalBookings)
	}
}
