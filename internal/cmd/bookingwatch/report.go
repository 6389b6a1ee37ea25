package bookingwatch

import (
	"errors"
	"sort"

	platformerrors "github.com/louisbranch/cargo.space/internal/platform/errors"
	errorsi18n "github.com/louisbranch/cargo.space/internal/platform/errors/i18n"
	"github.com/louisbranch/cargo.space/internal/services/bookings"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// reporter renders view state as log lines in the configured locale.
type reporter struct {
	p        *message.Printer
	messages *errorsi18n.Catalog
}

func newReporter(locale string) reporter {
	tag, err := language.Parse(locale)
	if err != nil {
		tag = language.English
	}
	return reporter{p: message.NewPrinter(tag), messages: errorsi18n.GetCatalog(locale)}
}

// failure renders err as a localized message followed by its detail.
func (r reporter) failure(err error) string {
	var domainErr *platformerrors.Error
	if !errors.As(err, &domainErr) {
		return r.messages.Format(errorsi18n.CodeUnknown, nil) + ": " + err.Error()
	}
	return r.messages.Format(string(domainErr.Code), domainErr.Metadata) + ": " + err.Error()
}

func (r reporter) progress(p bookings.DashboardProgress) string {
	return r.p.Sprintf("dashboard: %s (%.0f%%)", p.Step, p.Fraction*100)
}

func (r reporter) dashboard(s bookings.DashboardStats) []string {
	lines := []string{
		r.p.Sprintf("bookings: %d total, %d pending, %d completed", s.TotalBookings, s.PendingBookings, s.CompletedBookings),
		r.p.Sprintf("customers: %d", s.TotalCustomers),
		r.p.Sprintf("revenue: %.2f (average order %.2f)", s.TotalRevenue, s.AverageOrderValue),
		r.p.Sprintf("orders: %d this week, %d this month", s.WeeklyOrders, s.MonthlyOrders),
	}
	statuses := make([]string, 0, len(s.StatusBreakdown))
	for status := range s.StatusBreakdown {
		statuses = append(statuses, status)
	}
	sort.Strings(statuses)
	for _, status := range statuses {
		lines = append(lines, r.p.Sprintf("  %s: %d", bookings.StatusLabel(status), s.StatusBreakdown[status]))
	}
	for _, action := range s.RecentActivity {
		lines = append(lines, r.p.Sprintf("  activity %s: %s", action.CreatedAt.Format("2006-01-02 15:04"), action.Description))
	}
	return lines
}

func (r reporter) bookings(userID string, list []bookings.Booking) []string {
	lines := []string{r.p.Sprintf("%s has %d bookings", userID, len(list))}
	for _, b := range list {
		lines = append(lines, r.p.Sprintf("  %s %s: %s, charge %.2f", b.BookingID, b.ItemName, bookings.StatusLabel(b.Status), b.TotalCharge))
	}
	return lines
}
