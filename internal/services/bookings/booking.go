// Package bookings builds the customer and admin booking views on top of the
// data-access core: cached queries, shared realtime invalidation and
// progressive dashboard loading.
package bookings

import (
	"strings"
	"time"
)

// Resources read by the views.
const (
	resourceBookings     = "bookings"
	resourceProfiles     = "profiles"
	resourceAdminActions = "admin_actions"
)

// StatusCompleted is the terminal booking status.
const StatusCompleted = "completed"

// StatusLabels maps booking statuses to display labels.
var StatusLabels = map[string]string{
	"placed":                   "Order Placed",
	"received_china_warehouse": "Received in China Warehouse",
	"processing_delivery":      "Processing for Delivery",
	"on_way_delivery":          "On the way to Delivery",
	"on_way_bd_airport":        "On the way to BD Airport",
	"received_bd_seaport":      "Received in BD Seaport",
	StatusCompleted:            "Completed",
}

// StatusLabel returns the display label for status, or status itself when
// unknown.
func StatusLabel(status string) string {
	if label, ok := StatusLabels[status]; ok {
		return label
	}
	return status
}

// Booking is one booking row as the views render it.
type Booking struct {
	ID              string
	BookingID       string
	UserID          string
	ItemName        string
	Category        string
	ShippingMethod  string
	DeliveryMethod  string
	City            string
	Status          string
	TotalWeight     float64
	TotalCarton     int
	TotalCharge     float64
	TrackingNumbers []string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// AdminAction is one audit-log entry.
type AdminAction struct {
	ID          string
	AdminID     string
	ActionType  string
	TargetType  string
	TargetID    string
	Description string
	CreatedAt   time.Time
}

func bookingFromRow(row map[string]any) Booking {
	b := Booking{
		ID:             stringField(row, "id"),
		BookingID:      stringField(row, "booking_id"),
		UserID:         stringField(row, "user_id"),
		ItemName:       stringField(row, "item_name"),
		Category:       stringField(row, "category"),
		ShippingMethod: stringField(row, "shipping_method"),
		DeliveryMethod: stringField(row, "delivery_method"),
		City:           stringField(row, "city"),
		Status:         stringField(row, "status"),
		TotalWeight:    numberField(row, "total_weight"),
		TotalCarton:    int(numberField(row, "total_carton")),
		TotalCharge:    numberField(row, "total_charge"),
		CreatedAt:      timeField(row, "created_at"),
		UpdatedAt:      timeField(row, "updated_at"),
	}
	if values, ok := row["tracking_numbers"].([]any); ok {
		for _, value := range values {
			if s, ok := value.(string); ok {
				b.TrackingNumbers = append(b.TrackingNumbers, s)
			}
		}
	}
	return b
}

func bookingsFromRows(rows []map[string]any) []Booking {
	out := make([]Booking, len(rows))
	for i, row := range rows {
		out[i] = bookingFromRow(row)
	}
	return out
}

func adminActionFromRow(row map[string]any) AdminAction {
	return AdminAction{
		ID:          stringField(row, "id"),
		AdminID:     stringField(row, "admin_id"),
		ActionType:  stringField(row, "action_type"),
		TargetType:  stringField(row, "target_type"),
		TargetID:    stringField(row, "target_id"),
		Description: stringField(row, "description"),
		CreatedAt:   timeField(row, "created_at"),
	}
}

func stringField(row map[string]any, key string) string {
	s, _ := row[key].(string)
	return s
}

func numberField(row map[string]any, key string) float64 {
	switch v := row[key].(type) {
	case float64:
		return v
	case int64:
		return float64(v)
	case int:
		return float64(v)
	default:
		return 0
	}
}

func timeField(row map[string]any, key string) time.Time {
	raw := stringField(row, key)
	if raw == "" {
		return time.Time{}
	}
	at, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}
	}
	return at
}

// Matches reports whether b matches a case-insensitive search over the
// booking reference, item name and category, and an optional exact status.
func (b Booking) Matches(search, status string) bool {
	if status != "" && b.Status != status {
		return false
	}
	search = strings.ToLower(strings.TrimSpace(search))
	if search == "" {
		return true
	}
	return strings.Contains(strings.ToLower(b.BookingID), search) ||
		strings.Contains(strings.ToLower(b.ItemName), search) ||
		strings.Contains(strings.ToLower(b.Category), search)
}

func filterBookings(all []Booking, search, status string) []Booking {
	out := make([]Booking, 0, len(all))
	for _, b := range all {
		if b.Matches(search, status) {
			out = append(out, b)
		}
	}
	return out
}
