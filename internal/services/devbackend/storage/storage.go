// Package storage defines the records served by the development backend.
package storage

import (
	"errors"
	"time"
)

var (
	// ErrNotFound indicates a requested record is missing.
	ErrNotFound = errors.New("record not found")
	// ErrAlreadyExists indicates a uniqueness-constrained record already exists.
	ErrAlreadyExists = errors.New("record already exists")
	// ErrUnknownResource indicates a query for a resource the backend does not serve.
	ErrUnknownResource = errors.New("unknown resource")
	// ErrInvalidQuery indicates a malformed filter, ordering or column list.
	ErrInvalidQuery = errors.New("invalid query")
)

// Resources served by the development backend.
const (
	ResourceBookings      = "bookings"
	ResourceProfiles      = "profiles"
	ResourceAdminActions  = "admin_actions"
	ResourceStatusHistory = "booking_status_history"
	ResourcePricing       = "dynamic_pricing"
)

// Booking statuses in delivery order.
var BookingStatuses = []string{
	"placed",
	"received_china_warehouse",
	"on_way_bd_airport",
	"received_bd_seaport",
	"processing_delivery",
	"on_way_delivery",
	"completed",
}

// ChangeKind names the mutation behind a Change.
type ChangeKind string

const (
	ChangeInsert ChangeKind = "INSERT"
	ChangeUpdate ChangeKind = "UPDATE"
	ChangeDelete ChangeKind = "DELETE"
)

// Record is one row keyed by column name. Timestamps are time.Time, JSON
// columns are decoded, booleans are bool.
type Record map[string]any

// ID returns the record's primary key.
func (r Record) ID() string {
	id, _ := r["id"].(string)
	return id
}

// Change is one committed mutation. Record holds the row after the change,
// or the removed row for deletes.
type Change struct {
	Resource string
	Kind     ChangeKind
	Record   Record
	At       time.Time
}

// Query selects records from one resource.
type Query struct {
	Resource string
	Columns  []string
	// Filter is an AIP-160 expression.
	Filter string
	// OrderBy is an AIP-132 ordering such as "created_at desc".
	OrderBy   string
	Limit     int
	CountOnly bool
}

// Result is the outcome of a Query.
type Result struct {
	Records []Record
	Count   int64
}

// Booking is one shipment booking.
type Booking struct {
	ID              string
	BookingID       string
	UserID          string
	ItemName        string
	Category        string
	ShippingMethod  string
	DeliveryMethod  string
	ShippingMark    string
	SpecialNotes    string
	City            string
	District        string
	Street          string
	Status          string
	TotalWeight     float64
	TotalQuantity   int
	TotalCarton     int
	TotalCharge     float64
	TrackingNumbers []string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Profile is one user profile.
type Profile struct {
	ID        string
	UserID    string
	Username  string
	FirstName string
	LastName  string
	Phone     string
	Role      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// AdminAction is one audit-log entry written by an administrator.
type AdminAction struct {
	ID          string
	AdminID     string
	ActionType  string
	TargetType  string
	TargetID    string
	Description string
	OldValues   map[string]any
	NewValues   map[string]any
	CreatedAt   time.Time
}

// StatusUpdate moves a booking to a new status and records the history row.
type StatusUpdate struct {
	BookingID string
	NewStatus string
	ChangedBy string
	Notes     string
}

// Pricing is one weight band of the dynamic price list.
type Pricing struct {
	ID             string
	ShippingMethod string
	WeightFrom     float64
	// WeightTo is zero for the open-ended top band.
	WeightTo   float64
	PricePerKg float64
	Currency   string
	IsActive   bool
}
