package server

import (
	"context"
	"fmt"

	"github.com/louisbranch/cargo.space/internal/services/devbackend/storage"
)

// Seed user ids, stable so clients can subscribe to them.
const (
	SeedCustomerID = "customer-1"
	SeedAdminID    = "admin-1"
)

var seedProfiles = []storage.Profile{
	{UserID: SeedCustomerID, Username: "rahim", FirstName: "Rahim", LastName: "Uddin", Phone: "+8801700000001", Role: "customer"},
	{UserID: "customer-2", Username: "nadia", FirstName: "Nadia", LastName: "Islam", Phone: "+8801700000002", Role: "customer"},
	{UserID: SeedAdminID, Username: "ops", FirstName: "Operations", Role: "admin"},
}

var seedPricing = []storage.Pricing{
	{ShippingMethod: "air", WeightFrom: 0, WeightTo: 10, PricePerKg: 750, IsActive: true},
	{ShippingMethod: "air", WeightFrom: 10, PricePerKg: 700, IsActive: true},
	{ShippingMethod: "sea", WeightFrom: 0, WeightTo: 100, PricePerKg: 220, IsActive: true},
	{ShippingMethod: "sea", WeightFrom: 100, PricePerKg: 180, IsActive: true},
}

var seedBookings = []storage.Booking{
	{UserID: SeedCustomerID, ItemName: "Ceramic mugs", Category: "kitchen", ShippingMethod: "air", DeliveryMethod: "home",
		City: "Dhaka", District: "Gulshan", Street: "Road 11", TotalWeight: 8, TotalQuantity: 48, TotalCarton: 2, TotalCharge: 6000},
	{UserID: SeedCustomerID, ItemName: "LED desk lamps", Category: "electronics", ShippingMethod: "sea", DeliveryMethod: "pickup",
		City: "Chattogram", District: "Agrabad", Street: "CDA Avenue", TotalWeight: 140, TotalQuantity: 200, TotalCarton: 10, TotalCharge: 25200},
	{UserID: "customer-2", ItemName: "Cotton fabric", Category: "textiles", ShippingMethod: "sea", DeliveryMethod: "home",
		City: "Dhaka", District: "Mirpur", Street: "Section 10", TotalWeight: 320, TotalQuantity: 40, TotalCarton: 16, TotalCharge: 57600},
	{UserID: "customer-2", ItemName: "Phone cases", Category: "accessories", ShippingMethod: "air", DeliveryMethod: "home",
		City: "Sylhet", District: "Zindabazar", Street: "Main Road", TotalWeight: 12, TotalQuantity: 500, TotalCarton: 3, TotalCharge: 8400,
		TrackingNumbers: []string{"SF1234567890"}},
}

// Seed loads demo profiles, pricing and bookings. It does nothing when
// bookings already exist.
func Seed(ctx context.Context, backend *Backend) error {
	existing, err := backend.store.Query(ctx, storage.Query{Resource: storage.ResourceBookings, CountOnly: true})
	if err != nil {
		return fmt.Errorf("count bookings: %w", err)
	}
	if existing.Count > 0 {
		return nil
	}
	for _, profile := range seedProfiles {
		if _, err := backend.UpsertProfile(ctx, profile); err != nil {
			return fmt.Errorf("seed profile %s: %w", profile.UserID, err)
		}
	}
	for _, pricing := range seedPricing {
		if _, err := backend.UpsertPricing(ctx, pricing); err != nil {
			return fmt.Errorf("seed pricing %s: %w", pricing.ShippingMethod, err)
		}
	}
	for _, booking := range seedBookings {
		if _, err := backend.CreateBooking(ctx, booking); err != nil {
			return fmt.Errorf("seed booking %s: %w", booking.ItemName, err)
		}
	}
	return nil
}
