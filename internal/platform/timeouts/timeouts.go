// Package timeouts defines shared timeout constants used across commands and
// the data-access adapters.
package timeouts

import "time"

// GRPCDial caps the wait time when dialing the data backend.
const GRPCDial = 2 * time.Second

// GRPCRequest caps one unary DataService call.
const GRPCRequest = 5 * time.Second

// SubscriptionOpen caps the wait for an upstream change stream to be
// acknowledged.
const SubscriptionOpen = 3 * time.Second

// SubscriptionRetry is the delay before a dropped change stream reconnects.
const SubscriptionRetry = time.Second

// Shutdown limits how long a server waits for in-flight calls during graceful
// shutdown.
const Shutdown = 5 * time.Second
