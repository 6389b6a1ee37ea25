// Package main watches a customer's bookings through the DataService.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	bookingwatchcmd "github.com/louisbranch/cargo.space/internal/cmd/bookingwatch"
)

func main() {
	cfg, err := bookingwatchcmd.ParseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		log.Fatalf("parse flags: %v", err)
	}
	log.SetPrefix("[BOOKINGWATCH] ")
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := bookingwatchcmd.Run(ctx, cfg); err != nil {
		log.Fatalf("failed to watch: %v", err)
	}
}
