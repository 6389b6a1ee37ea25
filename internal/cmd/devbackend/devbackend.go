// Package devbackend parses development backend flags and launches the
// service.
package devbackend

import (
	"context"
	"flag"
	"time"

	entrypoint "github.com/louisbranch/cargo.space/internal/platform/cmd"
	server "github.com/louisbranch/cargo.space/internal/services/devbackend/app"
)

// Config holds devbackend command configuration.
type Config struct {
	Addr             string        `env:"DEVBACKEND_ADDR" envDefault:"localhost:8090"`
	DBPath           string        `env:"DEVBACKEND_DB_PATH" envDefault:"data/devbackend.db"`
	Seed             bool          `env:"DEVBACKEND_SEED"`
	SimulateInterval time.Duration `env:"DEVBACKEND_SIMULATE_INTERVAL"`
}

// ParseConfig parses environment and flags into Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.StringVar(&cfg.Addr, "addr", cfg.Addr, "The DataService gRPC listen address")
	fs.StringVar(&cfg.DBPath, "db", cfg.DBPath, "The SQLite database path")
	fs.BoolVar(&cfg.Seed, "seed", cfg.Seed, "Insert demo data into an empty database")
	fs.DurationVar(&cfg.SimulateInterval, "simulate", cfg.SimulateInterval, "Advance a random booking this often (0 disables)")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run starts the development DataService backend.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceDevBackend, func(ctx context.Context) error {
		return server.Run(ctx, server.Config{
			Addr:             cfg.Addr,
			DBPath:           cfg.DBPath,
			Seed:             cfg.Seed,
			SimulateInterval: cfg.SimulateInterval,
		})
	})
}
