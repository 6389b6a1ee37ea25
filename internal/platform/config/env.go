package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// EnvPrefix is prepended to every env tag read by ParseEnv.
const EnvPrefix = "CARGO_SPACE_"

// ParseEnv loads configuration from CARGO_SPACE_-prefixed environment
// variables. A struct tagged `env:"DEVBACKEND_ADDR"` reads
// CARGO_SPACE_DEVBACKEND_ADDR.
func ParseEnv(target any) error {
	if err := env.ParseWithOptions(target, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}
