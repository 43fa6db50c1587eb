package cli

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Config holds environment-sourced defaults. Flags take precedence:
// the parsed values seed the flag defaults, so an explicit flag always
// wins.
type Config struct {
	// Mode is the default reduction mode (WEFT_MODE).
	Mode string `env:"WEFT_MODE" envDefault:"strict"`
	// Format is the default output format (WEFT_FORMAT).
	Format string `env:"WEFT_FORMAT" envDefault:"text"`
	// ClockDB is an optional SQLite path for durable clock checkpoints
	// (WEFT_CLOCK_DB).
	ClockDB string `env:"WEFT_CLOCK_DB"`
	// NodeID names this process as a log participant (WEFT_NODE_ID).
	NodeID string `env:"WEFT_NODE_ID" envDefault:"weft-cli"`
}

// LoadConfig reads configuration from the environment.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parsing environment: %w", err)
	}
	return &cfg, nil
}
