package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config captures environment driven configuration values for the booking engine.
type Config struct {
	HTTPPort            int           `env:"BOOKING_HTTP_PORT" envDefault:"8080"`
	SQLiteDSN           string        `env:"BOOKING_SQLITE_DSN" envDefault:"file:bookings.db?_pragma=foreign_keys(1)"`
	PublicBaseURL       string        `env:"BOOKING_PUBLIC_BASE_URL" envDefault:"http://localhost:8080"`
	ConfirmationTTL     time.Duration `env:"BOOKING_CONFIRMATION_TTL" envDefault:"15m"`
	AttributionLookback time.Duration `env:"BOOKING_ATTRIBUTION_LOOKBACK" envDefault:"720h"`
	DispatchHorizon     time.Duration `env:"BOOKING_DISPATCH_HORIZON" envDefault:"5m"`
	SendTimeout         time.Duration `env:"BOOKING_SEND_TIMEOUT" envDefault:"10s"`
}

// Load parses configuration values from the current process environment.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}

	invalid := make([]string, 0, 2)
	if cfg.HTTPPort <= 0 {
		invalid = append(invalid, "BOOKING_HTTP_PORT")
	}
	if cfg.ConfirmationTTL <= 0 {
		invalid = append(invalid, "BOOKING_CONFIRMATION_TTL")
	}
	if cfg.AttributionLookback <= 0 {
		invalid = append(invalid, "BOOKING_ATTRIBUTION_LOOKBACK")
	}
	if cfg.DispatchHorizon <= 0 {
		invalid = append(invalid, "BOOKING_DISPATCH_HORIZON")
	}
	if cfg.SendTimeout <= 0 {
		invalid = append(invalid, "BOOKING_SEND_TIMEOUT")
	}
	if strings.TrimSpace(cfg.PublicBaseURL) == "" {
		invalid = append(invalid, "BOOKING_PUBLIC_BASE_URL")
	}

	if len(invalid) > 0 {
		return Config{}, fmt.Errorf("config: invalid values for %s", strings.Join(invalid, ", "))
	}

	return cfg, nil
}
