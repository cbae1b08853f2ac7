package hosted

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

// Config holds hosted kernel configuration.
type Config struct {
	// MaxPendingEvents bounds the upcall delivery queue. Deliveries
	// beyond the bound are dropped and reported to the caller.
	MaxPendingEvents int `envconfig:"HOSTED_MAX_PENDING_EVENTS" default:"64"`

	// StrictSlots rejects subscribing an occupied slot and allowing a
	// region that overlaps one already shared with any driver. Real
	// kernels replace registrations silently; strict mode surfaces
	// double-ownership bugs in userland handle discipline.
	StrictSlots bool `envconfig:"HOSTED_STRICT_SLOTS" default:"true"`

	// Trace logs every trap at debug level.
	Trace bool `envconfig:"HOSTED_TRACE" default:"false"`

	// Logging controls the hosted kernel's own logger.
	LogLevel       string `envconfig:"HOSTED_LOG_LEVEL" default:"info"`
	LogDevelopment bool   `envconfig:"HOSTED_LOG_DEV" default:"false"`
}

// LoadConfig loads configuration from environment variables.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load hosted config: %w", err)
	}
	return &cfg, nil
}

// LoadConfigOrDefault loads configuration from environment or returns
// the default.
func LoadConfigOrDefault() *Config {
	cfg, err := LoadConfig()
	if err != nil {
		return DefaultConfig()
	}
	return cfg
}

// DefaultConfig returns default configuration.
func DefaultConfig() *Config {
	return &Config{
		MaxPendingEvents: 64,
		StrictSlots:      true,
		Trace:            false,
		LogLevel:         "info",
		LogDevelopment:   false,
	}
}
