package publisher

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Default pacing values.
const (
	DefaultMinPublishInterval = 1010 * time.Millisecond
	DefaultRetryInterval      = 30 * time.Second
	DefaultPollInterval       = 10 * time.Millisecond
	DefaultProbeInterval      = time.Second
)

// Config holds the configuration for the publisher.
type Config struct {
	MinPublishInterval time.Duration `env:"PUBLISH_MIN_INTERVAL"   envDefault:"1010ms"` // Minimum time between two publish attempts
	RetryInterval      time.Duration `env:"PUBLISH_RETRY_INTERVAL" envDefault:"30s"`    // Wait after a failed publish
	PollInterval       time.Duration `env:"PUBLISH_POLL_INTERVAL"  envDefault:"10ms"`   // Idle time between state machine steps
	ProbeInterval      time.Duration `env:"PUBLISH_PROBE_INTERVAL" envDefault:"1s"`     // Minimum time between reachability probes after a negative one
	PublishTimeout     time.Duration `env:"PUBLISH_TIMEOUT"        envDefault:"0s"`     // Per publish deadline, 0 waits for the sink
	Paused             bool          `env:"PUBLISH_PAUSED"         envDefault:"false"`  // Start with publishing paused
}

// DefaultConfig returns a Config with the default pacing.
func DefaultConfig() Config {
	return Config{
		MinPublishInterval: DefaultMinPublishInterval,
		RetryInterval:      DefaultRetryInterval,
		PollInterval:       DefaultPollInterval,
		ProbeInterval:      DefaultProbeInterval,
	}
}

// LoadConfig reads the publisher configuration from environment variables.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse publisher config: %w", err)
	}
	return cfg, cfg.Validate()
}

// Validate checks that the intervals are usable.
func (c Config) Validate() error {
	if c.MinPublishInterval < 0 {
		return fmt.Errorf("min publish interval must be >= 0, got %s", c.MinPublishInterval)
	}
	if c.RetryInterval <= 0 {
		return fmt.Errorf("retry interval must be > 0, got %s", c.RetryInterval)
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be > 0, got %s", c.PollInterval)
	}
	if c.ProbeInterval < 0 {
		return errors.New("probe interval must be >= 0")
	}
	if c.PublishTimeout < 0 {
		return errors.New("publish timeout must be >= 0")
	}
	return nil
}
