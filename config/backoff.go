package config

import (
	"fmt"
	"time"

	"github.com/nimbusiot/deviceclient/core/backoff"
)

// BackoffConfig configures the supervisor's reconnect backoff.
type BackoffConfig struct {
	Initial time.Duration `json:"initial"`
	Max     time.Duration `json:"max"`
	Jitter  time.Duration `json:"jitter"`
}

// SetDefaults applies the defaults the facade itself would use.
func (c *BackoffConfig) SetDefaults() {
	if c.Initial == 0 {
		c.Initial = time.Second
	}
	if c.Max == 0 {
		c.Max = 30 * time.Second
	}
	if c.Jitter == 0 {
		c.Jitter = 500 * time.Millisecond
	}
}

// Validate checks the bounds backoff.New itself enforces.
func (c BackoffConfig) Validate() error {
	if c.Initial <= 0 {
		return fmt.Errorf("config: backoff initial must be > 0")
	}
	if c.Max < c.Initial {
		return fmt.Errorf("config: backoff max must be >= initial")
	}
	if c.Jitter < 0 {
		return fmt.Errorf("config: backoff jitter must be >= 0")
	}
	return nil
}

// Build constructs a *backoff.Bounded from the configured values.
func (c BackoffConfig) Build() (*backoff.Bounded, error) {
	return backoff.New(c.Initial, c.Max, c.Jitter)
}
