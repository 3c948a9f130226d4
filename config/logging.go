package config

import "fmt"

// LoggingConfig configures the zerolog-backed logger every component uses.
type LoggingConfig struct {
	// Level is one of "debug", "info", "warn", "error".
	Level string `json:"level"`
	// Format is "console" (human-readable) or "json" (structured).
	Format string `json:"format"`
}

// SetDefaults applies sane defaults.
func (c *LoggingConfig) SetDefaults() {
	if c.Level == "" {
		c.Level = "info"
	}
	if c.Format == "" {
		c.Format = "json"
	}
}

// Validate checks that Level and Format name known values.
func (c LoggingConfig) Validate() error {
	switch c.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: unknown log level %q", c.Level)
	}
	switch c.Format {
	case "console", "json":
	default:
		return fmt.Errorf("config: unknown log format %q", c.Format)
	}
	return nil
}
