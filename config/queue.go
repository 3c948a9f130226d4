package config

import (
	"fmt"
	"strings"

	"github.com/nimbusiot/deviceclient/core/pipeline"
	"github.com/nimbusiot/deviceclient/core/queue"
)

// QueueConfig configures one of the pipeline's bounded queues.
type QueueConfig struct {
	Capacity int    `json:"capacity"`
	Policy   string `json:"policy"` // "head_drop" or "tail_reject"
}

// SetDefaults applies the defaults the facade itself would use.
func (c *QueueConfig) SetDefaults() {
	if c.Capacity == 0 {
		c.Capacity = 1000
	}
	if c.Policy == "" {
		c.Policy = "head_drop"
	}
}

// Validate checks that Policy names a known drop policy.
func (c QueueConfig) Validate() error {
	if c.Capacity <= 0 {
		return fmt.Errorf("config: queue capacity must be > 0, got %d", c.Capacity)
	}
	switch strings.ToLower(c.Policy) {
	case "head_drop", "tail_reject":
		return nil
	default:
		return fmt.Errorf("config: unknown queue policy %q", c.Policy)
	}
}

// Settings converts the configured values into pipeline.Settings.
func (c QueueConfig) Settings() pipeline.Settings {
	policy := queue.HeadDrop
	if strings.ToLower(c.Policy) == "tail_reject" {
		policy = queue.TailReject
	}
	return pipeline.Settings{Capacity: c.Capacity, Policy: policy}
}
