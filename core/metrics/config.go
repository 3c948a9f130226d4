package metrics

import "github.com/nimbusiot/deviceclient/core/factory"

// Config defines the configured set of metrics sinks.
type Config struct {
	Sinks []factory.ModuleConfig `json:"sinks"`
}
