// Package identity computes the broker URL, client identifier, and topic
// paths derived from a device's Cloud IoT Core identity.
package identity

import (
	"fmt"
	"time"
)

const (
	// DefaultBridgeHostname is used when Params.BridgeHostname is empty.
	DefaultBridgeHostname = "mqtt.googleapis.com"
	// DefaultBridgePort is used when Params.BridgePort is zero.
	DefaultBridgePort = 8883
	// DefaultAuthTokenLifetime is used when Params.AuthTokenLifetime is zero.
	DefaultAuthTokenLifetime = time.Hour
	maxTCPPort               = 65535
	maxAuthTokenLifetime     = 24 * time.Hour
)

// Params is the raw, user-supplied configuration for a device identity.
type Params struct {
	ProjectID         string        `json:"project_id"`
	RegistryID        string        `json:"registry_id"`
	DeviceID          string        `json:"device_id"`
	CloudRegion       string        `json:"cloud_region"`
	BridgeHostname    string        `json:"bridge_hostname"`
	BridgePort        int           `json:"bridge_port"`
	AuthTokenLifetime time.Duration `json:"auth_token_lifetime"`
}

// SetDefaults fills in BridgeHostname, BridgePort, and AuthTokenLifetime
// when left at their zero value.
func (p *Params) SetDefaults() {
	if p.BridgeHostname == "" {
		p.BridgeHostname = DefaultBridgeHostname
	}
	if p.BridgePort == 0 {
		p.BridgePort = DefaultBridgePort
	}
	if p.AuthTokenLifetime == 0 {
		p.AuthTokenLifetime = DefaultAuthTokenLifetime
	}
}

// Validate checks that every required field is present and every bounded
// field is within range.
func (p Params) Validate() error {
	if p.ProjectID == "" {
		return fmt.Errorf("identity: project_id is required")
	}
	if p.RegistryID == "" {
		return fmt.Errorf("identity: registry_id is required")
	}
	if p.DeviceID == "" {
		return fmt.Errorf("identity: device_id is required")
	}
	if p.CloudRegion == "" {
		return fmt.Errorf("identity: cloud_region is required")
	}
	if p.BridgeHostname == "" {
		return fmt.Errorf("identity: bridge_hostname is required")
	}
	if p.BridgePort < 1 || p.BridgePort > maxTCPPort {
		return fmt.Errorf("identity: bridge_port must be in 1..%d, got %d", maxTCPPort, p.BridgePort)
	}
	if p.AuthTokenLifetime <= 0 || p.AuthTokenLifetime > maxAuthTokenLifetime {
		return fmt.Errorf("identity: auth_token_lifetime must be in (0, %s], got %s", maxAuthTokenLifetime, p.AuthTokenLifetime)
	}
	return nil
}

// Identity is the validated, immutable identity of a device together with
// its derived, cached strings.
type Identity struct {
	params Params

	brokerURL      string
	clientID       string
	telemetryTopic string
	stateTopic     string
	configTopic    string
	commandsPrefix string
}

// New validates params (after applying defaults) and precomputes the
// derived strings.
func New(params Params) (*Identity, error) {
	params.SetDefaults()
	if err := params.Validate(); err != nil {
		return nil, err
	}
	id := &Identity{
		params:         params,
		brokerURL:      fmt.Sprintf("ssl://%s:%d", params.BridgeHostname, params.BridgePort),
		clientID:       fmt.Sprintf("projects/%s/locations/%s/registries/%s/devices/%s", params.ProjectID, params.CloudRegion, params.RegistryID, params.DeviceID),
		telemetryTopic: fmt.Sprintf("/devices/%s/events", params.DeviceID),
		stateTopic:     fmt.Sprintf("/devices/%s/state", params.DeviceID),
		configTopic:    fmt.Sprintf("/devices/%s/config", params.DeviceID),
		commandsPrefix: fmt.Sprintf("/devices/%s/commands", params.DeviceID),
	}
	return id, nil
}

func (id *Identity) ProjectID() string                { return id.params.ProjectID }
func (id *Identity) AuthTokenLifetime() time.Duration { return id.params.AuthTokenLifetime }
func (id *Identity) BrokerURL() string                { return id.brokerURL }
func (id *Identity) ClientID() string                 { return id.clientID }
func (id *Identity) TelemetryTopic() string           { return id.telemetryTopic }
func (id *Identity) StateTopic() string               { return id.stateTopic }
func (id *Identity) ConfigTopic() string              { return id.configTopic }
func (id *Identity) CommandsPrefix() string           { return id.commandsPrefix }
