package config

import (
	"fmt"
	"time"
)

// MQTTConfig configures the Paho-backed transport. Broker address and
// client ID are derived from device identity, not configured here.
//
// UseTLS is a *bool, not a bool: the wire protocol runs over TLS by
// default, but a plain bool's zero value can't distinguish "not set in the
// file, default to true" from "explicitly set to false". A nil UseTLS
// defaults to true in SetDefaults; an explicit `"use_tls": false` is
// honored.
type MQTTConfig struct {
	UseTLS         *bool         `json:"use_tls"`
	CABundle       string        `json:"ca_bundle"`
	ConnectTimeout time.Duration `json:"connect_timeout"`
	KeepAlive      time.Duration `json:"keep_alive"`
}

// SetDefaults applies the defaults the transport itself would use.
func (c *MQTTConfig) SetDefaults() {
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = 10 * time.Second
	}
	if c.KeepAlive == 0 {
		c.KeepAlive = 30 * time.Second
	}
	if c.UseTLS == nil {
		enabled := true
		c.UseTLS = &enabled
	}
}

// Validate checks that ConnectTimeout and KeepAlive are positive. It does
// not check CABundle; an empty bundle means the system roots are trusted.
func (c MQTTConfig) Validate() error {
	if c.ConnectTimeout <= 0 {
		return fmt.Errorf("config: mqtt connect_timeout must be > 0")
	}
	if c.KeepAlive <= 0 {
		return fmt.Errorf("config: mqtt keep_alive must be > 0")
	}
	return nil
}

// TLSEnabled reports whether TLS is enabled, treating an unset UseTLS (e.g.
// before SetDefaults has run) as enabled.
func (c MQTTConfig) TLSEnabled() bool {
	return c.UseTLS == nil || *c.UseTLS
}
