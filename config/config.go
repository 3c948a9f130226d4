// Package config assembles the on-disk/environment configuration for the
// device client: identity, transport, queues, backoff, metrics sinks, and
// logging.
package config

import (
	"crypto"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/nimbusiot/deviceclient/core/factory"
	"github.com/nimbusiot/deviceclient/core/identity"
)

// Config is the top-level configuration for a device client process.
type Config struct {
	Identity       identity.Params        `json:"identity"`
	PrivateKeyPath string                 `json:"private_key_path"`
	MQTT           MQTTConfig             `json:"mqtt"`
	Backoff        BackoffConfig          `json:"backoff"`
	TelemetryQueue QueueConfig            `json:"telemetry_queue"`
	TopicQueue     QueueConfig            `json:"topic_queue"`
	Metrics        []factory.ModuleConfig `json:"metrics"`
	Logging        LoggingConfig          `json:"logging"`
}

// Load reads a YAML or JSON config file at path, applies K_-prefixed
// environment overrides, defaults every sub-config, and validates the
// result.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	ext := strings.ToLower(filepath.Ext(path))
	var parser koanf.Parser
	switch ext {
	case ".yaml", ".yml":
		parser = yaml.Parser()
	case ".json":
		parser = json.Parser()
	default:
		return nil, fmt.Errorf("config: unsupported config format: %s", ext)
	}
	if err := k.Load(file.Provider(path), parser); err != nil {
		return nil, err
	}
	// Optional environment overrides, e.g. K_IDENTITY__DEVICE_ID=dev-1.
	if err := k.Load(env.Provider("K_", "__", func(s string) string {
		s = strings.TrimPrefix(strings.ToLower(s), "k_")
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, err
	}

	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, err
	}

	cfg.Identity.SetDefaults()
	cfg.MQTT.SetDefaults()
	cfg.Backoff.SetDefaults()
	cfg.TelemetryQueue.SetDefaults()
	cfg.TopicQueue.SetDefaults()
	cfg.Logging.SetDefaults()

	if err := cfg.Identity.Validate(); err != nil {
		return nil, err
	}
	if cfg.PrivateKeyPath == "" {
		return nil, fmt.Errorf("config: private_key_path is required")
	}
	if err := cfg.MQTT.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Backoff.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.TelemetryQueue.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.TopicQueue.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Logging.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadPrivateKey reads and parses the PEM-encoded private key named by
// PrivateKeyPath. It accepts an RSA key (for RS256 tokens) or a P-256
// ECDSA key (for ES256 tokens); any other key type or curve is rejected by
// the token minter itself.
func (c Config) LoadPrivateKey() (crypto.Signer, error) {
	raw, err := os.ReadFile(c.PrivateKeyPath)
	if err != nil {
		return nil, fmt.Errorf("config: read private key: %w", err)
	}
	if key, err := jwt.ParseRSAPrivateKeyFromPEM(raw); err == nil {
		return key, nil
	}
	key, err := jwt.ParseECPrivateKeyFromPEM(raw)
	if err != nil {
		return nil, fmt.Errorf("config: private key is neither a valid RSA nor ECDSA PEM block: %w", err)
	}
	return key, nil
}
