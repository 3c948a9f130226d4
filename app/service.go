// Package app wires a loaded configuration into a running device client:
// identity, token minter, Paho transport, metrics sinks, and the public
// facade, exposing the same New/Run/Close shape the CLI drives.
package app

import (
	"context"

	"github.com/nimbusiot/deviceclient/client"
	"github.com/nimbusiot/deviceclient/config"
	"github.com/nimbusiot/deviceclient/core/identity"
	coremetrics "github.com/nimbusiot/deviceclient/core/metrics"
	"github.com/nimbusiot/deviceclient/core/token"
	"github.com/nimbusiot/deviceclient/infra/logger"
	"github.com/nimbusiot/deviceclient/infra/mqtt"
	"github.com/nimbusiot/deviceclient/internal/eventbus"
)

// Service orchestrates a Client for the lifetime of a process.
type Service struct {
	Client *client.Client
	bus    *eventbus.Bus
	log    logger.Logger
}

// New builds a Service from a loaded configuration.
func New(cfg *config.Config) (*Service, error) {
	if err := logger.ConfigureGlobal(cfg.Logging.Level, cfg.Logging.Format); err != nil {
		return nil, err
	}
	log := logger.New("service")

	id, err := identity.New(cfg.Identity)
	if err != nil {
		return nil, err
	}

	key, err := cfg.LoadPrivateKey()
	if err != nil {
		return nil, err
	}
	minter, err := token.New(key, id.ProjectID(), id.AuthTokenLifetime(), nil)
	if err != nil {
		return nil, err
	}

	transport, err := mqtt.NewPahoTransport(mqtt.Config{
		Broker:         id.BrokerURL(),
		ClientID:       id.ClientID(),
		UseTLS:         cfg.MQTT.TLSEnabled(),
		CABundle:       cfg.MQTT.CABundle,
		ConnectTimeout: cfg.MQTT.ConnectTimeout,
		KeepAlive:      cfg.MQTT.KeepAlive,
	})
	if err != nil {
		return nil, err
	}

	sink, err := coremetrics.NewMetricsSink(cfg.Metrics)
	if err != nil {
		return nil, err
	}

	backoff, err := cfg.Backoff.Build()
	if err != nil {
		return nil, err
	}

	bus := eventbus.New()

	c, err := client.New(transport, minter, id, client.Options{
		TelemetryQueue:  cfg.TelemetryQueue.Settings(),
		TopicEventQueue: cfg.TopicQueue.Settings(),
		Backoff:         backoff,
		Logger:          log,
		Metrics:         sink,
		Bus:             bus,
	})
	if err != nil {
		return nil, err
	}

	return &Service{Client: c, bus: bus, log: log}, nil
}

// Run connects the client and blocks until the context is cancelled.
func (s *Service) Run(ctx context.Context) error {
	s.Client.Connect()
	<-ctx.Done()
	return nil
}

// Close disconnects the client and releases its resources.
func (s *Service) Close() error {
	err := s.Client.Close()
	s.bus.Close()
	return err
}
