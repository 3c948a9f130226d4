// Package client implements the public facade over the connection
// supervisor and outbound pipeline: the single entry point an application
// uses to connect a device, publish telemetry, state, and topic events, and
// receive configuration and command messages.
package client

import (
	"fmt"
	"time"

	"github.com/nimbusiot/deviceclient/core/backoff"
	"github.com/nimbusiot/deviceclient/core/executor"
	"github.com/nimbusiot/deviceclient/core/identity"
	"github.com/nimbusiot/deviceclient/core/inbound"
	"github.com/nimbusiot/deviceclient/core/logger"
	"github.com/nimbusiot/deviceclient/core/metrics"
	"github.com/nimbusiot/deviceclient/core/model"
	"github.com/nimbusiot/deviceclient/core/pipeline"
	"github.com/nimbusiot/deviceclient/core/queue"
	"github.com/nimbusiot/deviceclient/core/supervisor"
	"github.com/nimbusiot/deviceclient/internal/eventbus"
)

const (
	defaultQueueCapacity = 1000
	defaultBackoffInit   = time.Second
	defaultBackoffMax    = 30 * time.Second
	defaultBackoffJitter = 500 * time.Millisecond
)

// Options configures optional behavior of a Client. Every field has a
// sensible default.
type Options struct {
	TelemetryQueue  pipeline.Settings
	TopicEventQueue pipeline.Settings
	Backoff         *backoff.Bounded

	Logger  logger.Logger
	Metrics metrics.MetricsSink
	Bus     eventbus.EventBus

	// OnConnected and OnDisconnected are invoked, never on the supervisor's
	// own goroutine, whenever the connection state is observed to change.
	OnConnected    func()
	OnDisconnected func(model.DisconnectReason)
	// ConnectionExecutor runs OnConnected/OnDisconnected. It defaults to a
	// single-worker pool so callbacks never block the supervisor and never
	// reorder relative to each other.
	ConnectionExecutor executor.Executor

	// ListenerExecutor is the default executor used for config/command
	// listeners registered without an explicit one.
	ListenerExecutor executor.Executor
}

// Client is the public facade: it wires a Transport and a Minter to an
// identity, an outbound pipeline, an inbound router, and a connection
// supervisor.
type Client struct {
	identity   *identity.Identity
	pipeline   *pipeline.Pipeline
	router     *inbound.Router
	supervisor *supervisor.Supervisor

	connExecutor     executor.Executor
	listenerExecutor executor.Executor
}

// New constructs a Client. transport and minter are the only required
// collaborators; id identifies the device. The supervisor goroutine is not
// started until Connect is called; default executors created here start
// their worker goroutines immediately.
func New(transport supervisor.Transport, minter supervisor.Minter, id *identity.Identity, opts Options) (*Client, error) {
	if transport == nil {
		return nil, fmt.Errorf("client: transport is required")
	}
	if minter == nil {
		return nil, fmt.Errorf("client: minter is required")
	}
	if id == nil {
		return nil, fmt.Errorf("client: identity is required")
	}

	telemetrySettings := opts.TelemetryQueue
	if telemetrySettings.Capacity == 0 {
		telemetrySettings = pipeline.Settings{Capacity: defaultQueueCapacity, Policy: queue.HeadDrop}
	}
	topicSettings := opts.TopicEventQueue
	if topicSettings.Capacity == 0 {
		topicSettings = pipeline.Settings{Capacity: defaultQueueCapacity, Policy: queue.HeadDrop}
	}

	p, err := pipeline.New(telemetrySettings, topicSettings)
	if err != nil {
		return nil, fmt.Errorf("client: %w", err)
	}

	router := inbound.NewRouter(id.ConfigTopic(), id.CommandsPrefix())

	b := opts.Backoff
	if b == nil {
		b, err = backoff.New(defaultBackoffInit, defaultBackoffMax, defaultBackoffJitter)
		if err != nil {
			return nil, fmt.Errorf("client: %w", err)
		}
	}

	connExecutor := opts.ConnectionExecutor
	if connExecutor == nil {
		connExecutor = executor.NewPooled(1, 16)
	}
	listenerExecutor := opts.ListenerExecutor
	if listenerExecutor == nil {
		listenerExecutor = executor.NewPooled(1, 16)
	}

	sup := supervisor.New(supervisor.Options{
		Transport:      transport,
		Minter:         minter,
		Identity:       id,
		Pipeline:       p,
		Router:         router,
		Backoff:        b,
		Logger:         opts.Logger,
		Metrics:        opts.Metrics,
		Bus:            opts.Bus,
		OnConnected:    wrapConnected(opts.OnConnected, connExecutor),
		OnDisconnected: wrapDisconnected(opts.OnDisconnected, connExecutor),
	})

	return &Client{
		identity:         id,
		pipeline:         p,
		router:           router,
		supervisor:       sup,
		connExecutor:     connExecutor,
		listenerExecutor: listenerExecutor,
	}, nil
}

func wrapConnected(cb func(), exec executor.Executor) func() {
	if cb == nil {
		return nil
	}
	return func() { exec.Execute(cb) }
}

func wrapDisconnected(cb func(model.DisconnectReason), exec executor.Executor) func(model.DisconnectReason) {
	if cb == nil {
		return nil
	}
	return func(reason model.DisconnectReason) {
		exec.Execute(func() { cb(reason) })
	}
}

// Connect sets run to true and spawns the supervisor task if one is not
// already alive. Non-blocking.
func (c *Client) Connect() {
	c.supervisor.Start()
}

// Disconnect clears run and wakes the supervisor, which force-closes the
// transport and reports REASON_CLIENT_CLOSED. Non-blocking.
func (c *Client) Disconnect() {
	c.supervisor.Stop()
}

// IsConnected returns the transport's current connected state.
func (c *Client) IsConnected() bool {
	return c.supervisor.IsConnected()
}

// PublishTelemetry enqueues e onto the telemetry queue. It returns true only
// when the queue grew: it returns false when TAIL_REJECT refuses the event
// at capacity, and also when HEAD_DROP at capacity evicts the oldest entry
// to make room for e.
func (c *Client) PublishTelemetry(e model.TopicEvent) bool {
	if !c.pipeline.EnqueueTelemetry(e) {
		return false
	}
	c.supervisor.Release()
	return true
}

// PublishTopicEvent enqueues e onto the topic-event queue. Its return value
// follows the same rule as PublishTelemetry.
func (c *Client) PublishTopicEvent(e model.TopicEvent) bool {
	if !c.pipeline.EnqueueTopicEvent(e) {
		return false
	}
	c.supervisor.Release()
	return true
}

// PublishDeviceState atomically replaces the pending state slot with
// payload. Multiple calls while disconnected coalesce to the last value
// written.
func (c *Client) PublishDeviceState(payload []byte) {
	if c.pipeline.SetPendingState(payload) {
		c.supervisor.Release()
	}
}

// SetConfigListener registers l to run on exec whenever a message arrives
// on the device's config topic. A nil exec uses the facade's default
// listener executor.
func (c *Client) SetConfigListener(l inbound.ConfigListener, exec executor.Executor) {
	if exec == nil {
		exec = c.listenerExecutor
	}
	c.router.SetConfigListener(l, exec)
}

// SetCommandListener registers l to run on exec whenever a message arrives
// on the device's commands prefix or a sub-folder beneath it. A nil exec
// uses the facade's default listener executor.
func (c *Client) SetCommandListener(l inbound.CommandListener, exec executor.Executor) {
	if exec == nil {
		exec = c.listenerExecutor
	}
	c.router.SetCommandListener(l, exec)
}

// Identity returns the device identity this client was constructed with.
func (c *Client) Identity() *identity.Identity {
	return c.identity
}

// Close disconnects and blocks until the supervisor task has fully exited,
// then stops the default executors.
func (c *Client) Close() error {
	c.supervisor.Stop()
	c.supervisor.Wait()
	if p, ok := c.connExecutor.(*executor.Pooled); ok {
		p.Close()
	}
	if p, ok := c.listenerExecutor.(*executor.Pooled); ok {
		p.Close()
	}
	return nil
}
