// Package supervisor implements the connection supervisor: the background
// worker that owns the MQTT session, authenticates, subscribes, reconnects
// with bounded exponential backoff, classifies transport errors, and drains
// the outbound pipeline in priority order.
package supervisor

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/nimbusiot/deviceclient/core/backoff"
	"github.com/nimbusiot/deviceclient/core/events"
	"github.com/nimbusiot/deviceclient/core/identity"
	"github.com/nimbusiot/deviceclient/core/inbound"
	"github.com/nimbusiot/deviceclient/core/logger"
	"github.com/nimbusiot/deviceclient/core/model"
	"github.com/nimbusiot/deviceclient/core/pipeline"
	"github.com/nimbusiot/deviceclient/internal/eventbus"
)

// wakeBuffer comfortably exceeds the largest realistic backlog (two bounded
// queues plus a handful of connection-lifecycle signals) so a release never
// has to block or be dropped.
const wakeBuffer = 1 << 16

// Minter mints the short-lived signed token presented as the MQTT
// password on every connect attempt.
type Minter interface {
	Mint() (string, error)
}

// Sink is the subset of metrics.MetricsSink the supervisor depends on,
// expressed locally to avoid a dependency from core/supervisor onto
// core/metrics.
type Sink interface {
	RecordConnectionEvent(events.ConnectionEvent) error
}

// PublishSink is the optional publish-tracking capability a Sink may
// additionally implement.
type PublishSink interface {
	RecordPublishEvent(events.PublishEvent) error
}

// QueueDepthSink is the optional queue-depth-tracking capability a Sink may
// additionally implement.
type QueueDepthSink interface {
	RecordQueueDepth(events.QueueDepthEvent) error
}

type nopSink struct{}

func (nopSink) RecordConnectionEvent(events.ConnectionEvent) error { return nil }

type nopLogger struct{}

func (nopLogger) Debugf(string, ...any)         {}
func (nopLogger) Debugw(string, map[string]any) {}
func (nopLogger) Infof(string, ...any)          {}
func (nopLogger) Warnf(string, ...any)          {}
func (nopLogger) Errorf(string, ...any)         {}

// Options configures a Supervisor. Every field is optional except
// Transport, Minter, Identity, Pipeline, and Backoff.
type Options struct {
	Transport Transport
	Minter    Minter
	Identity  *identity.Identity
	Pipeline  *pipeline.Pipeline
	Router    *inbound.Router
	Backoff   *backoff.Bounded
	Logger    logger.Logger
	Metrics   Sink
	Bus       eventbus.EventBus

	OnConnected    func()
	OnDisconnected func(model.DisconnectReason)
}

// Supervisor drives a single MQTT session for one device identity. It is
// the single writer of the transport; every other component only ever
// enqueues work and releases the wake token.
type Supervisor struct {
	transport Transport
	minter    Minter
	identity  *identity.Identity
	pipeline  *pipeline.Pipeline
	router    *inbound.Router
	backoff   *backoff.Bounded
	log       logger.Logger
	metrics   Sink
	bus       eventbus.EventBus

	onConnected    func()
	onDisconnected func(model.DisconnectReason)

	run               atomic.Bool
	connectedObserved atomic.Bool
	alive             atomic.Bool
	wake              chan struct{}
	wg                sync.WaitGroup
}

// New constructs a Supervisor. It does not start the background worker;
// call Start for that.
func New(opts Options) *Supervisor {
	s := &Supervisor{
		transport:      opts.Transport,
		minter:         opts.Minter,
		identity:       opts.Identity,
		pipeline:       opts.Pipeline,
		router:         opts.Router,
		backoff:        opts.Backoff,
		log:            opts.Logger,
		metrics:        opts.Metrics,
		bus:            opts.Bus,
		onConnected:    opts.OnConnected,
		onDisconnected: opts.OnDisconnected,
		wake:           make(chan struct{}, wakeBuffer),
	}
	if s.log == nil {
		s.log = nopLogger{}
	}
	if s.metrics == nil {
		s.metrics = nopSink{}
	}
	s.transport.SetCallbacks(s.onConnectionLost, s.onMessage)
	return s
}

// Start sets the run flag and spawns the background worker if one is not
// already running. It is safe to call repeatedly; a worker that is still
// alive keeps running instead of a second one being spawned.
func (s *Supervisor) Start() {
	s.run.Store(true)
	if !s.alive.CompareAndSwap(false, true) {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.alive.Store(false)
		s.loop()
	}()
}

// Stop clears the run flag and wakes the worker, which exits the connected
// loop on its next iteration, force-closes the transport, and emits
// REASON_CLIENT_CLOSED. Stop does not block; call Wait to block until the
// worker has fully exited.
func (s *Supervisor) Stop() {
	s.run.Store(false)
	s.release()
}

// Wait blocks until the background worker has exited.
func (s *Supervisor) Wait() {
	s.wg.Wait()
}

// Release wakes the worker without changing the run flag. The facade calls
// this after any successful enqueue or state write, per the wake-token
// discipline: every work-introducing event releases exactly one token.
func (s *Supervisor) Release() {
	s.release()
}

// IsConnected reports the transport's current connected state.
func (s *Supervisor) IsConnected() bool {
	return s.transport.IsConnected()
}

func (s *Supervisor) release() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Supervisor) acquire() {
	<-s.wake
}

func (s *Supervisor) loop() {
	for s.run.Load() {
		if !s.transport.IsConnected() {
			if !s.connectOnce() {
				continue
			}
		}
		s.connectedLoop()
	}
	s.transport.ForceDisconnect()
	s.emitDisconnected(model.ReasonClientClosed)
}

// connectOnce mints a token, connects, and subscribes to any topic a
// listener has been registered for. It returns true only on full success.
func (s *Supervisor) connectOnce() bool {
	tok, err := s.minter.Mint()
	if err != nil {
		s.log.Errorf("supervisor: token mint failed: %v", err)
		s.run.Store(false)
		s.emitDisconnected(model.ReasonUnknown)
		return false
	}

	if err := s.transport.Connect("unused", tok); err != nil {
		return s.handleConnectFailure(err)
	}

	if s.router != nil && s.router.HasConfigListener() {
		if err := s.transport.Subscribe(s.identity.ConfigTopic()); err != nil {
			return s.handleConnectFailure(err)
		}
	}
	if s.router != nil && s.router.HasCommandListener() {
		if err := s.transport.Subscribe(s.identity.CommandsPrefix() + "/#"); err != nil {
			return s.handleConnectFailure(err)
		}
	}

	s.backoff.Reset()
	s.emitConnected()
	return true
}

func (s *Supervisor) handleConnectFailure(err error) bool {
	te := classify(err)
	if isRetryable(*te, s.run.Load()) {
		s.log.Warnf("supervisor: retryable connect failure: %v", te)
		sleepBackoff(s.backoff)
		return false
	}
	s.log.Errorf("supervisor: fatal connect failure: %v", te)
	s.run.Store(false)
	s.emitDisconnected(mapDisconnectReason(*te, false))
	return false
}

// connectedLoop waits on the wake token and drains one unit of work per
// iteration until run is cleared or the transport is observed disconnected.
func (s *Supervisor) connectedLoop() {
	for {
		s.acquire()

		if !s.run.Load() {
			s.transport.ForceDisconnect()
			s.emitDisconnected(model.ReasonClientClosed)
			return
		}
		if !s.transport.IsConnected() {
			// An asynchronous connection-lost callback already released
			// this token and emitted the disconnect event; re-enter the
			// outer loop to reconnect.
			return
		}

		work := s.pipeline.TakeNextWork()
		if work.Kind == pipeline.None {
			continue
		}

		if te := s.publishWork(work); te != nil {
			if isRetryable(*te, s.run.Load()) {
				s.log.Warnf("supervisor: retryable publish failure: %v", te)
				sleepBackoff(s.backoff)
				s.release()
				return
			}
			s.log.Errorf("supervisor: unexpected fatal publish error: %v", te)
		}
		s.emitQueueDepths()
	}
}

func (s *Supervisor) emitQueueDepths() {
	sink, ok := s.metrics.(QueueDepthSink)
	if !ok && s.bus == nil {
		return
	}
	depths := []events.QueueDepthEvent{
		{Queue: "telemetry", Depth: s.pipeline.TelemetryQueueDepth(), Time: time.Now()},
		{Queue: "topic_event", Depth: s.pipeline.TopicEventQueueDepth(), Time: time.Now()},
	}
	for _, d := range depths {
		if ok {
			if err := sink.RecordQueueDepth(d); err != nil {
				s.log.Warnf("supervisor: metrics sink error recording queue depth: %v", err)
			}
		}
		if s.bus != nil {
			s.bus.Publish(d)
		}
	}
}

// publishWork sends one unit of work to the transport. It returns a
// non-nil *TransportError only when the failure is retryable; non-retryable
// failures are logged and the offending message is dropped here.
func (s *Supervisor) publishWork(w pipeline.Work) *TransportError {
	switch w.Kind {
	case pipeline.State:
		return s.publishState(w)
	case pipeline.Telemetry:
		return s.publishTelemetry(w)
	case pipeline.TopicEventKind:
		return s.publishTopicEvent(w)
	default:
		return nil
	}
}

func (s *Supervisor) publishState(w pipeline.Work) *TransportError {
	topic := s.identity.StateTopic()
	err := s.transport.Publish(topic, w.State, 1, false)
	if err != nil {
		te := classify(err)
		if isRetryable(*te, s.run.Load()) {
			return te
		}
		s.log.Warnf("supervisor: dropping malformed device state publish: %v", te)
		s.pipeline.ClearStateIfEqual(w.StateRef)
		s.emitPublish(events.PublishState, topic, 1, false, true)
		return nil
	}
	s.pipeline.ClearStateIfEqual(w.StateRef)
	s.emitPublish(events.PublishState, topic, 1, true, false)
	return nil
}

func (s *Supervisor) publishTelemetry(w pipeline.Work) *TransportError {
	topic := s.identity.TelemetryTopic() + w.Event.SubPath
	err := s.transport.Publish(topic, w.Event.Payload, w.Event.QoS, false)
	if err != nil {
		te := classify(err)
		if isRetryable(*te, s.run.Load()) {
			return te
		}
		s.log.Warnf("supervisor: dropping malformed telemetry publish: %v", te)
		s.pipeline.ClearUnsentTelemetry()
		s.emitPublish(events.PublishTelemetry, topic, w.Event.QoS, false, true)
		return nil
	}
	s.pipeline.ClearUnsentTelemetry()
	s.emitPublish(events.PublishTelemetry, topic, w.Event.QoS, true, false)
	return nil
}

func (s *Supervisor) publishTopicEvent(w pipeline.Work) *TransportError {
	topic := w.Event.Topic + w.Event.SubPath
	err := s.transport.Publish(topic, w.Event.Payload, w.Event.QoS, false)
	if err != nil {
		te := classify(err)
		if isRetryable(*te, s.run.Load()) {
			return te
		}
		s.log.Warnf("supervisor: dropping malformed topic event publish: %v", te)
		s.pipeline.ClearUnsentTopicEvent()
		s.emitPublish(events.PublishTopic, topic, w.Event.QoS, false, true)
		return nil
	}
	s.pipeline.ClearUnsentTopicEvent()
	s.emitPublish(events.PublishTopic, topic, w.Event.QoS, true, false)
	return nil
}

// onConnectionLost is registered with the transport as its async
// connection-lost callback.
func (s *Supervisor) onConnectionLost(te *TransportError) {
	reason := mapDisconnectReason(*te, s.run.Load())
	s.release()
	s.emitDisconnected(reason)
}

// onMessage is registered with the transport as its message-arrived
// callback.
func (s *Supervisor) onMessage(topic string, payload []byte) {
	if s.router != nil {
		s.router.Route(topic, payload)
	}
}

func (s *Supervisor) emitConnected() {
	if s.connectedObserved.CompareAndSwap(false, true) {
		s.fireConnectionEvent(true, model.ReasonUnknown)
	}
}

func (s *Supervisor) emitDisconnected(reason model.DisconnectReason) {
	if reason == model.ReasonNotAuthorized {
		s.connectedObserved.Store(false)
		s.fireConnectionEvent(false, reason)
		return
	}
	if s.connectedObserved.CompareAndSwap(true, false) {
		s.fireConnectionEvent(false, reason)
	}
}

func (s *Supervisor) fireConnectionEvent(connected bool, reason model.DisconnectReason) {
	ev := events.ConnectionEvent{Connected: connected, Reason: reason, Time: time.Now()}
	if err := s.metrics.RecordConnectionEvent(ev); err != nil {
		s.log.Warnf("supervisor: metrics sink error recording connection event: %v", err)
	}
	if s.bus != nil {
		s.bus.Publish(ev)
	}
	if connected {
		if s.onConnected != nil {
			s.onConnected()
		}
		return
	}
	if s.onDisconnected != nil {
		s.onDisconnected(reason)
	}
}

func (s *Supervisor) emitPublish(kind events.PublishKind, topic string, qos byte, success, dropped bool) {
	sink, ok := s.metrics.(PublishSink)
	if !ok && s.bus == nil {
		return
	}
	ev := events.PublishEvent{Kind: kind, Topic: topic, QoS: qos, Success: success, Dropped: dropped, Time: time.Now()}
	if ok {
		if err := sink.RecordPublishEvent(ev); err != nil {
			s.log.Warnf("supervisor: metrics sink error recording publish event: %v", err)
		}
	}
	if s.bus != nil {
		s.bus.Publish(ev)
	}
}
