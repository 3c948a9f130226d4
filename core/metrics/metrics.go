package metrics

import (
	"github.com/nimbusiot/deviceclient/core/events"
)

// MetricsSink records connection lifecycle activity. Every sink must
// support connection events; publish and queue-depth recording are
// optional capabilities a sink can opt into.
type MetricsSink interface {
	RecordConnectionEvent(ev events.ConnectionEvent) error
}

// PublishRecorder is implemented by sinks that also track publish attempts.
type PublishRecorder interface {
	RecordPublishEvent(ev events.PublishEvent) error
}

// QueueDepthRecorder is implemented by sinks that also track pipeline queue
// depths.
type QueueDepthRecorder interface {
	RecordQueueDepth(ev events.QueueDepthEvent) error
}

// NopSink implements MetricsSink (and both optional capabilities) with
// no-op methods. It is the default when no sink is configured.
type NopSink struct{}

func (NopSink) RecordConnectionEvent(events.ConnectionEvent) error { return nil }
func (NopSink) RecordPublishEvent(events.PublishEvent) error       { return nil }
func (NopSink) RecordQueueDepth(events.QueueDepthEvent) error      { return nil }
