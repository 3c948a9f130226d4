// Package events defines the value types the supervisor publishes to the
// in-process event bus and to metrics sinks as connection and publish
// activity happens.
package events

import (
	"time"

	"github.com/nimbusiot/deviceclient/core/model"
)

// ConnectionEvent is emitted on every de-duplicated connected/disconnected
// transition the supervisor observes.
type ConnectionEvent struct {
	Connected bool
	Reason    model.DisconnectReason
	Time      time.Time
}

// PublishKind identifies what a PublishEvent reports on.
type PublishKind string

const (
	PublishState     PublishKind = "state"
	PublishTelemetry PublishKind = "telemetry"
	PublishTopic     PublishKind = "topic_event"
)

// PublishEvent is emitted after a publish attempt that either succeeded or
// was dropped as non-retryable. A retryable failure emits no PublishEvent.
type PublishEvent struct {
	Kind    PublishKind
	Topic   string
	QoS     byte
	Success bool
	Dropped bool
	Time    time.Time
}

// QueueDepthEvent reports the current depth of one of the pipeline's bounded
// queues, sampled by the supervisor after each work cycle.
type QueueDepthEvent struct {
	Queue string
	Depth int
	Time  time.Time
}
