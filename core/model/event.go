// Package model holds the small value types shared by the pipeline, inbound
// router, and supervisor: outbound events and the application-visible
// disconnect reason codes.
package model

import (
	"fmt"
	"strings"
)

// TopicEvent is an immutable outbound message. Topic is absent (empty) for
// telemetry events, published to the device's events topic by the
// supervisor; it is present for arbitrary topic publications, where it names
// the full base topic the event is published under.
type TopicEvent struct {
	Topic   string
	SubPath string
	Payload []byte
	QoS     byte
}

// NewTopicEvent validates qos and normalizes subPath before constructing the
// event. QoS must be 0 (at-most-once) or 1 (at-least-once).
func NewTopicEvent(topic, subPath string, payload []byte, qos byte) (TopicEvent, error) {
	if qos != 0 && qos != 1 {
		return TopicEvent{}, fmt.Errorf("model: invalid qos %d, must be 0 or 1", qos)
	}
	return TopicEvent{
		Topic:   topic,
		SubPath: NormalizeSubPath(subPath),
		Payload: payload,
		QoS:     qos,
	}, nil
}

// NormalizeSubPath returns "" for an empty sub-path, and otherwise ensures
// the result starts with "/". Normalizing an already-normalized path is a
// no-op.
func NormalizeSubPath(subPath string) string {
	if subPath == "" {
		return ""
	}
	if strings.HasPrefix(subPath, "/") {
		return subPath
	}
	return "/" + subPath
}
