package metrics

import "github.com/nimbusiot/deviceclient/core/events"

// MultiSink fans connection, publish, and queue-depth events out to every
// configured sink. Optional recorder interfaces are checked per sink, so a
// sink that only implements MetricsSink simply does not receive the events
// it opted out of.
type MultiSink struct {
	Sinks []MetricsSink
}

// NewMultiSink creates a MultiSink fanning out to the provided sinks.
func NewMultiSink(sinks ...MetricsSink) *MultiSink {
	return &MultiSink{Sinks: sinks}
}

func (m *MultiSink) RecordConnectionEvent(ev events.ConnectionEvent) error {
	for _, s := range m.Sinks {
		if err := s.RecordConnectionEvent(ev); err != nil {
			return err
		}
	}
	return nil
}

func (m *MultiSink) RecordPublishEvent(ev events.PublishEvent) error {
	for _, s := range m.Sinks {
		if rec, ok := s.(PublishRecorder); ok {
			if err := rec.RecordPublishEvent(ev); err != nil {
				return err
			}
		}
	}
	return nil
}

func (m *MultiSink) RecordQueueDepth(ev events.QueueDepthEvent) error {
	for _, s := range m.Sinks {
		if rec, ok := s.(QueueDepthRecorder); ok {
			if err := rec.RecordQueueDepth(ev); err != nil {
				return err
			}
		}
	}
	return nil
}
