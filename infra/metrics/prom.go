package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/nimbusiot/deviceclient/core/events"
	coremetrics "github.com/nimbusiot/deviceclient/core/metrics"
)

// PromSink records connection, publish, and queue-depth activity as
// Prometheus metrics. The Prometheus HTTP handler is served separately by
// the caller; this sink only registers collectors.
type PromSink struct {
	connected   prometheus.Gauge
	disconnects *prometheus.CounterVec
	publishes   *prometheus.CounterVec
	queueDepth  *prometheus.GaugeVec
}

// NewPromSink registers metrics on the default Prometheus registerer.
func NewPromSink() (coremetrics.MetricsSink, error) {
	return NewPromSinkWithRegistry(prometheus.DefaultRegisterer)
}

// NewPromSinkWithRegistry registers metrics on the provided registerer. A
// nil registerer defaults to the global one. If the collectors are already
// registered, the existing ones are reused.
func NewPromSinkWithRegistry(reg prometheus.Registerer) (coremetrics.MetricsSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	connected := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "deviceclient_connected",
		Help: "1 if the device is currently connected to the broker, 0 otherwise",
	})
	disconnects := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "deviceclient_disconnects_total",
		Help: "Total number of disconnects, labeled by reason",
	}, []string{"reason"})
	publishes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "deviceclient_publishes_total",
		Help: "Total number of publish attempts, labeled by kind and outcome",
	}, []string{"kind", "outcome"})
	queueDepth := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "deviceclient_queue_depth",
		Help: "Current depth of a pipeline queue",
	}, []string{"queue"})

	if err := reg.Register(connected); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			connected = are.ExistingCollector.(prometheus.Gauge)
		} else {
			return nil, err
		}
	}
	if err := reg.Register(disconnects); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			disconnects = are.ExistingCollector.(*prometheus.CounterVec)
		} else {
			return nil, err
		}
	}
	if err := reg.Register(publishes); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			publishes = are.ExistingCollector.(*prometheus.CounterVec)
		} else {
			return nil, err
		}
	}
	if err := reg.Register(queueDepth); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			queueDepth = are.ExistingCollector.(*prometheus.GaugeVec)
		} else {
			return nil, err
		}
	}

	return &PromSink{connected: connected, disconnects: disconnects, publishes: publishes, queueDepth: queueDepth}, nil
}

func (s *PromSink) RecordConnectionEvent(ev events.ConnectionEvent) error {
	if ev.Connected {
		s.connected.Set(1)
		return nil
	}
	s.connected.Set(0)
	s.disconnects.WithLabelValues(ev.Reason.String()).Inc()
	return nil
}

func (s *PromSink) RecordPublishEvent(ev events.PublishEvent) error {
	outcome := "success"
	switch {
	case ev.Dropped:
		outcome = "dropped"
	case !ev.Success:
		outcome = "failure"
	}
	s.publishes.WithLabelValues(string(ev.Kind), outcome).Inc()
	return nil
}

func (s *PromSink) RecordQueueDepth(ev events.QueueDepthEvent) error {
	s.queueDepth.WithLabelValues(ev.Queue).Set(float64(ev.Depth))
	return nil
}
