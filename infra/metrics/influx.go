package metrics

import (
	"context"
	"net/http"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nimbusiot/deviceclient/core/events"
	coremetrics "github.com/nimbusiot/deviceclient/core/metrics"
	"github.com/nimbusiot/deviceclient/infra/logger"
)

// InfluxSink writes connection, publish, and queue-depth events to an
// InfluxDB instance using the official client.
type InfluxSink struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	log      logger.Logger
}

// NewInfluxSink creates a sink configured for the given InfluxDB endpoint.
func NewInfluxSink(url, token, org, bucket string) *InfluxSink {
	base := strings.TrimSuffix(url, "/api/v2/write")
	client := influxdb2.NewClientWithOptions(base, token,
		influxdb2.DefaultOptions().SetHTTPClient(&http.Client{Timeout: 5 * time.Second}))
	return &InfluxSink{
		client:   client,
		writeAPI: client.WriteAPIBlocking(org, bucket),
		log:      logger.New("influx-sink"),
	}
}

// NewInfluxSinkWithFallback pings the InfluxDB instance and returns a
// coremetrics.NopSink if the health check fails, so a misconfigured Influx
// endpoint never prevents the device from connecting.
func NewInfluxSinkWithFallback(url, token, org, bucket string) coremetrics.MetricsSink {
	sink := NewInfluxSink(url, token, org, bucket)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	health, err := sink.client.Health(ctx)
	if err != nil || health.Status != "pass" {
		if err != nil {
			sink.log.Errorf("influx health check error: %v", err)
		} else {
			sink.log.Errorf("influx health status: %s", health.Status)
		}
		sink.client.Close()
		return coremetrics.NopSink{}
	}
	return sink
}

func (s *InfluxSink) RecordConnectionEvent(ev events.ConnectionEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p := write.NewPointWithMeasurement("connection_event").
		AddTag("reason", ev.Reason.String()).
		AddField("connected", ev.Connected).
		SetTime(ev.Time)
	return s.writeAPI.WritePoint(ctx, p)
}

func (s *InfluxSink) RecordPublishEvent(ev events.PublishEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p := write.NewPointWithMeasurement("publish_event").
		AddTag("kind", string(ev.Kind)).
		AddTag("topic", ev.Topic).
		AddField("qos", int(ev.QoS)).
		AddField("success", ev.Success).
		AddField("dropped", ev.Dropped).
		SetTime(ev.Time)
	return s.writeAPI.WritePoint(ctx, p)
}

func (s *InfluxSink) RecordQueueDepth(ev events.QueueDepthEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p := write.NewPointWithMeasurement("queue_depth").
		AddTag("queue", ev.Queue).
		AddField("depth", ev.Depth).
		SetTime(ev.Time)
	return s.writeAPI.WritePoint(ctx, p)
}
