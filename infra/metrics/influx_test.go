package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nimbusiot/deviceclient/core/events"
	"github.com/nimbusiot/deviceclient/core/model"
	coremetrics "github.com/nimbusiot/deviceclient/core/metrics"
)

func TestInfluxSinkRecordConnectionEvent(t *testing.T) {
	var body string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		body = string(data)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	sink := NewInfluxSink(srv.URL, "token", "org", "bucket")
	now := time.Now()
	ev := events.ConnectionEvent{Connected: true, Reason: model.ReasonUnknown, Time: now}
	if err := sink.RecordConnectionEvent(ev); err != nil {
		t.Fatalf("record: %v", err)
	}

	p := write.NewPointWithMeasurement("connection_event").
		AddTag("reason", model.ReasonUnknown.String()).
		AddField("connected", true).
		SetTime(now)
	expected := strings.TrimSpace(write.PointToLineProtocol(p, time.Nanosecond))
	if strings.TrimSpace(body) != expected {
		t.Errorf("unexpected body: %s", body)
	}
}

func TestInfluxSinkRecordPublishEvent(t *testing.T) {
	var body string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		body = string(data)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	sink := NewInfluxSink(srv.URL, "token", "org", "bucket")
	now := time.Now()
	ev := events.PublishEvent{Kind: events.PublishTelemetry, Topic: "/devices/d/events", QoS: 1, Success: true, Time: now}
	if err := sink.RecordPublishEvent(ev); err != nil {
		t.Fatalf("record: %v", err)
	}

	p := write.NewPointWithMeasurement("publish_event").
		AddTag("kind", "telemetry").
		AddTag("topic", "/devices/d/events").
		AddField("qos", 1).
		AddField("success", true).
		AddField("dropped", false).
		SetTime(now)
	expected := strings.TrimSpace(write.PointToLineProtocol(p, time.Nanosecond))
	if strings.TrimSpace(body) != expected {
		t.Errorf("unexpected body: %s", body)
	}
}

func TestInfluxSinkRecordQueueDepth(t *testing.T) {
	var body string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		body = string(data)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	sink := NewInfluxSink(srv.URL, "token", "org", "bucket")
	now := time.Now()
	ev := events.QueueDepthEvent{Queue: "telemetry", Depth: 3, Time: now}
	if err := sink.RecordQueueDepth(ev); err != nil {
		t.Fatalf("record: %v", err)
	}

	p := write.NewPointWithMeasurement("queue_depth").
		AddTag("queue", "telemetry").
		AddField("depth", 3).
		SetTime(now)
	expected := strings.TrimSpace(write.PointToLineProtocol(p, time.Nanosecond))
	if strings.TrimSpace(body) != expected {
		t.Errorf("unexpected body: %s", body)
	}
}

func TestNewInfluxSinkWithFallbackFallsBackToNop(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			called = true
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
	}))
	defer srv.Close()

	sink := NewInfluxSinkWithFallback(srv.URL+"/api/v2/write", "tok", "org", "bucket")
	if _, ok := sink.(*InfluxSink); ok {
		t.Fatalf("expected NopSink on failing health check")
	}
	if _, ok := sink.(coremetrics.NopSink); !ok {
		t.Fatalf("expected coremetrics.NopSink, got %T", sink)
	}
	if !called {
		t.Fatalf("health endpoint not called")
	}
}
