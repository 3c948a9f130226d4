package pipeline

import (
	"testing"

	"github.com/nimbusiot/deviceclient/core/model"
	"github.com/nimbusiot/deviceclient/core/queue"
)

func newTestPipeline(t *testing.T) *Pipeline {
	t.Helper()
	settings := Settings{Capacity: 4, Policy: queue.HeadDrop}
	p, err := New(settings, settings)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	return p
}

func telemetryEvent(payload string) model.TopicEvent {
	e, err := model.NewTopicEvent("/devices/d/events", "", []byte(payload), 1)
	if err != nil {
		panic(err)
	}
	return e
}

func TestTakeNextWorkPrefersState(t *testing.T) {
	p := newTestPipeline(t)
	p.EnqueueTelemetry(telemetryEvent("t1"))
	p.SetPendingState([]byte("state-1"))

	w := p.TakeNextWork()
	if w.Kind != State || string(w.State) != "state-1" {
		t.Fatalf("expected state work, got %+v", w)
	}
}

func TestTakeNextWorkFallsBackToTelemetryThenTopicEvents(t *testing.T) {
	p := newTestPipeline(t)
	p.EnqueueTelemetry(telemetryEvent("t1"))
	p.EnqueueTopicEvent(telemetryEvent("e1"))

	w := p.TakeNextWork()
	if w.Kind != Telemetry || string(w.Event.Payload) != "t1" {
		t.Fatalf("expected telemetry work, got %+v", w)
	}
	p.ClearUnsentTelemetry()

	w = p.TakeNextWork()
	if w.Kind != TopicEventKind || string(w.Event.Payload) != "e1" {
		t.Fatalf("expected topic event work, got %+v", w)
	}
}

func TestTakeNextWorkNoneWhenEmpty(t *testing.T) {
	p := newTestPipeline(t)
	if w := p.TakeNextWork(); w.Kind != None {
		t.Fatalf("expected no work, got %+v", w)
	}
}

func TestUnsentSlotStaysUntilCleared(t *testing.T) {
	p := newTestPipeline(t)
	p.EnqueueTelemetry(telemetryEvent("t1"))
	p.EnqueueTelemetry(telemetryEvent("t2"))

	first := p.TakeNextWork()
	second := p.TakeNextWork()
	if string(first.Event.Payload) != string(second.Event.Payload) {
		t.Fatalf("expected the same unsent event until cleared, got %q then %q", first.Event.Payload, second.Event.Payload)
	}

	p.ClearUnsentTelemetry()
	third := p.TakeNextWork()
	if string(third.Event.Payload) != "t2" {
		t.Fatalf("expected refill from queue, got %q", third.Event.Payload)
	}
}

func TestClearStateIfEqualPreservesNewerWrite(t *testing.T) {
	p := newTestPipeline(t)
	p.SetPendingState([]byte("state-1"))
	w := p.TakeNextWork()

	p.SetPendingState([]byte("state-2"))

	if p.ClearStateIfEqual(w.StateRef) {
		t.Fatal("expected clear to fail since a newer state was written")
	}
	next := p.TakeNextWork()
	if string(next.State) != "state-2" {
		t.Fatalf("expected the newer state to still be pending, got %q", next.State)
	}
}

func TestClearStateIfEqualSucceedsWhenUnchanged(t *testing.T) {
	p := newTestPipeline(t)
	p.SetPendingState([]byte("state-1"))
	w := p.TakeNextWork()

	if !p.ClearStateIfEqual(w.StateRef) {
		t.Fatal("expected clear to succeed")
	}
	if next := p.TakeNextWork(); next.Kind == State {
		t.Fatalf("expected state slot to be empty, got %+v", next)
	}
}

func TestSetPendingStateReportsWasEmpty(t *testing.T) {
	p := newTestPipeline(t)
	if !p.SetPendingState([]byte("a")) {
		t.Fatal("expected wasEmpty true on first write")
	}
	if p.SetPendingState([]byte("b")) {
		t.Fatal("expected wasEmpty false on coalescing overwrite")
	}
}

func TestEnqueueTelemetryReflectsDropPolicy(t *testing.T) {
	p := newTestPipeline(t)
	for i := 0; i < 4; i++ {
		if !p.EnqueueTelemetry(telemetryEvent("x")) {
			t.Fatalf("expected enqueue %d to grow the queue", i)
		}
	}
	// Capacity reached: HEAD_DROP evicts the oldest and appends, so size is
	// unchanged and the enqueue reports false.
	if p.EnqueueTelemetry(telemetryEvent("y")) {
		t.Fatal("expected HEAD_DROP enqueue at capacity to report false (size unchanged)")
	}
}

func TestQueueDepthReporting(t *testing.T) {
	p := newTestPipeline(t)
	p.EnqueueTelemetry(telemetryEvent("t1"))
	p.EnqueueTopicEvent(telemetryEvent("e1"))
	if p.TelemetryQueueDepth() != 1 {
		t.Fatalf("telemetry depth: got %d", p.TelemetryQueueDepth())
	}
	if p.TopicEventQueueDepth() != 1 {
		t.Fatalf("topic event depth: got %d", p.TopicEventQueueDepth())
	}
}
