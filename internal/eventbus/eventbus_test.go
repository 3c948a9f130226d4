package eventbus

import (
	"testing"
	"time"

	"github.com/nimbusiot/deviceclient/core/events"
	"github.com/nimbusiot/deviceclient/core/model"
)

func TestBusPublishSubscribe(t *testing.T) {
	bus := New()
	ch := bus.Subscribe()
	bus.Publish("hello")
	v := <-ch
	if v != "hello" {
		t.Fatalf("expected hello got %v", v)
	}
	bus.Unsubscribe(ch)
}

func TestBusCarriesConnectionEvents(t *testing.T) {
	bus := New()
	ch := bus.Subscribe()
	defer bus.Unsubscribe(ch)

	want := events.ConnectionEvent{Connected: true, Reason: model.ReasonUnknown, Time: time.Now()}
	bus.Publish(want)

	got, ok := (<-ch).(events.ConnectionEvent)
	if !ok {
		t.Fatalf("expected events.ConnectionEvent, got %T", got)
	}
	if got.Connected != want.Connected {
		t.Fatalf("connected: got %v want %v", got.Connected, want.Connected)
	}
}

func TestBusClose(t *testing.T) {
	bus := New()
	ch1 := bus.Subscribe()
	ch2 := bus.Subscribe()
	bus.Close()
	if _, ok := <-ch1; ok {
		t.Fatalf("expected ch1 closed")
	}
	if _, ok := <-ch2; ok {
		t.Fatalf("expected ch2 closed")
	}
}

func TestBusUnsubscribeAfterClose(t *testing.T) {
	bus := New()
	ch := bus.Subscribe()
	bus.Close()
	defer func() {
		if r := recover(); r != nil {
			t.Fatalf("panic on Unsubscribe after Close: %v", r)
		}
	}()
	bus.Unsubscribe(ch)
}
