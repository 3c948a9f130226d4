package client

import (
	"sync"
	"testing"
	"time"

	"github.com/nimbusiot/deviceclient/core/identity"
	"github.com/nimbusiot/deviceclient/core/model"
	"github.com/nimbusiot/deviceclient/core/supervisor"
)

// stubTransport is a minimal, always-succeeding supervisor.Transport double
// sufficient to exercise the facade without a real broker.
type stubTransport struct {
	mu        sync.Mutex
	connected bool
	published []publishedMsg

	onConnectionLost func(*supervisor.TransportError)
	onMessage        func(string, []byte)
}

type publishedMsg struct {
	topic   string
	payload []byte
	qos     byte
}

func (s *stubTransport) SetCallbacks(onLost func(*supervisor.TransportError), onMsg func(string, []byte)) {
	s.onConnectionLost = onLost
	s.onMessage = onMsg
}

func (s *stubTransport) Connect(username, password string) error {
	s.mu.Lock()
	s.connected = true
	s.mu.Unlock()
	return nil
}

func (s *stubTransport) Disconnect()      { s.setConnected(false) }
func (s *stubTransport) ForceDisconnect() { s.setConnected(false) }

func (s *stubTransport) setConnected(v bool) {
	s.mu.Lock()
	s.connected = v
	s.mu.Unlock()
}

func (s *stubTransport) Publish(topic string, payload []byte, qos byte, retained bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.published = append(s.published, publishedMsg{topic: topic, payload: append([]byte{}, payload...), qos: qos})
	return nil
}

func (s *stubTransport) Subscribe(topic string) error { return nil }

func (s *stubTransport) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

func (s *stubTransport) publishedMessages() []publishedMsg {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]publishedMsg, len(s.published))
	copy(out, s.published)
	return out
}

type stubMinter struct{}

func (stubMinter) Mint() (string, error) { return "tok", nil }

func testID(t *testing.T) *identity.Identity {
	t.Helper()
	id, err := identity.New(identity.Params{ProjectID: "p", RegistryID: "r", DeviceID: "d", CloudRegion: "europe-west1"})
	if err != nil {
		t.Fatalf("identity.New: %v", err)
	}
	return id
}

func waitUntil(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func TestPublishTelemetryDeliversAfterConnect(t *testing.T) {
	transport := &stubTransport{}
	c, err := New(transport, stubMinter{}, testID(t), Options{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c.Close()

	c.Connect()
	waitUntil(t, time.Second, c.IsConnected)

	ev, err := model.NewTopicEvent("", "/a", []byte("x"), 1)
	if err != nil {
		t.Fatalf("new topic event: %v", err)
	}
	if !c.PublishTelemetry(ev) {
		t.Fatal("expected telemetry to be accepted")
	}

	waitUntil(t, time.Second, func() bool { return len(transport.publishedMessages()) == 1 })
	msgs := transport.publishedMessages()
	if msgs[0].topic != "/devices/d/events/a" || string(msgs[0].payload) != "x" {
		t.Fatalf("unexpected publish: %+v", msgs[0])
	}
}

func TestPublishDeviceStateCoalescesBeforeConnect(t *testing.T) {
	transport := &stubTransport{}
	c, err := New(transport, stubMinter{}, testID(t), Options{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c.Close()

	c.PublishDeviceState([]byte("s1"))
	c.PublishDeviceState([]byte("s2"))
	c.Connect()

	waitUntil(t, time.Second, func() bool { return len(transport.publishedMessages()) >= 1 })
	time.Sleep(20 * time.Millisecond)

	msgs := transport.publishedMessages()
	if len(msgs) != 1 {
		t.Fatalf("expected exactly one state publish, got %d", len(msgs))
	}
	if msgs[0].topic != "/devices/d/state" || string(msgs[0].payload) != "s2" {
		t.Fatalf("unexpected state publish: %+v", msgs[0])
	}
}

func TestSetCommandListenerReceivesSubfolder(t *testing.T) {
	transport := &stubTransport{}
	c, err := New(transport, stubMinter{}, testID(t), Options{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c.Close()

	done := make(chan struct{}, 1)
	var gotSub string
	c.SetCommandListener(func(sub string, payload []byte) {
		gotSub = sub
		done <- struct{}{}
	}, nil)

	c.Connect()
	waitUntil(t, time.Second, c.IsConnected)
	transport.onMessage("/devices/d/commands/lights", []byte("on"))

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("command listener never ran")
	}
	if gotSub != "lights" {
		t.Fatalf("got sub %q", gotSub)
	}
}

func TestDisconnectIsNonBlockingAndIdempotent(t *testing.T) {
	transport := &stubTransport{}
	c, err := New(transport, stubMinter{}, testID(t), Options{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	c.Connect()
	waitUntil(t, time.Second, c.IsConnected)
	c.Disconnect()
	c.Disconnect()
	if err := c.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestNewRejectsMissingCollaborators(t *testing.T) {
	if _, err := New(nil, stubMinter{}, testID(t), Options{}); err == nil {
		t.Fatal("expected error for nil transport")
	}
	if _, err := New(&stubTransport{}, nil, testID(t), Options{}); err == nil {
		t.Fatal("expected error for nil minter")
	}
	if _, err := New(&stubTransport{}, stubMinter{}, nil, Options{}); err == nil {
		t.Fatal("expected error for nil identity")
	}
}
