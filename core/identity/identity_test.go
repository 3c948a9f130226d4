package identity

import (
	"testing"
	"time"
)

func validParams() Params {
	return Params{ProjectID: "p", RegistryID: "r", DeviceID: "d", CloudRegion: "europe-west1"}
}

func TestNewAppliesDefaults(t *testing.T) {
	id, err := New(validParams())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if id.BrokerURL() != "ssl://mqtt.googleapis.com:8883" {
		t.Fatalf("broker url: %s", id.BrokerURL())
	}
	if id.AuthTokenLifetime().String() != "1h0m0s" {
		t.Fatalf("lifetime: %s", id.AuthTokenLifetime())
	}
}

func TestDerivedStrings(t *testing.T) {
	id, err := New(validParams())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if want := "projects/p/locations/europe-west1/registries/r/devices/d"; id.ClientID() != want {
		t.Fatalf("client id: got %s want %s", id.ClientID(), want)
	}
	if want := "/devices/d/events"; id.TelemetryTopic() != want {
		t.Fatalf("telemetry topic: got %s want %s", id.TelemetryTopic(), want)
	}
	if want := "/devices/d/state"; id.StateTopic() != want {
		t.Fatalf("state topic: got %s want %s", id.StateTopic(), want)
	}
	if want := "/devices/d/config"; id.ConfigTopic() != want {
		t.Fatalf("config topic: got %s want %s", id.ConfigTopic(), want)
	}
	if want := "/devices/d/commands"; id.CommandsPrefix() != want {
		t.Fatalf("commands prefix: got %s want %s", id.CommandsPrefix(), want)
	}
}

func TestTelemetryTopicPlusSubPath(t *testing.T) {
	id, _ := New(validParams())
	got := id.TelemetryTopic() + "/abc"
	if want := "/devices/d/events/abc"; got != want {
		t.Fatalf("got %s want %s", got, want)
	}
}

func TestValidateRejectsMissingFields(t *testing.T) {
	cases := []Params{
		{RegistryID: "r", DeviceID: "d", CloudRegion: "c"},
		{ProjectID: "p", DeviceID: "d", CloudRegion: "c"},
		{ProjectID: "p", RegistryID: "r", CloudRegion: "c"},
		{ProjectID: "p", RegistryID: "r", DeviceID: "d"},
	}
	for i, p := range cases {
		if _, err := New(p); err == nil {
			t.Fatalf("case %d: expected validation error", i)
		}
	}
}

func TestValidateRejectsOutOfRangePort(t *testing.T) {
	p := validParams()
	p.BridgePort = 70000
	if _, err := New(p); err == nil {
		t.Fatal("expected port range error")
	}
}

func TestValidateRejectsExcessiveLifetime(t *testing.T) {
	p := validParams()
	p.AuthTokenLifetime = 25 * time.Hour
	if _, err := New(p); err == nil {
		t.Fatal("expected lifetime range error")
	}
}
