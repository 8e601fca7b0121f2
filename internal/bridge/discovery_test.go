package bridge

import (
	"encoding/json"
	"testing"

	"github.com/joshp123/bluedoor/internal/fermax"
)

func testBridge() *Bridge {
	return &Bridge{prefix: "homeassistant", baseTopic: "bluedoor"}
}

var testDoor = fermax.Door{
	ID:       "ZERO",
	Name:     "Portal Puerta Calle",
	HomeID:   "home-1",
	DeviceID: "device-9",
}

func TestDiscoveryPayload(t *testing.T) {
	b := testBridge()
	home := fermax.Home{ID: "home-1", Name: "Calle Mayor 1"}

	payload, err := json.Marshal(b.discoveryPayload(home, testDoor))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var cfg map[string]any
	if err := json.Unmarshal(payload, &cfg); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if cfg["name"] != "Portal Puerta Calle Open Door" {
		t.Fatalf("unexpected name: %v", cfg["name"])
	}
	if cfg["unique_id"] != "bluedoor_home-1_ZERO_open" {
		t.Fatalf("unexpected unique_id: %v", cfg["unique_id"])
	}
	if cfg["command_topic"] != "bluedoor/home-1/ZERO/open" {
		t.Fatalf("unexpected command_topic: %v", cfg["command_topic"])
	}
	if cfg["availability_topic"] != "bluedoor/status" {
		t.Fatalf("unexpected availability_topic: %v", cfg["availability_topic"])
	}

	device, ok := cfg["device"].(map[string]any)
	if !ok {
		t.Fatalf("missing device block: %s", payload)
	}
	if device["manufacturer"] != "Fermax" {
		t.Fatalf("unexpected manufacturer: %v", device["manufacturer"])
	}
}

func TestTopics(t *testing.T) {
	b := testBridge()

	if got := b.discoveryTopic(testDoor); got != "homeassistant/button/bluedoor/home-1_ZERO/config" {
		t.Fatalf("unexpected discovery topic: %s", got)
	}
	if got := b.commandFilter(); got != "bluedoor/+/+/open" {
		t.Fatalf("unexpected command filter: %s", got)
	}
	if got := b.resultTopic(testDoor); got != "bluedoor/home-1/ZERO/result" {
		t.Fatalf("unexpected result topic: %s", got)
	}
}

func TestParseCommandTopic(t *testing.T) {
	b := testBridge()

	homeID, doorID, ok := b.parseCommandTopic("bluedoor/home-1/ZERO/open")
	if !ok || homeID != "home-1" || doorID != "ZERO" {
		t.Fatalf("unexpected parse result: %s %s %v", homeID, doorID, ok)
	}

	for _, topic := range []string{
		"bluedoor/home-1/open",
		"other/home-1/ZERO/open",
		"bluedoor/home-1/ZERO/close",
		"bluedoor///open",
	} {
		if _, _, ok := b.parseCommandTopic(topic); ok {
			t.Fatalf("expected %q to be rejected", topic)
		}
	}
}

func TestSanitize(t *testing.T) {
	if got := sanitize("home 1/é"); got != "home_1__" {
		t.Fatalf("unexpected sanitized id: %s", got)
	}
}
