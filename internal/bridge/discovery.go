package bridge

import (
	"fmt"
	"strings"

	"github.com/joshp123/bluedoor/internal/fermax"
)

// buttonConfig is the Home Assistant MQTT discovery payload for a
// door-open button entity.
type buttonConfig struct {
	Name              string       `json:"name"`
	UniqueID          string       `json:"unique_id"`
	CommandTopic      string       `json:"command_topic"`
	PayloadPress      string       `json:"payload_press"`
	AvailabilityTopic string       `json:"availability_topic"`
	Icon              string       `json:"icon"`
	Device            buttonDevice `json:"device"`
}

type buttonDevice struct {
	Identifiers  []string `json:"identifiers"`
	Name         string   `json:"name"`
	Manufacturer string   `json:"manufacturer"`
	Model        string   `json:"model"`
}

func (b *Bridge) discoveryPayload(home fermax.Home, door fermax.Door) buttonConfig {
	return buttonConfig{
		Name:              door.Name + " Open Door",
		UniqueID:          fmt.Sprintf("%s_%s_%s_open", b.baseTopic, door.HomeID, door.ID),
		CommandTopic:      b.commandTopic(door),
		PayloadPress:      "PRESS",
		AvailabilityTopic: b.availabilityTopic(),
		Icon:              "mdi:door-open",
		Device: buttonDevice{
			Identifiers:  []string{fmt.Sprintf("%s_%s_%s", b.baseTopic, door.HomeID, door.ID)},
			Name:         door.Name,
			Manufacturer: "Fermax",
			Model:        "Blue Intercom Door",
		},
	}
}

func (b *Bridge) discoveryTopic(door fermax.Door) string {
	return fmt.Sprintf("%s/button/%s/%s_%s/config", b.prefix, b.baseTopic, sanitize(door.HomeID), sanitize(door.ID))
}

func (b *Bridge) commandTopic(door fermax.Door) string {
	return fmt.Sprintf("%s/%s/%s/open", b.baseTopic, door.HomeID, door.ID)
}

func (b *Bridge) resultTopic(door fermax.Door) string {
	return fmt.Sprintf("%s/%s/%s/result", b.baseTopic, door.HomeID, door.ID)
}

func (b *Bridge) availabilityTopic() string {
	return b.baseTopic + "/status"
}

// commandFilter matches every per-door command topic.
func (b *Bridge) commandFilter() string {
	return b.baseTopic + "/+/+/open"
}

func (b *Bridge) parseCommandTopic(topic string) (homeID, doorID string, ok bool) {
	parts := strings.Split(topic, "/")
	if len(parts) != 4 || parts[0] != b.baseTopic || parts[3] != "open" {
		return "", "", false
	}
	if parts[1] == "" || parts[2] == "" {
		return "", "", false
	}
	return parts[1], parts[2], true
}

// sanitize keeps discovery object ids within Home Assistant's allowed
// character set.
func sanitize(s string) string {
	var out strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			out.WriteRune(r)
		default:
			out.WriteRune('_')
		}
	}
	return out.String()
}
