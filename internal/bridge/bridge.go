package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/joshp123/bluedoor/internal/config"
	"github.com/joshp123/bluedoor/internal/fermax"
	"github.com/joshp123/bluedoor/internal/poll"
)

const (
	connectTimeout = 10 * time.Second
	publishTimeout = 5 * time.Second
	commandTimeout = 30 * time.Second

	payloadOnline  = "online"
	payloadOffline = "offline"
)

// SnapshotProvider exposes the current discovered home/door set.
type SnapshotProvider interface {
	Snapshot() poll.Snapshot
}

// DoorOpener executes a door-open command.
type DoorOpener interface {
	OpenDoor(ctx context.Context, door fermax.Door) (fermax.Outcome, error)
}

// Bridge announces each discovered door as a Home Assistant button
// entity via MQTT discovery and executes open commands arriving on
// the per-door command topics. It is presentation glue: all session
// and retry logic stays in the client it wraps.
type Bridge struct {
	client    pahomqtt.Client
	snapshots SnapshotProvider
	opener    DoorOpener
	logger    *slog.Logger

	prefix    string
	baseTopic string
	qos       byte
}

func New(cfg config.MQTTConfig, snapshots SnapshotProvider, opener DoorOpener, logger *slog.Logger) (*Bridge, error) {
	if cfg.BrokerURL == "" {
		return nil, fmt.Errorf("broker URL is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	b := &Bridge{
		snapshots: snapshots,
		opener:    opener,
		logger:    logger.With("component", "bridge"),
		prefix:    cfg.DiscoveryPrefix,
		baseTopic: cfg.BaseTopic,
		qos:       byte(cfg.QoS),
	}

	opts := pahomqtt.NewClientOptions().
		AddBroker(cfg.BrokerURL).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetWill(b.availabilityTopic(), payloadOffline, b.qos, true)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.SetOnConnectHandler(func(client pahomqtt.Client) {
		b.onConnect(client)
	})

	b.client = pahomqtt.NewClient(opts)
	return b, nil
}

// Start connects to the broker and keeps the discovery announcements
// fresh until ctx is cancelled. Retained config topics make the
// republish idempotent for the broker and for Home Assistant.
func (b *Bridge) Start(ctx context.Context, refresh time.Duration) error {
	token := b.client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return fmt.Errorf("mqtt connect: timeout after %v", connectTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connect: %w", err)
	}

	go func() {
		ticker := time.NewTicker(refresh)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				b.shutdown()
				return
			case <-ticker.C:
				b.PublishDiscovery()
			}
		}
	}()
	return nil
}

// onConnect runs on every (re)connect: subscriptions do not survive a
// new broker session, so they are restored here.
func (b *Bridge) onConnect(client pahomqtt.Client) {
	topic := b.commandFilter()
	token := client.Subscribe(topic, b.qos, func(_ pahomqtt.Client, msg pahomqtt.Message) {
		b.handleCommand(msg.Topic())
	})
	if !token.WaitTimeout(publishTimeout) || token.Error() != nil {
		b.logger.Error("subscribe failed", "topic", topic, "err", token.Error())
		return
	}

	b.publish(b.availabilityTopic(), []byte(payloadOnline), true)
	b.PublishDiscovery()
}

// PublishDiscovery announces every door in the current snapshot.
func (b *Bridge) PublishDiscovery() {
	snapshot := b.snapshots.Snapshot()
	for _, home := range snapshot.Homes {
		for _, door := range home.Doors {
			payload, err := json.Marshal(b.discoveryPayload(home, door))
			if err != nil {
				b.logger.Error("marshal discovery payload", "door", door.ID, "err", err)
				continue
			}
			b.publish(b.discoveryTopic(door), payload, true)
		}
	}
}

func (b *Bridge) handleCommand(topic string) {
	homeID, doorID, ok := b.parseCommandTopic(topic)
	if !ok {
		b.logger.Warn("ignoring malformed command topic", "topic", topic)
		return
	}

	door, found := b.snapshots.Snapshot().Door(homeID, doorID)
	if !found {
		b.logger.Warn("command for unknown door", "home", homeID, "door", doorID)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	outcome, err := b.opener.OpenDoor(ctx, door)
	if err != nil {
		b.logger.Error("open door failed", "door", door.ID, "err", err)
		outcome = fermax.Outcome{Classification: fermax.Failure, RawText: err.Error()}
	}
	if payload, err := json.Marshal(outcome); err == nil {
		b.publish(b.resultTopic(door), payload, false)
	}
}

func (b *Bridge) publish(topic string, payload []byte, retained bool) {
	token := b.client.Publish(topic, b.qos, retained, payload)
	if !token.WaitTimeout(publishTimeout) || token.Error() != nil {
		b.logger.Warn("publish failed", "topic", topic, "err", token.Error())
	}
}

func (b *Bridge) shutdown() {
	b.publish(b.availabilityTopic(), []byte(payloadOffline), true)
	b.client.Disconnect(250)
}
