//go:build !no_mqtt

package mqtt

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"solaar-settings/internal/store"
)

// Config holds MQTT notifier configuration.
type Config struct {
	Broker      string
	Username    string
	Password    string
	TopicPrefix string
}

// Notifier republishes store events on MQTT so other tools can follow
// configuration changes.
type Notifier struct {
	client pahomqtt.Client
	events *store.EventBus
	prefix string
	logger *slog.Logger
	unsub  func()
}

// message is one publication derived from a store event.
type message struct {
	Topic   string
	Payload []byte
	Retain  bool
}

// NewNotifier creates and connects an MQTT notifier.
func NewNotifier(events *store.EventBus, cfg Config, logger *slog.Logger) (*Notifier, error) {
	n := &Notifier{
		events: events,
		prefix: cfg.TopicPrefix,
		logger: logger.With("component", "mqtt"),
	}

	opts := pahomqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID("solaar-settings-" + uuid.NewString()).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetWill(cfg.TopicPrefix+"/bridge/state", "offline", 1, true).
		SetOnConnectHandler(func(_ pahomqtt.Client) {
			n.logger.Info("MQTT connected")
			n.publish(n.prefix+"/bridge/state", []byte("online"), true)
		}).
		SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
			n.logger.Warn("MQTT connection lost", "err", err)
		})

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	client := pahomqtt.NewClient(opts)
	if err := connect(client, 10*time.Second); err != nil {
		return nil, err
	}

	n.client = client
	return n, nil
}

// connect waits for the first connection. On failure the client is
// disconnected so connect retries stop.
func connect(client pahomqtt.Client, timeout time.Duration) error {
	token := client.Connect()
	if !token.WaitTimeout(timeout) {
		client.Disconnect(0)
		return fmt.Errorf("mqtt connect timeout")
	}
	if err := token.Error(); err != nil {
		client.Disconnect(0)
		return fmt.Errorf("mqtt connect: %w", err)
	}
	return nil
}

// Start subscribes to store events.
func (n *Notifier) Start() {
	n.unsub = n.events.OnAll(n.handleEvent)
	n.logger.Info("MQTT notifier started", "prefix", n.prefix)
}

// Stop publishes offline state, unsubscribes, and disconnects.
func (n *Notifier) Stop() {
	if n.unsub != nil {
		n.unsub()
	}
	n.publish(n.prefix+"/bridge/state", []byte("offline"), true)
	n.client.Disconnect(1000)
	n.logger.Info("MQTT notifier stopped")
}

func (n *Notifier) handleEvent(event store.Event) {
	msg, ok := buildMessage(event, n.prefix)
	if !ok {
		return
	}
	n.publish(msg.Topic, msg.Payload, msg.Retain)
}

func (n *Notifier) publish(topic string, payload []byte, retained bool) {
	token := n.client.Publish(topic, 1, retained, payload)
	go func() {
		if !token.WaitTimeout(5 * time.Second) {
			n.logger.Warn("MQTT publish timeout", "topic", topic)
		} else if err := token.Error(); err != nil {
			n.logger.Warn("MQTT publish error", "topic", topic, "err", err)
		}
	}()
}

// buildMessage maps a store event to its topic and payload.
func buildMessage(event store.Event, prefix string) (message, bool) {
	switch event.Type {
	case store.EventDocumentLoaded:
		return message{Topic: prefix + "/settings/loaded", Payload: mustJSON(event.Data)}, true
	case store.EventDocumentSaved:
		return message{Topic: prefix + "/settings/saved", Payload: mustJSON(event.Data), Retain: true}, true
	case store.EventRecordAdded:
		name, _ := event.Data["name"].(string)
		return message{
			Topic:   prefix + "/settings/devices/" + topicName(name),
			Payload: mustJSON(event.Data),
			Retain:  true,
		}, true
	}
	return message{}, false
}

// topicName sanitizes a device name for use as a topic level.
func topicName(name string) string {
	if name == "" {
		return "unnamed"
	}
	name = strings.ToLower(name)
	return strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_' || r == '-' {
			return r
		}
		return '_'
	}, name)
}

func mustJSON(v any) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		return []byte("{}")
	}
	return data
}
