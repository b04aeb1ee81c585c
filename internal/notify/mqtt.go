package notify

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// MQTTConfig configures the MQTT notification sink.
type MQTTConfig struct {
	Broker   string // e.g. tcp://localhost:1883
	Topic    string
	ClientID string
	Username string
	Password string
	QoS      byte
}

// publisher is the subset of mqtt.Client used by MQTTNotifier.
type publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// MQTTNotifier publishes notifications as JSON to an MQTT topic.
// Publishing is asynchronous; delivery failures are logged, never returned.
type MQTTNotifier struct {
	log    *slog.Logger
	client publisher
	topic  string
	qos    byte
	closer func()
}

// DialMQTT connects to the broker and returns a notifier bound to cfg.Topic.
func DialMQTT(cfg MQTTConfig, log *slog.Logger) (*MQTTNotifier, error) {
	if cfg.Broker == "" {
		return nil, errors.New("mqtt broker is required")
	}
	if cfg.Topic == "" {
		return nil, errors.New("mqtt topic is required")
	}
	if log == nil {
		log = slog.Default()
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	opts.SetCleanSession(true)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetConnectTimeout(5 * time.Second)
	opts.SetAutoReconnect(true)
	opts.SetOnConnectHandler(func(c mqtt.Client) {
		log.Info("connected to MQTT broker", slog.String("broker", cfg.Broker), slog.String("client_id", cfg.ClientID))
	})
	opts.SetConnectionLostHandler(func(c mqtt.Client, err error) {
		if err != nil {
			log.Warn("mqtt connection lost", slog.String("err", err.Error()))
		}
	})

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return nil, errors.New("timeout connecting to mqtt broker")
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect mqtt broker: %w", err)
	}

	n := newMQTTNotifier(client, cfg.Topic, cfg.QoS, log)
	n.closer = func() { client.Disconnect(250) }
	return n, nil
}

func newMQTTNotifier(client publisher, topic string, qos byte, log *slog.Logger) *MQTTNotifier {
	if log == nil {
		log = slog.Default()
	}
	return &MQTTNotifier{
		log:    log,
		client: client,
		topic:  topic,
		qos:    qos,
	}
}

// Notify publishes n without waiting for the broker acknowledgement.
func (m *MQTTNotifier) Notify(n Notification) {
	payload, err := json.Marshal(n)
	if err != nil {
		m.log.Error("marshal notification", slog.String("err", err.Error()))
		return
	}

	token := m.client.Publish(m.topic, m.qos, false, payload)
	go func() {
		if !token.WaitTimeout(5 * time.Second) {
			m.log.Warn("mqtt publish timed out", slog.String("topic", m.topic))
			return
		}
		if err := token.Error(); err != nil {
			m.log.Warn("mqtt publish failed", slog.String("topic", m.topic), slog.String("err", err.Error()))
		}
	}()
}

// Close disconnects from the broker.
func (m *MQTTNotifier) Close() {
	if m.closer != nil {
		m.closer()
	}
}
