package sink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/roadguard/go-roadguard/pkg/trip"
)

// ErrNotConnected is returned when the MQTT client has no broker connection.
var ErrNotConnected = errors.New("sink: mqtt not connected")

// MQTTConfig holds broker settings.
type MQTTConfig struct {
	Broker   string // host:port
	ClientID string
	Topic    string // prefix; events go to {Topic}/{condition}
	QoS      byte
}

// MQTT publishes events to a broker topic per condition.
type MQTT struct {
	client  mqtt.Client
	topic   string
	qos     byte
	timeout time.Duration
}

// NewMQTT wraps a connected client.
func NewMQTT(client mqtt.Client, topic string, qos byte) *MQTT {
	if topic == "" {
		topic = "roadguard/events"
	}
	return &MQTT{client: client, topic: topic, qos: qos, timeout: 2 * time.Second}
}

// ConnectMQTT connects to the broker with auto-reconnect enabled.
func ConnectMQTT(cfg MQTTConfig, logger *slog.Logger) (*MQTT, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s", cfg.Broker))
	opts.SetClientID(cfg.ClientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)

	opts.OnConnect = func(mqtt.Client) {
		logger.Info("mqtt connection established", "broker", cfg.Broker, "client_id", cfg.ClientID)
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		logger.Warn("mqtt connection lost, will auto-reconnect", "error", err, "broker", cfg.Broker)
	}

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(5 * time.Second) {
		return nil, fmt.Errorf("mqtt connection timeout")
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connection failed: %w", err)
	}

	return NewMQTT(client, cfg.Topic, cfg.QoS), nil
}

// Emit implements Sink.
func (m *MQTT) Emit(ctx context.Context, ev trip.Event) error {
	if !m.client.IsConnected() {
		return ErrNotConnected
	}

	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("sink: marshal event: %w", err)
	}

	topic := m.topic
	if ev.Condition != "" {
		topic = fmt.Sprintf("%s/%s", m.topic, ev.Condition)
	}

	timeout := m.timeout
	if dl, ok := ctx.Deadline(); ok {
		if d := time.Until(dl); d < timeout {
			timeout = d
		}
	}

	token := m.client.Publish(topic, m.qos, false, payload)
	if !token.WaitTimeout(timeout) {
		return fmt.Errorf("sink: mqtt publish timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("sink: mqtt publish failed: %w", err)
	}
	return nil
}

// Close disconnects from the broker.
func (m *MQTT) Close() error {
	if m.client.IsConnected() {
		m.client.Disconnect(250)
	}
	return nil
}

// Name implements Named.
func (m *MQTT) Name() string {
	return "mqtt"
}
