package notifier

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// MQTTConfig publishes notifications under Topic/<kind path>.
type MQTTConfig struct {
	Broker   string
	ClientID string
	Username string
	Password string
	Topic    string
	QoS      byte
	Retain   bool
}

// MQTT publishes each notification as JSON. The connection is opened lazily
// and kept with auto-reconnect.
type MQTT struct {
	cfg MQTTConfig

	mu     sync.Mutex
	client mqtt.Client
}

func NewMQTT(cfg MQTTConfig) (*MQTT, error) {
	if strings.TrimSpace(cfg.Broker) == "" {
		return nil, errors.New("mqtt broker is empty")
	}
	if cfg.ClientID == "" {
		cfg.ClientID = "adhand"
	}
	if cfg.Topic == "" {
		cfg.Topic = "adhand"
	}
	if cfg.QoS > 2 {
		return nil, errors.New("mqtt qos must be 0, 1 or 2")
	}
	return &MQTT{cfg: cfg}, nil
}

func (m *MQTT) Name() string { return "mqtt" }

func (m *MQTT) Deliver(ctx context.Context, n Notification) error {
	c, err := m.connect(ctx)
	if err != nil {
		return err
	}
	body, err := json.Marshal(n)
	if err != nil {
		return err
	}
	return waitToken(ctx, c.Publish(TopicFor(m.cfg.Topic, n.Kind), m.cfg.QoS, m.cfg.Retain, body))
}

func (m *MQTT) connect(ctx context.Context) (mqtt.Client, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.client != nil && m.client.IsConnectionOpen() {
		return m.client, nil
	}
	if m.client == nil {
		opts := mqtt.NewClientOptions().
			AddBroker(m.cfg.Broker).
			SetClientID(m.cfg.ClientID).
			SetUsername(m.cfg.Username).
			SetPassword(m.cfg.Password).
			SetAutoReconnect(true).
			SetConnectTimeout(5 * time.Second)
		m.client = mqtt.NewClient(opts)
	}
	if err := waitToken(ctx, m.client.Connect()); err != nil {
		return nil, err
	}
	return m.client, nil
}

func waitToken(ctx context.Context, tok mqtt.Token) error {
	select {
	case <-tok.Done():
		return tok.Error()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close disconnects, allowing 250ms for in-flight publishes.
func (m *MQTT) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.client != nil && m.client.IsConnected() {
		m.client.Disconnect(250)
	}
}

// TopicFor maps an event kind such as "alert.fired" to "<prefix>/alert/fired".
func TopicFor(prefix, kind string) string {
	prefix = strings.TrimRight(prefix, "/")
	return prefix + "/" + strings.ReplaceAll(kind, ".", "/")
}
