package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog/log"
)

const mqttPublishTimeout = 2 * time.Second

type mqttClient interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Disconnect(quiesce uint)
}

// MQTT publishes events as JSON on topic/<reader>.
type MQTT struct {
	client    mqttClient
	topic     string
	qos       byte
	connected atomic.Bool
	errors    atomic.Uint64
}

// DialMQTT connects to broker with auto-reconnect enabled.
func DialMQTT(broker, topic, clientID string, qos byte) (*MQTT, error) {
	m := &MQTT{topic: topic, qos: qos}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)
	opts.SetClientID(clientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectTimeout(5 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)
	opts.OnConnect = func(mqtt.Client) {
		m.connected.Store(true)
		log.Info().Str("broker", broker).Str("client_id", clientID).Msg("MQTT connection established")
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		m.connected.Store(false)
		log.Warn().Err(err).Str("broker", broker).Msg("MQTT connection lost, will auto-reconnect")
	}

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(5 * time.Second) {
		return nil, fmt.Errorf("mqtt connection timeout")
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connection failed: %w", err)
	}
	m.client = client
	m.connected.Store(true)
	return m, nil
}

func newMQTT(client mqttClient, topic string, qos byte) *MQTT {
	m := &MQTT{client: client, topic: topic, qos: qos}
	m.connected.Store(true)
	return m
}

func (m *MQTT) Topic(ev Event) string {
	if ev.Reader == "" {
		return m.topic
	}
	return m.topic + "/" + ev.Reader
}

func (m *MQTT) Publish(ctx context.Context, ev Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !m.connected.Load() {
		m.errors.Add(1)
		return fmt.Errorf("mqtt not connected")
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		m.errors.Add(1)
		return fmt.Errorf("marshal event: %w", err)
	}

	token := m.client.Publish(m.Topic(ev), m.qos, false, payload)
	if !token.WaitTimeout(mqttPublishTimeout) {
		m.errors.Add(1)
		return fmt.Errorf("publish timeout")
	}
	if err := token.Error(); err != nil {
		m.errors.Add(1)
		return fmt.Errorf("publish failed: %w", err)
	}
	return nil
}

// Errors counts failed publishes.
func (m *MQTT) Errors() uint64 {
	return m.errors.Load()
}

func (m *MQTT) Close() error {
	m.connected.Store(false)
	m.client.Disconnect(250)
	return nil
}
