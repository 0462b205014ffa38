package status

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog/log"

	"github.com/coreman2200/ambiled/internal/config"
	"github.com/coreman2200/ambiled/internal/diagnostics"
)

// MQTTSink forwards diagnostics to a broker, one topic per severity under
// the configured prefix. It never blocks the publisher.
type MQTTSink struct {
	cfg    config.MQTT
	client mqtt.Client

	mu        sync.Mutex
	connected bool
	published uint64
	dropped   uint64
}

func NewMQTTSink(cfg config.MQTT) *MQTTSink {
	return &MQTTSink{cfg: cfg}
}

func (m *MQTTSink) Connect(ctx context.Context) error {
	broker := m.cfg.Broker
	if !strings.Contains(broker, "://") {
		broker = "tcp://" + broker
	}
	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)
	opts.SetClientID(m.cfg.ClientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)

	opts.OnConnect = func(c mqtt.Client) {
		m.setConnected(true)
		log.Info().Str("broker", broker).Str("client_id", m.cfg.ClientID).Msg("mqtt connection established")
	}
	opts.OnConnectionLost = func(c mqtt.Client, err error) {
		m.setConnected(false)
		log.Warn().Err(err).Str("broker", broker).Msg("mqtt connection lost, will auto-reconnect")
	}

	m.client = mqtt.NewClient(opts)
	log.Info().Str("broker", broker).Msg("connecting to mqtt broker")

	token := m.client.Connect()
	select {
	case <-token.Done():
	case <-time.After(5 * time.Second):
		return fmt.Errorf("mqtt connection timeout")
	case <-ctx.Done():
		return ctx.Err()
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connection failed: %w", err)
	}
	m.setConnected(true)
	return nil
}

func (m *MQTTSink) setConnected(v bool) {
	m.mu.Lock()
	m.connected = v
	m.mu.Unlock()
}

// Topic is where a diagnostic of the given severity is published.
func (m *MQTTSink) Topic(sev diagnostics.Severity) string {
	return strings.TrimSuffix(m.cfg.Topic, "/") + "/" + string(sev)
}

// Publish implements diagnostics.Sink.
func (m *MQTTSink) Publish(d diagnostics.Diagnostic) {
	m.mu.Lock()
	if !m.connected || m.client == nil {
		m.dropped++
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()

	payload, err := json.Marshal(d)
	if err != nil {
		return
	}
	topic := m.Topic(d.Severity)
	token := m.client.Publish(topic, 1, false, payload)
	go func() {
		if !token.WaitTimeout(2 * time.Second) {
			log.Debug().Str("topic", topic).Msg("mqtt publish timeout")
			return
		}
		if err := token.Error(); err != nil {
			log.Debug().Err(err).Str("topic", topic).Msg("mqtt publish failed")
			return
		}
		m.mu.Lock()
		m.published++
		m.mu.Unlock()
	}()
}

// Counts returns published and dropped diagnostics.
func (m *MQTTSink) Counts() (published, dropped uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.published, m.dropped
}

func (m *MQTTSink) Close() {
	if m.client != nil && m.client.IsConnected() {
		m.client.Disconnect(250)
	}
	m.setConnected(false)
}
