package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/banshee-data/crosswalk/internal/crossing"
	"github.com/banshee-data/crosswalk/internal/monitoring"
	"github.com/banshee-data/crosswalk/internal/stream"
)

// DefaultTopic is the decision topic pattern.
const DefaultTopic = "crosswalk/{device_id}/decision"

// TokenPublisher is the subset of mqtt.Client used for publishing.
type TokenPublisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// MQTTConfig configures the broker connection.
type MQTTConfig struct {
	Broker   string // e.g. tcp://localhost:1883
	ClientID string
	Username string
	Password string
	DeviceID string
	Topic    string // may contain {device_id}
}

// Connect dials the broker and returns a connected client.
func Connect(cfg MQTTConfig) (mqtt.Client, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	opts.SetUsername(cfg.Username)
	opts.SetPassword(cfg.Password)
	opts.SetAutoReconnect(true)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetConnectTimeout(10 * time.Second)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		monitoring.Logf("mqtt: connection lost: %v", err)
	})

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}
	monitoring.Logf("mqtt: connected to %s", cfg.Broker)
	return client, nil
}

// MQTTPublisher publishes decision changes, QoS 0 and retained, so a new
// subscriber immediately sees the current verdict. Events are queued from
// the worker goroutine and published by Run.
type MQTTPublisher struct {
	client   TokenPublisher
	deviceID string
	topic    string

	queue   chan Payload
	last    crossing.Decision
	hasLast bool
	dropped atomic.Uint64
}

var _ stream.Listener = (*MQTTPublisher)(nil)

// NewMQTTPublisher returns a publisher; call Run to start sending.
func NewMQTTPublisher(client TokenPublisher, cfg MQTTConfig) *MQTTPublisher {
	topic := cfg.Topic
	if topic == "" {
		topic = DefaultTopic
	}
	return &MQTTPublisher{
		client:   client,
		deviceID: cfg.DeviceID,
		topic:    FormatTopic(topic, cfg.DeviceID),
		queue:    make(chan Payload, 16),
	}
}

// FormatTopic substitutes {device_id} in pattern.
func FormatTopic(pattern, deviceID string) string {
	return strings.ReplaceAll(pattern, "{device_id}", deviceID)
}

// Topic returns the resolved topic.
func (p *MQTTPublisher) Topic() string { return p.topic }

// Dropped reports payloads discarded because the queue was full.
func (p *MQTTPublisher) Dropped() uint64 { return p.dropped.Load() }

// OnDecision implements stream.Listener. Only changes of decision are
// queued. It is called from a single goroutine.
func (p *MQTTPublisher) OnDecision(ev crossing.Event) {
	if p.hasLast && ev.Decision == p.last {
		return
	}
	p.last, p.hasLast = ev.Decision, true
	select {
	case p.queue <- NewPayload(p.deviceID, ev):
	default:
		p.dropped.Add(1)
	}
}

// Run publishes queued payloads until ctx is cancelled.
func (p *MQTTPublisher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-p.queue:
			if err := p.publish(msg); err != nil {
				monitoring.Logf("mqtt: %v", err)
			}
		}
	}
}

func (p *MQTTPublisher) publish(msg Payload) error {
	b, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal decision: %w", err)
	}
	token := p.client.Publish(p.topic, 0, true, b)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("publish to %s timed out", p.topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish to %s: %w", p.topic, err)
	}
	return nil
}
