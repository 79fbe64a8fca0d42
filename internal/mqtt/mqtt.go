// Package mqtt publishes winter road state to an MQTT broker: retained
// Home Assistant discovery configs, the shared state document and an
// availability topic backed by a last-will message.
package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"vintervej/internal/config"
	"vintervej/internal/hass"
	"vintervej/internal/modules/winter/types"
)

type Publisher struct {
	client    mqtt.Client
	cfg       config.Config
	topics    hass.Topics
	logger    *slog.Logger
	mu        sync.RWMutex
	connected bool

	stopCh   chan struct{}
	stopOnce sync.Once
}

func NewPublisher(cfg config.Config, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Publisher{
		cfg:    cfg,
		logger: logger,
		topics: hass.Topics{
			Prefix:          cfg.MQTTTopicPrefix,
			DiscoveryPrefix: cfg.MQTTDiscoveryPrefix,
			NodeID:          cfg.MQTTClientID,
		},
		stopCh: make(chan struct{}),
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s:%d", cfg.MQTTBroker, cfg.MQTTPort))
	opts.SetClientID(cfg.MQTTClientID)

	// Session settings
	opts.SetCleanSession(true)

	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetMaxReconnectInterval(60 * time.Second)

	// Keepalive / timeouts
	opts.SetKeepAlive(30 * time.Second)
	opts.SetPingTimeout(10 * time.Second)

	// The broker marks us offline if the connection drops without a clean
	// disconnect.
	opts.SetWill(p.topics.Availability(), hass.PayloadOffline, 1, true)

	// Callbacks keep internal state accurate. Discovery is republished on
	// every (re)connect so a restarted broker regains the retained configs.
	opts.SetOnConnectHandler(func(_ mqtt.Client) {
		p.setConnected(true)
		logger.Info("mqtt connected", "broker", cfg.MQTTBroker, "port", cfg.MQTTPort)
		if err := p.PublishDiscovery(); err != nil {
			logger.Error("publish discovery after connect", "error", err)
		}
		if err := p.PublishAvailability(true); err != nil {
			logger.Error("publish availability after connect", "error", err)
		}
	})

	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		p.setConnected(false)
		logger.Warn("mqtt connection lost", "error", err)
	})

	p.client = mqtt.NewClient(opts)
	return p
}

// Topics returns the topic layout the publisher writes to.
func (p *Publisher) Topics() hass.Topics {
	return p.topics
}

// Connect establishes connection to the MQTT broker.
// This function waits for the initial connection, and respects ctx and Disconnect().
func (p *Publisher) Connect(ctx context.Context) error {
	// Fail fast if already stopped.
	select {
	case <-p.stopCh:
		return fmt.Errorf("publisher stopped")
	default:
	}

	// Fast path.
	if p.IsConnected() {
		return nil
	}

	// Start connect attempt. With ConnectRetry(true), it may keep retrying internally.
	token := p.client.Connect()

	// Wait in a ctx/stop-aware loop.
	const poll = 200 * time.Millisecond
	for {
		if token.WaitTimeout(poll) {
			if err := token.Error(); err != nil {
				return fmt.Errorf("mqtt connect: %w", err)
			}
			// OnConnectHandler sets connected=true.
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-p.stopCh:
			return fmt.Errorf("publisher stopped")
		default:
		}
	}
}

// PublishDiscovery publishes one retained config document per sensor under
// the Home Assistant discovery prefix.
func (p *Publisher) PublishDiscovery() error {
	sensors := hass.Sensors(p.topics)
	for _, sensor := range sensors {
		if err := p.publishJSON(p.topics.Config(sensor.ObjectID), sensor.Config); err != nil {
			return fmt.Errorf("discovery %s: %w", sensor.ObjectID, err)
		}
	}
	p.logger.Info("published discovery configs", "sensors", len(sensors))
	return nil
}

// PublishState publishes the shared state document and the overall sensor's
// attributes, both retained so Home Assistant restarts pick them up.
func (p *Publisher) PublishState(sum types.Summary) error {
	if err := p.publishJSON(p.topics.State(), hass.NewStatePayload(sum)); err != nil {
		return err
	}
	return p.publishJSON(p.topics.Attributes(), hass.NewAttributesPayload(sum))
}

// PublishAvailability marks the device online or offline.
func (p *Publisher) PublishAvailability(online bool) error {
	payload := hass.PayloadOffline
	if online {
		payload = hass.PayloadOnline
	}
	return p.publish(p.topics.Availability(), []byte(payload))
}

func (p *Publisher) publishJSON(topic string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload for %s: %w", topic, err)
	}
	return p.publish(topic, data)
}

func (p *Publisher) publish(topic string, data []byte) error {
	if !p.IsConnected() {
		return fmt.Errorf("mqtt client not connected")
	}

	token := p.client.Publish(topic, 1, true, data)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("publish timeout for topic %s", topic)
	}
	if token.Error() != nil {
		p.logger.Error("failed to publish", "topic", topic, "error", token.Error())
		return fmt.Errorf("publish %s: %w", topic, token.Error())
	}

	p.logger.Debug("published", "topic", topic, "size", len(data))
	return nil
}

// IsConnected returns whether the client is connected.
func (p *Publisher) IsConnected() bool {
	p.mu.RLock()
	connected := p.connected
	p.mu.RUnlock()
	return connected && p.client.IsConnected()
}

// Disconnect marks the device offline and closes the MQTT connection.
// Idempotent and safe to call multiple times.
// After Disconnect, Connect() will return "publisher stopped".
func (p *Publisher) Disconnect() {
	// Signal shutdown once (unblocks any Connect loops).
	p.stopOnce.Do(func() { close(p.stopCh) })

	// A clean shutdown reports offline explicitly instead of relying on
	// the last will.
	if p.client != nil && p.IsConnected() {
		if err := p.PublishAvailability(false); err != nil {
			p.logger.Warn("publish offline before disconnect", "error", err)
		}
	}

	// Disconnect without holding p.mu to avoid lock contention/deadlocks.
	// Paho Disconnect quiesces in-flight work for the given ms.
	if p.client != nil {
		// Even if already disconnected, this is safe.
		p.client.Disconnect(250)
	}

	// Update our internal state.
	p.setConnected(false)
	p.logger.Info("mqtt disconnected")
}

func (p *Publisher) setConnected(v bool) {
	p.mu.Lock()
	p.connected = v
	p.mu.Unlock()
}
