// Package ingest consumes wearable vitals from an MQTT broker.
package ingest

import (
	"errors"
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"
)

// MessageHandler processes one MQTT message.
type MessageHandler func(topic string, payload []byte) error

// MQTTConfig holds broker connection settings.
type MQTTConfig struct {
	Broker         string
	ClientID       string
	Username       string
	Password       string
	ConnectTimeout time.Duration
}

// MQTTClient wraps a paho client. Subscriptions are restored after a
// reconnect because sessions are clean.
type MQTTClient struct {
	client mqtt.Client
	logger zerolog.Logger

	mu   sync.Mutex
	subs map[string]subscription
}

type subscription struct {
	qos     byte
	handler MessageHandler
}

// NewMQTTClient connects to the broker.
func NewMQTTClient(cfg MQTTConfig, logger zerolog.Logger) (*MQTTClient, error) {
	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	c := &MQTTClient{
		logger: logger,
		subs:   make(map[string]subscription),
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetCleanSession(true)
	opts.SetConnectTimeout(timeout)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		logger.Warn().Err(err).Msg("mqtt connection lost")
	})
	opts.SetOnConnectHandler(func(client mqtt.Client) {
		logger.Info().Str("broker", cfg.Broker).Msg("mqtt connected")
		c.resubscribe(client)
	})

	c.client = mqtt.NewClient(opts)

	token := c.client.Connect()
	if !token.WaitTimeout(timeout) {
		return nil, errors.New("mqtt connect timed out")
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connecting to mqtt broker: %w", err)
	}
	return c, nil
}

// Subscribe registers handler for topic.
func (c *MQTTClient) Subscribe(topic string, qos byte, handler MessageHandler) error {
	c.mu.Lock()
	c.subs[topic] = subscription{qos: qos, handler: handler}
	c.mu.Unlock()

	return c.subscribe(c.client, topic, qos, handler)
}

func (c *MQTTClient) subscribe(client mqtt.Client, topic string, qos byte, handler MessageHandler) error {
	token := client.Subscribe(topic, qos, func(_ mqtt.Client, msg mqtt.Message) {
		if err := handler(msg.Topic(), msg.Payload()); err != nil {
			c.logger.Warn().Err(err).Str("topic", msg.Topic()).Msg("mqtt message rejected")
		}
	})
	token.Wait()
	if err := token.Error(); err != nil {
		return fmt.Errorf("subscribing to %s: %w", topic, err)
	}
	return nil
}

func (c *MQTTClient) resubscribe(client mqtt.Client) {
	c.mu.Lock()
	subs := make(map[string]subscription, len(c.subs))
	for topic, s := range c.subs {
		subs[topic] = s
	}
	c.mu.Unlock()

	for topic, s := range subs {
		if err := c.subscribe(client, topic, s.qos, s.handler); err != nil {
			c.logger.Error().Err(err).Str("topic", topic).Msg("mqtt resubscribe failed")
		}
	}
}

// Unsubscribe removes subscriptions.
func (c *MQTTClient) Unsubscribe(topics ...string) error {
	c.mu.Lock()
	for _, t := range topics {
		delete(c.subs, t)
	}
	c.mu.Unlock()

	token := c.client.Unsubscribe(topics...)
	token.Wait()
	if err := token.Error(); err != nil {
		return fmt.Errorf("unsubscribing: %w", err)
	}
	return nil
}

// IsConnected reports the connection state.
func (c *MQTTClient) IsConnected() bool {
	return c.client.IsConnected()
}

// Disconnect closes the connection, waiting up to 250ms for in-flight work.
func (c *MQTTClient) Disconnect() {
	c.client.Disconnect(250)
}
