package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"code.cloudfoundry.org/clock"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/lifelink/lifelink/internal/monitor"
	"github.com/lifelink/lifelink/internal/telemetry"
	"github.com/lifelink/lifelink/internal/vitals"
)

// Errors.
var (
	ErrBadTopic    = errors.New("unexpected topic")
	ErrBadPayload  = errors.New("invalid vitals payload")
	ErrRateLimited = errors.New("device rate limited")
)

// Subscriber is the subset of MQTTClient the consumer needs.
type Subscriber interface {
	Subscribe(topic string, qos byte, handler MessageHandler) error
	Unsubscribe(topics ...string) error
}

// Devices resolves a wearable sensor id to its owner.
type Devices interface {
	ResolveWearable(ctx context.Context, sensorID string) (string, error)
}

// Payload is a wearable reading as published on the broker.
type Payload struct {
	HeartRate *float64 `json:"heartRate"`
	Oxygen    *float64 `json:"oxygen"`
	Movement  *float64 `json:"movement"`
}

// ConsumerConfig holds configuration for the vitals consumer.
type ConsumerConfig struct {
	Subscriber Subscriber
	Devices    Devices
	Recorder   vitals.Recorder
	Clock      clock.Clock
	Logger     zerolog.Logger
	Metrics    *telemetry.Instruments // optional

	// TopicPrefix is the topic root; readings arrive on
	// {prefix}/{sensorID}/vitals.
	TopicPrefix string
	QoS         byte

	// Per-device flood control. Defaults to 2/s with a burst of 5.
	RatePerDevice  float64
	BurstPerDevice int

	// HandleTimeout bounds processing of one message. Default 5s.
	HandleTimeout time.Duration
}

// VitalsConsumer turns wearable MQTT messages into vitals readings.
type VitalsConsumer struct {
	subscriber Subscriber
	devices    Devices
	recorder   vitals.Recorder
	clock      clock.Clock
	logger     zerolog.Logger
	metrics    *telemetry.Instruments
	prefix     string
	qos        byte
	limit      rate.Limit
	burst      int
	timeout    time.Duration

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewVitalsConsumer creates a consumer.
func NewVitalsConsumer(cfg ConsumerConfig) *VitalsConsumer {
	clk := cfg.Clock
	if clk == nil {
		clk = clock.NewClock()
	}
	prefix := strings.TrimSuffix(cfg.TopicPrefix, "/")
	if prefix == "" {
		prefix = "lifelink/devices"
	}
	perSecond := cfg.RatePerDevice
	if perSecond <= 0 {
		perSecond = 2
	}
	burst := cfg.BurstPerDevice
	if burst <= 0 {
		burst = 5
	}
	timeout := cfg.HandleTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &VitalsConsumer{
		subscriber: cfg.Subscriber,
		devices:    cfg.Devices,
		recorder:   cfg.Recorder,
		clock:      clk,
		logger:     cfg.Logger,
		metrics:    cfg.Metrics,
		prefix:     prefix,
		qos:        cfg.QoS,
		limit:      rate.Limit(perSecond),
		burst:      burst,
		timeout:    timeout,
		limiters:   make(map[string]*rate.Limiter),
	}
}

// Topic returns the wildcard subscription topic.
func (c *VitalsConsumer) Topic() string {
	return c.prefix + "/+/vitals"
}

// Start subscribes and blocks until ctx is cancelled.
func (c *VitalsConsumer) Start(ctx context.Context) error {
	if err := c.subscriber.Subscribe(c.Topic(), c.qos, c.HandleMessage); err != nil {
		return fmt.Errorf("subscribing to vitals: %w", err)
	}
	c.logger.Info().Str("topic", c.Topic()).Msg("vitals consumer started")

	<-ctx.Done()

	if err := c.subscriber.Unsubscribe(c.Topic()); err != nil {
		c.logger.Warn().Err(err).Msg("failed to unsubscribe vitals topic")
	}
	c.logger.Info().Msg("vitals consumer stopped")
	return nil
}

// HandleMessage processes one message from {prefix}/{sensorID}/vitals.
func (c *VitalsConsumer) HandleMessage(topic string, payload []byte) error {
	err := c.handle(topic, payload)
	switch {
	case err == nil:
		c.metrics.IngestMessage(context.Background(), "accepted")
	case errors.Is(err, ErrRateLimited):
		c.metrics.IngestMessage(context.Background(), "rate_limited")
	default:
		c.metrics.IngestMessage(context.Background(), "rejected")
	}
	return err
}

func (c *VitalsConsumer) handle(topic string, payload []byte) error {
	sensorID, err := c.sensorID(topic)
	if err != nil {
		return err
	}

	if !c.allow(sensorID) {
		return fmt.Errorf("%w: %s", ErrRateLimited, sensorID)
	}

	v, err := decodePayload(payload)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	userID, err := c.devices.ResolveWearable(ctx, sensorID)
	if err != nil {
		return fmt.Errorf("resolving sensor %s: %w", sensorID, err)
	}

	reading, err := c.recorder.Record(ctx, userID, v, vitals.SourceWearable)
	if err != nil {
		return fmt.Errorf("recording vitals: %w", err)
	}

	c.logger.Debug().
		Str("sensor_id", sensorID).
		Str("user_id", userID).
		Str("reading_id", reading.ID).
		Msg("wearable vitals recorded")
	return nil
}

func (c *VitalsConsumer) sensorID(topic string) (string, error) {
	rest, ok := strings.CutPrefix(topic, c.prefix+"/")
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrBadTopic, topic)
	}
	parts := strings.Split(rest, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] != "vitals" {
		return "", fmt.Errorf("%w: %s", ErrBadTopic, topic)
	}
	return parts[0], nil
}

func (c *VitalsConsumer) allow(sensorID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.limiters[sensorID]
	if !ok {
		l = rate.NewLimiter(c.limit, c.burst)
		c.limiters[sensorID] = l
	}
	return l.AllowN(c.clock.Now(), 1)
}

func decodePayload(payload []byte) (monitor.Vitals, error) {
	var p Payload
	if err := json.Unmarshal(payload, &p); err != nil {
		return monitor.Vitals{}, fmt.Errorf("%w: %w", ErrBadPayload, err)
	}
	if p.HeartRate == nil || p.Oxygen == nil || p.Movement == nil {
		return monitor.Vitals{}, fmt.Errorf("%w: heartRate, oxygen and movement are required", ErrBadPayload)
	}
	return monitor.Vitals{HeartRate: *p.HeartRate, Oxygen: *p.Oxygen, Movement: *p.Movement}, nil
}
