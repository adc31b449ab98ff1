package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"cloud.google.com/go/pubsub/v2"
	"github.com/rs/zerolog"

	"github.com/lifelink/lifelink/internal/alert"
)

// Message types carried in Envelope.Type.
const (
	MessageTypeDispatch    = "emergency_dispatch"
	MessageTypeHealthCheck = "health_check"
)

// ErrMalformedMessage is returned for payloads that cannot be decoded.
var ErrMalformedMessage = errors.New("malformed message")

// Envelope is the Pub/Sub payload.
type Envelope struct {
	Type     string                 `json:"type"`
	Dispatch *alert.DispatchMessage `json:"dispatch,omitempty"`
}

// Dispatcher runs a dispatch for one message. *DispatchJob implements it.
type Dispatcher interface {
	Run(ctx context.Context, msg *alert.DispatchMessage) (*DispatchResult, error)
}

// Router decodes envelopes and runs the matching job.
type Router struct {
	dispatcher Dispatcher
	logger     zerolog.Logger
}

// NewRouter creates a router.
func NewRouter(dispatcher Dispatcher, logger zerolog.Logger) *Router {
	return &Router{dispatcher: dispatcher, logger: logger}
}

// Handle processes one payload. A nil error means the message is done,
// including unknown types, which are logged and dropped.
func (r *Router) Handle(ctx context.Context, data []byte) error {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return fmt.Errorf("%w: %w", ErrMalformedMessage, err)
	}

	switch env.Type {
	case MessageTypeDispatch:
		if env.Dispatch == nil || env.Dispatch.AlertID == "" {
			return fmt.Errorf("%w: dispatch without alert id", ErrMalformedMessage)
		}
		_, err := r.dispatcher.Run(ctx, env.Dispatch)
		return err
	case MessageTypeHealthCheck:
		r.logger.Debug().Msg("health check message received")
		return nil
	default:
		r.logger.Warn().Str("job_type", env.Type).Msg("unknown job type")
		return nil
	}
}

// PubSubHandler consumes dispatch requests from a subscription.
type PubSubHandler struct {
	client           *pubsub.Client
	subscriber       *pubsub.Subscriber
	subscriptionName string
	router           *Router
	logger           zerolog.Logger
}

// PubSubConfig holds configuration for the Pub/Sub handler.
type PubSubConfig struct {
	ProjectID        string
	SubscriptionName string
	Router           *Router
	Logger           zerolog.Logger
}

// NewPubSubHandler creates a new Pub/Sub handler.
func NewPubSubHandler(ctx context.Context, cfg PubSubConfig) (*PubSubHandler, error) {
	client, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}

	subscriber := client.Subscriber(cfg.SubscriptionName)
	subscriber.ReceiveSettings.MaxOutstandingMessages = 10
	subscriber.ReceiveSettings.MaxExtension = 5 * time.Minute

	return &PubSubHandler{
		client:           client,
		subscriber:       subscriber,
		subscriptionName: cfg.SubscriptionName,
		router:           cfg.Router,
		logger:           cfg.Logger,
	}, nil
}

// Start receives messages until ctx is cancelled.
func (h *PubSubHandler) Start(ctx context.Context) error {
	h.logger.Info().
		Str("subscription", h.subscriptionName).
		Msg("starting pubsub handler")

	return h.subscriber.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		h.handleMessage(ctx, msg)
	})
}

// Close closes the Pub/Sub client.
func (h *PubSubHandler) Close() error {
	return h.client.Close()
}

func (h *PubSubHandler) handleMessage(ctx context.Context, msg *pubsub.Message) {
	startTime := time.Now()

	logger := h.logger.With().
		Str("message_id", msg.ID).
		Str("publish_time", msg.PublishTime.Format(time.RFC3339)).
		Logger()

	if err := h.router.Handle(ctx, msg.Data); err != nil {
		logger.Error().Err(err).Msg("message processing failed")
		msg.Nack()
		return
	}

	logger.Info().
		Dur("duration", time.Since(startTime)).
		Msg("message processed")
	msg.Ack()
}

// PubSubPublisher publishes dispatch requests. It implements
// alert.Publisher.
type PubSubPublisher struct {
	client    *pubsub.Client
	publisher *pubsub.Publisher
}

// NewPubSubPublisher creates a publisher for topic.
func NewPubSubPublisher(ctx context.Context, projectID, topic string) (*PubSubPublisher, error) {
	client, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}
	return &PubSubPublisher{client: client, publisher: client.Publisher(topic)}, nil
}

// Publish sends msg and waits for the server to accept it.
func (p *PubSubPublisher) Publish(ctx context.Context, msg *alert.DispatchMessage) error {
	return publishEnvelope(ctx, p.publisher, Envelope{Type: MessageTypeDispatch, Dispatch: msg})
}

// Close flushes pending messages and closes the client.
func (p *PubSubPublisher) Close() error {
	p.publisher.Stop()
	return p.client.Close()
}

func publishEnvelope(ctx context.Context, pub *pubsub.Publisher, env Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encoding envelope: %w", err)
	}
	attrs := map[string]string{"type": env.Type}
	if env.Dispatch != nil {
		attrs["alert_id"] = env.Dispatch.AlertID
	}
	result := pub.Publish(ctx, &pubsub.Message{Data: data, Attributes: attrs})
	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("publishing message: %w", err)
	}
	return nil
}

// InlinePublisher runs dispatches in-process. It implements
// alert.Publisher for deployments without Pub/Sub.
type InlinePublisher struct {
	dispatcher Dispatcher
	logger     zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// NewInlinePublisher creates an inline publisher.
func NewInlinePublisher(dispatcher Dispatcher, logger zerolog.Logger) *InlinePublisher {
	ctx, cancel := context.WithCancel(context.Background())
	return &InlinePublisher{dispatcher: dispatcher, logger: logger, ctx: ctx, cancel: cancel}
}

// Publish starts the dispatch in the background. The caller's context
// only bounds the hand-off, not the dispatch itself.
func (p *InlinePublisher) Publish(_ context.Context, msg *alert.DispatchMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return errors.New("inline publisher closed")
	}
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		if _, err := p.dispatcher.Run(p.ctx, msg); err != nil {
			p.logger.Error().Err(err).Str("alert_id", msg.AlertID).Msg("inline dispatch failed")
		}
	}()
	return nil
}

// Close waits for running dispatches until ctx ends, then cancels them.
func (p *InlinePublisher) Close(ctx context.Context) {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		p.cancel()
		<-done
	}
	p.cancel()
}

// TopicCallCenter forwards call-center records to a Pub/Sub topic.
type TopicCallCenter struct {
	publisher *pubsub.Publisher
}

// NewTopicCallCenter creates a call center publishing on topic using client.
func NewTopicCallCenter(client *pubsub.Client, topic string) *TopicCallCenter {
	return &TopicCallCenter{publisher: client.Publisher(topic)}
}

// Notify publishes the record.
func (c *TopicCallCenter) Notify(ctx context.Context, msg *alert.DispatchMessage) error {
	return publishEnvelope(ctx, c.publisher, Envelope{Type: MessageTypeDispatch, Dispatch: msg})
}

// Stop flushes pending records.
func (c *TopicCallCenter) Stop() {
	c.publisher.Stop()
}

// LogCallCenter writes call-center records to the log.
type LogCallCenter struct {
	logger zerolog.Logger
}

// NewLogCallCenter creates a logging call center.
func NewLogCallCenter(logger zerolog.Logger) *LogCallCenter {
	return &LogCallCenter{logger: logger}
}

// Notify logs the record.
func (c *LogCallCenter) Notify(_ context.Context, msg *alert.DispatchMessage) error {
	event := c.logger.Warn().
		Str("alert_id", msg.AlertID).
		Str("user_id", msg.UserID).
		Str("full_name", msg.FullName).
		Float64("heart_rate", msg.Vitals.HeartRate).
		Float64("oxygen", msg.Vitals.Oxygen).
		Float64("movement", msg.Vitals.Movement)
	if msg.Location != nil {
		event = event.
			Float64("lat", msg.Location.Lat).
			Float64("lng", msg.Location.Lng).
			Str("address", msg.Location.Address)
	}
	event.Msg("call center emergency record")
	return nil
}

// Client exposes the underlying Pub/Sub client for sibling publishers.
func (h *PubSubHandler) Client() *pubsub.Client {
	return h.client
}
