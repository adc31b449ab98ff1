package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"code.cloudfoundry.org/clock"
	"github.com/rs/zerolog"

	"github.com/lifelink/lifelink/internal/alert"
	"github.com/lifelink/lifelink/internal/contact"
	"github.com/lifelink/lifelink/internal/notify"
	"github.com/lifelink/lifelink/internal/telemetry"
)

// Contacts lists a user's emergency contacts.
type Contacts interface {
	List(ctx context.Context, userID string) ([]*contact.Contact, error)
}

// PushTokens lists a user's push tokens.
type PushTokens interface {
	PushTokens(ctx context.Context, userID string) ([]string, error)
}

// Alerts tracks alert status.
type Alerts interface {
	Pending(ctx context.Context, alertID string) (bool, error)
	MarkDispatched(ctx context.Context, alertID string, out alert.Outcome) error
	MarkFailed(ctx context.Context, alertID string, out alert.Outcome) error
}

// ChannelFlags disables channels at runtime.
type ChannelFlags interface {
	IsEmailAlertsEnabled(ctx context.Context) bool
	IsPushAlertsEnabled(ctx context.Context) bool
	IsCallCenterAlertsEnabled(ctx context.Context) bool
}

// CallCenter receives one record per dispatched alert.
type CallCenter interface {
	Notify(ctx context.Context, msg *alert.DispatchMessage) error
}

// DispatchJob notifies every recipient of an alert.
type DispatchJob struct {
	config     DispatchConfig
	logger     zerolog.Logger
	clock      clock.Clock
	contacts   Contacts
	devices    PushTokens
	alerts     Alerts
	email      notify.EmailSender
	push       notify.PushSender
	callCenter CallCenter
	flags      ChannelFlags

	metrics     *DispatchMetrics
	instruments *telemetry.Instruments
}

// DispatchMetrics tracks dispatch job statistics.
type DispatchMetrics struct {
	mu sync.RWMutex

	TotalRuns         int64
	Dispatched        int64
	Failed            int64
	Skipped           int64
	EmailSent         int64
	PushSent          int64
	CallCenterSent    int64
	RecipientFailures int64

	LastRunAt       time.Time
	LastRunDuration time.Duration
}

// DispatchJobConfig holds configuration for creating a DispatchJob.
type DispatchJobConfig struct {
	Config     DispatchConfig
	Logger     zerolog.Logger
	Clock      clock.Clock
	Contacts   Contacts
	Devices    PushTokens
	Alerts     Alerts
	Email      notify.EmailSender     // optional
	Push       notify.PushSender      // optional
	CallCenter CallCenter             // optional
	Flags      ChannelFlags           // optional
	Metrics    *telemetry.Instruments // optional
}

// NewDispatchJob creates a new dispatch job.
func NewDispatchJob(cfg DispatchJobConfig) *DispatchJob {
	clk := cfg.Clock
	if clk == nil {
		clk = clock.NewClock()
	}
	return &DispatchJob{
		config:      cfg.Config.withDefaults(),
		logger:      cfg.Logger,
		clock:       clk,
		contacts:    cfg.Contacts,
		devices:     cfg.Devices,
		alerts:      cfg.Alerts,
		email:       cfg.Email,
		push:        cfg.Push,
		callCenter:  cfg.CallCenter,
		flags:       cfg.Flags,
		metrics:     &DispatchMetrics{},
		instruments: cfg.Metrics,
	}
}

// DispatchResult contains the result of a dispatch run.
type DispatchResult struct {
	AlertID    string
	StartTime  time.Time
	EndTime    time.Time
	Duration   time.Duration
	Total      int
	Successful int
	Failed     int
	Errors     []DispatchError

	// Skipped is set when the alert was no longer pending.
	Skipped bool
}

// DispatchError records one failed recipient.
type DispatchError struct {
	Channel   Channel
	Recipient string
	Error     string
}

type recipient struct {
	channel Channel
	address string
	name    string
}

type recipientResult struct {
	recipient recipient
	err       error
}

// Run notifies every recipient of msg and records the outcome on the alert.
// An error is returned only when the recipients could not be resolved, in
// which case the alert is left pending for a retry.
func (j *DispatchJob) Run(ctx context.Context, msg *alert.DispatchMessage) (*DispatchResult, error) {
	startTime := j.clock.Now()
	result := &DispatchResult{AlertID: msg.AlertID, StartTime: startTime}

	logger := j.logger.With().
		Str("alert_id", msg.AlertID).
		Str("user_id", msg.UserID).
		Logger()

	pending, err := j.alerts.Pending(ctx, msg.AlertID)
	if err != nil {
		return nil, fmt.Errorf("checking alert: %w", err)
	}
	if !pending {
		logger.Info().Msg("alert no longer pending, skipping dispatch")
		result.Skipped = true
		j.finish(result)
		return result, nil
	}

	recipients, err := j.recipients(ctx, msg.UserID)
	if err != nil {
		return nil, err
	}
	result.Total = len(recipients)

	logger.Info().
		Int("recipients", result.Total).
		Int("concurrency", j.config.Concurrency).
		Msg("starting emergency dispatch")

	jobs := make(chan recipient, len(recipients))
	results := make(chan recipientResult, len(recipients))

	var wg sync.WaitGroup
	for i := 0; i < j.config.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			j.dispatchWorker(ctx, msg, jobs, results)
		}()
	}

	for _, r := range recipients {
		jobs <- r
	}
	close(jobs)

	go func() {
		wg.Wait()
		close(results)
	}()

	for rr := range results {
		j.instruments.RecipientNotified(ctx, string(rr.recipient.channel), rr.err == nil)
		if rr.err == nil {
			result.Successful++
			j.countSent(rr.recipient.channel)
			continue
		}
		result.Failed++
		result.Errors = append(result.Errors, DispatchError{
			Channel:   rr.recipient.channel,
			Recipient: rr.recipient.address,
			Error:     rr.err.Error(),
		})
		logger.Warn().
			Err(rr.err).
			Str("channel", string(rr.recipient.channel)).
			Msg("recipient notification failed")
	}
	// Recipients never attempted because ctx ended count as failed.
	result.Failed += result.Total - result.Successful - result.Failed

	out := alert.Outcome{Successful: result.Successful, Failed: result.Failed}
	if result.Successful > 0 {
		err = j.alerts.MarkDispatched(ctx, msg.AlertID, out)
	} else {
		out.Reason = failureReason(result)
		err = j.alerts.MarkFailed(ctx, msg.AlertID, out)
	}
	if err != nil {
		logger.Error().Err(err).Msg("failed to record dispatch outcome")
	}

	j.finish(result)

	logger.Info().
		Dur("duration", result.Duration).
		Int("successful", result.Successful).
		Int("failed", result.Failed).
		Msg("emergency dispatch completed")

	return result, nil
}

func failureReason(r *DispatchResult) string {
	switch {
	case r.Total == 0:
		return "no recipients"
	case len(r.Errors) > 0:
		return r.Errors[0].Error
	default:
		return "dispatch interrupted"
	}
}

func (j *DispatchJob) recipients(ctx context.Context, userID string) ([]recipient, error) {
	var out []recipient

	if j.enabled(ctx, ChannelEmail) {
		contacts, err := j.contacts.List(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("loading contacts: %w", err)
		}
		for _, c := range contacts {
			if c.Email != "" {
				out = append(out, recipient{channel: ChannelEmail, address: c.Email, name: c.Name})
			}
		}
	}

	if j.enabled(ctx, ChannelPush) {
		tokens, err := j.devices.PushTokens(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("loading push tokens: %w", err)
		}
		for _, t := range tokens {
			out = append(out, recipient{channel: ChannelPush, address: t})
		}
	}

	if j.enabled(ctx, ChannelCallCenter) {
		out = append(out, recipient{channel: ChannelCallCenter, address: "call-center"})
	}

	return out, nil
}

func (j *DispatchJob) enabled(ctx context.Context, ch Channel) bool {
	switch ch {
	case ChannelEmail:
		return j.config.Email && j.email != nil && (j.flags == nil || j.flags.IsEmailAlertsEnabled(ctx))
	case ChannelPush:
		return j.config.Push && j.push != nil && (j.flags == nil || j.flags.IsPushAlertsEnabled(ctx))
	case ChannelCallCenter:
		return j.config.CallCenter && j.callCenter != nil && (j.flags == nil || j.flags.IsCallCenterAlertsEnabled(ctx))
	}
	return false
}

func (j *DispatchJob) dispatchWorker(ctx context.Context, msg *alert.DispatchMessage, jobs <-chan recipient, results chan<- recipientResult) {
	for r := range jobs {
		select {
		case <-ctx.Done():
			return
		default:
			results <- recipientResult{recipient: r, err: j.notify(ctx, msg, r)}
		}
	}
}

func (j *DispatchJob) notify(ctx context.Context, msg *alert.DispatchMessage, r recipient) error {
	ctx, cancel := context.WithTimeout(ctx, j.config.Timeout)
	defer cancel()

	switch r.channel {
	case ChannelEmail:
		email, err := notify.EmergencyEmail(msg, r.address, r.name)
		if err != nil {
			return fmt.Errorf("rendering email: %w", err)
		}
		return j.email.SendEmail(ctx, email)
	case ChannelPush:
		err := j.push.SendPush(ctx, notify.EmergencyPush(msg, r.address))
		if errors.Is(err, notify.ErrTokenUnregistered) {
			j.logger.Info().Str("user_id", msg.UserID).Msg("push token unregistered")
		}
		return err
	case ChannelCallCenter:
		return j.callCenter.Notify(ctx, msg)
	}
	return fmt.Errorf("unknown channel %q", r.channel)
}

func (j *DispatchJob) countSent(ch Channel) {
	j.metrics.mu.Lock()
	defer j.metrics.mu.Unlock()
	switch ch {
	case ChannelEmail:
		j.metrics.EmailSent++
	case ChannelPush:
		j.metrics.PushSent++
	case ChannelCallCenter:
		j.metrics.CallCenterSent++
	}
}

func (j *DispatchJob) finish(result *DispatchResult) {
	result.EndTime = j.clock.Now()
	result.Duration = result.EndTime.Sub(result.StartTime)

	j.metrics.mu.Lock()
	defer j.metrics.mu.Unlock()

	j.metrics.TotalRuns++
	switch {
	case result.Skipped:
		j.metrics.Skipped++
	case result.Successful > 0:
		j.metrics.Dispatched++
	default:
		j.metrics.Failed++
	}
	j.metrics.RecipientFailures += int64(result.Failed)
	j.metrics.LastRunAt = result.EndTime
	j.metrics.LastRunDuration = result.Duration
}

// MetricsSnapshot returns the current metrics as a map.
func (j *DispatchJob) MetricsSnapshot() map[string]interface{} {
	j.metrics.mu.RLock()
	defer j.metrics.mu.RUnlock()

	m := j.metrics
	return map[string]interface{}{
		"total_runs":         m.TotalRuns,
		"dispatched":         m.Dispatched,
		"failed":             m.Failed,
		"skipped":            m.Skipped,
		"email_sent":         m.EmailSent,
		"push_sent":          m.PushSent,
		"call_center_sent":   m.CallCenterSent,
		"recipient_failures": m.RecipientFailures,
		"last_run_at":        m.LastRunAt,
		"last_run_duration":  m.LastRunDuration.String(),
	}
}
