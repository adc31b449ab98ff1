package alert

import (
	"context"
	"errors"
	"fmt"

	"code.cloudfoundry.org/clock"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/lifelink/lifelink/internal/geo"
	"github.com/lifelink/lifelink/internal/monitor"
	"github.com/lifelink/lifelink/internal/telemetry"
	"github.com/lifelink/lifelink/internal/user"
)

// Publisher enqueues dispatch work.
type Publisher interface {
	Publish(ctx context.Context, msg *DispatchMessage) error
}

// Users is the subset of the user service alerts need.
type Users interface {
	GetProfile(ctx context.Context, userID string) (*user.Profile, error)
	EmergencyAlertsEnabled(ctx context.Context, userID string) (bool, error)
}

// Flags gates sending globally.
type Flags interface {
	IsAlertsSendingDisabled(ctx context.Context) bool
}

// ServiceConfig holds configuration for the alert service.
type ServiceConfig struct {
	Repository Repository
	Publisher  Publisher
	Users      Users
	Flags      Flags // optional
	Clock      clock.Clock
	Logger     zerolog.Logger
	Metrics    *telemetry.Instruments // optional
}

// Service records alerts and queues their dispatch.
type Service struct {
	repo      Repository
	publisher Publisher
	users     Users
	flags     Flags
	metrics   *telemetry.Instruments
	clock     clock.Clock
	logger    zerolog.Logger
}

// NewService creates a new alert service.
func NewService(cfg ServiceConfig) *Service {
	clk := cfg.Clock
	if clk == nil {
		clk = clock.NewClock()
	}
	return &Service{
		repo:      cfg.Repository,
		publisher: cfg.Publisher,
		users:     cfg.Users,
		flags:     cfg.Flags,
		metrics:   cfg.Metrics,
		clock:     clk,
		logger:    cfg.Logger,
	}
}

// Deliver records the notification as an alert and queues its dispatch.
// Alerts for users who disabled emergency alerts, or while sending is
// disabled globally, are recorded as suppressed and not queued.
func (s *Service) Deliver(ctx context.Context, n *monitor.EmergencyNotification) error {
	a := &Alert{
		ID:        "alt_" + uuid.New().String()[:22],
		UserID:    n.SubjectID,
		Status:    StatusPending,
		Vitals:    n.Vitals,
		Location:  n.Location,
		CreatedAt: n.Timestamp.UTC(),
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = s.clock.Now().UTC()
	}

	logger := s.logger.With().Str("user_id", a.UserID).Str("alert_id", a.ID).Logger()

	if reason := s.suppressReason(ctx, a.UserID); reason != "" {
		a.Status = StatusSuppressed
		a.FailureReason = reason
		if err := s.repo.Create(ctx, a); err != nil {
			return fmt.Errorf("recording alert: %w", err)
		}
		s.metrics.AlertRecorded(ctx, string(StatusSuppressed))
		logger.Warn().Str("reason", reason).Msg("emergency alert suppressed")
		return nil
	}

	if err := s.repo.Create(ctx, a); err != nil {
		return fmt.Errorf("recording alert: %w", err)
	}

	s.metrics.AlertRecorded(ctx, string(StatusPending))

	msg := s.dispatchMessage(ctx, a)
	if err := s.publisher.Publish(ctx, msg); err != nil {
		reason := "queueing dispatch: " + err.Error()
		if cerr := s.repo.Complete(ctx, a.ID, StatusFailed, Outcome{Reason: reason}, s.clock.Now().UTC()); cerr != nil {
			logger.Error().Err(cerr).Msg("failed to mark alert failed")
		}
		return fmt.Errorf("publishing dispatch: %w", err)
	}

	logger.Info().Msg("emergency alert queued")
	return nil
}

func (s *Service) suppressReason(ctx context.Context, userID string) string {
	if s.flags != nil && s.flags.IsAlertsSendingDisabled(ctx) {
		return "alert sending disabled"
	}
	enabled, err := s.users.EmergencyAlertsEnabled(ctx, userID)
	if err != nil {
		// Unknown settings never block an emergency.
		s.logger.Warn().Err(err).Str("user_id", userID).Msg("failed to read alert settings")
		return ""
	}
	if !enabled {
		return "emergency alerts disabled by user"
	}
	return ""
}

func (s *Service) dispatchMessage(ctx context.Context, a *Alert) *DispatchMessage {
	msg := &DispatchMessage{
		AlertID:   a.ID,
		UserID:    a.UserID,
		FullName:  "LifeLink user",
		Vitals:    a.Vitals,
		Location:  a.Location,
		CreatedAt: a.CreatedAt,
	}
	if a.Location != nil {
		msg.MapsURL = geo.MapsURL(a.Location.Lat, a.Location.Lng)
	}

	profile, err := s.users.GetProfile(ctx, a.UserID)
	if err != nil {
		s.logger.Warn().Err(err).Str("user_id", a.UserID).Msg("failed to load profile for dispatch")
		return msg
	}
	if profile.FullName != "" {
		msg.FullName = profile.FullName
	}
	msg.HomeAddress = profile.Address()
	return msg
}

// Get returns one of the user's alerts.
func (s *Service) Get(ctx context.Context, userID, alertID string) (*Alert, error) {
	a, err := s.repo.Get(ctx, alertID)
	if err != nil {
		return nil, err
	}
	if a.UserID != userID {
		return nil, ErrAlertNotFound
	}
	return a, nil
}

// List returns the user's most recent alerts.
func (s *Service) List(ctx context.Context, userID string, limit int) ([]*Alert, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	alerts, err := s.repo.List(ctx, userID, limit)
	if err != nil {
		return nil, err
	}
	if alerts == nil {
		alerts = []*Alert{}
	}
	return alerts, nil
}

// Cancel stops a pending alert before it is dispatched.
func (s *Service) Cancel(ctx context.Context, userID, alertID string) (*Alert, error) {
	a, err := s.repo.Cancel(ctx, userID, alertID, s.clock.Now().UTC())
	if err != nil {
		return nil, err
	}
	s.logger.Info().Str("user_id", userID).Str("alert_id", alertID).Msg("emergency alert cancelled")
	return a, nil
}

// Pending reports whether the alert still awaits dispatch.
func (s *Service) Pending(ctx context.Context, alertID string) (bool, error) {
	a, err := s.repo.Get(ctx, alertID)
	if err != nil {
		return false, err
	}
	return a.Status == StatusPending, nil
}

// MarkDispatched records a run in which at least one recipient was reached.
func (s *Service) MarkDispatched(ctx context.Context, alertID string, out Outcome) error {
	return s.complete(ctx, alertID, StatusDispatched, out)
}

// MarkFailed records a run in which no recipient was reached.
func (s *Service) MarkFailed(ctx context.Context, alertID string, out Outcome) error {
	return s.complete(ctx, alertID, StatusFailed, out)
}

func (s *Service) complete(ctx context.Context, alertID string, status Status, out Outcome) error {
	err := s.repo.Complete(ctx, alertID, status, out, s.clock.Now().UTC())
	if errors.Is(err, ErrAlertNotPending) {
		s.logger.Info().Str("alert_id", alertID).Str("status", string(status)).Msg("alert already settled")
		return nil
	}
	return err
}

// Ensure Service implements monitor.Deliverer.
var _ monitor.Deliverer = (*Service)(nil)
