package user

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/lifelink/lifelink/internal/content"
	"github.com/lifelink/lifelink/internal/monitor"
)

// ValidationError wraps field errors reported for an update.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return "validation error"
	}
	return fmt.Sprintf("validation error: %s", e.Fields[0].Message)
}

// DefaultsSource provides the text new profiles start with.
type DefaultsSource interface {
	GetProfileDefaults(ctx context.Context) (*content.ProfileDefaults, error)
}

// ServiceConfig holds configuration for the user service.
type ServiceConfig struct {
	Repository Repository
	Defaults   DefaultsSource
	Logger     zerolog.Logger

	// OnThresholdsChanged pushes updated thresholds into the live monitor.
	OnThresholdsChanged func(userID string, t monitor.Thresholds) error
}

// Service provides profile, settings and threshold operations.
type Service struct {
	repo                Repository
	defaults            DefaultsSource
	logger              zerolog.Logger
	onThresholdsChanged func(userID string, t monitor.Thresholds) error
}

// NewService creates a new user service.
func NewService(cfg ServiceConfig) *Service {
	return &Service{
		repo:                cfg.Repository,
		defaults:            cfg.Defaults,
		logger:              cfg.Logger,
		onThresholdsChanged: cfg.OnThresholdsChanged,
	}
}

// Initialize creates the profile, settings and thresholds of a new account.
// Profile text fields start from the admin profile defaults.
func (s *Service) Initialize(ctx context.Context, userID string) error {
	now := time.Now().UTC()
	profile := &Profile{
		UserID:    userID,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if s.defaults != nil {
		d, err := s.defaults.GetProfileDefaults(ctx)
		if err != nil {
			s.logger.Warn().Err(err).Str("user_id", userID).Msg("profile defaults unavailable")
		} else {
			profile.MedicalHistory = d.MedicalHistoryDefault
			profile.Medications = d.MedicationsDefault
			profile.SpecialNotes = d.SpecialNotesDefault
		}
	}

	if err := s.repo.CreateProfile(ctx, profile); err != nil {
		return fmt.Errorf("creating profile: %w", err)
	}
	if err := s.repo.UpsertSettings(ctx, DefaultSettings(userID)); err != nil {
		return fmt.Errorf("creating settings: %w", err)
	}
	if err := s.repo.UpsertThresholds(ctx, &Thresholds{
		UserID:     userID,
		Thresholds: monitor.DefaultThresholds(),
		UpdatedAt:  now,
	}); err != nil {
		return fmt.Errorf("creating thresholds: %w", err)
	}

	return nil
}

// GetProfile retrieves the user's profile.
func (s *Service) GetProfile(ctx context.Context, userID string) (*Profile, error) {
	return s.repo.GetProfile(ctx, userID)
}

// UpdateProfile applies a partial update to the user's profile.
func (s *Service) UpdateProfile(ctx context.Context, userID string, input *ProfileInput) (*Profile, error) {
	if errs := input.Validate(); len(errs) > 0 {
		return nil, &ValidationError{Fields: errs}
	}

	profile, err := s.repo.GetProfile(ctx, userID)
	if err != nil {
		return nil, err
	}

	input.apply(profile)
	profile.UpdatedAt = time.Now().UTC()

	if err := s.repo.UpdateProfile(ctx, profile); err != nil {
		return nil, err
	}
	return profile, nil
}

// IsAdmin reports whether the user may edit shared content.
func (s *Service) IsAdmin(ctx context.Context, userID string) (bool, error) {
	profile, err := s.repo.GetProfile(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return false, nil
		}
		return false, err
	}
	return profile.IsAdmin, nil
}

// SetAdmin grants or revokes admin rights.
func (s *Service) SetAdmin(ctx context.Context, userID string, admin bool) error {
	if err := s.repo.SetAdmin(ctx, userID, admin); err != nil {
		return err
	}
	s.logger.Info().Str("user_id", userID).Bool("admin", admin).Msg("admin rights changed")
	return nil
}

// GetSettings retrieves the user's settings, falling back to defaults.
func (s *Service) GetSettings(ctx context.Context, userID string) (*Settings, error) {
	settings, err := s.repo.GetSettings(ctx, userID)
	if errors.Is(err, ErrUserNotFound) {
		return DefaultSettings(userID), nil
	}
	return settings, err
}

// UpdateSettings applies a partial update to the user's settings.
func (s *Service) UpdateSettings(ctx context.Context, userID string, input *SettingsInput) (*Settings, error) {
	settings, err := s.GetSettings(ctx, userID)
	if err != nil {
		return nil, err
	}

	input.apply(settings)
	settings.UpdatedAt = time.Now().UTC()

	if err := s.repo.UpsertSettings(ctx, settings); err != nil {
		return nil, err
	}
	return settings, nil
}

// EmergencyAlertsEnabled reports whether alerts may be sent for the user.
func (s *Service) EmergencyAlertsEnabled(ctx context.Context, userID string) (bool, error) {
	settings, err := s.GetSettings(ctx, userID)
	if err != nil {
		return false, err
	}
	return settings.EmergencyAlertsEnabled, nil
}

// SimulationUsers returns the users whose vitals are simulated.
func (s *Service) SimulationUsers(ctx context.Context) ([]string, error) {
	return s.repo.ListSimulationUsers(ctx)
}

// GetThresholds returns the user's alert thresholds, or the defaults when
// none are stored. Matches monitor.ThresholdsFunc.
func (s *Service) GetThresholds(ctx context.Context, userID string) (monitor.Thresholds, error) {
	t, err := s.repo.GetThresholds(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return monitor.DefaultThresholds(), nil
		}
		return monitor.Thresholds{}, err
	}
	return t.Thresholds, nil
}

// UpdateThresholds validates and stores new thresholds, then applies them
// to the user's live monitor.
func (s *Service) UpdateThresholds(ctx context.Context, userID string, t monitor.Thresholds) (*Thresholds, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}

	stored := &Thresholds{
		UserID:     userID,
		Thresholds: t,
		UpdatedAt:  time.Now().UTC(),
	}
	if err := s.repo.UpsertThresholds(ctx, stored); err != nil {
		return nil, err
	}

	if s.onThresholdsChanged != nil {
		if err := s.onThresholdsChanged(userID, t); err != nil {
			s.logger.Warn().Err(err).Str("user_id", userID).Msg("failed to apply thresholds to monitor")
		}
	}

	return stored, nil
}
