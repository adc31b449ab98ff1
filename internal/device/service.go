package device

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ValidationError wraps field errors reported for a registration.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return "validation error"
	}
	return fmt.Sprintf("validation error: %s", e.Fields[0].Message)
}

// Service provides device operations.
type Service struct {
	repo   Repository
	logger zerolog.Logger
}

// NewService creates a new device service.
func NewService(repo Repository, logger zerolog.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

// List retrieves the devices of a user. An empty kind lists all.
func (s *Service) List(ctx context.Context, userID string, kind Kind, limit int) ([]*Device, error) {
	return s.repo.ListByUser(ctx, userID, ListOptions{Kind: kind, Limit: limit})
}

// Register registers or re-registers a device.
// Returns the device and whether it was newly created.
func (s *Service) Register(ctx context.Context, userID string, input *RegisterRequest) (*Device, bool, error) {
	if errs := input.Validate(); len(errs) > 0 {
		return nil, false, &ValidationError{Fields: errs}
	}

	now := time.Now().UTC()
	device := &Device{
		ID:        "dev_" + uuid.New().String()[:22],
		UserID:    userID,
		Kind:      input.Kind,
		Token:     input.Token,
		Platform:  input.Platform,
		Name:      input.Name,
		CreatedAt: now,
		UpdatedAt: now,
	}

	created, err := s.repo.Upsert(ctx, device)
	if err != nil {
		return nil, false, err
	}

	s.logger.Info().
		Str("user_id", userID).
		Str("device_id", device.ID).
		Str("kind", string(device.Kind)).
		Str("token_last4", device.TokenLast4()).
		Bool("created", created).
		Msg("device registered")

	return device, created, nil
}

// Unregister removes a device registration.
func (s *Service) Unregister(ctx context.Context, userID, deviceID string) error {
	return s.repo.Delete(ctx, userID, deviceID)
}

// ResolveWearable maps a wearable sensor ID to its owner and marks it seen.
func (s *Service) ResolveWearable(ctx context.Context, sensorID string) (string, error) {
	device, err := s.repo.GetByToken(ctx, KindWearable, sensorID)
	if err != nil {
		return "", err
	}

	if err := s.repo.Touch(ctx, device.ID, time.Now().UTC()); err != nil {
		s.logger.Debug().Err(err).Str("device_id", device.ID).Msg("failed to touch wearable")
	}

	return device.UserID, nil
}

// PushTokens returns the push registration tokens of a user.
func (s *Service) PushTokens(ctx context.Context, userID string) ([]string, error) {
	devices, err := s.repo.ListByUser(ctx, userID, ListOptions{Kind: KindPush, Limit: 100})
	if err != nil {
		return nil, err
	}

	tokens := make([]string, 0, len(devices))
	for _, d := range devices {
		tokens = append(tokens, d.Token)
	}
	return tokens, nil
}
