package content

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
)

// ServiceConfig holds configuration for the content service.
type ServiceConfig struct {
	Repository Repository
	Logger     zerolog.Logger
}

// Service reads and writes shared content.
type Service struct {
	repo   Repository
	logger zerolog.Logger
}

// NewService creates a new content service.
func NewService(cfg ServiceConfig) *Service {
	return &Service{
		repo:   cfg.Repository,
		logger: cfg.Logger,
	}
}

// GetSection returns a section. A section that was never written is
// returned with empty content.
func (s *Service) GetSection(ctx context.Context, name string) (*Section, error) {
	if !KnownSection(name) {
		return nil, ErrUnknownSection
	}

	section, err := s.repo.GetSection(ctx, name)
	if errors.Is(err, ErrNotFound) {
		return &Section{Section: name}, nil
	}
	return section, err
}

// UpdateSection replaces a section's content.
func (s *Service) UpdateSection(ctx context.Context, name, body, updatedBy string) (*Section, error) {
	if !KnownSection(name) {
		return nil, ErrUnknownSection
	}
	if len(body) > MaxContentLength {
		return nil, ErrContentTooLarge
	}

	section := &Section{
		Section:   name,
		Content:   body,
		UpdatedAt: time.Now().UTC(),
		UpdatedBy: updatedBy,
	}
	if err := s.repo.UpsertSection(ctx, section); err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("section", name).
		Str("updated_by", updatedBy).
		Int("length", len(body)).
		Msg("content section updated")

	return section, nil
}

// GetProfileDefaults returns the profile defaults, empty when never set.
func (s *Service) GetProfileDefaults(ctx context.Context) (*ProfileDefaults, error) {
	d, err := s.repo.GetProfileDefaults(ctx)
	if errors.Is(err, ErrNotFound) {
		return &ProfileDefaults{}, nil
	}
	return d, err
}

// UpdateProfileDefaults replaces the profile defaults.
func (s *Service) UpdateProfileDefaults(ctx context.Context, in ProfileDefaults, updatedBy string) (*ProfileDefaults, error) {
	for _, v := range []string{in.MedicalHistoryDefault, in.MedicationsDefault, in.SpecialNotesDefault} {
		if len(v) > MaxContentLength {
			return nil, ErrContentTooLarge
		}
	}

	in.UpdatedAt = time.Now().UTC()
	in.UpdatedBy = updatedBy
	if err := s.repo.UpsertProfileDefaults(ctx, &in); err != nil {
		return nil, err
	}

	s.logger.Info().Str("updated_by", updatedBy).Msg("profile defaults updated")
	return &in, nil
}
