package vitals

import (
	"context"
	"errors"
	"fmt"
	"time"

	"code.cloudfoundry.org/clock"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/lifelink/lifelink/internal/monitor"
	"github.com/lifelink/lifelink/internal/telemetry"
)

// Sink receives every accepted reading. The monitor manager implements it.
type Sink interface {
	ReportVitals(ctx context.Context, userID string, v monitor.Vitals) error
}

// ServiceConfig holds configuration for the vitals service.
type ServiceConfig struct {
	Repository Repository
	Cache      LatestCache // optional
	Sink       Sink        // optional
	Clock      clock.Clock
	Logger     zerolog.Logger
	Metrics    *telemetry.Instruments // optional
}

// Service records and reads vitals.
type Service struct {
	repo    Repository
	cache   LatestCache
	sink    Sink
	clock   clock.Clock
	logger  zerolog.Logger
	metrics *telemetry.Instruments
}

// NewService creates a new vitals service.
func NewService(cfg ServiceConfig) *Service {
	clk := cfg.Clock
	if clk == nil {
		clk = clock.NewClock()
	}
	return &Service{
		repo:    cfg.Repository,
		cache:   cfg.Cache,
		sink:    cfg.Sink,
		clock:   clk,
		logger:  cfg.Logger,
		metrics: cfg.Metrics,
	}
}

// Record stores a reading, caches it as the latest and forwards it to the sink.
func (s *Service) Record(ctx context.Context, userID string, v monitor.Vitals, source Source) (*Reading, error) {
	if err := Validate(v); err != nil {
		return nil, err
	}

	reading := &Reading{
		ID:         "vit_" + uuid.New().String()[:22],
		UserID:     userID,
		Vitals:     v,
		Source:     source,
		RecordedAt: s.clock.Now().UTC(),
	}

	if err := s.repo.Insert(ctx, reading); err != nil {
		return nil, fmt.Errorf("storing reading: %w", err)
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, reading); err != nil {
			s.logger.Warn().Err(err).Str("user_id", userID).Msg("failed to cache latest vitals")
		}
	}

	s.metrics.VitalsRecorded(ctx, string(source))

	if s.sink != nil {
		if err := s.sink.ReportVitals(ctx, userID, v); err != nil {
			s.logger.Error().Err(err).Str("user_id", userID).Msg("failed to forward vitals to monitor")
		}
	}

	return reading, nil
}

// Latest returns the user's newest reading, from the cache when possible.
func (s *Service) Latest(ctx context.Context, userID string) (*Reading, error) {
	if s.cache != nil {
		r, err := s.cache.Get(ctx, userID)
		if err == nil {
			return r, nil
		}
		if !errors.Is(err, ErrNoReadings) {
			s.logger.Warn().Err(err).Str("user_id", userID).Msg("latest vitals cache unavailable")
		}
	}

	return s.repo.Latest(ctx, userID)
}

// History summarizes the user's readings over the last days days.
// Zero means the default window. Larger values are clamped.
func (s *Service) History(ctx context.Context, userID string, days int) (*History, error) {
	switch {
	case days <= 0:
		days = DefaultHistoryDays
	case days > MaxHistoryDays:
		days = MaxHistoryDays
	}

	since := s.clock.Now().Add(-time.Duration(days) * 24 * time.Hour)
	readings, err := s.repo.Since(ctx, userID, since, 0)
	if err != nil {
		return nil, err
	}
	if readings == nil {
		readings = []*Reading{}
	}

	h := &History{Days: days, Readings: readings}
	h.summarize()
	return h, nil
}
