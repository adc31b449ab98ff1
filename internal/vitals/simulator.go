package vitals

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"code.cloudfoundry.org/clock"
	"github.com/rs/zerolog"

	"github.com/lifelink/lifelink/internal/monitor"
)

// DefaultSimulationInterval is how often simulated readings are produced.
const DefaultSimulationInterval = 5 * time.Second

// Recorder stores a reading. Service implements it.
type Recorder interface {
	Record(ctx context.Context, userID string, v monitor.Vitals, source Source) (*Reading, error)
}

// SimulatorConfig holds configuration for the simulator.
type SimulatorConfig struct {
	Recorder Recorder
	Clock    clock.Clock
	Logger   zerolog.Logger
	Interval time.Duration

	// Users lists the users to simulate on each tick.
	Users func(ctx context.Context) ([]string, error)

	// Enabled gates every tick. Nil means always on.
	Enabled func(ctx context.Context) bool

	// Rand is the randomness source. Nil seeds from the clock.
	Rand *rand.Rand
}

// Simulator produces synthetic vitals for users who opted in.
type Simulator struct {
	recorder Recorder
	clock    clock.Clock
	logger   zerolog.Logger
	interval time.Duration
	users    func(ctx context.Context) ([]string, error)
	enabled  func(ctx context.Context) bool

	mu       sync.Mutex
	rand     *rand.Rand
	critical map[string]bool
}

// NewSimulator creates a simulator.
func NewSimulator(cfg SimulatorConfig) *Simulator {
	clk := cfg.Clock
	if clk == nil {
		clk = clock.NewClock()
	}
	interval := cfg.Interval
	if interval <= 0 {
		interval = DefaultSimulationInterval
	}
	rnd := cfg.Rand
	if rnd == nil {
		rnd = rand.New(rand.NewSource(clk.Now().UnixNano()))
	}
	return &Simulator{
		recorder: cfg.Recorder,
		clock:    clk,
		logger:   cfg.Logger,
		interval: interval,
		users:    cfg.Users,
		enabled:  cfg.Enabled,
		rand:     rnd,
		critical: make(map[string]bool),
	}
}

// SetCritical switches a user between the normal and critical profiles.
func (s *Simulator) SetCritical(userID string, critical bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if critical {
		s.critical[userID] = true
	} else {
		delete(s.critical, userID)
	}
}

// Generate returns one synthetic snapshot.
//
// The normal profile yields heart rate 60-99, oxygen 95-99 and movement 0-99.
// The critical profile stays below 50/90/10.
func (s *Simulator) Generate(critical bool) monitor.Vitals {
	s.mu.Lock()
	defer s.mu.Unlock()

	if critical {
		return monitor.Vitals{
			HeartRate: float64(35 + s.rand.Intn(15)),
			Oxygen:    float64(80 + s.rand.Intn(10)),
			Movement:  float64(s.rand.Intn(10)),
		}
	}
	return monitor.Vitals{
		HeartRate: float64(60 + s.rand.Intn(40)),
		Oxygen:    float64(95 + s.rand.Intn(5)),
		Movement:  float64(s.rand.Intn(100)),
	}
}

// SimulateOnce records one synthetic reading for a user.
func (s *Simulator) SimulateOnce(ctx context.Context, userID string, critical bool) (*Reading, error) {
	return s.recorder.Record(ctx, userID, s.Generate(critical), SourceSimulator)
}

// Tick records a reading for every simulated user.
func (s *Simulator) Tick(ctx context.Context) {
	if s.enabled != nil && !s.enabled(ctx) {
		return
	}

	users, err := s.users(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("failed to list simulated users")
		return
	}

	for _, userID := range users {
		s.mu.Lock()
		critical := s.critical[userID]
		s.mu.Unlock()

		if _, err := s.SimulateOnce(ctx, userID, critical); err != nil {
			s.logger.Warn().Err(err).Str("user_id", userID).Msg("failed to record simulated vitals")
		}
	}
}

// Run ticks until ctx is done.
func (s *Simulator) Run(ctx context.Context) {
	ticker := s.clock.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info().Dur("interval", s.interval).Msg("vitals simulator started")

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("vitals simulator stopped")
			return
		case <-ticker.C():
			s.Tick(ctx)
		}
	}
}
