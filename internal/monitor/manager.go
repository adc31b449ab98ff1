package monitor

import (
	"context"
	"errors"
	"sync"
	"time"

	"code.cloudfoundry.org/clock"
	"github.com/rs/zerolog"
)

const (
	// DefaultPollInterval is how often vitals are evaluated.
	DefaultPollInterval = 5 * time.Second

	// DefaultResumePause suspends evaluation after a user resumes monitoring.
	DefaultResumePause = 15 * time.Second

	// UseDefaultPause passed to Resume selects the configured resume pause.
	UseDefaultPause time.Duration = -1

	storeTimeout = 2 * time.Second
)

// ThresholdsFunc loads the alert thresholds of a subject.
type ThresholdsFunc func(ctx context.Context, subjectID string) (Thresholds, error)

// ManagerConfig holds configuration for the Manager.
type ManagerConfig struct {
	Clock     clock.Clock
	Locator   Locator
	Deliverer Deliverer
	Alarm     AlarmHook
	Store     StateStore
	Metrics   *Metrics
	Logger    zerolog.Logger

	PollInterval     time.Duration
	CountdownSeconds int
	LocateTimeout    time.Duration
	DeliverTimeout   time.Duration
	ResumePause      time.Duration

	// Thresholds loads per-subject thresholds when a monitor is created.
	// Defaults apply when nil.
	Thresholds ThresholdsFunc

	// PollIntervalFunc overrides PollInterval when it returns a positive value.
	PollIntervalFunc func(ctx context.Context) time.Duration

	// OnCancelled is called after a subject cancels a countdown.
	OnCancelled func(subjectID string)
}

// Manager owns one Monitor per subject, created on first use.
type Manager struct {
	cfg    ManagerConfig
	logger zerolog.Logger

	mu       sync.Mutex
	monitors map[string]*Monitor
	stopped  bool
}

// NewManager creates a Manager.
func NewManager(cfg ManagerConfig) *Manager {
	if cfg.Clock == nil {
		cfg.Clock = clock.NewClock()
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.CountdownSeconds <= 0 {
		cfg.CountdownSeconds = DefaultCountdownSeconds
	}
	if cfg.ResumePause <= 0 {
		cfg.ResumePause = DefaultResumePause
	}

	return &Manager{
		cfg:      cfg,
		logger:   cfg.Logger.With().Str("component", "monitor_manager").Logger(),
		monitors: make(map[string]*Monitor),
	}
}

// ReportVitals forwards a snapshot to the subject's monitor, creating and
// starting the monitor when needed.
func (m *Manager) ReportVitals(ctx context.Context, subjectID string, v Vitals) error {
	mon, err := m.monitor(ctx, subjectID)
	if err != nil {
		return err
	}
	mon.ReportVitals(v)
	return nil
}

// ReportLocation records the last known location of a subject.
func (m *Manager) ReportLocation(ctx context.Context, subjectID string, loc Location) error {
	mon, err := m.monitor(ctx, subjectID)
	if err != nil {
		return err
	}
	mon.ReportLocation(loc)
	return nil
}

// Cancel cancels a running countdown. It reports false when the subject has
// no monitor or the monitor is not Triggered.
func (m *Manager) Cancel(subjectID string) bool {
	mon, ok := m.lookup(subjectID)
	if !ok {
		return false
	}
	return mon.Cancel()
}

// State returns the live state of the subject's monitor. Without a local
// monitor it falls back to the shared store and finally to a fresh Idle state.
func (m *Manager) State(ctx context.Context, subjectID string) (State, error) {
	if mon, ok := m.lookup(subjectID); ok {
		return mon.State(), nil
	}

	if m.cfg.Store != nil {
		st, err := m.cfg.Store.Load(ctx, subjectID)
		if err == nil {
			return st, nil
		}
		if !errors.Is(err, ErrStateNotFound) {
			return State{}, err
		}
	}

	thresholds, err := m.thresholds(ctx, subjectID)
	if err != nil {
		return State{}, err
	}
	return State{
		SubjectID:  subjectID,
		Phase:      PhaseIdle,
		Countdown:  m.cfg.CountdownSeconds,
		Thresholds: thresholds,
		UpdatedAt:  m.cfg.Clock.Now(),
	}, nil
}

// Start re-arms the subject's monitor with the given thresholds.
func (m *Manager) Start(ctx context.Context, subjectID string, thresholds Thresholds) error {
	if err := thresholds.Validate(); err != nil {
		return err
	}
	mon, err := m.monitor(ctx, subjectID)
	if err != nil {
		return err
	}
	return mon.Start(m.pollInterval(ctx), thresholds)
}

// UpdateThresholds pushes new thresholds into a live monitor. Subjects
// without a monitor pick them up on creation.
func (m *Manager) UpdateThresholds(subjectID string, thresholds Thresholds) error {
	if err := thresholds.Validate(); err != nil {
		return err
	}
	mon, ok := m.lookup(subjectID)
	if !ok {
		return nil
	}
	return mon.SetThresholds(thresholds)
}

// Resume returns the subject's monitor to Idle and pauses evaluation for
// pause. Zero resumes without a pause. A negative pause, such as
// UseDefaultPause, selects the configured default.
func (m *Manager) Resume(ctx context.Context, subjectID string, pause time.Duration) (bool, error) {
	if pause < 0 {
		pause = m.cfg.ResumePause
	}
	mon, err := m.monitor(ctx, subjectID)
	if err != nil {
		return false, err
	}
	return mon.Resume(pause), nil
}

// Remove stops and forgets the subject's monitor.
func (m *Manager) Remove(ctx context.Context, subjectID string) error {
	m.mu.Lock()
	mon, ok := m.monitors[subjectID]
	delete(m.monitors, subjectID)
	m.mu.Unlock()

	if ok {
		mon.Stop()
	}
	if m.cfg.Store != nil {
		return m.cfg.Store.Delete(ctx, subjectID)
	}
	return nil
}

// Len returns the number of live monitors.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.monitors)
}

// Stop stops every monitor and waits for in-flight deliveries.
func (m *Manager) Stop() {
	m.mu.Lock()
	m.stopped = true
	monitors := m.monitors
	m.monitors = make(map[string]*Monitor)
	m.mu.Unlock()

	var wg sync.WaitGroup
	for _, mon := range monitors {
		wg.Add(1)
		go func(mon *Monitor) {
			defer wg.Done()
			mon.Stop()
		}(mon)
	}
	wg.Wait()

	m.logger.Info().Int("monitors", len(monitors)).Msg("monitor manager stopped")
}

func (m *Manager) lookup(subjectID string) (*Monitor, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	mon, ok := m.monitors[subjectID]
	return mon, ok
}

func (m *Manager) monitor(ctx context.Context, subjectID string) (*Monitor, error) {
	if mon, ok := m.lookup(subjectID); ok {
		return mon, nil
	}

	thresholds, err := m.thresholds(ctx, subjectID)
	if err != nil {
		return nil, err
	}
	poll := m.pollInterval(ctx)

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stopped {
		return nil, ErrStopped
	}
	if mon, ok := m.monitors[subjectID]; ok {
		return mon, nil
	}

	mon := New(Config{
		SubjectID:        subjectID,
		Clock:            m.cfg.Clock,
		Locator:          m.cfg.Locator,
		Deliverer:        m.cfg.Deliverer,
		Alarm:            m.cfg.Alarm,
		Logger:           m.cfg.Logger,
		Metrics:          m.cfg.Metrics,
		CountdownSeconds: m.cfg.CountdownSeconds,
		LocateTimeout:    m.cfg.LocateTimeout,
		DeliverTimeout:   m.cfg.DeliverTimeout,
		OnCancelled:      m.onCancelled,
		OnTransition:     m.onTransition,
		OnCountdown:      m.save,
		OnNotified:       m.onNotified,
	})
	if err := mon.Start(poll, thresholds); err != nil {
		mon.Stop()
		return nil, err
	}

	m.monitors[subjectID] = mon
	m.logger.Debug().Str("subject_id", subjectID).Msg("monitor created")
	return mon, nil
}

func (m *Manager) thresholds(ctx context.Context, subjectID string) (Thresholds, error) {
	if m.cfg.Thresholds == nil {
		return DefaultThresholds(), nil
	}
	return m.cfg.Thresholds(ctx, subjectID)
}

func (m *Manager) pollInterval(ctx context.Context) time.Duration {
	if m.cfg.PollIntervalFunc != nil {
		if d := m.cfg.PollIntervalFunc(ctx); d > 0 {
			return d
		}
	}
	return m.cfg.PollInterval
}

func (m *Manager) onTransition(from Phase, s State) {
	m.logger.Info().
		Str("subject_id", s.SubjectID).
		Str("from", from.String()).
		Str("to", s.Phase.String()).
		Int("countdown", s.Countdown).
		Msg("monitor transition")
	m.save(s)
}

func (m *Manager) onCancelled(s State) {
	m.logger.Info().Str("subject_id", s.SubjectID).Msg("emergency countdown cancelled")
	if m.cfg.OnCancelled != nil {
		m.cfg.OnCancelled(s.SubjectID)
	}
}

func (m *Manager) onNotified(n *EmergencyNotification, err error) {
	mon, ok := m.lookup(n.SubjectID)
	if !ok {
		return
	}
	s := mon.State()
	if s.Phase != PhaseNotified {
		return
	}
	s.Notification = n
	s.DeliveryError = ""
	if err != nil {
		s.DeliveryError = err.Error()
	}
	m.save(s)
}

func (m *Manager) save(s State) {
	if m.cfg.Store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	if err := m.cfg.Store.Save(ctx, s); err != nil {
		m.logger.Warn().Err(err).Str("subject_id", s.SubjectID).Msg("failed to save monitor state")
	}
}
