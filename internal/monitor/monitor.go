package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"code.cloudfoundry.org/clock"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ErrStopped is returned by operations on a stopped monitor.
var ErrStopped = errors.New("monitor stopped")

// Locator resolves the current location of a subject.
type Locator interface {
	Locate(ctx context.Context, subjectID string) (*Location, error)
}

// Deliverer hands an emergency notification to its transport.
type Deliverer interface {
	Deliver(ctx context.Context, n *EmergencyNotification) error
}

// AlarmHook starts and stops the local alarm for a subject.
type AlarmHook interface {
	Sound(subjectID string)
	Silence(subjectID string)
}

// Config holds the dependencies and hooks of a Monitor.
//
// OnCancelled, OnTransition and OnCountdown run on the monitor loop and must
// not call back into the Monitor. OnNotified runs on the delivery goroutine.
// States passed to the hooks carry the latest reported vitals.
type Config struct {
	SubjectID string
	Clock     clock.Clock
	Locator   Locator
	Deliverer Deliverer
	Alarm     AlarmHook
	Logger    zerolog.Logger
	Metrics   *Metrics

	// CountdownSeconds is the grace period before notifying. Defaults to 30.
	CountdownSeconds int

	// LocateTimeout bounds the location lookup. Defaults to 5s.
	LocateTimeout time.Duration

	// DeliverTimeout bounds a single delivery. Defaults to 30s.
	DeliverTimeout time.Duration

	// OnCancelled is called once for every successful Cancel.
	OnCancelled func(State)

	// OnNotified is called after every delivery attempt with its result.
	OnNotified func(n *EmergencyNotification, err error)

	// OnTransition is called after every phase change.
	OnTransition func(from Phase, s State)

	// OnCountdown is called after every countdown tick that leaves the
	// monitor Triggered.
	OnCountdown func(s State)
}

type request struct {
	fn    func()
	reply chan struct{}
}

type deliveryResult struct {
	cycle        uint64
	notification *EmergencyNotification
	err          error
}

// Monitor is the alert state machine for a single subject.
//
// Every state mutation happens on the monitor's own loop goroutine. Public
// methods are safe for concurrent use and submit requests to that loop.
type Monitor struct {
	cfg    Config
	clock  clock.Clock
	logger zerolog.Logger

	requests chan request
	results  chan deliveryResult
	done     chan struct{}
	stopOnce sync.Once
	loopWG   sync.WaitGroup
	sendWG   sync.WaitGroup

	// inbox holds input produced outside the loop.
	inboxMu   sync.Mutex
	latest    *Vitals
	lastKnown *Location

	// published snapshot
	stateMu  sync.RWMutex
	snapshot State

	// loop-owned
	state        State
	pollInterval time.Duration
	poll         clock.Ticker
	countdown    clock.Ticker
	cycle        uint64
}

// New creates a monitor in the Idle phase and starts its loop. Evaluation
// begins once Start is called. Stop must be called to release the loop.
func New(cfg Config) *Monitor {
	if cfg.Clock == nil {
		cfg.Clock = clock.NewClock()
	}
	if cfg.CountdownSeconds <= 0 {
		cfg.CountdownSeconds = DefaultCountdownSeconds
	}
	if cfg.LocateTimeout <= 0 {
		cfg.LocateTimeout = 5 * time.Second
	}
	if cfg.DeliverTimeout <= 0 {
		cfg.DeliverTimeout = 30 * time.Second
	}

	m := &Monitor{
		cfg:      cfg,
		clock:    cfg.Clock,
		logger:   cfg.Logger.With().Str("component", "monitor").Str("subject_id", cfg.SubjectID).Logger(),
		requests: make(chan request),
		results:  make(chan deliveryResult),
		done:     make(chan struct{}),
	}
	m.state = State{
		SubjectID:  cfg.SubjectID,
		Phase:      PhaseIdle,
		Countdown:  cfg.CountdownSeconds,
		Thresholds: DefaultThresholds(),
		UpdatedAt:  m.clock.Now(),
	}
	m.snapshot = m.state

	m.loopWG.Add(1)
	go m.run()
	cfg.Metrics.addActive(1)

	return m
}

// Start validates the thresholds, resets the monitor to Idle and (re)starts
// evaluation every pollInterval.
func (m *Monitor) Start(pollInterval time.Duration, thresholds Thresholds) error {
	if pollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive, got %s", pollInterval)
	}
	if err := thresholds.Validate(); err != nil {
		return err
	}

	ok := m.do(func() {
		m.pollInterval = pollInterval
		m.state.Thresholds = thresholds
		m.rearm(time.Time{})
		m.logger.Info().
			Dur("poll_interval", pollInterval).
			Float64("heart_rate_threshold", thresholds.HeartRate).
			Float64("oxygen_threshold", thresholds.Oxygen).
			Float64("movement_threshold", thresholds.Movement).
			Msg("monitor started")
	})
	if !ok {
		return ErrStopped
	}
	return nil
}

// ReportVitals stores the latest snapshot. The next poll tick evaluates it.
func (m *Monitor) ReportVitals(v Vitals) {
	m.inboxMu.Lock()
	m.latest = &v
	m.inboxMu.Unlock()
}

// ReportLocation records a known location used when the Locator fails.
func (m *Monitor) ReportLocation(loc Location) {
	m.inboxMu.Lock()
	m.lastKnown = &loc
	m.inboxMu.Unlock()
}

// SetThresholds replaces the thresholds used by subsequent evaluations.
// A running countdown keeps its remaining time.
func (m *Monitor) SetThresholds(thresholds Thresholds) error {
	if err := thresholds.Validate(); err != nil {
		return err
	}
	if !m.do(func() { m.state.Thresholds = thresholds }) {
		return ErrStopped
	}
	return nil
}

// Cancel moves a Triggered monitor to Cancelled and reports true. In any
// other phase it does nothing and reports false.
func (m *Monitor) Cancel() bool {
	var cancelled bool
	m.do(func() {
		if m.state.Phase != PhaseTriggered {
			return
		}
		m.stopPoll()
		m.transition(PhaseCancelled)
		cancelled = true

		if m.cfg.OnCancelled != nil {
			m.cfg.OnCancelled(m.current())
		}
	})
	return cancelled
}

// Reset moves a Cancelled or Notified monitor back to Idle and restarts
// evaluation. It reports false in any other phase.
func (m *Monitor) Reset() bool {
	var reset bool
	m.do(func() {
		if !m.state.Phase.Terminal() || m.pollInterval == 0 {
			return
		}
		m.rearm(time.Time{})
		reset = true
	})
	return reset
}

// Resume re-arms the monitor from any phase except Triggered and suspends
// evaluation for the given pause.
func (m *Monitor) Resume(pause time.Duration) bool {
	var resumed bool
	m.do(func() {
		if m.state.Phase == PhaseTriggered || m.pollInterval == 0 {
			return
		}
		var until time.Time
		if pause > 0 {
			until = m.clock.Now().Add(pause)
		}
		m.rearm(until)
		resumed = true
	})
	return resumed
}

// Pause suspends evaluation for d without changing the phase.
func (m *Monitor) Pause(d time.Duration) bool {
	return m.do(func() {
		m.state.PausedUntil = m.clock.Now().Add(d)
	})
}

// State returns a snapshot of the monitor. Vitals is always the most recently
// reported snapshot, even before the loop has evaluated it.
func (m *Monitor) State() State {
	m.stateMu.RLock()
	s := m.snapshot
	m.stateMu.RUnlock()

	s.Vitals = nil
	if v, ok := m.latestVitals(); ok {
		s.Vitals = &v
	}
	return s
}

// Stop halts evaluation, stops every ticker and waits for in-flight
// deliveries to finish.
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() {
		close(m.done)
		m.loopWG.Wait()
		m.sendWG.Wait()
		m.cfg.Metrics.addActive(-1)
		m.logger.Debug().Msg("monitor stopped")
	})
}

// do runs fn on the loop and waits until its effects are published.
func (m *Monitor) do(fn func()) bool {
	req := request{fn: fn, reply: make(chan struct{})}
	select {
	case m.requests <- req:
	case <-m.done:
		return false
	}
	<-req.reply
	return true
}

func (m *Monitor) run() {
	defer m.loopWG.Done()
	defer m.stopTickers()

	for {
		var pollC, countdownC <-chan time.Time
		if m.poll != nil {
			pollC = m.poll.C()
		}
		if m.countdown != nil {
			countdownC = m.countdown.C()
		}

		select {
		case <-m.done:
			return
		case req := <-m.requests:
			req.fn()
			m.publish()
			close(req.reply)
		case res := <-m.results:
			m.recordDelivery(res)
			m.publish()
		case now := <-pollC:
			m.evaluate(now)
			m.publish()
		case now := <-countdownC:
			m.tick(now)
			m.publish()
		}
	}
}

// evaluate handles a poll tick.
func (m *Monitor) evaluate(now time.Time) {
	if m.state.Phase.Terminal() {
		return
	}
	m.state.Evaluations++

	if !m.state.PausedUntil.IsZero() && now.Before(m.state.PausedUntil) {
		return
	}

	vitals, ok := m.latestVitals()
	if !ok {
		return
	}
	breached := m.state.Thresholds.Breached(vitals)

	switch m.state.Phase {
	case PhaseIdle:
		if breached {
			m.trigger(now)
		}
	case PhaseTriggered:
		if !breached {
			m.recover()
		}
	}
}

// tick handles a countdown tick.
func (m *Monitor) tick(now time.Time) {
	if m.state.Phase != PhaseTriggered {
		return
	}

	vitals, ok := m.latestVitals()
	if !ok || !m.state.Thresholds.Breached(vitals) {
		m.recover()
		return
	}

	if m.state.Countdown > 0 {
		m.state.Countdown--
	}
	if m.state.Countdown == 0 {
		m.notify(now, vitals)
		return
	}
	m.state.UpdatedAt = now
	if m.cfg.OnCountdown != nil {
		m.cfg.OnCountdown(m.current())
	}
}

func (m *Monitor) trigger(now time.Time) {
	m.countdown = m.clock.NewTicker(time.Second)
	m.state.StartedAt = now
	m.state.Countdown = m.cfg.CountdownSeconds
	m.transition(PhaseTriggered)

	if m.cfg.Alarm != nil {
		m.cfg.Alarm.Sound(m.cfg.SubjectID)
	}
	m.logger.Warn().
		Int("countdown", m.state.Countdown).
		Msg("emergency condition detected")
}

func (m *Monitor) recover() {
	m.transition(PhaseIdle)
	m.logger.Info().Msg("vitals recovered, countdown reset")
}

func (m *Monitor) notify(now time.Time, vitals Vitals) {
	m.stopPoll()
	m.transition(PhaseNotified)

	m.inboxMu.Lock()
	var fallback *Location
	if m.lastKnown != nil {
		loc := *m.lastKnown
		fallback = &loc
	}
	m.inboxMu.Unlock()

	draft := EmergencyNotification{
		ID:        "ntf_" + uuid.New().String()[:22],
		SubjectID: m.cfg.SubjectID,
		Vitals:    vitals,
		Timestamp: now,
	}

	m.logger.Error().
		Str("notification_id", draft.ID).
		Float64("heart_rate", vitals.HeartRate).
		Float64("oxygen", vitals.Oxygen).
		Float64("movement", vitals.Movement).
		Msg("countdown expired, sending emergency notification")

	m.sendWG.Add(1)
	go m.send(m.cycle, draft, fallback)
}

// send resolves the location and delivers the notification. It runs outside
// the loop so slow collaborators never delay ticks.
func (m *Monitor) send(cycle uint64, draft EmergencyNotification, fallback *Location) {
	defer m.sendWG.Done()

	draft.Location = m.locate(fallback)
	n := &draft

	var err error
	if m.cfg.Deliverer == nil {
		err = errors.New("no deliverer configured")
	} else {
		ctx, cancel := context.WithTimeout(context.Background(), m.cfg.DeliverTimeout)
		err = m.cfg.Deliverer.Deliver(ctx, n)
		cancel()
	}

	m.cfg.Metrics.recordDelivery(err)
	if err != nil {
		m.logger.Error().Err(err).Str("notification_id", n.ID).Msg("emergency notification delivery failed")
	} else {
		m.logger.Info().Str("notification_id", n.ID).Msg("emergency notification delivered")
	}

	if m.cfg.OnNotified != nil {
		m.cfg.OnNotified(n, err)
	}

	select {
	case m.results <- deliveryResult{cycle: cycle, notification: n, err: err}:
	case <-m.done:
	}
}

func (m *Monitor) locate(fallback *Location) *Location {
	if m.cfg.Locator == nil {
		return fallback
	}

	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.LocateTimeout)
	defer cancel()

	loc, err := m.cfg.Locator.Locate(ctx, m.cfg.SubjectID)
	if err != nil || loc == nil {
		m.logger.Warn().Err(err).Bool("has_fallback", fallback != nil).Msg("location lookup failed")
		return fallback
	}

	m.ReportLocation(*loc)
	return loc
}

func (m *Monitor) recordDelivery(res deliveryResult) {
	// A re-armed monitor keeps the new cycle's state.
	if res.cycle != m.cycle {
		return
	}
	m.state.Notification = res.notification
	m.state.DeliveryError = ""
	if res.err != nil {
		m.state.DeliveryError = res.err.Error()
	}
	m.state.UpdatedAt = m.clock.Now()
}

// transition changes phase. Leaving Triggered always stops the countdown
// ticker and the alarm.
func (m *Monitor) transition(to Phase) {
	from := m.state.Phase
	if from == PhaseTriggered && to != PhaseTriggered {
		m.stopCountdown()
		m.state.StartedAt = time.Time{}
		m.state.Countdown = m.cfg.CountdownSeconds
		if m.cfg.Alarm != nil {
			m.cfg.Alarm.Silence(m.cfg.SubjectID)
		}
	}
	m.state.Phase = to
	m.state.UpdatedAt = m.clock.Now()

	m.cfg.Metrics.recordTransition(from, to)
	if m.cfg.OnTransition != nil {
		m.cfg.OnTransition(from, m.current())
	}
}

// rearm returns to a fresh Idle cycle with a new poll ticker.
func (m *Monitor) rearm(pausedUntil time.Time) {
	from := m.state.Phase
	m.stopTickers()
	if from == PhaseTriggered && m.cfg.Alarm != nil {
		m.cfg.Alarm.Silence(m.cfg.SubjectID)
	}

	m.cycle++
	m.state.Phase = PhaseIdle
	m.state.StartedAt = time.Time{}
	m.state.Countdown = m.cfg.CountdownSeconds
	m.state.PausedUntil = pausedUntil
	m.state.Notification = nil
	m.state.DeliveryError = ""
	m.state.UpdatedAt = m.clock.Now()
	m.poll = m.clock.NewTicker(m.pollInterval)

	if from != PhaseIdle {
		m.cfg.Metrics.recordTransition(from, PhaseIdle)
		if m.cfg.OnTransition != nil {
			m.cfg.OnTransition(from, m.current())
		}
	}
}

func (m *Monitor) latestVitals() (Vitals, bool) {
	m.inboxMu.Lock()
	defer m.inboxMu.Unlock()
	if m.latest == nil {
		return Vitals{}, false
	}
	return *m.latest, true
}

// current returns the loop state with the latest reported vitals.
func (m *Monitor) current() State {
	s := m.state
	if v, ok := m.latestVitals(); ok {
		s.Vitals = &v
	}
	return s
}

func (m *Monitor) publish() {
	s := m.current()
	m.stateMu.Lock()
	m.snapshot = s
	m.stateMu.Unlock()
}

func (m *Monitor) stopPoll() {
	if m.poll != nil {
		m.poll.Stop()
		m.poll = nil
	}
}

func (m *Monitor) stopCountdown() {
	if m.countdown != nil {
		m.countdown.Stop()
		m.countdown = nil
	}
}

func (m *Monitor) stopTickers() {
	m.stopPoll()
	m.stopCountdown()
}
