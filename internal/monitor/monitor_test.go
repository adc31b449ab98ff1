package monitor_test

import (
	"context"
	"errors"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"code.cloudfoundry.org/clock/fakeclock"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/lifelink/lifelink/internal/monitor"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var (
	thresholds = monitor.Thresholds{HeartRate: 60, Oxygen: 95, Movement: 30}
	critical   = monitor.Vitals{HeartRate: 50, Oxygen: 90, Movement: 20}
	healthy    = monitor.Vitals{HeartRate: 70, Oxygen: 98, Movement: 50}
)

type recordingDeliverer struct {
	mu            sync.Mutex
	notifications []*monitor.EmergencyNotification
	err           error
}

func (d *recordingDeliverer) Deliver(_ context.Context, n *monitor.EmergencyNotification) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.notifications = append(d.notifications, n)
	return d.err
}

func (d *recordingDeliverer) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.notifications)
}

func (d *recordingDeliverer) last() *monitor.EmergencyNotification {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.notifications) == 0 {
		return nil
	}
	return d.notifications[len(d.notifications)-1]
}

type locatorFunc func(ctx context.Context, subjectID string) (*monitor.Location, error)

func (f locatorFunc) Locate(ctx context.Context, subjectID string) (*monitor.Location, error) {
	return f(ctx, subjectID)
}

type harness struct {
	clock     *fakeclock.FakeClock
	deliverer *recordingDeliverer
	alarm     *monitor.LogAlarm
	monitor   *monitor.Monitor
	cancelled atomic.Int32
}

func newHarness(t *testing.T, mutate func(cfg *monitor.Config)) *harness {
	t.Helper()

	h := &harness{
		clock:     fakeclock.NewFakeClock(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)),
		deliverer: &recordingDeliverer{},
		alarm:     monitor.NewLogAlarm(zerolog.Nop()),
	}
	cfg := monitor.Config{
		SubjectID: "usr_test",
		Clock:     h.clock,
		Deliverer: h.deliverer,
		Alarm:     h.alarm,
		Logger:    zerolog.Nop(),
		OnCancelled: func(monitor.State) {
			h.cancelled.Add(1)
		},
	}
	if mutate != nil {
		mutate(&cfg)
	}
	h.monitor = monitor.New(cfg)
	t.Cleanup(h.monitor.Stop)

	require.NoError(t, h.monitor.Start(time.Second, thresholds))
	return h
}

func (h *harness) waitFor(t *testing.T, cond func(s monitor.State) bool, msg string) {
	t.Helper()
	require.Eventually(t, func() bool {
		return cond(h.monitor.State())
	}, 2*time.Second, time.Millisecond, msg)
}

func (h *harness) waitPhase(t *testing.T, phase monitor.Phase) {
	t.Helper()
	h.waitFor(t, func(s monitor.State) bool { return s.Phase == phase }, "expected phase "+phase.String())
}

func (h *harness) waitCountdown(t *testing.T, remaining int) {
	t.Helper()
	h.waitFor(t, func(s monitor.State) bool {
		return s.Phase == monitor.PhaseTriggered && s.Countdown == remaining
	}, "countdown did not advance")
}

func (h *harness) waitEvaluations(t *testing.T, n uint64) {
	t.Helper()
	h.waitFor(t, func(s monitor.State) bool { return s.Evaluations >= n }, "poll tick not processed")
}

// trigger feeds critical vitals and advances one poll tick.
func (h *harness) trigger(t *testing.T) {
	t.Helper()
	h.monitor.ReportVitals(critical)
	h.clock.Increment(time.Second)
	h.waitPhase(t, monitor.PhaseTriggered)
}

// countdown advances n countdown ticks while Triggered.
func (h *harness) countdown(t *testing.T, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		before := h.monitor.State().Countdown
		h.clock.Increment(time.Second)
		if before == 1 {
			h.waitPhase(t, monitor.PhaseNotified)
			return
		}
		h.waitCountdown(t, before-1)
	}
}

func TestMonitor_CriticalVitalsNotifyAfterCountdown(t *testing.T) {
	h := newHarness(t, nil)

	h.trigger(t)
	state := h.monitor.State()
	assert.Equal(t, 30, state.Countdown)
	assert.False(t, state.StartedAt.IsZero())
	assert.True(t, h.alarm.Sounding("usr_test"))

	h.countdown(t, 30)

	require.Eventually(t, func() bool { return h.deliverer.count() == 1 }, 2*time.Second, time.Millisecond)
	n := h.deliverer.last()
	assert.Equal(t, "usr_test", n.SubjectID)
	assert.Equal(t, critical, n.Vitals)
	assert.Nil(t, n.Location)
	assert.NotEmpty(t, n.ID)

	h.waitFor(t, func(s monitor.State) bool { return s.Notification != nil }, "notification not recorded")
	state = h.monitor.State()
	assert.Equal(t, monitor.PhaseNotified, state.Phase)
	assert.Equal(t, 30, state.Countdown)
	assert.Empty(t, state.DeliveryError)
	assert.False(t, h.alarm.Sounding("usr_test"))
	assert.Equal(t, 0, h.clock.WatcherCount(), "terminal phase should stop all tickers")

	// No further notifications while Notified.
	for i := 0; i < 5; i++ {
		h.clock.Increment(time.Second)
	}
	assert.Equal(t, 1, h.deliverer.count())
}

func TestMonitor_RecoveryDuringCountdownReturnsToIdle(t *testing.T) {
	h := newHarness(t, nil)

	h.trigger(t)
	h.countdown(t, 15)
	assert.Equal(t, 15, h.monitor.State().Countdown)

	h.monitor.ReportVitals(healthy)
	h.clock.Increment(time.Second)
	h.waitPhase(t, monitor.PhaseIdle)

	state := h.monitor.State()
	assert.Equal(t, 30, state.Countdown)
	assert.True(t, state.StartedAt.IsZero())
	assert.False(t, h.alarm.Sounding("usr_test"))
	assert.Equal(t, 1, h.clock.WatcherCount(), "only the poll ticker should remain")

	evaluations := state.Evaluations
	for i := 0; i < 20; i++ {
		h.clock.Increment(time.Second)
		h.waitEvaluations(t, evaluations+uint64(i)+1)
	}
	assert.Equal(t, monitor.PhaseIdle, h.monitor.State().Phase)
	assert.Equal(t, 0, h.deliverer.count())
}

func TestMonitor_CancelDuringCountdown(t *testing.T) {
	h := newHarness(t, nil)

	h.trigger(t)
	h.countdown(t, 5)
	assert.Equal(t, 25, h.monitor.State().Countdown)

	assert.True(t, h.monitor.Cancel())

	state := h.monitor.State()
	assert.Equal(t, monitor.PhaseCancelled, state.Phase)
	assert.Equal(t, 30, state.Countdown)
	assert.Equal(t, int32(1), h.cancelled.Load())
	assert.False(t, h.alarm.Sounding("usr_test"))
	assert.Equal(t, 0, h.clock.WatcherCount())

	assert.False(t, h.monitor.Cancel(), "second cancel is a no-op")
	assert.Equal(t, int32(1), h.cancelled.Load())

	for i := 0; i < 40; i++ {
		h.clock.Increment(time.Second)
	}
	assert.Equal(t, monitor.PhaseCancelled, h.monitor.State().Phase)
	assert.Equal(t, 0, h.deliverer.count())
}

func TestMonitor_CancelOutsideTriggeredIsNoop(t *testing.T) {
	h := newHarness(t, nil)

	assert.False(t, h.monitor.Cancel())
	assert.Equal(t, monitor.PhaseIdle, h.monitor.State().Phase)
	assert.Equal(t, int32(0), h.cancelled.Load())
}

func TestMonitor_ConcurrentCancelInvokesHookOnce(t *testing.T) {
	h := newHarness(t, nil)
	h.trigger(t)

	var wg sync.WaitGroup
	var wins atomic.Int32
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if h.monitor.Cancel() {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
	assert.Equal(t, int32(1), h.cancelled.Load())
}

func TestMonitor_MissingVitalsNeverTrigger(t *testing.T) {
	h := newHarness(t, nil)

	for i := 1; i <= 5; i++ {
		h.clock.Increment(time.Second)
		h.waitEvaluations(t, uint64(i))
	}
	state := h.monitor.State()
	assert.Equal(t, monitor.PhaseIdle, state.Phase)
	assert.Nil(t, state.Vitals)
}

func TestMonitor_StateReflectsReportedVitalsImmediately(t *testing.T) {
	h := newHarness(t, nil)

	h.monitor.ReportVitals(healthy)
	state := h.monitor.State()
	require.NotNil(t, state.Vitals)
	assert.Equal(t, healthy, *state.Vitals)

	h.clock.Increment(time.Second)
	h.waitEvaluations(t, 1)

	// No poll tick between the report and the read.
	h.monitor.ReportVitals(critical)
	state = h.monitor.State()
	require.NotNil(t, state.Vitals)
	assert.Equal(t, critical, *state.Vitals)
	assert.Equal(t, monitor.PhaseIdle, state.Phase)

	state.Vitals.HeartRate = 0
	assert.Equal(t, critical, *h.monitor.State().Vitals, "State returns a copy")
}

func TestMonitor_PartialBreachDoesNotTrigger(t *testing.T) {
	h := newHarness(t, nil)

	// Movement equal to its threshold is not below it.
	h.monitor.ReportVitals(monitor.Vitals{HeartRate: 50, Oxygen: 90, Movement: 30})
	h.clock.Increment(time.Second)
	h.waitEvaluations(t, 1)

	assert.Equal(t, monitor.PhaseIdle, h.monitor.State().Phase)
}

func TestMonitor_ThresholdChangeEndsCountdownEarly(t *testing.T) {
	h := newHarness(t, nil)

	h.trigger(t)
	h.countdown(t, 3)

	require.NoError(t, h.monitor.SetThresholds(monitor.Thresholds{HeartRate: 40, Oxygen: 80, Movement: 10}))
	h.clock.Increment(time.Second)
	h.waitPhase(t, monitor.PhaseIdle)

	assert.Equal(t, 30, h.monitor.State().Countdown)
	assert.Equal(t, 0, h.deliverer.count())
}

func TestMonitor_ThresholdChangeKeepsRunningCountdown(t *testing.T) {
	h := newHarness(t, nil)

	h.trigger(t)
	h.countdown(t, 10)

	require.NoError(t, h.monitor.SetThresholds(monitor.Thresholds{HeartRate: 70, Oxygen: 99, Movement: 40}))
	h.countdown(t, 1)

	state := h.monitor.State()
	assert.Equal(t, monitor.PhaseTriggered, state.Phase)
	assert.Equal(t, 19, state.Countdown)
	assert.Equal(t, 70.0, state.Thresholds.HeartRate)
}

func TestMonitor_InvalidThresholds(t *testing.T) {
	h := newHarness(t, nil)

	err := h.monitor.Start(time.Second, monitor.Thresholds{HeartRate: math.NaN(), Oxygen: 95, Movement: 30})
	require.ErrorIs(t, err, monitor.ErrInvalidThresholds)

	err = h.monitor.SetThresholds(monitor.Thresholds{HeartRate: 60, Oxygen: math.Inf(1), Movement: 30})
	require.ErrorIs(t, err, monitor.ErrInvalidThresholds)

	assert.Equal(t, thresholds, h.monitor.State().Thresholds)
}

func TestMonitor_LocationFallsBackToLastKnown(t *testing.T) {
	lastKnown := monitor.Location{Lat: 51.5, Lng: -0.12, Address: "Westminster, London"}
	h := newHarness(t, func(cfg *monitor.Config) {
		cfg.CountdownSeconds = 3
		cfg.Locator = locatorFunc(func(context.Context, string) (*monitor.Location, error) {
			return nil, errors.New("geocoder down")
		})
	})
	h.monitor.ReportLocation(lastKnown)

	h.trigger(t)
	h.countdown(t, 3)

	require.Eventually(t, func() bool { return h.deliverer.count() == 1 }, 2*time.Second, time.Millisecond)
	require.NotNil(t, h.deliverer.last().Location)
	assert.Equal(t, lastKnown, *h.deliverer.last().Location)
}

func TestMonitor_LocationFromLocator(t *testing.T) {
	h := newHarness(t, func(cfg *monitor.Config) {
		cfg.CountdownSeconds = 2
		cfg.Locator = locatorFunc(func(_ context.Context, subjectID string) (*monitor.Location, error) {
			assert.Equal(t, "usr_test", subjectID)
			return &monitor.Location{Lat: 1, Lng: 2, Address: "Somewhere"}, nil
		})
	})

	h.trigger(t)
	h.countdown(t, 2)

	require.Eventually(t, func() bool { return h.deliverer.count() == 1 }, 2*time.Second, time.Millisecond)
	assert.Equal(t, "Somewhere", h.deliverer.last().Location.Address)
}

func TestMonitor_DeliveryFailureIsRecorded(t *testing.T) {
	var hookErr atomic.Value
	h := newHarness(t, func(cfg *monitor.Config) {
		cfg.CountdownSeconds = 2
		cfg.OnNotified = func(_ *monitor.EmergencyNotification, err error) {
			hookErr.Store(err)
		}
	})
	h.deliverer.err = errors.New("push service unavailable")

	h.trigger(t)
	h.countdown(t, 2)

	h.waitFor(t, func(s monitor.State) bool { return s.DeliveryError != "" }, "delivery error not recorded")
	state := h.monitor.State()
	assert.Equal(t, monitor.PhaseNotified, state.Phase)
	assert.Equal(t, "push service unavailable", state.DeliveryError)

	err, _ := hookErr.Load().(error)
	require.Error(t, err)
	assert.Equal(t, 1, h.deliverer.count(), "failed deliveries are not retried")
}

func TestMonitor_ResetStartsNewCycle(t *testing.T) {
	h := newHarness(t, func(cfg *monitor.Config) {
		cfg.CountdownSeconds = 2
	})

	assert.False(t, h.monitor.Reset(), "reset from Idle is a no-op")

	h.trigger(t)
	h.countdown(t, 2)
	require.Eventually(t, func() bool { return h.deliverer.count() == 1 }, 2*time.Second, time.Millisecond)

	require.True(t, h.monitor.Reset())
	state := h.monitor.State()
	assert.Equal(t, monitor.PhaseIdle, state.Phase)
	assert.Nil(t, state.Notification)

	h.clock.Increment(time.Second)
	h.waitPhase(t, monitor.PhaseTriggered)
	h.countdown(t, 2)
	require.Eventually(t, func() bool { return h.deliverer.count() == 2 }, 2*time.Second, time.Millisecond)
}

func TestMonitor_ResumePausesEvaluation(t *testing.T) {
	h := newHarness(t, nil)

	h.trigger(t)
	require.False(t, h.monitor.Resume(15*time.Second), "resume is refused while Triggered")
	require.True(t, h.monitor.Cancel())

	require.True(t, h.monitor.Resume(15*time.Second))
	state := h.monitor.State()
	assert.Equal(t, monitor.PhaseIdle, state.Phase)
	assert.Equal(t, h.clock.Now().Add(15*time.Second), state.PausedUntil)

	evaluations := state.Evaluations
	for i := 1; i < 15; i++ {
		h.clock.Increment(time.Second)
		h.waitEvaluations(t, evaluations+uint64(i))
	}
	assert.Equal(t, monitor.PhaseIdle, h.monitor.State().Phase)

	h.clock.Increment(time.Second)
	h.waitPhase(t, monitor.PhaseTriggered)
}

func TestMonitor_StopIsIdempotent(t *testing.T) {
	h := newHarness(t, nil)
	h.trigger(t)

	h.monitor.Stop()
	h.monitor.Stop()

	assert.False(t, h.monitor.Cancel())
	assert.ErrorIs(t, h.monitor.Start(time.Second, thresholds), monitor.ErrStopped)
	assert.Equal(t, 0, h.clock.WatcherCount())
}

func TestMonitor_StartRequiresPositiveInterval(t *testing.T) {
	h := newHarness(t, nil)
	assert.Error(t, h.monitor.Start(0, thresholds))
}

func TestThresholds_Breached(t *testing.T) {
	tests := []struct {
		name   string
		vitals monitor.Vitals
		want   bool
	}{
		{"all below", critical, true},
		{"all above", healthy, false},
		{"heart rate at threshold", monitor.Vitals{HeartRate: 60, Oxygen: 90, Movement: 20}, false},
		{"oxygen above", monitor.Vitals{HeartRate: 50, Oxygen: 96, Movement: 20}, false},
		{"movement above", monitor.Vitals{HeartRate: 50, Oxygen: 90, Movement: 31}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, thresholds.Breached(tt.vitals))
		})
	}
}

func TestPhase_Text(t *testing.T) {
	text, err := monitor.PhaseNotified.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "NOTIFIED", string(text))

	var p monitor.Phase
	require.NoError(t, p.UnmarshalText([]byte("TRIGGERED")))
	assert.Equal(t, monitor.PhaseTriggered, p)
	assert.Error(t, p.UnmarshalText([]byte("BOGUS")))

	assert.True(t, monitor.PhaseCancelled.Terminal())
	assert.False(t, monitor.PhaseTriggered.Terminal())
}
