// Package monitor implements the emergency alert monitor.
//
// A Monitor evaluates the latest vital signs of one subject against alert
// thresholds on a fixed poll interval. When heart rate, oxygen and movement
// are all below their thresholds at the same time the monitor enters the
// Triggered phase and runs a cancellable countdown. If the countdown expires
// while the condition still holds, exactly one EmergencyNotification is built
// and handed to a Deliverer.
//
// Phases:
//
//	Idle ──breach──▶ Triggered ──countdown 0──▶ Notified
//	  ▲                 │  │
//	  └──── recover ────┘  └──cancel──▶ Cancelled
//
// Notified and Cancelled are terminal until the monitor is re-armed with
// Start, Reset or Resume.
package monitor

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// DefaultCountdownSeconds is the grace period before an emergency is declared.
const DefaultCountdownSeconds = 30

// ErrInvalidThresholds is returned when a threshold is NaN or infinite.
var ErrInvalidThresholds = errors.New("invalid alert thresholds")

// Vitals is a single snapshot of a subject's vital signs.
type Vitals struct {
	// HeartRate in beats per minute.
	HeartRate float64 `json:"heartRate"`

	// Oxygen saturation in percent (0-100).
	Oxygen float64 `json:"oxygen"`

	// Movement level in percent (0-100).
	Movement float64 `json:"movement"`
}

// Thresholds are the per-metric lower bounds. An emergency condition holds
// only when every metric is strictly below its threshold.
type Thresholds struct {
	HeartRate float64 `json:"heartRate"`
	Oxygen    float64 `json:"oxygen"`
	Movement  float64 `json:"movement"`
}

// DefaultThresholds returns the thresholds applied to new users.
func DefaultThresholds() Thresholds {
	return Thresholds{
		HeartRate: 60,
		Oxygen:    95,
		Movement:  30,
	}
}

// Validate checks that all thresholds are finite numbers.
func (t Thresholds) Validate() error {
	fields := []struct {
		name  string
		value float64
	}{
		{"heartRate", t.HeartRate},
		{"oxygen", t.Oxygen},
		{"movement", t.Movement},
	}
	for _, f := range fields {
		if math.IsNaN(f.value) || math.IsInf(f.value, 0) {
			return fmt.Errorf("%w: %s must be a finite number", ErrInvalidThresholds, f.name)
		}
	}
	return nil
}

// Breached reports whether v is strictly below t on all three metrics.
func (t Thresholds) Breached(v Vitals) bool {
	return v.HeartRate < t.HeartRate &&
		v.Oxygen < t.Oxygen &&
		v.Movement < t.Movement
}

// Phase is the alert lifecycle phase of a monitor.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseTriggered
	PhaseCancelled
	PhaseNotified
)

var phaseNames = map[Phase]string{
	PhaseIdle:      "IDLE",
	PhaseTriggered: "TRIGGERED",
	PhaseCancelled: "CANCELLED",
	PhaseNotified:  "NOTIFIED",
}

// String returns the wire name of the phase.
func (p Phase) String() string {
	if name, ok := phaseNames[p]; ok {
		return name
	}
	return "UNKNOWN"
}

// Terminal reports whether the phase requires a re-arm to leave.
func (p Phase) Terminal() bool {
	return p == PhaseCancelled || p == PhaseNotified
}

// MarshalText implements encoding.TextMarshaler.
func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *Phase) UnmarshalText(text []byte) error {
	for phase, name := range phaseNames {
		if name == string(text) {
			*p = phase
			return nil
		}
	}
	return fmt.Errorf("unknown phase %q", string(text))
}

// Location is a geographic position with an optional human-readable address.
type Location struct {
	Lat     float64 `json:"lat"`
	Lng     float64 `json:"lng"`
	Address string  `json:"address,omitempty"`
}

// EmergencyNotification is produced once per Triggered to Notified transition.
type EmergencyNotification struct {
	ID        string    `json:"id"`
	SubjectID string    `json:"subjectId"`
	Vitals    Vitals    `json:"vitals"`
	Location  *Location `json:"location,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// State is a read-only snapshot of a monitor.
type State struct {
	SubjectID string `json:"subjectId"`
	Phase     Phase  `json:"phase"`

	// StartedAt is when the current countdown started. Zero unless Triggered.
	StartedAt time.Time `json:"startedAt,omitempty"`

	// Countdown is the number of seconds left before an emergency is declared.
	// It reads the full countdown in every phase other than Triggered.
	Countdown int `json:"countdown"`

	Thresholds Thresholds `json:"thresholds"`

	// Vitals is the most recently reported snapshot, if any.
	Vitals *Vitals `json:"vitals,omitempty"`

	// PausedUntil suspends evaluation until the given time.
	PausedUntil time.Time `json:"pausedUntil,omitempty"`

	// Evaluations counts processed poll ticks.
	Evaluations uint64 `json:"evaluations"`

	// Notification is set once the notification for the current cycle is built.
	Notification *EmergencyNotification `json:"notification,omitempty"`

	// DeliveryError holds the last delivery failure of the current cycle.
	DeliveryError string `json:"deliveryError,omitempty"`

	UpdatedAt time.Time `json:"updatedAt"`
}
