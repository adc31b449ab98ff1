// Package vitals records vital-sign readings, serves history and feeds the
// alert monitor.
package vitals

import (
	"errors"
	"math"
	"time"

	"github.com/lifelink/lifelink/internal/monitor"
)

// History window bounds in days.
const (
	DefaultHistoryDays = 7
	MaxHistoryDays     = 90
)

// Errors.
var (
	ErrInvalidReading = errors.New("invalid vitals reading")
	ErrNoReadings     = errors.New("no vitals readings")
)

// Source says where a reading came from.
type Source string

const (
	SourceManual    Source = "manual"
	SourceWearable  Source = "wearable"
	SourceSimulator Source = "simulator"
)

// Reading is a stored vitals snapshot.
type Reading struct {
	ID     string `json:"id"`
	UserID string `json:"-"`
	monitor.Vitals
	Source     Source    `json:"source"`
	RecordedAt time.Time `json:"recordedAt"`
}

// Validate checks that every metric is finite and in range.
func Validate(v monitor.Vitals) error {
	checks := []struct {
		name     string
		value    float64
		min, max float64
	}{
		{"heartRate", v.HeartRate, 0, 300},
		{"oxygen", v.Oxygen, 0, 100},
		{"movement", v.Movement, 0, 100},
	}
	for _, c := range checks {
		if math.IsNaN(c.value) || math.IsInf(c.value, 0) || c.value < c.min || c.value > c.max {
			return &RangeError{Field: c.name, Min: c.min, Max: c.max}
		}
	}
	return nil
}

// RangeError reports a metric outside its allowed range.
type RangeError struct {
	Field    string
	Min, Max float64
}

func (e *RangeError) Error() string {
	return ErrInvalidReading.Error() + ": " + e.Field + " out of range"
}

// Unwrap lets errors.Is match ErrInvalidReading.
func (e *RangeError) Unwrap() error { return ErrInvalidReading }

// Stats summarizes one metric over a window.
type Stats struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
	Avg float64 `json:"avg"`
}

// History is the summary of a user's readings over a window.
type History struct {
	Days      int        `json:"days"`
	Count     int        `json:"count"`
	HeartRate Stats      `json:"heartRate"`
	Oxygen    Stats      `json:"oxygen"`
	Movement  Stats      `json:"movement"`
	Readings  []*Reading `json:"readings"`
}

// summarize fills the stats of h from its readings.
func (h *History) summarize() {
	h.Count = len(h.Readings)
	if h.Count == 0 {
		return
	}

	hr := newAccumulator()
	o2 := newAccumulator()
	mv := newAccumulator()
	for _, r := range h.Readings {
		hr.add(r.HeartRate)
		o2.add(r.Oxygen)
		mv.add(r.Movement)
	}
	h.HeartRate = hr.stats()
	h.Oxygen = o2.stats()
	h.Movement = mv.stats()
}

type accumulator struct {
	min, max, sum float64
	n             int
}

func newAccumulator() *accumulator {
	return &accumulator{min: math.Inf(1), max: math.Inf(-1)}
}

func (a *accumulator) add(v float64) {
	a.min = math.Min(a.min, v)
	a.max = math.Max(a.max, v)
	a.sum += v
	a.n++
}

func (a *accumulator) stats() Stats {
	avg := a.sum / float64(a.n)
	return Stats{Min: a.min, Max: a.max, Avg: math.Round(avg*10) / 10}
}
