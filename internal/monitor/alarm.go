package monitor

import (
	"sync"

	"github.com/rs/zerolog"
)

// LogAlarm is an AlarmHook that logs alarm changes and tracks which
// subjects currently have a sounding alarm.
type LogAlarm struct {
	logger zerolog.Logger

	mu       sync.RWMutex
	sounding map[string]bool
}

// NewLogAlarm creates a LogAlarm.
func NewLogAlarm(logger zerolog.Logger) *LogAlarm {
	return &LogAlarm{
		logger:   logger.With().Str("component", "alarm").Logger(),
		sounding: make(map[string]bool),
	}
}

// Sound starts the alarm for a subject.
func (a *LogAlarm) Sound(subjectID string) {
	a.mu.Lock()
	a.sounding[subjectID] = true
	a.mu.Unlock()
	a.logger.Warn().Str("subject_id", subjectID).Msg("alarm sounding")
}

// Silence stops the alarm for a subject.
func (a *LogAlarm) Silence(subjectID string) {
	a.mu.Lock()
	was := a.sounding[subjectID]
	delete(a.sounding, subjectID)
	a.mu.Unlock()
	if was {
		a.logger.Info().Str("subject_id", subjectID).Msg("alarm silenced")
	}
}

// Sounding reports whether the alarm for a subject is active.
func (a *LogAlarm) Sounding(subjectID string) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.sounding[subjectID]
}
