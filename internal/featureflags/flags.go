// Package featureflags provides runtime switches for alert dispatch, the
// vitals simulator and monitor tuning.
package featureflags

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"
)

// Well-known feature flag keys.
const (
	// FlagDisableAlertsSending records emergency alerts without dispatching them.
	FlagDisableAlertsSending = "disable_alerts_sending"

	// FlagEnableVitalsSimulation lets the simulator generate vitals for opted-in users.
	FlagEnableVitalsSimulation = "enable_vitals_simulation"

	// FlagEmailAlerts enables email delivery to emergency contacts.
	FlagEmailAlerts = "email_alerts"

	// FlagPushAlerts enables push delivery to registered devices.
	FlagPushAlerts = "push_alerts"

	// FlagCallCenterAlerts enables the call-center dispatch record.
	FlagCallCenterAlerts = "call_center_alerts"

	// FlagMonitorPollSeconds overrides the monitor poll interval in seconds.
	FlagMonitorPollSeconds = "monitor_poll_seconds"
)

var (
	// ErrFlagNotFound is returned when a flag has never been stored.
	ErrFlagNotFound = errors.New("feature flag not found")

	// ErrUnknownFlag is returned for keys outside the known definitions.
	ErrUnknownFlag = errors.New("unknown feature flag")

	// ErrInvalidValue is returned when a value does not fit its definition.
	ErrInvalidValue = errors.New("invalid feature flag value")
)

// Kind is the value type of a flag.
type Kind string

// Flag kinds.
const (
	KindBool Kind = "bool"
	KindInt  Kind = "int"
)

// Definition describes a known flag.
type Definition struct {
	Key         string
	Kind        Kind
	Default     interface{}
	Description string

	// Min and Max bound KindInt values.
	Min, Max int
}

var definitions = map[string]Definition{
	FlagDisableAlertsSending: {
		Key: FlagDisableAlertsSending, Kind: KindBool, Default: false,
		Description: "Record emergency alerts without dispatching them",
	},
	FlagEnableVitalsSimulation: {
		Key: FlagEnableVitalsSimulation, Kind: KindBool, Default: true,
		Description: "Generate simulated vitals for users who opted in",
	},
	FlagEmailAlerts: {
		Key: FlagEmailAlerts, Kind: KindBool, Default: true,
		Description: "Email emergency contacts",
	},
	FlagPushAlerts: {
		Key: FlagPushAlerts, Kind: KindBool, Default: true,
		Description: "Push alerts to registered devices",
	},
	FlagCallCenterAlerts: {
		Key: FlagCallCenterAlerts, Kind: KindBool, Default: true,
		Description: "Send a record to the emergency call center",
	},
	FlagMonitorPollSeconds: {
		Key: FlagMonitorPollSeconds, Kind: KindInt, Default: float64(5),
		Description: "Seconds between monitor evaluations",
		Min:         1, Max: 300,
	},
}

// Definitions returns every known flag sorted by key.
func Definitions() []Definition {
	out := make([]Definition, 0, len(definitions))
	for _, d := range definitions {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// Normalize checks value against the flag's definition and returns it in its
// stored form. Integers are stored as float64, the way JSON decodes them.
func Normalize(key string, value interface{}) (interface{}, error) {
	def, ok := definitions[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownFlag, key)
	}

	switch def.Kind {
	case KindBool:
		if b, ok := value.(bool); ok {
			return b, nil
		}
		return nil, fmt.Errorf("%w: %s must be a boolean", ErrInvalidValue, key)
	case KindInt:
		var n float64
		switch v := value.(type) {
		case float64:
			n = v
		case int:
			n = float64(v)
		default:
			return nil, fmt.Errorf("%w: %s must be a number", ErrInvalidValue, key)
		}
		if n != math.Trunc(n) || n < float64(def.Min) || n > float64(def.Max) {
			return nil, fmt.Errorf("%w: %s must be a whole number between %d and %d", ErrInvalidValue, key, def.Min, def.Max)
		}
		return n, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrInvalidValue, key)
	}
}

// Flag is a stored flag value.
type Flag struct {
	Key       string      `json:"key"`
	Value     interface{} `json:"value"`
	UpdatedAt time.Time   `json:"updatedAt"`
	UpdatedBy string      `json:"updatedBy,omitempty"`
}

// FlagList is the admin listing of every flag.
type FlagList struct {
	Items []Flag `json:"items"`
}

// FlagUpdate is a single flag change.
type FlagUpdate struct {
	Key   string      `json:"key"`
	Value interface{} `json:"value"`
}

// FlagUpdateRequest is the admin request to change flags.
type FlagUpdateRequest struct {
	Updates []FlagUpdate `json:"updates"`
	Reason  string       `json:"reason"`
}

// FieldError describes one rejected update.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// ValidationError lists every rejected update of a request.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return "validation error"
	}
	return "validation error: " + e.Fields[0].Message
}

// BoolValue returns the flag value as a boolean, or def when unset.
func (f *Flag) BoolValue(def bool) bool {
	if f == nil {
		return def
	}
	if v, ok := f.Value.(bool); ok {
		return v
	}
	return def
}

// IntValue returns the flag value as an integer, or def when unset.
func (f *Flag) IntValue(def int) int {
	if f == nil {
		return def
	}
	switch v := f.Value.(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return def
	}
}

// DefaultFlags returns every known flag at its default value.
func DefaultFlags() map[string]*Flag {
	flags := make(map[string]*Flag, len(definitions))
	for key, def := range definitions {
		flags[key] = &Flag{Key: key, Value: def.Default}
	}
	return flags
}
