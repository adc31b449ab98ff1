package monitor

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/lifelink/lifelink/internal/monitor"

// Metrics holds the OpenTelemetry instruments for alert monitors.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	transitions metric.Int64Counter
	deliveries  metric.Int64Counter
	active      metric.Int64UpDownCounter
}

// NewMetrics creates the monitor instruments on the global meter provider.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)

	transitions, err := meter.Int64Counter(
		"monitor.transitions.total",
		metric.WithDescription("Number of alert phase transitions"),
		metric.WithUnit("{transition}"),
	)
	if err != nil {
		return nil, err
	}

	deliveries, err := meter.Int64Counter(
		"monitor.deliveries.total",
		metric.WithDescription("Number of emergency notification deliveries"),
		metric.WithUnit("{delivery}"),
	)
	if err != nil {
		return nil, err
	}

	active, err := meter.Int64UpDownCounter(
		"monitor.active",
		metric.WithDescription("Number of running alert monitors"),
		metric.WithUnit("{monitor}"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		transitions: transitions,
		deliveries:  deliveries,
		active:      active,
	}, nil
}

func (m *Metrics) recordTransition(from, to Phase) {
	if m == nil {
		return
	}
	m.transitions.Add(context.TODO(), 1, metric.WithAttributes(
		attribute.String("monitor.from", from.String()),
		attribute.String("monitor.to", to.String()),
	))
}

func (m *Metrics) recordDelivery(err error) {
	if m == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	m.deliveries.Add(context.TODO(), 1, metric.WithAttributes(
		attribute.String("monitor.outcome", outcome),
	))
}

func (m *Metrics) addActive(delta int64) {
	if m == nil {
		return
	}
	m.active.Add(context.TODO(), delta)
}
