package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentsMeter = "github.com/lifelink/lifelink"

// Instruments are the Life-Link domain counters. A nil *Instruments is
// valid and records nothing.
type Instruments struct {
	vitals     metric.Int64Counter
	alerts     metric.Int64Counter
	recipients metric.Int64Counter
	ingest     metric.Int64Counter
}

// NewInstruments creates the domain counters on the global meter provider.
func NewInstruments() (*Instruments, error) {
	meter := otel.Meter(instrumentsMeter)

	vitals, err := meter.Int64Counter("lifelink.vitals.readings",
		metric.WithDescription("Vitals readings recorded"),
		metric.WithUnit("{reading}"))
	if err != nil {
		return nil, err
	}
	alerts, err := meter.Int64Counter("lifelink.alerts",
		metric.WithDescription("Emergency alerts recorded"),
		metric.WithUnit("{alert}"))
	if err != nil {
		return nil, err
	}
	recipients, err := meter.Int64Counter("lifelink.dispatch.recipients",
		metric.WithDescription("Emergency dispatch attempts per recipient"),
		metric.WithUnit("{recipient}"))
	if err != nil {
		return nil, err
	}
	ingest, err := meter.Int64Counter("lifelink.ingest.messages",
		metric.WithDescription("Wearable MQTT messages processed"),
		metric.WithUnit("{message}"))
	if err != nil {
		return nil, err
	}

	return &Instruments{vitals: vitals, alerts: alerts, recipients: recipients, ingest: ingest}, nil
}

// VitalsRecorded counts a stored reading by source.
func (i *Instruments) VitalsRecorded(ctx context.Context, source string) {
	if i == nil {
		return
	}
	i.vitals.Add(ctx, 1, metric.WithAttributes(attribute.String("source", source)))
}

// AlertRecorded counts an alert by its initial status.
func (i *Instruments) AlertRecorded(ctx context.Context, status string) {
	if i == nil {
		return
	}
	i.alerts.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}

// RecipientNotified counts one dispatch attempt.
func (i *Instruments) RecipientNotified(ctx context.Context, channel string, ok bool) {
	if i == nil {
		return
	}
	i.recipients.Add(ctx, 1, metric.WithAttributes(
		attribute.String("channel", channel),
		attribute.Bool("success", ok),
	))
}

// IngestMessage counts an MQTT message by result: accepted, rejected or
// rate_limited.
func (i *Instruments) IngestMessage(ctx context.Context, result string) {
	if i == nil {
		return
	}
	i.ingest.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}
