package telemetry_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lifelink/lifelink/internal/telemetry"
)

func TestInit_Disabled(t *testing.T) {
	ctx := context.Background()

	provider, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:    "lifelink-api",
		ServiceVersion: "1.0.0",
		Environment:    "test",
		OTLPEndpoint:   "localhost:4317",
		Enabled:        false,
		SampleRatio:    0.5,
	})
	require.NoError(t, err)
	assert.NotNil(t, provider.Tracer)
	assert.NotNil(t, provider.Meter)
	assert.Nil(t, provider.TracerProvider)
	assert.Nil(t, provider.MeterProvider)
	assert.NoError(t, provider.Shutdown(ctx))
}

func TestProvider_ShutdownWithoutProviders(t *testing.T) {
	provider := &telemetry.Provider{}
	assert.NoError(t, provider.Shutdown(context.Background()))
}

func TestInstruments(t *testing.T) {
	ctx := context.Background()

	inst, err := telemetry.NewInstruments()
	require.NoError(t, err)
	assert.NotPanics(t, func() {
		inst.VitalsRecorded(ctx, "wearable")
		inst.AlertRecorded(ctx, "pending")
		inst.RecipientNotified(ctx, "email", true)
		inst.IngestMessage(ctx, "accepted")
	})

	var nilInst *telemetry.Instruments
	assert.NotPanics(t, func() {
		nilInst.VitalsRecorded(ctx, "manual")
		nilInst.AlertRecorded(ctx, "suppressed")
		nilInst.RecipientNotified(ctx, "push", false)
		nilInst.IngestMessage(ctx, "rejected")
	})
}
