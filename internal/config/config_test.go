package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lifelink/lifelink/internal/config"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.HTTP.Port)
	assert.Equal(t, 5*time.Second, cfg.Monitor.PollInterval)
	assert.Equal(t, 30, cfg.Monitor.CountdownSeconds)
	assert.Equal(t, 15*time.Second, cfg.Monitor.ResumePause)
	assert.Equal(t, int64(10<<20), cfg.Storage.MaxUploadBytes)
	assert.Equal(t, "alerts@lifelink.com", cfg.SendGrid.FromEmail)
	assert.False(t, cfg.MQTT.Enabled())
	assert.False(t, cfg.PubSub.Enabled())
	assert.True(t, cfg.UsesDevSigningKey())
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("APP_PORT", "9090")
	t.Setenv("MONITOR_POLL_INTERVAL", "2s")
	t.Setenv("MQTT_BROKER", "tcp://mqtt:1883")
	t.Setenv("PUBSUB_PROJECT_ID", "lifelink-prod")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.HTTP.Port)
	assert.Equal(t, 2*time.Second, cfg.Monitor.PollInterval)
	assert.True(t, cfg.MQTT.Enabled())
	assert.True(t, cfg.PubSub.Enabled())
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{"port out of range", "APP_PORT", "70000"},
		{"unknown log level", "LOG_LEVEL", "verbose"},
		{"poll interval too short", "MONITOR_POLL_INTERVAL", "10ms"},
		{"zero countdown", "MONITOR_COUNTDOWN_SECONDS", "0"},
		{"invalid qos", "MQTT_QOS", "3"},
		{"sample ratio above one", "OTEL_TRACES_SAMPLE_RATIO", "1.5"},
		{"short signing key", "JWT_SIGNING_KEY", "short"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.val)
			_, err := config.Load()
			assert.Error(t, err)
		})
	}
}

func TestLoad_ProductionRequiresSigningKey(t *testing.T) {
	t.Setenv("APP_ENV", "production")

	_, err := config.Load()
	require.Error(t, err)

	t.Setenv("JWT_SIGNING_KEY", "a-real-production-signing-key")
	cfg, err := config.Load()
	require.NoError(t, err)
	assert.True(t, cfg.IsProduction())
}
