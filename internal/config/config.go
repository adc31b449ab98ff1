// Package config loads process configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/lifelink/lifelink/internal/cache"
	"github.com/lifelink/lifelink/internal/database"
)

const devSigningKey = "local-dev-signing-key-change-in-production"

// Config is the full configuration of a Life-Link process.
type Config struct {
	Env       string
	HTTP      HTTPConfig
	Database  database.Config
	Redis     cache.Config
	MQTT      MQTTConfig
	PubSub    PubSubConfig
	JWT       JWTConfig
	SendGrid  SendGridConfig
	FCM       FCMConfig
	Geocoder  GeocoderConfig
	Monitor   MonitorConfig
	Simulator SimulatorConfig
	Storage   StorageConfig
	Telemetry TelemetryConfig
	Logging   LoggingConfig
}

// HTTPConfig configures the HTTP listener.
type HTTPConfig struct {
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	RequireTLS      bool
}

// MQTTConfig configures wearable vitals ingestion. An empty Broker disables it.
type MQTTConfig struct {
	Broker         string
	ClientID       string
	Username       string
	Password       string
	TopicPrefix    string
	QoS            byte
	RatePerDevice  float64
	BurstPerDevice int
}

// Enabled reports whether a broker is configured.
func (c MQTTConfig) Enabled() bool {
	return c.Broker != ""
}

// PubSubConfig configures the emergency dispatch queue. An empty ProjectID
// makes the API dispatch alerts in-process.
type PubSubConfig struct {
	ProjectID            string
	DispatchTopic        string
	DispatchSubscription string
	CallCenterTopic      string
}

// Enabled reports whether Pub/Sub is configured.
func (c PubSubConfig) Enabled() bool {
	return c.ProjectID != ""
}

// JWTConfig configures access tokens and signed URLs.
type JWTConfig struct {
	SigningKey         string
	PreviousSigningKey string
	Issuer             string
	Audience           string
}

// SendGridConfig configures email delivery.
type SendGridConfig struct {
	APIKey    string
	BaseURL   string
	FromEmail string
	FromName  string
}

// FCMConfig configures push delivery.
type FCMConfig struct {
	ProjectID   string
	AccessToken string
	BaseURL     string
}

// Enabled reports whether push delivery is configured.
func (c FCMConfig) Enabled() bool {
	return c.ProjectID != "" && c.AccessToken != ""
}

// GeocoderConfig configures reverse geocoding.
type GeocoderConfig struct {
	BaseURL   string
	UserAgent string
	Timeout   time.Duration
}

// MonitorConfig configures the emergency alert monitors.
type MonitorConfig struct {
	PollInterval     time.Duration
	CountdownSeconds int
	LocateTimeout    time.Duration
	DeliverTimeout   time.Duration
	ResumePause      time.Duration
	StateTTL         time.Duration
}

// SimulatorConfig configures the vitals simulator.
type SimulatorConfig struct {
	Enabled  bool
	Interval time.Duration
}

// StorageConfig configures document storage.
type StorageConfig struct {
	Dir            string
	MaxUploadBytes int64
	PublicBaseURL  string
	URLTTL         time.Duration
}

// TelemetryConfig configures OpenTelemetry export.
type TelemetryConfig struct {
	Enabled        bool
	OTLPEndpoint   string
	Insecure       bool
	SampleRatio    float64
	MetricInterval time.Duration
}

// LoggingConfig configures the root logger.
type LoggingConfig struct {
	Level string
	Dir   string
}

// Load reads an optional .env file and then the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := &Config{
		Env: getEnv("APP_ENV", "development"),
		HTTP: HTTPConfig{
			Port:            getEnvInt("APP_PORT", 8080),
			ReadTimeout:     getEnvDuration("HTTP_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvDuration("HTTP_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:     getEnvDuration("HTTP_IDLE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getEnvDuration("HTTP_SHUTDOWN_TIMEOUT", 30*time.Second),
			RequireTLS:      getEnvBool("HTTP_REQUIRE_TLS", false),
		},
		Database: database.ConfigFromEnv(),
		Redis:    cache.ConfigFromEnv(),
		MQTT: MQTTConfig{
			Broker:         os.Getenv("MQTT_BROKER"),
			ClientID:       getEnv("MQTT_CLIENT_ID", "lifelink-api"),
			Username:       os.Getenv("MQTT_USERNAME"),
			Password:       os.Getenv("MQTT_PASSWORD"),
			TopicPrefix:    getEnv("MQTT_TOPIC_PREFIX", "lifelink/devices"),
			QoS:            byte(getEnvInt("MQTT_QOS", 1)),
			RatePerDevice:  getEnvFloat("MQTT_RATE_PER_DEVICE", 2),
			BurstPerDevice: getEnvInt("MQTT_BURST_PER_DEVICE", 5),
		},
		PubSub: PubSubConfig{
			ProjectID:            os.Getenv("PUBSUB_PROJECT_ID"),
			DispatchTopic:        getEnv("PUBSUB_DISPATCH_TOPIC", "lifelink-dispatch"),
			DispatchSubscription: getEnv("PUBSUB_DISPATCH_SUBSCRIPTION", "lifelink-dispatch-worker"),
			CallCenterTopic:      os.Getenv("PUBSUB_CALL_CENTER_TOPIC"),
		},
		JWT: JWTConfig{
			SigningKey:         getEnv("JWT_SIGNING_KEY", devSigningKey),
			PreviousSigningKey: os.Getenv("JWT_PREVIOUS_SIGNING_KEY"),
			Issuer:             getEnv("JWT_ISSUER", "https://api.lifelink.app"),
			Audience:           getEnv("JWT_AUDIENCE", "lifelink-api"),
		},
		SendGrid: SendGridConfig{
			APIKey:    os.Getenv("SENDGRID_API_KEY"),
			BaseURL:   getEnv("SENDGRID_BASE_URL", "https://api.sendgrid.com"),
			FromEmail: getEnv("ALERT_FROM_EMAIL", "alerts@lifelink.com"),
			FromName:  getEnv("ALERT_FROM_NAME", "LifeLink Alerts"),
		},
		FCM: FCMConfig{
			ProjectID:   os.Getenv("FCM_PROJECT_ID"),
			AccessToken: os.Getenv("FCM_ACCESS_TOKEN"),
			BaseURL:     getEnv("FCM_BASE_URL", "https://fcm.googleapis.com"),
		},
		Geocoder: GeocoderConfig{
			BaseURL:   getEnv("GEOCODER_BASE_URL", "https://nominatim.openstreetmap.org"),
			UserAgent: getEnv("GEOCODER_USER_AGENT", "lifelink-api/1.0"),
			Timeout:   getEnvDuration("GEOCODER_TIMEOUT", 4*time.Second),
		},
		Monitor: MonitorConfig{
			PollInterval:     getEnvDuration("MONITOR_POLL_INTERVAL", 5*time.Second),
			CountdownSeconds: getEnvInt("MONITOR_COUNTDOWN_SECONDS", 30),
			LocateTimeout:    getEnvDuration("MONITOR_LOCATE_TIMEOUT", 5*time.Second),
			DeliverTimeout:   getEnvDuration("MONITOR_DELIVER_TIMEOUT", 30*time.Second),
			ResumePause:      getEnvDuration("MONITOR_RESUME_PAUSE", 15*time.Second),
			StateTTL:         getEnvDuration("MONITOR_STATE_TTL", 24*time.Hour),
		},
		Simulator: SimulatorConfig{
			Enabled:  getEnvBool("SIMULATOR_ENABLED", true),
			Interval: getEnvDuration("SIMULATOR_INTERVAL", 5*time.Second),
		},
		Storage: StorageConfig{
			Dir:            getEnv("STORAGE_DIR", "./data/documents"),
			MaxUploadBytes: int64(getEnvInt("STORAGE_MAX_UPLOAD_BYTES", 10<<20)),
			PublicBaseURL:  getEnv("PUBLIC_BASE_URL", "http://localhost:8080"),
			URLTTL:         getEnvDuration("STORAGE_URL_TTL", time.Hour),
		},
		Telemetry: TelemetryConfig{
			Enabled:        getEnvBool("OTEL_ENABLED", false),
			OTLPEndpoint:   getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:       getEnvBool("OTEL_EXPORTER_OTLP_INSECURE", true),
			SampleRatio:    getEnvFloat("OTEL_TRACES_SAMPLE_RATIO", 1),
			MetricInterval: getEnvDuration("OTEL_METRIC_EXPORT_INTERVAL", 15*time.Second),
		},
		Logging: LoggingConfig{
			Level: getEnv("LOG_LEVEL", "info"),
			Dir:   os.Getenv("LOG_DIR"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// IsProduction reports whether the process runs in production.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// UsesDevSigningKey reports whether the built-in development JWT key is active.
func (c *Config) UsesDevSigningKey() bool {
	return c.JWT.SigningKey == devSigningKey
}

// Validate checks the configuration for values the processes cannot run with.
func (c *Config) Validate() error {
	if c.HTTP.Port < 1 || c.HTTP.Port > 65535 {
		return fmt.Errorf("invalid http port: %d", c.HTTP.Port)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	if c.Monitor.PollInterval < 100*time.Millisecond {
		return fmt.Errorf("monitor poll interval must be at least 100ms, got %s", c.Monitor.PollInterval)
	}
	if c.Monitor.CountdownSeconds < 1 {
		return fmt.Errorf("monitor countdown must be at least 1 second, got %d", c.Monitor.CountdownSeconds)
	}
	if c.Simulator.Interval <= 0 {
		return fmt.Errorf("simulator interval must be positive")
	}
	if c.MQTT.QoS > 2 {
		return fmt.Errorf("invalid mqtt qos: %d", c.MQTT.QoS)
	}
	if c.Telemetry.SampleRatio < 0 || c.Telemetry.SampleRatio > 1 {
		return fmt.Errorf("trace sample ratio must be between 0 and 1, got %g", c.Telemetry.SampleRatio)
	}
	if c.Storage.MaxUploadBytes <= 0 {
		return fmt.Errorf("storage max upload bytes must be positive")
	}

	if c.IsProduction() && c.UsesDevSigningKey() {
		return fmt.Errorf("JWT_SIGNING_KEY must be set in production")
	}
	if len(c.JWT.SigningKey) < 16 {
		return fmt.Errorf("jwt signing key must be at least 16 bytes")
	}

	return nil
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return fallback
}
