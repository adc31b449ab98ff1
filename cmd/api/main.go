// Package main provides the entrypoint for the Life-Link API server.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"code.cloudfoundry.org/clock"
	"github.com/rs/zerolog"

	"github.com/lifelink/lifelink/internal/alert"
	"github.com/lifelink/lifelink/internal/api"
	"github.com/lifelink/lifelink/internal/api/handler"
	"github.com/lifelink/lifelink/internal/api/middleware"
	"github.com/lifelink/lifelink/internal/auth"
	"github.com/lifelink/lifelink/internal/cache"
	"github.com/lifelink/lifelink/internal/config"
	"github.com/lifelink/lifelink/internal/contact"
	"github.com/lifelink/lifelink/internal/content"
	"github.com/lifelink/lifelink/internal/database"
	"github.com/lifelink/lifelink/internal/device"
	"github.com/lifelink/lifelink/internal/document"
	"github.com/lifelink/lifelink/internal/featureflags"
	"github.com/lifelink/lifelink/internal/geo"
	"github.com/lifelink/lifelink/internal/ingest"
	"github.com/lifelink/lifelink/internal/logging"
	"github.com/lifelink/lifelink/internal/monitor"
	"github.com/lifelink/lifelink/internal/provider/resilience"
	"github.com/lifelink/lifelink/internal/telemetry"
	"github.com/lifelink/lifelink/internal/user"
	"github.com/lifelink/lifelink/internal/vitals"
	"github.com/lifelink/lifelink/internal/worker"
)

// Version and BuildTime are set at compile time via ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

// locationSinkFunc adapts a function to geo.LocationSink.
type locationSinkFunc func(ctx context.Context, userID string, loc monitor.Location) error

func (f locationSinkFunc) ReportLocation(ctx context.Context, userID string, loc monitor.Location) error {
	return f(ctx, userID, loc)
}

// dispatchFunc adapts a function to worker.Dispatcher.
type dispatchFunc func(ctx context.Context, msg *alert.DispatchMessage) (*worker.DispatchResult, error)

func (f dispatchFunc) Run(ctx context.Context, msg *alert.DispatchMessage) (*worker.DispatchResult, error) {
	return f(ctx, msg)
}

// closer is a named shutdown step run in reverse registration order.
type closer struct {
	name string
	fn   func(ctx context.Context) error
}

func main() {
	const serviceName = "lifelink-api"

	bootLog := zerolog.New(os.Stderr).With().Timestamp().Logger()

	cfg, err := config.Load()
	if err != nil {
		bootLog.Fatal().Err(err).Msg("invalid configuration")
	}

	log, logCloser, err := logging.New(logging.Config{
		Service: serviceName,
		Version: Version,
		Level:   cfg.Logging.Level,
		Dir:     cfg.Logging.Dir,
	})
	if err != nil {
		bootLog.Fatal().Err(err).Msg("failed to initialize logging")
	}
	defer logCloser.Close()

	log.Info().
		Str("build_time", BuildTime).
		Str("env", cfg.Env).
		Msg("starting Life-Link API")

	if cfg.UsesDevSigningKey() {
		log.Warn().Msg("using default JWT signing key - not secure for production")
	}

	ctx := context.Background()
	var closers []closer
	shutdown := func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancel()
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i].fn(shutdownCtx); err != nil {
				log.Error().Err(err).Str("component", closers[i].name).Msg("shutdown failed")
			}
		}
	}
	fatal := func(err error, msg string) {
		log.Error().Err(err).Msg(msg)
		shutdown()
		_ = logCloser.Close()
		os.Exit(1)
	}

	// Initialize OpenTelemetry
	tp, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:    serviceName,
		ServiceVersion: Version,
		Environment:    cfg.Env,
		OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
		Enabled:        cfg.Telemetry.Enabled,
		Insecure:       cfg.Telemetry.Insecure,
		SampleRatio:    cfg.Telemetry.SampleRatio,
		MetricInterval: cfg.Telemetry.MetricInterval,
	})
	if err != nil {
		fatal(err, "failed to initialize telemetry")
	}
	closers = append(closers, closer{"telemetry", tp.Shutdown})
	if cfg.Telemetry.Enabled {
		log.Info().
			Str("otlp_endpoint", cfg.Telemetry.OTLPEndpoint).
			Msg("OpenTelemetry initialized")
	}

	httpMetrics, err := middleware.NewMetrics()
	if err != nil {
		fatal(err, "failed to initialize http metrics")
	}
	instruments, err := telemetry.NewInstruments()
	if err != nil {
		fatal(err, "failed to initialize instruments")
	}
	monitorMetrics, err := monitor.NewMetrics()
	if err != nil {
		fatal(err, "failed to initialize monitor metrics")
	}

	// Connect to database
	pool, err := database.Connect(ctx, cfg.Database)
	if err != nil {
		fatal(err, "failed to connect to database")
	}
	closers = append(closers, closer{"database", func(context.Context) error {
		pool.Close()
		return nil
	}})
	if err := database.Migrate(ctx, pool); err != nil {
		fatal(err, "failed to apply schema")
	}
	log.Info().
		Str("host", cfg.Database.Host).
		Int("port", cfg.Database.Port).
		Str("database", cfg.Database.Database).
		Msg("database connected")

	// Connect to Redis
	rdb, err := cache.Connect(ctx, cfg.Redis)
	if err != nil {
		fatal(err, "failed to connect to redis")
	}
	closers = append(closers, closer{"redis", func(context.Context) error { return rdb.Close() }})
	log.Info().Str("addr", cfg.Redis.Addr).Msg("redis connected")

	clk := clock.NewClock()
	providers := resilience.NewRegistry(clk)

	// Content, feature flags and users
	contentService := content.NewService(content.ServiceConfig{
		Repository: content.NewPostgresRepository(pool),
		Logger:     log,
	})

	ffService := featureflags.NewService(featureflags.ServiceConfig{
		Repository:   featureflags.NewPostgresRepository(pool),
		Logger:       log,
		Clock:        clk,
		CacheTTL:     1 * time.Minute,
		DefaultFlags: featureflags.DefaultFlags(),
	})

	var manager *monitor.Manager
	userService := user.NewService(user.ServiceConfig{
		Repository: user.NewPostgresRepository(pool),
		Defaults:   contentService,
		Logger:     log,
		OnThresholdsChanged: func(userID string, t monitor.Thresholds) error {
			return manager.UpdateThresholds(userID, t)
		},
	})

	authService := auth.NewService(auth.ServiceConfig{
		JWTService: auth.NewJWTService(auth.JWTConfig{
			SigningKey:         cfg.JWT.SigningKey,
			PreviousSigningKey: cfg.JWT.PreviousSigningKey,
			Issuer:             cfg.JWT.Issuer,
			Audience:           cfg.JWT.Audience,
			Clock:              clk,
		}),
		UserRepo:    auth.NewPostgresUserRepository(pool),
		RefreshRepo: auth.NewPostgresRefreshTokenRepository(pool),
		OnRegistered: func(ctx context.Context, u *auth.User) error {
			return userService.Initialize(ctx, u.ID)
		},
		Clock: clk,
	})

	contactService := contact.NewService(contact.NewPostgresRepository(pool))
	deviceService := device.NewService(device.NewPostgresRepository(pool), log)

	// Alerts. Without Pub/Sub the dispatch job runs in-process.
	var publisher alert.Publisher
	var job *worker.DispatchJob
	if cfg.PubSub.Enabled() {
		pub, err := worker.NewPubSubPublisher(ctx, cfg.PubSub.ProjectID, cfg.PubSub.DispatchTopic)
		if err != nil {
			fatal(err, "failed to create dispatch publisher")
		}
		closers = append(closers, closer{"dispatch publisher", func(context.Context) error { return pub.Close() }})
		publisher = pub
		log.Info().Str("topic", cfg.PubSub.DispatchTopic).Msg("alerts dispatched via pubsub")
	} else {
		inline := worker.NewInlinePublisher(dispatchFunc(func(ctx context.Context, msg *alert.DispatchMessage) (*worker.DispatchResult, error) {
			return job.Run(ctx, msg)
		}), log)
		closers = append(closers, closer{"inline publisher", func(ctx context.Context) error {
			inline.Close(ctx)
			return nil
		}})
		publisher = inline
		log.Warn().Msg("PUBSUB_PROJECT_ID not set, alerts dispatched in-process")
	}

	alertService := alert.NewService(alert.ServiceConfig{
		Repository: alert.NewPostgresRepository(pool),
		Publisher:  publisher,
		Users:      userService,
		Flags:      ffService,
		Clock:      clk,
		Logger:     log,
		Metrics:    instruments,
	})

	if !cfg.PubSub.Enabled() {
		email, push := worker.Senders(cfg, providers, log)
		job = worker.NewDispatchJob(worker.DispatchJobConfig{
			Config:     worker.DefaultDispatchConfig(),
			Logger:     log,
			Clock:      clk,
			Contacts:   contactService,
			Devices:    deviceService,
			Alerts:     alertService,
			Email:      email,
			Push:       push,
			CallCenter: worker.NewLogCallCenter(log),
			Flags:      ffService,
			Metrics:    instruments,
		})
	}

	// Location
	geoService := geo.NewService(geo.ServiceConfig{
		Store: geo.NewRedisLocationStore(rdb),
		Geocoder: geo.NewNominatimClient(geo.NominatimConfig{
			BaseURL:   cfg.Geocoder.BaseURL,
			UserAgent: cfg.Geocoder.UserAgent,
			Timeout:   cfg.Geocoder.Timeout,
			Retries:   1,
		}),
		Sink: locationSinkFunc(func(ctx context.Context, userID string, loc monitor.Location) error {
			return manager.ReportLocation(ctx, userID, loc)
		}),
		Clock:  clk,
		Logger: log,
	})

	// Monitors
	manager = monitor.NewManager(monitor.ManagerConfig{
		Clock:            clk,
		Locator:          geoService,
		Deliverer:        alertService,
		Alarm:            monitor.NewLogAlarm(log),
		Store:            monitor.NewRedisStateStore(rdb, "", cfg.Monitor.StateTTL),
		Metrics:          monitorMetrics,
		Logger:           log,
		PollInterval:     cfg.Monitor.PollInterval,
		CountdownSeconds: cfg.Monitor.CountdownSeconds,
		LocateTimeout:    cfg.Monitor.LocateTimeout,
		DeliverTimeout:   cfg.Monitor.DeliverTimeout,
		ResumePause:      cfg.Monitor.ResumePause,
		Thresholds:       userService.GetThresholds,
		PollIntervalFunc: ffService.MonitorPollInterval,
	})
	closers = append(closers, closer{"monitors", func(context.Context) error {
		manager.Stop()
		return nil
	}})

	// Vitals
	vitalsService := vitals.NewService(vitals.ServiceConfig{
		Repository: vitals.NewPostgresRepository(pool),
		Cache:      vitals.NewRedisCache(rdb, 0),
		Sink:       manager,
		Clock:      clk,
		Logger:     log,
		Metrics:    instruments,
	})

	bgCtx, stopBackground := context.WithCancel(ctx)
	closers = append(closers, closer{"background", func(context.Context) error {
		stopBackground()
		return nil
	}})

	simulator := vitals.NewSimulator(vitals.SimulatorConfig{
		Recorder: vitalsService,
		Clock:    clk,
		Logger:   log,
		Interval: cfg.Simulator.Interval,
		Users:    userService.SimulationUsers,
		Enabled:  ffService.IsVitalsSimulationEnabled,
	})
	go pruneRefreshTokens(bgCtx, clk, authService, log)

	if cfg.Simulator.Enabled {
		go simulator.Run(bgCtx)
		log.Info().Dur("interval", cfg.Simulator.Interval).Msg("vitals simulator started")
	}

	if cfg.MQTT.Enabled() {
		mqttClient, err := ingest.NewMQTTClient(ingest.MQTTConfig{
			Broker:   cfg.MQTT.Broker,
			ClientID: cfg.MQTT.ClientID,
			Username: cfg.MQTT.Username,
			Password: cfg.MQTT.Password,
		}, log)
		if err != nil {
			fatal(err, "failed to connect to mqtt broker")
		}
		closers = append(closers, closer{"mqtt", func(context.Context) error {
			mqttClient.Disconnect()
			return nil
		}})

		consumer := ingest.NewVitalsConsumer(ingest.ConsumerConfig{
			Subscriber:     mqttClient,
			Devices:        deviceService,
			Recorder:       vitalsService,
			Clock:          clk,
			Logger:         log,
			Metrics:        instruments,
			TopicPrefix:    cfg.MQTT.TopicPrefix,
			QoS:            cfg.MQTT.QoS,
			RatePerDevice:  cfg.MQTT.RatePerDevice,
			BurstPerDevice: cfg.MQTT.BurstPerDevice,
		})
		go func() {
			if err := consumer.Start(bgCtx); err != nil {
				log.Error().Err(err).Msg("vitals consumer stopped")
			}
		}()
	}

	// Documents
	storage, err := document.NewFSStorage(cfg.Storage.Dir)
	if err != nil {
		fatal(err, "failed to open document storage")
	}
	documentService := document.NewService(document.ServiceConfig{
		Repository: document.NewPostgresRepository(pool),
		Storage:    storage,
		Signer:     document.NewURLSigner(cfg.JWT.SigningKey, cfg.Storage.URLTTL, clk),
		Clock:      clk,
		Logger:     log,
		BaseURL:    cfg.Storage.PublicBaseURL,
		MaxSize:    cfg.Storage.MaxUploadBytes,
	})

	router := api.NewRouter(api.RouterConfig{
		Version:     Version,
		BuildTime:   BuildTime,
		Logger:      log,
		ServiceName: serviceName,
		Metrics:     httpMetrics,
		RequireTLS:  cfg.HTTP.RequireTLS,
		ReadinessChecks: []handler.ReadinessCheck{
			{Name: "database", Check: pool.Ping},
			{Name: "redis", Check: func(ctx context.Context) error { return rdb.Ping(ctx).Err() }},
		},
		Providers:          providers,
		AuthService:        authService,
		UserService:        userService,
		ContentService:     contentService,
		ContactService:     contactService,
		DeviceService:      deviceService,
		VitalsService:      vitalsService,
		Simulator:          simulator,
		GeoService:         geoService,
		Monitors:           manager,
		AlertService:       alertService,
		DocumentService:    documentService,
		FeatureFlagService: ffService,
	})

	server := &http.Server{
		Addr:         ":" + strconv.Itoa(cfg.HTTP.Port),
		Handler:      router,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info().
			Str("addr", server.Addr).
			Msg("server listening")

		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-quit:
		log.Info().Str("signal", sig.String()).Msg("shutting down server")
	case err := <-serverErr:
		log.Error().Err(err).Msg("server error")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	shutdown()
	log.Info().Msg("server stopped")
}

// pruneRefreshTokens deletes expired refresh tokens every hour until ctx ends.
func pruneRefreshTokens(ctx context.Context, clk clock.Clock, svc *auth.Service, log zerolog.Logger) {
	ticker := clk.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			n, err := svc.PruneRefreshTokens(ctx)
			if err != nil {
				log.Warn().Err(err).Msg("failed to prune refresh tokens")
				continue
			}
			if n > 0 {
				log.Info().Int64("deleted", n).Msg("pruned expired refresh tokens")
			}
		}
	}
}
