// Package main provides the entrypoint for the Life-Link dispatch worker.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"code.cloudfoundry.org/clock"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/lifelink/lifelink/internal/alert"
	"github.com/lifelink/lifelink/internal/api/models"
	"github.com/lifelink/lifelink/internal/api/response"
	"github.com/lifelink/lifelink/internal/config"
	"github.com/lifelink/lifelink/internal/contact"
	"github.com/lifelink/lifelink/internal/database"
	"github.com/lifelink/lifelink/internal/device"
	"github.com/lifelink/lifelink/internal/featureflags"
	"github.com/lifelink/lifelink/internal/logging"
	"github.com/lifelink/lifelink/internal/provider/resilience"
	"github.com/lifelink/lifelink/internal/telemetry"
	"github.com/lifelink/lifelink/internal/user"
	"github.com/lifelink/lifelink/internal/worker"
)

// Version and BuildTime are set at compile time via ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

// dispatchFunc adapts a function to worker.Dispatcher.
type dispatchFunc func(ctx context.Context, msg *alert.DispatchMessage) (*worker.DispatchResult, error)

func (f dispatchFunc) Run(ctx context.Context, msg *alert.DispatchMessage) (*worker.DispatchResult, error) {
	return f(ctx, msg)
}

func main() {
	const serviceName = "lifelink-worker"

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
		Msg("starting Life-Link worker")

	if !cfg.PubSub.Enabled() {
		log.Fatal().Msg("PUBSUB_PROJECT_ID is required for the worker")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

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
		log.Fatal().Err(err).Msg("failed to initialize telemetry")
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer shutdownCancel()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("failed to shutdown telemetry")
		}
	}()

	instruments, err := telemetry.NewInstruments()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize instruments")
	}

	pool, err := database.Connect(ctx, cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()

	clk := clock.NewClock()
	providers := resilience.NewRegistry(clk)

	ffService := featureflags.NewService(featureflags.ServiceConfig{
		Repository:   featureflags.NewPostgresRepository(pool),
		Logger:       log,
		Clock:        clk,
		DefaultFlags: featureflags.DefaultFlags(),
	})
	userService := user.NewService(user.ServiceConfig{
		Repository: user.NewPostgresRepository(pool),
		Logger:     log,
	})
	// The worker never creates alerts, so it has no publisher.
	alertService := alert.NewService(alert.ServiceConfig{
		Repository: alert.NewPostgresRepository(pool),
		Users:      userService,
		Flags:      ffService,
		Clock:      clk,
		Logger:     log,
		Metrics:    instruments,
	})

	// The router is needed before the job: the call-center topic shares the
	// handler's client.
	var job *worker.DispatchJob
	router := worker.NewRouter(dispatchFunc(func(ctx context.Context, msg *alert.DispatchMessage) (*worker.DispatchResult, error) {
		return job.Run(ctx, msg)
	}), log)

	handler, err := worker.NewPubSubHandler(ctx, worker.PubSubConfig{
		ProjectID:        cfg.PubSub.ProjectID,
		SubscriptionName: cfg.PubSub.DispatchSubscription,
		Router:           router,
		Logger:           log,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create pubsub handler")
	}
	defer handler.Close()

	var callCenter worker.CallCenter = worker.NewLogCallCenter(log)
	if cfg.PubSub.CallCenterTopic != "" {
		topic := worker.NewTopicCallCenter(handler.Client(), cfg.PubSub.CallCenterTopic)
		defer topic.Stop()
		callCenter = topic
	}

	email, push := worker.Senders(cfg, providers, log)
	job = worker.NewDispatchJob(worker.DispatchJobConfig{
		Config:     worker.DefaultDispatchConfig(),
		Logger:     log,
		Clock:      clk,
		Contacts:   contact.NewService(contact.NewPostgresRepository(pool)),
		Devices:    device.NewService(device.NewPostgresRepository(pool), log),
		Alerts:     alertService,
		Email:      email,
		Push:       push,
		CallCenter: callCenter,
		Flags:      ffService,
		Metrics:    instruments,
	})

	// Health endpoint for the container platform.
	mux := chi.NewRouter()
	mux.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		response.JSON(w, r, http.StatusOK, models.Health{
			Status:  models.FromProviderStatus(providers.Overall()),
			Time:    clk.Now().UTC(),
			Details: map[string]interface{}{"version": Version},
		})
	})

	server := &http.Server{
		Addr:         ":" + strconv.Itoa(cfg.HTTP.Port),
		Handler:      mux,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	go func() {
		log.Info().Str("addr", server.Addr).Msg("health server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("health server error")
		}
	}()

	receiveDone := make(chan error, 1)
	go func() {
		receiveDone <- handler.Start(ctx)
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-quit:
		log.Info().Str("signal", sig.String()).Msg("shutting down worker")
	case err := <-receiveDone:
		log.Error().Err(err).Msg("pubsub receive stopped")
	}
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("health server forced to shutdown")
	}

	log.Info().Msg("worker stopped")
}
