// Package api provides the HTTP API for Life-Link.
package api

import (
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/lifelink/lifelink/internal/alert"
	"github.com/lifelink/lifelink/internal/api/handler"
	"github.com/lifelink/lifelink/internal/api/middleware"
	"github.com/lifelink/lifelink/internal/auth"
	"github.com/lifelink/lifelink/internal/contact"
	"github.com/lifelink/lifelink/internal/content"
	"github.com/lifelink/lifelink/internal/device"
	"github.com/lifelink/lifelink/internal/document"
	"github.com/lifelink/lifelink/internal/featureflags"
	"github.com/lifelink/lifelink/internal/geo"
	"github.com/lifelink/lifelink/internal/monitor"
	"github.com/lifelink/lifelink/internal/provider/resilience"
	"github.com/lifelink/lifelink/internal/user"
	"github.com/lifelink/lifelink/internal/vitals"
)

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	Version     string
	BuildTime   string
	Logger      zerolog.Logger
	ServiceName string
	Metrics     *middleware.Metrics
	RequireTLS  bool

	// ReadinessChecks back GET /v1/ops/ready.
	ReadinessChecks []handler.ReadinessCheck
	Providers       *resilience.Registry

	AuthService        *auth.Service
	UserService        *user.Service
	ContentService     *content.Service
	ContactService     *contact.Service
	DeviceService      *device.Service
	VitalsService      *vitals.Service
	Simulator          *vitals.Simulator
	GeoService         *geo.Service
	Monitors           *monitor.Manager
	AlertService       *alert.Service
	DocumentService    *document.Service
	FeatureFlagService *featureflags.Service
}

// NewRouter creates a new chi router with all API routes configured.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "lifelink-api"
	}

	// Global middleware - order matters
	r.Use(middleware.RequestID)            // Generate/propagate request ID first
	r.Use(middleware.Tracing(serviceName)) // Distributed tracing
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Middleware()) // HTTP metrics
	}
	r.Use(middleware.Logger(cfg.Logger))   // Structured logging
	r.Use(middleware.Recovery(cfg.Logger)) // Panic recovery
	r.Use(chimiddleware.RealIP)            // Real IP extraction
	r.Use(middleware.SecurityHeaders)      // Security headers (HSTS, CSP, etc.)
	r.Use(middleware.RequireTLS(cfg.RequireTLS))
	r.Use(middleware.ContentTypeJSON)

	monitors := cfg.Monitors
	var monitorCounter handler.MonitorCounter
	if monitors != nil {
		monitorCounter = monitors
	}

	// Initialize handlers
	opsHandler := handler.NewOpsHandler(handler.OpsConfig{
		Version:   cfg.Version,
		BuildTime: cfg.BuildTime,
		Checks:    cfg.ReadinessChecks,
		Registry:  cfg.Providers,
		Monitors:  monitorCounter,
		Flags:     cfg.FeatureFlagService,
	})
	authHandler := handler.NewAuthHandler(cfg.AuthService, cfg.Logger)
	meHandler := handler.NewMeHandler(cfg.AuthService, cfg.UserService, cfg.DocumentService, monitors, cfg.Logger)
	contentHandler := handler.NewContentHandler(cfg.ContentService, cfg.Logger)
	contactHandler := handler.NewContactHandler(cfg.ContactService, cfg.Logger)
	deviceHandler := handler.NewDeviceHandler(cfg.DeviceService, cfg.Logger)
	vitalsHandler := handler.NewVitalsHandler(cfg.VitalsService, cfg.Simulator, cfg.Logger)
	locationHandler := handler.NewLocationHandler(cfg.GeoService, cfg.Logger)
	monitorHandler := handler.NewMonitorHandler(monitors, cfg.UserService, cfg.Logger)
	alertHandler := handler.NewAlertHandler(cfg.AlertService, cfg.Logger)
	documentHandler := handler.NewDocumentHandler(cfg.DocumentService, cfg.Logger)
	featureFlagsHandler := handler.NewFeatureFlagsHandler(cfg.FeatureFlagService, cfg.Logger)

	authMiddleware := middleware.Auth(cfg.AuthService)
	adminMiddleware := middleware.RequireAdmin(cfg.UserService, cfg.Logger)

	authRateLimit := middleware.RateLimitByIP(middleware.AuthRateLimit)         // 10 req/min
	standardRateLimit := middleware.RateLimitByIP(middleware.StandardRateLimit) // 100 req/min

	// API v1 routes
	r.Route("/v1", func(r chi.Router) {
		// Auth endpoints (public) - strict rate limiting
		r.Route("/auth", func(r chi.Router) {
			r.Use(authRateLimit)
			r.Post("/register", authHandler.Register)
			r.Post("/login", authHandler.Login)
			r.Post("/refresh", authHandler.RefreshToken)
			r.Post("/logout", authHandler.Logout)
			r.With(authMiddleware).Post("/logout-all", authHandler.LogoutAll)
		})

		// Ops endpoints (public)
		r.Route("/ops", func(r chi.Router) {
			r.Get("/health", opsHandler.HealthCheck)
			r.Get("/ready", opsHandler.ReadinessCheck)
			r.With(authMiddleware).Get("/status", opsHandler.SystemStatus)
		})

		// Public content and signed downloads
		r.With(standardRateLimit).Get("/content/{section}", contentHandler.GetSection)
		r.With(standardRateLimit).Get("/files/{token}", documentHandler.Download)

		// Me endpoints (authenticated) - user-based rate limiting
		r.Route("/me", func(r chi.Router) {
			r.Use(authMiddleware)
			r.Use(middleware.RateLimitByUser(middleware.StandardRateLimit)) // 100 req/min per user
			r.Use(middleware.RequireContentType("application/json", "multipart/form-data"))

			r.Get("/", meHandler.GetMe)
			r.Delete("/", meHandler.DeleteMe)

			r.Get("/profile", meHandler.GetProfile)
			r.Put("/profile", meHandler.UpdateProfile)
			r.Get("/settings", meHandler.GetSettings)
			r.Put("/settings", meHandler.UpdateSettings)
			r.Get("/thresholds", meHandler.GetThresholds)
			r.Put("/thresholds", meHandler.UpdateThresholds)

			// Emergency contacts
			r.Route("/contacts", func(r chi.Router) {
				r.Get("/", contactHandler.ListContacts)
				r.Post("/", contactHandler.CreateContact)
				r.Route("/{contactId}", func(r chi.Router) {
					r.Get("/", contactHandler.GetContact)
					r.Put("/", contactHandler.UpdateContact)
					r.Delete("/", contactHandler.DeleteContact)
				})
			})

			// Devices
			r.Route("/devices", func(r chi.Router) {
				r.Get("/", deviceHandler.ListDevices)
				r.Post("/", deviceHandler.RegisterDevice)
				r.Delete("/{deviceId}", deviceHandler.UnregisterDevice)
			})

			// Vitals
			r.Route("/vitals", func(r chi.Router) {
				r.Post("/", vitalsHandler.RecordVitals)
				r.Get("/latest", vitalsHandler.LatestVitals)
				r.Get("/history", vitalsHandler.VitalsHistory)
				r.Post("/simulate", vitalsHandler.SimulateVitals)
			})

			r.Get("/location", locationHandler.GetLocation)
			r.Post("/location", locationHandler.RecordLocation)

			// Monitor
			r.Route("/monitor", func(r chi.Router) {
				r.Get("/", monitorHandler.GetMonitor)
				r.Post("/start", monitorHandler.StartMonitor)
				r.Post("/cancel", monitorHandler.CancelMonitor)
				r.Post("/resume", monitorHandler.ResumeMonitor)
			})

			// Alerts
			r.Route("/alerts", func(r chi.Router) {
				r.Get("/", alertHandler.ListAlerts)
				r.Get("/{alertId}", alertHandler.GetAlert)
				r.Post("/{alertId}/cancel", alertHandler.CancelAlert)
			})

			// Documents
			r.Route("/documents", func(r chi.Router) {
				r.Get("/", documentHandler.ListDocuments)
				r.With(middleware.RateLimitByUser(middleware.UploadRateLimit)).Post("/", documentHandler.UploadDocument)
				r.Delete("/{documentId}", documentHandler.DeleteDocument)
				r.Get("/{documentId}/url", documentHandler.DocumentURL)
			})
		})

		// Admin endpoints (authenticated + admin role)
		r.Route("/admin", func(r chi.Router) {
			r.Use(authMiddleware)
			r.Use(adminMiddleware)
			r.Use(standardRateLimit)

			r.Put("/content/{section}", contentHandler.UpdateSection)
			r.Get("/profile-defaults", contentHandler.GetProfileDefaults)
			r.Put("/profile-defaults", contentHandler.UpdateProfileDefaults)

			// Feature flags management
			r.Route("/feature-flags", func(r chi.Router) {
				r.Get("/", featureFlagsHandler.ListFeatureFlags)
				r.Put("/", featureFlagsHandler.UpsertFeatureFlags)
				r.Post("/invalidate", featureFlagsHandler.InvalidateCache)
			})
		})
	})

	return r
}
