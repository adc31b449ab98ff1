package worker

import (
	"github.com/rs/zerolog"

	"github.com/lifelink/lifelink/internal/config"
	"github.com/lifelink/lifelink/internal/notify"
	"github.com/lifelink/lifelink/internal/provider/resilience"
)

// Senders builds the email and push senders enabled by cfg. Their HTTP
// clients report to registry so provider health shows on the status
// endpoint. A sender that is not configured is returned as nil.
func Senders(cfg *config.Config, registry *resilience.Registry, logger zerolog.Logger) (notify.EmailSender, notify.PushSender) {
	var email notify.EmailSender
	if cfg.SendGrid.APIKey != "" {
		httpCfg := resilience.DefaultClientConfig(notify.SendGridProviderName)
		httpCfg.Registry = registry
		email = notify.NewSendGridClient(notify.SendGridConfig{
			APIKey:     cfg.SendGrid.APIKey,
			BaseURL:    cfg.SendGrid.BaseURL,
			FromEmail:  cfg.SendGrid.FromEmail,
			FromName:   cfg.SendGrid.FromName,
			HTTPClient: resilience.NewClient(httpCfg),
			Logger:     logger,
		})
	} else {
		logger.Warn().Msg("SENDGRID_API_KEY not set, email alerts disabled")
	}

	var push notify.PushSender
	if cfg.FCM.Enabled() {
		httpCfg := resilience.DefaultClientConfig(notify.FCMProviderName)
		httpCfg.Registry = registry
		push = notify.NewFCMClient(notify.FCMConfig{
			ProjectID:  cfg.FCM.ProjectID,
			Tokens:     notify.StaticToken(cfg.FCM.AccessToken),
			BaseURL:    cfg.FCM.BaseURL,
			HTTPClient: resilience.NewClient(httpCfg),
			Logger:     logger,
		})
	} else {
		logger.Warn().Msg("FCM not configured, push alerts disabled")
	}

	return email, push
}
