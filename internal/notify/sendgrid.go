package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/lifelink/lifelink/internal/provider/resilience"
)

const (
	// SendGridProviderName identifies the email provider.
	SendGridProviderName = "sendgrid"

	// DefaultSendGridURL is the SendGrid v3 API base URL.
	DefaultSendGridURL = "https://api.sendgrid.com"

	// DefaultFromEmail is the sender used when none is configured.
	DefaultFromEmail = "alerts@lifelink.com"
)

// SendGridConfig holds configuration for the SendGrid client.
type SendGridConfig struct {
	APIKey    string
	BaseURL   string
	FromEmail string
	FromName  string

	// HTTPClient defaults to a resilient client named "sendgrid".
	HTTPClient *resilience.Client

	Logger zerolog.Logger
}

// SendGridClient sends email through the SendGrid v3 mail API.
type SendGridClient struct {
	apiKey     string
	baseURL    string
	from       sgAddress
	httpClient *resilience.Client
	logger     zerolog.Logger
}

// NewSendGridClient creates a SendGrid client.
func NewSendGridClient(cfg SendGridConfig) *SendGridClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultSendGridURL
	}
	from := cfg.FromEmail
	if from == "" {
		from = DefaultFromEmail
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = resilience.NewClient(resilience.DefaultClientConfig(SendGridProviderName))
	}
	return &SendGridClient{
		apiKey:     cfg.APIKey,
		baseURL:    baseURL,
		from:       sgAddress{Email: from, Name: cfg.FromName},
		httpClient: httpClient,
		logger:     cfg.Logger,
	}
}

type sgAddress struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type sgContent struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

type sgPersonalization struct {
	To []sgAddress `json:"to"`
}

type sgMail struct {
	Personalizations []sgPersonalization `json:"personalizations"`
	From             sgAddress           `json:"from"`
	Subject          string              `json:"subject"`
	Content          []sgContent         `json:"content"`
}

// SendEmail posts one email to /v3/mail/send.
func (c *SendGridClient) SendEmail(ctx context.Context, email *Email) error {
	payload := sgMail{
		Personalizations: []sgPersonalization{{To: []sgAddress{{Email: email.To, Name: email.ToName}}}},
		From:             c.from,
		Subject:          email.Subject,
		Content:          []sgContent{{Type: "text/plain", Value: email.Text}},
	}
	if email.HTML != "" {
		payload.Content = append(payload.Content, sgContent{Type: "text/html", Value: email.HTML})
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding mail: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v3/mail/send", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		c.logger.Warn().
			Int("status_code", resp.StatusCode).
			Str("response", string(detail)).
			Msg("sendgrid rejected email")
		return fmt.Errorf("%w: sendgrid status %d", ErrRejected, resp.StatusCode)
	}
	return nil
}
