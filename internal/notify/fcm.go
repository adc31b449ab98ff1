package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/lifelink/lifelink/internal/provider/resilience"
)

const (
	// FCMProviderName identifies the push provider.
	FCMProviderName = "fcm"

	// DefaultFCMURL is the FCM HTTP v1 API base URL.
	DefaultFCMURL = "https://fcm.googleapis.com"
)

// TokenSource supplies OAuth access tokens for FCM.
type TokenSource interface {
	AccessToken(ctx context.Context) (string, error)
}

// StaticToken is a TokenSource returning a fixed token.
type StaticToken string

// AccessToken returns the token.
func (t StaticToken) AccessToken(context.Context) (string, error) {
	return string(t), nil
}

// FCMConfig holds configuration for the FCM client.
type FCMConfig struct {
	ProjectID string
	Tokens    TokenSource
	BaseURL   string

	// HTTPClient defaults to a resilient client named "fcm".
	HTTPClient *resilience.Client

	Logger zerolog.Logger
}

// FCMClient sends push notifications through the FCM HTTP v1 API.
type FCMClient struct {
	projectID  string
	tokens     TokenSource
	baseURL    string
	httpClient *resilience.Client
	logger     zerolog.Logger
}

// NewFCMClient creates an FCM client.
func NewFCMClient(cfg FCMConfig) *FCMClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultFCMURL
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = resilience.NewClient(resilience.DefaultClientConfig(FCMProviderName))
	}
	return &FCMClient{
		projectID:  cfg.ProjectID,
		tokens:     cfg.Tokens,
		baseURL:    baseURL,
		httpClient: httpClient,
		logger:     cfg.Logger,
	}
}

type fcmRequest struct {
	Message fcmMessage `json:"message"`
}

type fcmMessage struct {
	Token        string            `json:"token"`
	Notification fcmNotification   `json:"notification"`
	Data         map[string]string `json:"data,omitempty"`
	Android      fcmAndroid        `json:"android"`
	APNS         fcmAPNS           `json:"apns"`
}

type fcmNotification struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

type fcmAndroid struct {
	Priority string `json:"priority"`
}

type fcmAPNS struct {
	Headers map[string]string `json:"headers"`
}

type fcmError struct {
	Error struct {
		Status  string `json:"status"`
		Message string `json:"message"`
		Details []struct {
			ErrorCode string `json:"errorCode"`
		} `json:"details"`
	} `json:"error"`
}

func (e *fcmError) unregistered() bool {
	if e.Error.Status == "NOT_FOUND" {
		return true
	}
	for _, d := range e.Error.Details {
		if d.ErrorCode == "UNREGISTERED" {
			return true
		}
	}
	return false
}

// SendPush sends one high priority push. A token FCM no longer knows
// yields ErrTokenUnregistered.
func (c *FCMClient) SendPush(ctx context.Context, push *Push) error {
	priority := strings.ToUpper(PushPriorityHigh)
	payload := fcmRequest{Message: fcmMessage{
		Token:        push.Token,
		Notification: fcmNotification{Title: push.Title, Body: push.Body},
		Data:         push.Data,
		Android:      fcmAndroid{Priority: priority},
		APNS:         fcmAPNS{Headers: map[string]string{"apns-priority": "10"}},
	}}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding push: %w", err)
	}

	url := fmt.Sprintf("%s/v1/projects/%s/messages:send", c.baseURL, c.projectID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.tokens != nil {
		token, err := c.tokens.AccessToken(ctx)
		if err != nil {
			return fmt.Errorf("fetching access token: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK {
		return nil
	}

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var fe fcmError
	if json.Unmarshal(raw, &fe) == nil && fe.unregistered() {
		return ErrTokenUnregistered
	}
	c.logger.Warn().
		Int("status_code", resp.StatusCode).
		Str("response", string(raw)).
		Msg("fcm rejected push")
	return fmt.Errorf("%w: fcm status %d", ErrRejected, resp.StatusCode)
}
