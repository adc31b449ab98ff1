package geo

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// NominatimConfig holds configuration for the reverse geocoder.
type NominatimConfig struct {
	BaseURL   string
	UserAgent string
	Timeout   time.Duration
	Retries   int
}

// NominatimClient reverse-geocodes coordinates through an OpenStreetMap
// Nominatim server.
type NominatimClient struct {
	http *resty.Client
}

type nominatimResponse struct {
	DisplayName string `json:"display_name"`
	Error       string `json:"error"`
}

// NewNominatimClient creates a client.
func NewNominatimClient(cfg NominatimConfig) *NominatimClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://nominatim.openstreetmap.org"
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "lifelink-api"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 4 * time.Second
	}

	client := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetRetryCount(cfg.Retries).
		SetRetryWaitTime(200*time.Millisecond).
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", cfg.UserAgent)

	return &NominatimClient{http: client}
}

// ReverseGeocode returns a short address for the coordinates: the first two
// comma separated parts of the display name.
func (c *NominatimClient) ReverseGeocode(ctx context.Context, lat, lng float64) (string, error) {
	var out nominatimResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"format": "json",
			"lat":    strconv.FormatFloat(lat, 'f', -1, 64),
			"lon":    strconv.FormatFloat(lng, 'f', -1, 64),
		}).
		SetResult(&out).
		Get("/reverse")
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrGeocodeFail, err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("%w: status %d", ErrGeocodeFail, resp.StatusCode())
	}
	if out.Error != "" || out.DisplayName == "" {
		return "", fmt.Errorf("%w: no address for coordinates", ErrGeocodeFail)
	}

	return shortAddress(out.DisplayName), nil
}

func shortAddress(displayName string) string {
	parts := strings.Split(displayName, ",")
	if len(parts) > 2 {
		parts = parts[:2]
	}
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return strings.Join(parts, ", ")
}
