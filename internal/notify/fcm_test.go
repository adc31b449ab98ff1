package notify_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lifelink/lifelink/internal/notify"
)

type failingTokens struct{}

func (failingTokens) AccessToken(context.Context) (string, error) {
	return "", errors.New("metadata server unavailable")
}

func TestFCMClient_SendPush(t *testing.T) {
	var got struct {
		Message struct {
			Token        string            `json:"token"`
			Notification map[string]string `json:"notification"`
			Data         map[string]string `json:"data"`
			Android      map[string]string `json:"android"`
		} `json:"message"`
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/projects/lifelink-prod/messages:send", r.URL.Path)
		assert.Equal(t, "Bearer ya29.token", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"name":"projects/lifelink-prod/messages/1"}`))
	}))
	defer server.Close()

	client := notify.NewFCMClient(notify.FCMConfig{
		ProjectID:  "lifelink-prod",
		Tokens:     notify.StaticToken("ya29.token"),
		BaseURL:    server.URL,
		HTTPClient: testHTTPClient("fcm"),
		Logger:     zerolog.Nop(),
	})

	push := notify.EmergencyPush(dispatchMessage(), "device-token")
	require.NoError(t, client.SendPush(context.Background(), push))

	assert.Equal(t, "device-token", got.Message.Token)
	assert.Equal(t, "Emergency alert", got.Message.Notification["title"])
	assert.Equal(t, "emergency", got.Message.Data["type"])
	assert.Equal(t, "HIGH", got.Message.Android["priority"])
}

func TestFCMClient_UnregisteredToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":{"status":"NOT_FOUND","message":"Requested entity was not found.","details":[{"errorCode":"UNREGISTERED"}]}}`))
	}))
	defer server.Close()

	client := notify.NewFCMClient(notify.FCMConfig{
		ProjectID:  "p",
		BaseURL:    server.URL,
		HTTPClient: testHTTPClient("fcm"),
		Logger:     zerolog.Nop(),
	})

	err := client.SendPush(context.Background(), &notify.Push{Token: "stale"})
	assert.ErrorIs(t, err, notify.ErrTokenUnregistered)
}

func TestFCMClient_Errors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"status":"INVALID_ARGUMENT"}}`))
	}))
	defer server.Close()

	client := notify.NewFCMClient(notify.FCMConfig{
		ProjectID:  "p",
		BaseURL:    server.URL,
		HTTPClient: testHTTPClient("fcm"),
		Logger:     zerolog.Nop(),
	})
	err := client.SendPush(context.Background(), &notify.Push{Token: "t"})
	assert.ErrorIs(t, err, notify.ErrRejected)

	client = notify.NewFCMClient(notify.FCMConfig{
		ProjectID:  "p",
		Tokens:     failingTokens{},
		BaseURL:    server.URL,
		HTTPClient: testHTTPClient("fcm"),
	})
	err = client.SendPush(context.Background(), &notify.Push{Token: "t"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "metadata server unavailable")
}
