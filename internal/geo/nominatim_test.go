package geo_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lifelink/lifelink/internal/geo"
)

func TestNominatimClient_ReverseGeocode(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/reverse", r.URL.Path)
		assert.Equal(t, "json", r.URL.Query().Get("format"))
		assert.Equal(t, "52.3676", r.URL.Query().Get("lat"))
		assert.Equal(t, "4.9041", r.URL.Query().Get("lon"))
		assert.Equal(t, "lifelink-test", r.Header.Get("User-Agent"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"display_name":"Dam 1, Burgwallen-Oude Zijde, Amsterdam, Noord-Holland, Nederland"}`))
	}))
	defer server.Close()

	client := geo.NewNominatimClient(geo.NominatimConfig{
		BaseURL:   server.URL,
		UserAgent: "lifelink-test",
		Timeout:   time.Second,
	})

	address, err := client.ReverseGeocode(context.Background(), 52.3676, 4.9041)
	require.NoError(t, err)
	assert.Equal(t, "Dam 1, Burgwallen-Oude Zijde", address)
}

func TestNominatimClient_Errors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		payload string
	}{
		{"server error", http.StatusInternalServerError, `{}`},
		{"no address", http.StatusOK, `{"error":"Unable to geocode"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.payload))
			}))
			defer server.Close()

			client := geo.NewNominatimClient(geo.NominatimConfig{BaseURL: server.URL, Timeout: time.Second})
			_, err := client.ReverseGeocode(context.Background(), 0, 0)
			assert.ErrorIs(t, err, geo.ErrGeocodeFail)
		})
	}
}

func TestMapsURL(t *testing.T) {
	assert.Equal(t, "https://www.google.com/maps?q=52.3676,4.9041", geo.MapsURL(52.3676, 4.9041))
}
