package notify_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lifelink/lifelink/internal/alert"
	"github.com/lifelink/lifelink/internal/monitor"
	"github.com/lifelink/lifelink/internal/notify"
)

func dispatchMessage() *alert.DispatchMessage {
	return &alert.DispatchMessage{
		AlertID:     "alt_1",
		UserID:      "usr_1",
		FullName:    "Ada <Lovelace>",
		HomeAddress: "1 Main St, UK",
		Vitals:      monitor.Vitals{HeartRate: 42, Oxygen: 85.5, Movement: 3},
		Location:    &monitor.Location{Lat: 51.5, Lng: -0.12, Address: "Baker St, London"},
		MapsURL:     "https://www.google.com/maps?q=51.5,-0.12",
		CreatedAt:   time.Date(2024, 1, 10, 9, 0, 0, 0, time.UTC),
	}
}

func TestEmergencyEmail(t *testing.T) {
	email, err := notify.EmergencyEmail(dispatchMessage(), "bob@example.com", "Bob")
	require.NoError(t, err)

	assert.Equal(t, "bob@example.com", email.To)
	assert.Equal(t, "Bob", email.ToName)
	assert.Equal(t, notify.EmergencySubject, email.Subject)

	assert.Contains(t, email.Text, "Emergency Alert for Ada <Lovelace>")
	assert.Contains(t, email.Text, "Home address: 1 Main St, UK")
	assert.Contains(t, email.Text, "Location: Baker St, London\nCoordinates: 51.5, -0.12\nMap: https://www.google.com/maps?q=51.5,-0.12")
	assert.Contains(t, email.Text, "- Heart Rate: 42 BPM\n- Oxygen: 85.5%\n- Movement: 3%")
	assert.Contains(t, email.Text, "Please respond immediately.")

	assert.Contains(t, email.HTML, "Ada &lt;Lovelace&gt;")
	assert.NotContains(t, email.HTML, "<Lovelace>")
}

func TestEmergencyEmail_WithoutLocation(t *testing.T) {
	msg := dispatchMessage()
	msg.Location = nil
	msg.MapsURL = ""
	msg.HomeAddress = ""

	email, err := notify.EmergencyEmail(msg, "bob@example.com", "")
	require.NoError(t, err)
	assert.Contains(t, email.Text, "Location: Location unavailable\n\nVitals:")
	assert.NotContains(t, email.Text, "Coordinates")
	assert.NotContains(t, email.Text, "Home address")
}

func TestEmergencyPush(t *testing.T) {
	push := notify.EmergencyPush(dispatchMessage(), "tok_1")

	assert.Equal(t, "tok_1", push.Token)
	assert.Equal(t, "Emergency alert", push.Title)
	assert.Equal(t, "Ada <Lovelace> may need help near Baker St, London.", push.Body)
	assert.Equal(t, "emergency", push.Data["type"])
	assert.Equal(t, "high", push.Data["priority"])
	assert.Equal(t, "alt_1", push.Data["alertId"])
	assert.Equal(t, "https://www.google.com/maps?q=51.5,-0.12", push.Data["mapsUrl"])
}
