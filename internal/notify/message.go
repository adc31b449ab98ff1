// Package notify renders emergency messages and sends them over email
// (SendGrid) and push (FCM).
package notify

import (
	"bytes"
	"context"
	"errors"
	htmltemplate "html/template"
	"strconv"
	"text/template"

	"github.com/lifelink/lifelink/internal/alert"
)

// EmergencySubject is the subject line of emergency emails.
const EmergencySubject = "EMERGENCY ALERT: LifeLink User Needs Assistance"

// Push message constants.
const (
	EmergencyPushTitle = "Emergency alert"
	PushTypeEmergency  = "emergency"
	PushPriorityHigh   = "high"
)

// Errors.
var (
	ErrTokenUnregistered = errors.New("push token is no longer registered")
	ErrRejected          = errors.New("provider rejected message")
)

// Email is a single outgoing email.
type Email struct {
	To      string
	ToName  string
	Subject string
	Text    string
	HTML    string
}

// Push is a single outgoing push notification.
type Push struct {
	Token string
	Title string
	Body  string
	Data  map[string]string
}

// EmailSender delivers emails.
type EmailSender interface {
	SendEmail(ctx context.Context, email *Email) error
}

// PushSender delivers push notifications.
type PushSender interface {
	SendPush(ctx context.Context, push *Push) error
}

type emergencyView struct {
	Name        string
	HomeAddress string
	Location    string
	Coordinates string
	MapsURL     string
	HeartRate   string
	Oxygen      string
	Movement    string
}

func newEmergencyView(msg *alert.DispatchMessage) emergencyView {
	v := emergencyView{
		Name:        msg.FullName,
		HomeAddress: msg.HomeAddress,
		Location:    "Location unavailable",
		MapsURL:     msg.MapsURL,
		HeartRate:   formatNumber(msg.Vitals.HeartRate),
		Oxygen:      formatNumber(msg.Vitals.Oxygen),
		Movement:    formatNumber(msg.Vitals.Movement),
	}
	if msg.Location != nil {
		if msg.Location.Address != "" {
			v.Location = msg.Location.Address
		}
		v.Coordinates = formatNumber(msg.Location.Lat) + ", " + formatNumber(msg.Location.Lng)
	}
	return v
}

func formatNumber(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

var textTemplate = template.Must(template.New("emergency.txt").Parse(`Emergency Alert for {{.Name}}
{{if .HomeAddress}}
Home address: {{.HomeAddress}}{{end}}
Location: {{.Location}}
{{- if .Coordinates}}
Coordinates: {{.Coordinates}}{{end}}
{{- if .MapsURL}}
Map: {{.MapsURL}}{{end}}

Vitals:
- Heart Rate: {{.HeartRate}} BPM
- Oxygen: {{.Oxygen}}%
- Movement: {{.Movement}}%

Please respond immediately.
`))

var htmlTemplate = htmltemplate.Must(htmltemplate.New("emergency.html").Parse(`<div style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto;">
<h1 style="color: #dc2626;">EMERGENCY ALERT</h1>
<p>A LifeLink user needs immediate assistance.</p>
<p><strong>Name:</strong> {{.Name}}</p>
{{if .HomeAddress}}<p><strong>Home address:</strong> {{.HomeAddress}}</p>{{end}}
<p><strong>Location:</strong> {{.Location}}</p>
{{if .Coordinates}}<p><strong>Coordinates:</strong> {{.Coordinates}}</p>{{end}}
{{if .MapsURL}}<p><a href="{{.MapsURL}}">Open in maps</a></p>{{end}}
<p><strong>Heart Rate:</strong> {{.HeartRate}} BPM<br>
<strong>Oxygen Level:</strong> {{.Oxygen}}%<br>
<strong>Movement:</strong> {{.Movement}}%</p>
<p style="color: #dc2626; font-weight: bold;">Please respond to this emergency immediately.</p>
</div>
`))

// EmergencyEmail renders the emergency email for one contact.
func EmergencyEmail(msg *alert.DispatchMessage, to, toName string) (*Email, error) {
	view := newEmergencyView(msg)

	var text, html bytes.Buffer
	if err := textTemplate.Execute(&text, view); err != nil {
		return nil, err
	}
	if err := htmlTemplate.Execute(&html, view); err != nil {
		return nil, err
	}
	return &Email{
		To:      to,
		ToName:  toName,
		Subject: EmergencySubject,
		Text:    text.String(),
		HTML:    html.String(),
	}, nil
}

// EmergencyPush builds the emergency push for one device token.
func EmergencyPush(msg *alert.DispatchMessage, token string) *Push {
	body := msg.FullName + " may need help."
	if msg.Location != nil && msg.Location.Address != "" {
		body = msg.FullName + " may need help near " + msg.Location.Address + "."
	}
	data := map[string]string{
		"type":     PushTypeEmergency,
		"priority": PushPriorityHigh,
		"alertId":  msg.AlertID,
		"userId":   msg.UserID,
	}
	if msg.MapsURL != "" {
		data["mapsUrl"] = msg.MapsURL
	}
	return &Push{
		Token: token,
		Title: EmergencyPushTitle,
		Body:  body,
		Data:  data,
	}
}
