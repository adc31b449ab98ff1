// Package alert records emergency alerts and hands them to the dispatch
// queue. Service implements monitor.Deliverer.
package alert

import (
	"errors"
	"time"

	"github.com/lifelink/lifelink/internal/monitor"
)

// Errors.
var (
	ErrAlertNotFound       = errors.New("alert not found")
	ErrAlertNotCancellable = errors.New("alert can no longer be cancelled")
	ErrAlertNotPending     = errors.New("alert is not pending")
)

// Status is the lifecycle state of an alert.
type Status string

const (
	StatusPending    Status = "pending"
	StatusDispatched Status = "dispatched"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
	// StatusSuppressed marks an alert that was recorded but not sent.
	StatusSuppressed Status = "suppressed"
)

// Alert is one emergency notification and its delivery outcome.
type Alert struct {
	ID               string            `json:"id"`
	UserID           string            `json:"userId"`
	Status           Status            `json:"status"`
	Vitals           monitor.Vitals    `json:"vitals"`
	Location         *monitor.Location `json:"location,omitempty"`
	RecipientsOK     int               `json:"recipientsOk"`
	RecipientsFailed int               `json:"recipientsFailed"`
	FailureReason    string            `json:"failureReason,omitempty"`
	CreatedAt        time.Time         `json:"createdAt"`
	DispatchedAt     *time.Time        `json:"dispatchedAt,omitempty"`
	CancelledAt      *time.Time        `json:"cancelledAt,omitempty"`
}

// DispatchMessage is the queue payload that asks the worker to notify an
// alert's recipients.
type DispatchMessage struct {
	AlertID     string            `json:"alertId"`
	UserID      string            `json:"userId"`
	FullName    string            `json:"fullName"`
	HomeAddress string            `json:"homeAddress,omitempty"`
	Vitals      monitor.Vitals    `json:"vitals"`
	Location    *monitor.Location `json:"location,omitempty"`
	MapsURL     string            `json:"mapsUrl,omitempty"`
	CreatedAt   time.Time         `json:"createdAt"`
}

// Outcome summarizes a dispatch run.
type Outcome struct {
	Successful int
	Failed     int
	Reason     string
}
