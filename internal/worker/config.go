// Package worker fans emergency alerts out to contacts, devices and the
// call center, consuming dispatch requests from Pub/Sub or in-process.
package worker

import (
	"time"
)

// Channel is a delivery channel.
type Channel string

const (
	ChannelEmail      Channel = "email"
	ChannelPush       Channel = "push"
	ChannelCallCenter Channel = "call_center"
)

// DispatchConfig holds configuration for the dispatch job.
type DispatchConfig struct {
	// Concurrency is the number of recipients notified at once.
	// Default: 3
	Concurrency int

	// Timeout bounds each recipient.
	// Default: 30 seconds
	Timeout time.Duration

	// Static channel switches. Feature flags can disable a channel at
	// runtime on top of these.
	Email      bool
	Push       bool
	CallCenter bool
}

// DefaultDispatchConfig returns the default dispatch configuration.
func DefaultDispatchConfig() DispatchConfig {
	return DispatchConfig{
		Concurrency: 3,
		Timeout:     30 * time.Second,
		Email:       true,
		Push:        true,
		CallCenter:  true,
	}
}

func (c DispatchConfig) withDefaults() DispatchConfig {
	if c.Concurrency <= 0 {
		c.Concurrency = 3
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	return c
}
