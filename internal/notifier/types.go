package notifier

import (
	"context"
	"time"
)

// Config controls the async notification pipeline.
type Config struct {
	Enabled       bool
	Workers       int
	QueueSize     int
	RatePerSec    int
	RetryMax      int
	RetryBase     time.Duration
	RetryMaxDelay time.Duration
	// Events lists the bus event types forwarded by Run. Empty uses DefaultEvents.
	Events []string
}

// Notification is one operator-facing message.
type Notification struct {
	Kind    string    `json:"kind"`
	Text    string    `json:"text"`
	At      time.Time `json:"at"`
	Payload any       `json:"payload,omitempty"`
}

// Sink delivers notifications to one destination.
type Sink interface {
	Name() string
	Deliver(ctx context.Context, n Notification) error
}

// KindLog marks notifications produced from log records.
const KindLog = "log"
