// Package notification delivers signal alerts to external channels
// (Telegram, webhooks) and builds the human-readable alert text from a
// decision. Delivery failures never affect cooldown state: a signal that
// was recorded stays cooled down even if the alert was lost, trading a
// missed alert against an alert storm on repeated delivery failure.
package notification

import (
	"context"
	"log"
)

// AlertLevel represents the severity of an alert.
type AlertLevel string

const (
	AlertInfo    AlertLevel = "INFO"
	AlertSignal  AlertLevel = "SIGNAL"
	AlertWarning AlertLevel = "WARNING"
)

// Alert represents a notification to be sent. Message may contain
// Telegram-style Markdown; backends that cannot render it send it as-is.
type Alert struct {
	Level   AlertLevel `json:"level"`
	Title   string     `json:"title"`
	Message string     `json:"message"`
}

// Notifier is the interface for all notification backends.
type Notifier interface {
	// Send delivers an alert. Returns error if delivery fails.
	Send(ctx context.Context, alert Alert) error
}

// LogNotifier logs alerts instead of delivering them (useful for
// development and dry runs).
type LogNotifier struct{}

// NewLogNotifier creates a log-based notifier.
func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

func (n *LogNotifier) Send(ctx context.Context, alert Alert) error {
	log.Printf("[notify] [%s] %s\n%s", alert.Level, alert.Title, alert.Message)
	return nil
}
