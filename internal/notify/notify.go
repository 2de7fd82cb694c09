// Package notify renders and delivers transactional email.  Delivery is
// fire-and-forget from the caller's point of view: the ticketing state
// machine never waits on, or rolls back for, a notification.
package notify

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
)

// Message is one outbound email.
type Message struct {
	ID       string `json:"id"`
	To       string `json:"to"`
	Subject  string `json:"subject"`
	HTMLBody string `json:"html"`
}

// NewMessage returns a message with a fresh id.
func NewMessage(to, subject, html string) Message {
	return Message{ID: uuid.NewString(), To: to, Subject: subject, HTMLBody: html}
}

// Notifier accepts a message for delivery.
type Notifier interface {
	Notify(ctx context.Context, msg Message) error
}

// LogNotifier writes messages to the log instead of sending them.  It is
// used when no broker is configured.
type LogNotifier struct {
	Logger *slog.Logger
}

// Notify implements Notifier.
func (n LogNotifier) Notify(_ context.Context, msg Message) error {
	logger := n.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("notification", "id", msg.ID, "to", msg.To, "subject", msg.Subject)
	return nil
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, msg Message) error

// Notify implements Notifier.
func (f NotifierFunc) Notify(ctx context.Context, msg Message) error { return f(ctx, msg) }
