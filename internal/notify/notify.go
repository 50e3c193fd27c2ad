// Package notify is the boundary to the outbound notification system.
// Delivery mechanics (email, push, Slack) live behind the Notifier interface
// and are not part of the engine.
package notify

import (
	"context"
	"log/slog"
)

// Priority levels for a notification.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
)

// Valid reports whether p is a known priority.
func (p Priority) Valid() bool {
	return p == PriorityLow || p == PriorityNormal || p == PriorityHigh
}

// Notification is one dispatch request.
type Notification struct {
	RecipientIDs []string
	Title        string
	Message      string
	Priority     Priority
}

// Notifier dispatches notifications.
type Notifier interface {
	Send(ctx context.Context, n Notification) error
}

// LogNotifier records notifications to the log instead of delivering them.
// Default collaborator when no delivery backend is wired.
type LogNotifier struct {
	Log *slog.Logger
}

func (l *LogNotifier) Send(_ context.Context, n Notification) error {
	l.Log.Info("notification dispatched",
		"recipients", n.RecipientIDs,
		"priority", string(n.Priority),
		"message", n.Message,
	)
	return nil
}

// Discard returns a Notifier that accepts and drops everything.
func Discard() Notifier { return discard{} }

type discard struct{}

func (discard) Send(context.Context, Notification) error { return nil }
