package billing

import (
	"context"
	"log/slog"
)

// LogDispatcher writes reminders to the log instead of delivering them.
// Actual delivery belongs to the notification system; the engine only has to
// hand reminders over.
type LogDispatcher struct {
	Logger *slog.Logger
}

// Dispatch records the reminder.
func (d LogDispatcher) Dispatch(ctx context.Context, reminder Reminder) error {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("reminder dispatched",
		slog.String("recipient", reminder.Recipient),
		slog.String("channel", reminder.Channel),
		slog.String("message", reminder.Message))
	return nil
}
