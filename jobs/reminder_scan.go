package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/qistas/qistas/internal/jobs"
	"github.com/qistas/qistas/internal/sweep"
)

// ReminderScanJob dispatches reminders for upcoming installments.
type ReminderScanJob struct {
	Scanner *sweep.ReminderScanner
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewReminderScanJob initialises the reminder scan handler.
func NewReminderScanJob(scanner *sweep.ReminderScanner, logger *slog.Logger, metrics *jobmetrics.Metrics) *ReminderScanJob {
	return &ReminderScanJob{Scanner: scanner, Logger: logger, Metrics: metrics}
}

// Handle executes one reminder scan run.
func (j *ReminderScanJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Scanner == nil {
		return errors.New("reminder scan: handler not configured")
	}
	var payload ReminderScanPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	tracker := j.Metrics.Track(TaskReminderScan)
	var resultErr error
	defer func() {
		_ = tracker.End(resultErr)
	}()

	result, err := j.Scanner.Run(ctx)
	if err != nil {
		resultErr = err
		j.logger().Error("reminder scan failed", slog.Any("error", err))
		return resultErr
	}

	j.logger().Info("reminder scan completed",
		slog.Int("scanned", result.Scanned),
		slog.Int("dispatched", result.Dispatched),
		slog.Int("failed", result.Failed))
	return nil
}

func (j *ReminderScanJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}
