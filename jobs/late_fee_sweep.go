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

// LateFeeSweepJob assesses late fees on installments past their grace period.
type LateFeeSweepJob struct {
	Sweeper *sweep.LateFeeSweeper
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewLateFeeSweepJob initialises the late fee sweep handler.
func NewLateFeeSweepJob(sweeper *sweep.LateFeeSweeper, logger *slog.Logger, metrics *jobmetrics.Metrics) *LateFeeSweepJob {
	return &LateFeeSweepJob{Sweeper: sweeper, Logger: logger, Metrics: metrics}
}

// Handle executes one late fee sweep run.
func (j *LateFeeSweepJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Sweeper == nil {
		return errors.New("late fee sweep: handler not configured")
	}
	var payload LateFeeSweepPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	tracker := j.Metrics.Track(TaskLateFeeSweep)
	var resultErr error
	defer func() {
		_ = tracker.End(resultErr)
	}()

	result, err := j.Sweeper.Run(ctx)
	if err != nil {
		resultErr = err
		j.logger().Error("late fee sweep failed", slog.Any("error", err))
		return resultErr
	}

	j.Metrics.AddLateFees("applied", result.Applied)
	j.Metrics.AddLateFees("skipped", result.Skipped)
	j.Metrics.AddLateFees("failed", result.Failed)
	j.logger().Info("late fee sweep completed",
		slog.Int("scanned", result.Scanned),
		slog.Int("applied", result.Applied),
		slog.Int("skipped", result.Skipped),
		slog.Int("failed", result.Failed))
	return nil
}

func (j *LateFeeSweepJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}
