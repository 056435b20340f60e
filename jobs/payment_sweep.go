package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/qistas/qistas/internal/jobs"
	"github.com/qistas/qistas/internal/sweep"
)

// PaymentSweepJob charges due auto-pay installments on schedule.
type PaymentSweepJob struct {
	Sweeper *sweep.PaymentSweeper
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewPaymentSweepJob initialises the payment sweep handler.
func NewPaymentSweepJob(sweeper *sweep.PaymentSweeper, logger *slog.Logger, metrics *jobmetrics.Metrics) *PaymentSweepJob {
	return &PaymentSweepJob{Sweeper: sweeper, Logger: logger, Metrics: metrics}
}

// Handle executes one payment sweep run.
func (j *PaymentSweepJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Sweeper == nil {
		return errors.New("payment sweep: handler not configured")
	}
	var payload PaymentSweepPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	tracker := j.Metrics.Track(TaskPaymentSweep)
	var resultErr error
	defer func() {
		_ = tracker.End(resultErr)
	}()

	result, err := j.Sweeper.RunWindow(ctx, time.Duration(payload.LookaheadHours)*time.Hour)
	if err != nil {
		resultErr = err
		j.logger().Error("payment sweep failed", slog.Any("error", err))
		return resultErr
	}

	j.Metrics.AddInstallments("succeeded", result.Succeeded)
	j.Metrics.AddInstallments("failed", result.Failed)
	j.Metrics.AddInstallments("skipped", result.Skipped)
	j.logger().Info("payment sweep completed",
		slog.Int("processed", result.Processed),
		slog.Int("succeeded", result.Succeeded),
		slog.Int("failed", result.Failed),
		slog.Int("skipped", result.Skipped))
	return nil
}

func (j *PaymentSweepJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}
