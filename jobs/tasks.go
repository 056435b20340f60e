package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskPaymentSweep charges due auto-pay installments.
	TaskPaymentSweep = "sweep:payments"
	// TaskLateFeeSweep assesses late fees on overdue installments.
	TaskLateFeeSweep = "sweep:late_fees"
	// TaskReminderScan dispatches upcoming-installment reminders.
	TaskReminderScan = "sweep:reminders"
)

// PaymentSweepPayload tunes a single payment sweep run. Zero values fall back
// to the sweeper's configured defaults.
type PaymentSweepPayload struct {
	LookaheadHours int `json:"lookahead_hours"`
}

// NewPaymentSweepTask constructs an Asynq task for the payment sweep.
func NewPaymentSweepTask(payload PaymentSweepPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskPaymentSweep, data), nil
}

// LateFeeSweepPayload is the (currently empty) payload for late fee sweeps.
type LateFeeSweepPayload struct{}

// NewLateFeeSweepTask constructs an Asynq task for the late fee sweep.
func NewLateFeeSweepTask(payload LateFeeSweepPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskLateFeeSweep, data), nil
}

// ReminderScanPayload is the (currently empty) payload for reminder scans.
type ReminderScanPayload struct{}

// NewReminderScanTask constructs an Asynq task for the reminder scan.
func NewReminderScanTask(payload ReminderScanPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskReminderScan, data), nil
}
