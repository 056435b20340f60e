package sweep

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/qistas/qistas/internal/billing"
	"github.com/qistas/qistas/internal/plans"
	"github.com/qistas/qistas/internal/shared"
)

type recordingDispatcher struct {
	failChannels map[string]bool
	sent         []billing.Reminder
}

func (d *recordingDispatcher) Dispatch(_ context.Context, reminder billing.Reminder) error {
	if d.failChannels[reminder.Channel] {
		return errors.New("provider unavailable")
	}
	d.sent = append(d.sent, reminder)
	return nil
}

func feeCandidate(planID uuid.UUID, seq int, due time.Time) FeeCandidate {
	return FeeCandidate{
		InstallmentID: uuid.New(),
		PlanID:        planID,
		Sequence:      seq,
		DueDate:       due,
		FeeAmount:     dec("25.00"),
	}
}

func TestLateFeeSweepAppliesOnce(t *testing.T) {
	store := newStubStore()
	planID := uuid.New()
	store.statuses[planID] = plans.PlanActive
	store.candidates = []FeeCandidate{
		feeCandidate(planID, 1, sweepNow.AddDate(0, 0, -10)),
		feeCandidate(planID, 2, sweepNow.AddDate(0, 0, -8)),
	}

	sweeper := NewLateFeeSweeper(LateFeeSweeperConfig{
		Store: store,
		Clock: shared.FixedClock(sweepNow),
	})

	result, err := sweeper.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, result.Scanned)
	require.Equal(t, 2, result.Applied)
	require.Len(t, store.fees, 2)

	// Same candidates again: every fee already exists, nothing is re-applied.
	result, err = sweeper.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 0, result.Applied)
	require.Equal(t, 2, result.Skipped)
	require.Len(t, store.fees, 2, "an installment accrues at most one fee")

	for _, fee := range store.fees {
		require.True(t, fee.Amount.Equal(dec("25.00")))
		require.Equal(t, sweepNow, fee.AppliedAt)
	}
}

func TestLateFeeSweepInvalidatesAnalyticsOnApply(t *testing.T) {
	store := newStubStore()
	planID := uuid.New()
	store.statuses[planID] = plans.PlanActive
	store.candidates = []FeeCandidate{feeCandidate(planID, 1, sweepNow.AddDate(0, 0, -10))}

	inval := &countingInvalidator{}
	sweeper := NewLateFeeSweeper(LateFeeSweeperConfig{
		Store:       store,
		Invalidator: inval,
		Clock:       shared.FixedClock(sweepNow),
	})

	result, err := sweeper.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, result.Applied)
	require.Equal(t, 1, inval.calls)

	// Idempotent re-run applies nothing and leaves the cache alone.
	result, err = sweeper.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 0, result.Applied)
	require.Equal(t, 1, inval.calls)
}

func TestLateFeeSweepSkipsInactivePlans(t *testing.T) {
	store := newStubStore()
	cancelled := uuid.New()
	store.statuses[cancelled] = plans.PlanCancelled
	store.candidates = []FeeCandidate{feeCandidate(cancelled, 1, sweepNow.AddDate(0, 0, -10))}

	sweeper := NewLateFeeSweeper(LateFeeSweeperConfig{
		Store: store,
		Clock: shared.FixedClock(sweepNow),
	})

	result, err := sweeper.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, result.Skipped)
	require.Empty(t, store.fees)
}

func TestLateFeeSweepCountsUnknownPlansAsFailures(t *testing.T) {
	store := newStubStore()
	store.candidates = []FeeCandidate{feeCandidate(uuid.New(), 1, sweepNow.AddDate(0, 0, -10))}

	sweeper := NewLateFeeSweeper(LateFeeSweeperConfig{
		Store: store,
		Clock: shared.FixedClock(sweepNow),
	})

	result, err := sweeper.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, result.Failed)
	require.Len(t, result.Failures, 1)
}

func TestReminderScanRecordsOutcomes(t *testing.T) {
	store := newStubStore()
	store.reminders = []ReminderCandidate{
		{
			InstallmentID: uuid.New(),
			PlanID:        uuid.New(),
			StudentID:     "STU-1",
			Sequence:      1,
			Amount:        dec("100.00"),
			DueDate:       sweepNow.AddDate(0, 0, 3),
			Channels:      []string{"email", "sms"},
		},
	}

	dispatcher := &recordingDispatcher{failChannels: map[string]bool{"sms": true}}
	scanner := NewReminderScanner(ReminderScannerConfig{
		Store:      store,
		Dispatcher: dispatcher,
		Clock:      shared.FixedClock(sweepNow),
	})

	result, err := scanner.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, result.Scanned)
	require.Equal(t, 1, result.Dispatched)
	require.Equal(t, 1, result.Failed)

	require.Len(t, store.records, 2, "every attempt is recorded, failed or not")
	outcomes := map[string]string{}
	for _, rec := range store.records {
		outcomes[rec.Channel] = rec.Outcome
	}
	require.Equal(t, "sent", outcomes["email"])
	require.Equal(t, "failed", outcomes["sms"])
}
