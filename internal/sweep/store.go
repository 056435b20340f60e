// Package sweep implements the batch passes over installments: automated
// charge attempts, late-fee application and reminder scans. Each run is
// idempotent; anything left unsettled is naturally re-selected next run.
package sweep

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/qistas/qistas/internal/plans"
)

// DueInstallment is one charge candidate joined with its plan's auto-pay
// settings.
type DueInstallment struct {
	InstallmentID uuid.UUID
	PlanID        uuid.UUID
	InvoiceID     string
	StudentID     string
	Sequence      int
	Amount        decimal.Decimal
	DueDate       time.Time
	Method        string
}

// FeeCandidate is one installment past its plan's grace period without an
// existing late-fee record.
type FeeCandidate struct {
	InstallmentID uuid.UUID
	PlanID        uuid.UUID
	Sequence      int
	DueDate       time.Time
	FeeAmount     decimal.Decimal
}

// ReminderCandidate is one installment whose due date matches a plan reminder
// offset today.
type ReminderCandidate struct {
	InstallmentID uuid.UUID
	PlanID        uuid.UUID
	StudentID     string
	Sequence      int
	Amount        decimal.Decimal
	DueDate       time.Time
	Channels      []string
}

// CacheInvalidator drops cached reporting aggregates once a sweep settles
// installments or applies fees, so summaries never serve stale numbers for
// the full cache TTL.
type CacheInvalidator interface {
	Invalidate(ctx context.Context) error
}

// Store defines the data access the sweepers need. Claims are conditional
// updates so two concurrent workers can never settle the same installment.
type Store interface {
	// ListDueAutoPay selects pending installments due within [from, to] whose
	// active plan has auto-pay enabled.
	ListDueAutoPay(ctx context.Context, from, to time.Time) ([]DueInstallment, error)
	// PlanStatus re-reads the plan status right before committing work, so a
	// cancellation that lands mid-sweep is honoured.
	PlanStatus(ctx context.Context, planID uuid.UUID) (plans.PlanStatus, error)
	// MarkPaidIfPending settles an installment only when its status is still
	// pending; the false return means another worker or a manual payment won.
	MarkPaidIfPending(ctx context.Context, installmentID uuid.UUID, paidAt time.Time, method, txnRef string) (bool, error)
	// ListLateFeeCandidates selects unpaid installments past their plan's
	// grace period, late fees enabled, with no late-fee record yet.
	ListLateFeeCandidates(ctx context.Context, now time.Time) ([]FeeCandidate, error)
	// ApplyLateFee inserts the fee record and flags the installment. The
	// unique fee row per installment is the idempotency guard; false means a
	// record already existed and nothing changed.
	ApplyLateFee(ctx context.Context, fee plans.LateFee) (bool, error)
	// ListReminderCandidates selects installments due for a reminder on the
	// given day according to their plan's reminder offsets.
	ListReminderCandidates(ctx context.Context, day time.Time) ([]ReminderCandidate, error)
	// RecordReminder appends a send record to an installment.
	RecordReminder(ctx context.Context, installmentID uuid.UUID, rec plans.ReminderRecord) error
}
