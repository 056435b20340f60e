package plans

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PlanStatus enumerates payment plan lifecycle states.
type PlanStatus string

const (
	PlanActive    PlanStatus = "active"
	PlanCompleted PlanStatus = "completed"
	PlanCancelled PlanStatus = "cancelled"
	PlanDefaulted PlanStatus = "defaulted"
)

// InstallmentStatus enumerates installment lifecycle states.
type InstallmentStatus string

const (
	InstallmentPending InstallmentStatus = "pending"
	InstallmentPartial InstallmentStatus = "partial"
	InstallmentPaid    InstallmentStatus = "paid"
	InstallmentOverdue InstallmentStatus = "overdue"
)

// Frequency is the spacing between consecutive installments.
type Frequency string

const (
	FrequencyWeekly   Frequency = "weekly"
	FrequencyBiweekly Frequency = "biweekly"
	FrequencyMonthly  Frequency = "monthly"
)

// Valid reports whether f is a known frequency.
func (f Frequency) Valid() bool {
	switch f {
	case FrequencyWeekly, FrequencyBiweekly, FrequencyMonthly:
		return true
	}
	return false
}

// LateFeePolicy controls automatic late fees for a plan.
type LateFeePolicy struct {
	Enabled   bool
	FeeAmount decimal.Decimal
	GraceDays int
}

// ReminderPolicy controls due-date reminders for a plan. Offsets are days
// relative to the due date, negative meaning before.
type ReminderPolicy struct {
	OffsetDays []int
	Channels   []string
}

// PaymentPlan is an installment plan attached to one invoice.
type PaymentPlan struct {
	ID               uuid.UUID
	InvoiceID        string
	StudentID        string
	Total            decimal.Decimal
	InstallmentCount int
	NominalAmount    decimal.Decimal
	Frequency        Frequency
	StartDate        time.Time
	Status           PlanStatus
	TermsAccepted    bool
	TermsAcceptedAt  time.Time
	LateFees         LateFeePolicy
	Reminders        ReminderPolicy
	AutoPay          bool
	AutoPayMethod    string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// ReminderRecord is one reminder send attached to an installment.
type ReminderRecord struct {
	SentAt  time.Time
	Channel string
	Outcome string
}

// Installment is one scheduled partial payment within a plan. Once Status is
// paid the amount, due date and sequence are immutable.
type Installment struct {
	ID             uuid.UUID
	PlanID         uuid.UUID
	Sequence       int
	Amount         decimal.Decimal
	DueDate        time.Time
	Status         InstallmentStatus
	PaidAmount     decimal.Decimal
	PaidAt         *time.Time
	Method         string
	TransactionRef string
	LateFeeApplied bool
	LateFeeAmount  decimal.Decimal
	Reminders      []ReminderRecord
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// ScheduleEntry is one (sequence, amount, due date) triple. The generator
// emits them and modification proposals carry them.
type ScheduleEntry struct {
	Sequence int             `json:"sequence"`
	Amount   decimal.Decimal `json:"amount"`
	DueDate  time.Time       `json:"due_date"`
}

// Modification is an append-only audit entry for a plan re-schedule.
type Modification struct {
	ID        uuid.UUID
	PlanID    uuid.UUID
	Proposed  []ScheduleEntry
	ReasonAR  string
	ReasonEN  string
	Actor     string
	CreatedAt time.Time
}

// LateFee is an append-only fee record; at most one exists per installment.
type LateFee struct {
	ID            uuid.UUID
	InstallmentID uuid.UUID
	Amount        decimal.Decimal
	AppliedAt     time.Time
}

// DashboardRow is a plan with aggregated installment counts for the UI layer.
type DashboardRow struct {
	Plan         PaymentPlan
	Installments int
	Paid         int
	Overdue      int
	PaidAmount   decimal.Decimal
	NextDueDate  *time.Time
}
