package plans

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/qistas/qistas/internal/billing"
	"github.com/qistas/qistas/internal/shared"
)

// RepositoryPort defines data access for plans and installments.
type RepositoryPort interface {
	CreatePlan(ctx context.Context, plan *PaymentPlan) error
	CreateInstallments(ctx context.Context, planID uuid.UUID, installments []Installment) error
	DeletePlan(ctx context.Context, planID uuid.UUID) error
	GetPlan(ctx context.Context, id uuid.UUID) (*PaymentPlan, error)
	UpdatePlanStatus(ctx context.Context, id uuid.UUID, status PlanStatus, at time.Time) error
	ListInstallments(ctx context.Context, planID uuid.UUID) ([]Installment, error)
	GetInstallmentBySequence(ctx context.Context, planID uuid.UUID, sequence int) (*Installment, error)
	UpdateInstallmentSchedule(ctx context.Context, planID uuid.UUID, sequence int, amount decimal.Decimal, dueDate, at time.Time) error
	UpdateInstallmentPayment(ctx context.Context, installment *Installment) error
	CreateModification(ctx context.Context, mod *Modification) error
	ListDashboardRows(ctx context.Context) ([]DashboardRow, error)
	ListOverdue(ctx context.Context, asOf time.Time) ([]Installment, error)
}

// AtomicCreator is the optional single-transaction creation capability of a
// repository. When the store offers it the service uses it instead of the
// two-step insert with a compensating delete.
type AtomicCreator interface {
	CreatePlanWithInstallments(ctx context.Context, plan *PaymentPlan, installments []Installment) error
}

// AnalyticsInvalidator drops cached reporting aggregates after a plan write so
// summaries never serve stale numbers for the full cache TTL.
type AnalyticsInvalidator interface {
	Invalidate(ctx context.Context) error
}

// ErrNotFound is returned by repositories when a row does not exist.
var ErrNotFound = errors.New("plans: not found")

// Service implements plan creation, modification, payment recording and the
// dashboard/overdue queries.
type Service struct {
	repo      RepositoryPort
	invoices  billing.InvoiceStore
	analytics AnalyticsInvalidator
	logger    *slog.Logger
	clock     shared.Clock
}

// NewService builds a Service. The analytics invalidator and clock may be nil;
// a nil clock falls back to the system clock.
func NewService(repo RepositoryPort, invoices billing.InvoiceStore, analytics AnalyticsInvalidator, logger *slog.Logger, clock shared.Clock) *Service {
	if clock == nil {
		clock = shared.SystemClock
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, invoices: invoices, analytics: analytics, logger: logger, clock: clock}
}

// bumpAnalytics invalidates cached summaries after a successful write. Cache
// trouble never fails the write itself.
func (s *Service) bumpAnalytics(ctx context.Context) {
	if s.analytics == nil {
		return
	}
	if err := s.analytics.Invalidate(ctx); err != nil {
		s.logger.Warn("analytics cache invalidation failed", slog.Any("error", err))
	}
}

// CreatePlanInput collects everything needed to open a plan for an invoice.
// A zero Total schedules the full outstanding balance.
type CreatePlanInput struct {
	InvoiceID     string
	StudentID     string
	Total         decimal.Decimal
	Count         int
	Frequency     Frequency
	StartDate     time.Time
	FirstAmount   *decimal.Decimal
	CustomAmounts []decimal.Decimal
	TermsAccepted bool
	LateFees      LateFeePolicy
	Reminders     ReminderPolicy
	AutoPay       bool
	AutoPayMethod string
}

// CreatePlan validates the invoice, generates the schedule and persists the
// plan together with its installments. If installment insertion fails the
// just-created plan row is deleted again, so either a complete plan exists or
// none at all.
func (s *Service) CreatePlan(ctx context.Context, input CreatePlanInput) (*PaymentPlan, []Installment, error) {
	inv, err := s.invoices.GetInvoice(ctx, input.InvoiceID)
	if err != nil {
		if errors.Is(err, billing.ErrNotFound) {
			return nil, nil, shared.NewError(shared.KindInvoiceNotFound)
		}
		return nil, nil, shared.WrapError(shared.KindStorageFailure, err)
	}
	balance, err := CheckEligibility(inv)
	if err != nil {
		return nil, nil, err
	}

	total := input.Total
	if total.IsZero() {
		total = balance
	}
	if total.GreaterThan(balance) {
		return nil, nil, shared.NewError(shared.KindAmountMismatch)
	}

	now := s.clock()
	entries, err := GenerateSchedule(ScheduleInput{
		Total:         total,
		Count:         input.Count,
		Frequency:     input.Frequency,
		StartDate:     input.StartDate,
		FirstAmount:   input.FirstAmount,
		CustomAmounts: input.CustomAmounts,
		TermsAccepted: input.TermsAccepted,
	}, now)
	if err != nil {
		return nil, nil, err
	}

	studentID := input.StudentID
	if studentID == "" {
		studentID = inv.StudentID
	}

	plan := &PaymentPlan{
		ID:               uuid.New(),
		InvoiceID:        input.InvoiceID,
		StudentID:        studentID,
		Total:            total,
		InstallmentCount: input.Count,
		NominalAmount:    total.Div(decimal.New(int64(input.Count), 0)).Round(2),
		Frequency:        input.Frequency,
		StartDate:        input.StartDate,
		Status:           PlanActive,
		TermsAccepted:    true,
		TermsAcceptedAt:  now,
		LateFees:         input.LateFees,
		Reminders:        input.Reminders,
		AutoPay:          input.AutoPay,
		AutoPayMethod:    input.AutoPayMethod,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	installments := make([]Installment, len(entries))
	for i, entry := range entries {
		installments[i] = Installment{
			ID:         uuid.New(),
			PlanID:     plan.ID,
			Sequence:   entry.Sequence,
			Amount:     entry.Amount,
			DueDate:    entry.DueDate,
			Status:     InstallmentPending,
			PaidAmount: decimal.Zero,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
	}

	if ac, ok := s.repo.(AtomicCreator); ok {
		if err := ac.CreatePlanWithInstallments(ctx, plan, installments); err != nil {
			return nil, nil, shared.WrapError(shared.KindInstallmentCreationFailed, err)
		}
	} else {
		if err := s.repo.CreatePlan(ctx, plan); err != nil {
			return nil, nil, shared.WrapError(shared.KindStorageFailure, err)
		}
		if err := s.repo.CreateInstallments(ctx, plan.ID, installments); err != nil {
			// Compensating delete: no plan row may survive without its installments.
			if delErr := s.repo.DeletePlan(ctx, plan.ID); delErr != nil {
				s.logger.Error("compensating plan delete failed",
					slog.String("plan_id", plan.ID.String()), slog.Any("error", delErr))
			}
			return nil, nil, shared.WrapError(shared.KindInstallmentCreationFailed, err)
		}
	}

	if err := s.invoices.SetActivePlan(ctx, input.InvoiceID, true); err != nil {
		// The plan itself is consistent; the bookkeeping flag is reconciled later.
		s.logger.Warn("mark invoice active-plan failed",
			slog.String("invoice_id", input.InvoiceID), slog.Any("error", err))
	}

	s.bumpAnalytics(ctx)
	s.logger.Info("payment plan created",
		slog.String("plan_id", plan.ID.String()),
		slog.String("invoice_id", plan.InvoiceID),
		slog.Int("installments", len(installments)),
		slog.String("total", plan.Total.String()))

	return plan, installments, nil
}

// ModificationInput proposes a new schedule for the unpaid remainder of a plan.
type ModificationInput struct {
	PlanID   uuid.UUID
	Entries  []ScheduleEntry
	ReasonAR string
	ReasonEN string
	Actor    string
}

// ModifyPlan re-schedules the unpaid installments named in the proposal and
// records an append-only modification entry. Installments already paid are
// silently excluded from the update set even when the proposal names them.
func (s *Service) ModifyPlan(ctx context.Context, input ModificationInput) error {
	plan, err := s.repo.GetPlan(ctx, input.PlanID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return shared.NewError(shared.KindPlanNotFound)
		}
		return shared.WrapError(shared.KindStorageFailure, err)
	}
	if plan.Status != PlanActive {
		return shared.NewError(shared.KindPlanNotActive)
	}
	for _, entry := range input.Entries {
		if entry.Amount.LessThanOrEqual(decimal.Zero) {
			return shared.NewError(shared.KindAmountMismatch)
		}
	}

	installments, err := s.repo.ListInstallments(ctx, input.PlanID)
	if err != nil {
		return shared.WrapError(shared.KindStorageFailure, err)
	}
	bySequence := make(map[int]*Installment, len(installments))
	for i := range installments {
		bySequence[installments[i].Sequence] = &installments[i]
	}

	now := s.clock()
	updates := make([]ScheduleEntry, 0, len(input.Entries))
	for _, entry := range input.Entries {
		inst, ok := bySequence[entry.Sequence]
		if !ok {
			s.logger.Warn("modification names unknown sequence",
				slog.String("plan_id", input.PlanID.String()), slog.Int("sequence", entry.Sequence))
			continue
		}
		if inst.Status == InstallmentPaid {
			continue
		}
		updates = append(updates, entry)
	}

	mod := &Modification{
		ID:        uuid.New(),
		PlanID:    input.PlanID,
		Proposed:  input.Entries,
		ReasonAR:  input.ReasonAR,
		ReasonEN:  input.ReasonEN,
		Actor:     input.Actor,
		CreatedAt: now,
	}
	if err := s.repo.CreateModification(ctx, mod); err != nil {
		return shared.WrapError(shared.KindStorageFailure, err)
	}

	for _, entry := range updates {
		if err := s.repo.UpdateInstallmentSchedule(ctx, input.PlanID, entry.Sequence, entry.Amount, entry.DueDate, now); err != nil {
			return shared.WrapError(shared.KindStorageFailure, err)
		}
		bySequence[entry.Sequence].Amount = entry.Amount
	}

	// The proposed remainder is not forced to preserve the plan total, but
	// drift is surfaced for operational visibility.
	sum := decimal.Zero
	for _, inst := range installments {
		sum = sum.Add(inst.Amount)
	}
	if !sum.Equal(plan.Total) {
		s.logger.Warn("modified schedule no longer sums to plan total",
			slog.String("plan_id", plan.ID.String()),
			slog.String("plan_total", plan.Total.String()),
			slog.String("schedule_sum", sum.String()))
	}

	s.bumpAnalytics(ctx)
	s.logger.Info("payment plan modified",
		slog.String("plan_id", plan.ID.String()),
		slog.Int("updated", len(updates)),
		slog.String("actor", input.Actor))
	return nil
}

// RecordPayment applies a manual payment against one installment. Partial
// amounts accumulate until the installment amount is covered; paid
// installments reject further payments.
func (s *Service) RecordPayment(ctx context.Context, planID uuid.UUID, sequence int, amount decimal.Decimal, method, txnRef string) (*Installment, error) {
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, shared.NewError(shared.KindInvalidAmount)
	}
	plan, err := s.repo.GetPlan(ctx, planID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, shared.NewError(shared.KindPlanNotFound)
		}
		return nil, shared.WrapError(shared.KindStorageFailure, err)
	}
	inst, err := s.repo.GetInstallmentBySequence(ctx, planID, sequence)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, shared.NewError(shared.KindInstallmentNotFound)
		}
		return nil, shared.WrapError(shared.KindStorageFailure, err)
	}
	if inst.Status == InstallmentPaid {
		return nil, shared.NewError(shared.KindInstallmentAlreadyPaid)
	}

	now := s.clock()
	inst.PaidAmount = inst.PaidAmount.Add(amount)
	inst.Method = method
	inst.TransactionRef = txnRef
	inst.UpdatedAt = now
	if inst.PaidAmount.GreaterThanOrEqual(inst.Amount) {
		inst.Status = InstallmentPaid
		inst.PaidAt = &now
	} else {
		inst.Status = InstallmentPartial
	}

	if err := s.repo.UpdateInstallmentPayment(ctx, inst); err != nil {
		return nil, shared.WrapError(shared.KindStorageFailure, err)
	}

	if inst.Status == InstallmentPaid {
		if err := s.completeIfSettled(ctx, plan); err != nil {
			s.logger.Warn("plan completion check failed",
				slog.String("plan_id", planID.String()), slog.Any("error", err))
		}
	}
	s.bumpAnalytics(ctx)
	return inst, nil
}

// completeIfSettled marks the plan completed once every installment is paid
// and clears the invoice bookkeeping.
func (s *Service) completeIfSettled(ctx context.Context, plan *PaymentPlan) error {
	installments, err := s.repo.ListInstallments(ctx, plan.ID)
	if err != nil {
		return err
	}
	for _, inst := range installments {
		if inst.Status != InstallmentPaid {
			return nil
		}
	}
	now := s.clock()
	if err := s.repo.UpdatePlanStatus(ctx, plan.ID, PlanCompleted, now); err != nil {
		return err
	}
	if err := s.invoices.SetActivePlan(ctx, plan.InvoiceID, false); err != nil {
		s.logger.Warn("clear invoice active-plan failed",
			slog.String("invoice_id", plan.InvoiceID), slog.Any("error", err))
	}
	if err := s.invoices.SetPaymentStatus(ctx, plan.InvoiceID, billing.InvoicePaid); err != nil {
		s.logger.Warn("patch invoice payment status failed",
			slog.String("invoice_id", plan.InvoiceID), slog.Any("error", err))
	}
	s.logger.Info("payment plan completed", slog.String("plan_id", plan.ID.String()))
	return nil
}

// CancelPlan sets an active plan to cancelled. In-flight sweeps re-check plan
// status before committing, so cancellation takes effect on the next claim.
func (s *Service) CancelPlan(ctx context.Context, planID uuid.UUID) error {
	plan, err := s.repo.GetPlan(ctx, planID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return shared.NewError(shared.KindPlanNotFound)
		}
		return shared.WrapError(shared.KindStorageFailure, err)
	}
	if plan.Status != PlanActive {
		return shared.NewError(shared.KindPlanNotActive)
	}
	if err := s.repo.UpdatePlanStatus(ctx, planID, PlanCancelled, s.clock()); err != nil {
		return shared.WrapError(shared.KindStorageFailure, err)
	}
	if err := s.invoices.SetActivePlan(ctx, plan.InvoiceID, false); err != nil {
		s.logger.Warn("clear invoice active-plan failed",
			slog.String("invoice_id", plan.InvoiceID), slog.Any("error", err))
	}
	s.bumpAnalytics(ctx)
	s.logger.Info("payment plan cancelled", slog.String("plan_id", planID.String()))
	return nil
}

// GetPlan returns a plan with its installments ordered by sequence.
func (s *Service) GetPlan(ctx context.Context, planID uuid.UUID) (*PaymentPlan, []Installment, error) {
	plan, err := s.repo.GetPlan(ctx, planID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil, shared.NewError(shared.KindPlanNotFound)
		}
		return nil, nil, shared.WrapError(shared.KindStorageFailure, err)
	}
	installments, err := s.repo.ListInstallments(ctx, planID)
	if err != nil {
		return nil, nil, shared.WrapError(shared.KindStorageFailure, err)
	}
	return plan, installments, nil
}

// GetDashboardRows returns every plan with aggregated installment counts.
func (s *Service) GetDashboardRows(ctx context.Context) ([]DashboardRow, error) {
	rows, err := s.repo.ListDashboardRows(ctx)
	if err != nil {
		return nil, shared.WrapError(shared.KindStorageFailure, err)
	}
	return rows, nil
}

// GetOverdueInstallments lists installments past due as of now.
func (s *Service) GetOverdueInstallments(ctx context.Context) ([]Installment, error) {
	installments, err := s.repo.ListOverdue(ctx, s.clock())
	if err != nil {
		return nil, shared.WrapError(shared.KindStorageFailure, err)
	}
	return installments, nil
}
