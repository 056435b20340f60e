package plans

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/qistas/qistas/internal/platform/db"
)

// Repository provides PostgreSQL backed persistence for plans.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const insertPlanSQL = `
	INSERT INTO payment_plans (
		id, invoice_id, student_id, total, installment_count, nominal_amount,
		frequency, start_date, status, terms_accepted, terms_accepted_at,
		late_fee_enabled, late_fee_amount, grace_days,
		reminder_offsets, reminder_channels,
		auto_pay, auto_pay_method, created_at, updated_at
	) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20)`

const insertInstallmentSQL = `
	INSERT INTO installments (
		id, plan_id, sequence, amount, due_date, status, paid_amount,
		late_fee_applied, late_fee_amount, created_at, updated_at
	) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`

func planArgs(plan *PaymentPlan) []any {
	offsets := make([]int32, len(plan.Reminders.OffsetDays))
	for i, d := range plan.Reminders.OffsetDays {
		offsets[i] = int32(d)
	}
	return []any{
		plan.ID, plan.InvoiceID, plan.StudentID, plan.Total, plan.InstallmentCount,
		plan.NominalAmount, string(plan.Frequency), plan.StartDate, string(plan.Status),
		plan.TermsAccepted, plan.TermsAcceptedAt,
		plan.LateFees.Enabled, plan.LateFees.FeeAmount, plan.LateFees.GraceDays,
		offsets, plan.Reminders.Channels,
		plan.AutoPay, plan.AutoPayMethod, plan.CreatedAt, plan.UpdatedAt,
	}
}

func installmentArgs(planID uuid.UUID, inst Installment) []any {
	return []any{
		inst.ID, planID, inst.Sequence, inst.Amount, inst.DueDate,
		string(inst.Status), inst.PaidAmount,
		inst.LateFeeApplied, inst.LateFeeAmount,
		inst.CreatedAt, inst.UpdatedAt,
	}
}

// CreatePlan inserts the plan row.
func (r *Repository) CreatePlan(ctx context.Context, plan *PaymentPlan) error {
	if _, err := r.pool.Exec(ctx, insertPlanSQL, planArgs(plan)...); err != nil {
		return fmt.Errorf("plans: create plan: %w", err)
	}
	return nil
}

// CreateInstallments inserts the whole installment set in one transaction so
// a partial batch never persists.
func (r *Repository) CreateInstallments(ctx context.Context, planID uuid.UUID, installments []Installment) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		for _, inst := range installments {
			if _, err := tx.Exec(ctx, insertInstallmentSQL, installmentArgs(planID, inst)...); err != nil {
				return fmt.Errorf("plans: create installment %d: %w", inst.Sequence, err)
			}
		}
		return nil
	})
}

// CreatePlanWithInstallments inserts the plan and its full installment set in
// a single transaction. The service prefers this path when the store offers
// it; either everything commits or nothing does, with no compensating delete.
func (r *Repository) CreatePlanWithInstallments(ctx context.Context, plan *PaymentPlan, installments []Installment) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, insertPlanSQL, planArgs(plan)...); err != nil {
			return fmt.Errorf("plans: create plan: %w", err)
		}
		for _, inst := range installments {
			if _, err := tx.Exec(ctx, insertInstallmentSQL, installmentArgs(plan.ID, inst)...); err != nil {
				return fmt.Errorf("plans: create installment %d: %w", inst.Sequence, err)
			}
		}
		return nil
	})
}

// DeletePlan removes the plan row and any installments that made it in. Used
// only by the compensating rollback on creation failure.
func (r *Repository) DeletePlan(ctx context.Context, planID uuid.UUID) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM installments WHERE plan_id = $1`, planID); err != nil {
			return fmt.Errorf("plans: delete installments: %w", err)
		}
		if _, err := tx.Exec(ctx, `DELETE FROM payment_plans WHERE id = $1`, planID); err != nil {
			return fmt.Errorf("plans: delete plan: %w", err)
		}
		return nil
	})
}

const planColumns = `
	id, invoice_id, student_id, total, installment_count, nominal_amount,
	frequency, start_date, status, terms_accepted, terms_accepted_at,
	late_fee_enabled, late_fee_amount, grace_days,
	reminder_offsets, reminder_channels,
	auto_pay, auto_pay_method, created_at, updated_at`

// GetPlan retrieves a plan by id.
func (r *Repository) GetPlan(ctx context.Context, id uuid.UUID) (*PaymentPlan, error) {
	row := r.pool.QueryRow(ctx, `SELECT`+planColumns+` FROM payment_plans WHERE id = $1`, id)
	plan, err := scanPlan(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("plans: get plan: %w", err)
	}
	return plan, nil
}

func scanPlan(row pgx.Row) (*PaymentPlan, error) {
	var (
		plan      PaymentPlan
		frequency string
		status    string
		offsets   []int32
	)
	err := row.Scan(
		&plan.ID, &plan.InvoiceID, &plan.StudentID, &plan.Total,
		&plan.InstallmentCount, &plan.NominalAmount, &frequency, &plan.StartDate,
		&status, &plan.TermsAccepted, &plan.TermsAcceptedAt,
		&plan.LateFees.Enabled, &plan.LateFees.FeeAmount, &plan.LateFees.GraceDays,
		&offsets, &plan.Reminders.Channels,
		&plan.AutoPay, &plan.AutoPayMethod, &plan.CreatedAt, &plan.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	plan.Frequency = Frequency(frequency)
	plan.Status = PlanStatus(status)
	plan.Reminders.OffsetDays = make([]int, len(offsets))
	for i, d := range offsets {
		plan.Reminders.OffsetDays[i] = int(d)
	}
	return &plan, nil
}

// UpdatePlanStatus transitions the plan status.
func (r *Repository) UpdatePlanStatus(ctx context.Context, id uuid.UUID, status PlanStatus, at time.Time) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE payment_plans SET status = $2, updated_at = $3 WHERE id = $1`,
		id, string(status), at)
	if err != nil {
		return fmt.Errorf("plans: update plan status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

const installmentColumns = `
	id, plan_id, sequence, amount, due_date, status, paid_amount, paid_at,
	method, transaction_ref, late_fee_applied, late_fee_amount,
	created_at, updated_at`

func scanInstallment(row pgx.Row) (*Installment, error) {
	var (
		inst   Installment
		status string
		method *string
		txnRef *string
	)
	err := row.Scan(
		&inst.ID, &inst.PlanID, &inst.Sequence, &inst.Amount, &inst.DueDate,
		&status, &inst.PaidAmount, &inst.PaidAt, &method, &txnRef,
		&inst.LateFeeApplied, &inst.LateFeeAmount, &inst.CreatedAt, &inst.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	inst.Status = InstallmentStatus(status)
	if method != nil {
		inst.Method = *method
	}
	if txnRef != nil {
		inst.TransactionRef = *txnRef
	}
	return &inst, nil
}

// ListInstallments returns the plan's installments ordered by sequence.
func (r *Repository) ListInstallments(ctx context.Context, planID uuid.UUID) ([]Installment, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT`+installmentColumns+` FROM installments WHERE plan_id = $1 ORDER BY sequence`, planID)
	if err != nil {
		return nil, fmt.Errorf("plans: list installments: %w", err)
	}
	defer rows.Close()

	var out []Installment
	for rows.Next() {
		inst, err := scanInstallment(rows)
		if err != nil {
			return nil, fmt.Errorf("plans: scan installment: %w", err)
		}
		out = append(out, *inst)
	}
	return out, rows.Err()
}

// GetInstallmentBySequence fetches one installment by its plan-local sequence.
func (r *Repository) GetInstallmentBySequence(ctx context.Context, planID uuid.UUID, sequence int) (*Installment, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT`+installmentColumns+` FROM installments WHERE plan_id = $1 AND sequence = $2`,
		planID, sequence)
	inst, err := scanInstallment(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("plans: get installment: %w", err)
	}
	return inst, nil
}

// UpdateInstallmentSchedule rewrites amount and due date of one unpaid
// installment. The status guard keeps paid rows immutable even under races.
func (r *Repository) UpdateInstallmentSchedule(ctx context.Context, planID uuid.UUID, sequence int, amount decimal.Decimal, dueDate, at time.Time) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE installments
		SET amount = $3, due_date = $4, updated_at = $5
		WHERE plan_id = $1 AND sequence = $2 AND status <> 'paid'`,
		planID, sequence, amount, dueDate, at)
	if err != nil {
		return fmt.Errorf("plans: update installment schedule: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateInstallmentPayment persists payment progress on an installment.
func (r *Repository) UpdateInstallmentPayment(ctx context.Context, inst *Installment) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE installments
		SET status = $2, paid_amount = $3, paid_at = $4, method = $5,
			transaction_ref = $6, updated_at = $7
		WHERE id = $1 AND status <> 'paid'`,
		inst.ID, string(inst.Status), inst.PaidAmount, inst.PaidAt,
		inst.Method, inst.TransactionRef, inst.UpdatedAt)
	if err != nil {
		return fmt.Errorf("plans: update installment payment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// CreateModification appends one modification audit record.
func (r *Repository) CreateModification(ctx context.Context, mod *Modification) error {
	proposed, err := json.Marshal(mod.Proposed)
	if err != nil {
		return fmt.Errorf("plans: marshal proposed schedule: %w", err)
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO plan_modifications (id, plan_id, proposed, reason_ar, reason_en, actor, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		mod.ID, mod.PlanID, proposed, mod.ReasonAR, mod.ReasonEN, mod.Actor, mod.CreatedAt)
	if err != nil {
		return fmt.Errorf("plans: create modification: %w", err)
	}
	return nil
}

// ListDashboardRows returns every plan with aggregated installment counts.
func (r *Repository) ListDashboardRows(ctx context.Context) ([]DashboardRow, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT p.id, p.invoice_id, p.student_id, p.total, p.installment_count,
			p.frequency, p.start_date, p.status, p.auto_pay, p.created_at,
			COUNT(i.id),
			COUNT(i.id) FILTER (WHERE i.status = 'paid'),
			COUNT(i.id) FILTER (WHERE i.status = 'overdue'),
			COALESCE(SUM(i.paid_amount), 0),
			MIN(i.due_date) FILTER (WHERE i.status IN ('pending','partial','overdue'))
		FROM payment_plans p
		LEFT JOIN installments i ON i.plan_id = p.id
		GROUP BY p.id
		ORDER BY p.created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("plans: dashboard query: %w", err)
	}
	defer rows.Close()

	var out []DashboardRow
	for rows.Next() {
		var (
			row       DashboardRow
			frequency string
			status    string
		)
		if err := rows.Scan(
			&row.Plan.ID, &row.Plan.InvoiceID, &row.Plan.StudentID, &row.Plan.Total,
			&row.Plan.InstallmentCount, &frequency, &row.Plan.StartDate, &status,
			&row.Plan.AutoPay, &row.Plan.CreatedAt,
			&row.Installments, &row.Paid, &row.Overdue, &row.PaidAmount, &row.NextDueDate,
		); err != nil {
			return nil, fmt.Errorf("plans: scan dashboard row: %w", err)
		}
		row.Plan.Frequency = Frequency(frequency)
		row.Plan.Status = PlanStatus(status)
		out = append(out, row)
	}
	return out, rows.Err()
}

// ListOverdue returns unpaid installments with a due date in the past,
// restricted to active plans.
func (r *Repository) ListOverdue(ctx context.Context, asOf time.Time) ([]Installment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT`+qualifiedInstallmentColumns+`
		FROM installments i
		JOIN payment_plans p ON p.id = i.plan_id
		WHERE i.due_date < $1
			AND i.status IN ('pending','partial','overdue')
			AND p.status = 'active'
		ORDER BY i.due_date`, asOf)
	if err != nil {
		return nil, fmt.Errorf("plans: list overdue: %w", err)
	}
	defer rows.Close()

	var out []Installment
	for rows.Next() {
		inst, err := scanInstallment(rows)
		if err != nil {
			return nil, fmt.Errorf("plans: scan overdue installment: %w", err)
		}
		out = append(out, *inst)
	}
	return out, rows.Err()
}

const qualifiedInstallmentColumns = `
	i.id, i.plan_id, i.sequence, i.amount, i.due_date, i.status, i.paid_amount,
	i.paid_at, i.method, i.transaction_ref, i.late_fee_applied, i.late_fee_amount,
	i.created_at, i.updated_at`
