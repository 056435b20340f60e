package sweep

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/qistas/qistas/internal/plans"
	"github.com/qistas/qistas/internal/platform/db"
)

// Repository is the PostgreSQL implementation of Store.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ListDueAutoPay selects charge candidates inside the lookahead window.
func (r *Repository) ListDueAutoPay(ctx context.Context, from, to time.Time) ([]DueInstallment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT i.id, i.plan_id, p.invoice_id, p.student_id, i.sequence,
			i.amount, i.due_date, p.auto_pay_method
		FROM installments i
		JOIN payment_plans p ON p.id = i.plan_id
		WHERE i.due_date >= $1 AND i.due_date <= $2
			AND i.status = 'pending'
			AND p.auto_pay = TRUE
			AND p.status = 'active'
		ORDER BY i.due_date`, from, to)
	if err != nil {
		return nil, fmt.Errorf("sweep: list due auto-pay: %w", err)
	}
	defer rows.Close()

	var out []DueInstallment
	for rows.Next() {
		var d DueInstallment
		if err := rows.Scan(&d.InstallmentID, &d.PlanID, &d.InvoiceID, &d.StudentID,
			&d.Sequence, &d.Amount, &d.DueDate, &d.Method); err != nil {
			return nil, fmt.Errorf("sweep: scan due installment: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// PlanStatus reads the current plan status.
func (r *Repository) PlanStatus(ctx context.Context, planID uuid.UUID) (plans.PlanStatus, error) {
	var status string
	err := r.pool.QueryRow(ctx, `SELECT status FROM payment_plans WHERE id = $1`, planID).Scan(&status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", plans.ErrNotFound
		}
		return "", fmt.Errorf("sweep: plan status: %w", err)
	}
	return plans.PlanStatus(status), nil
}

// MarkPaidIfPending settles an installment via a conditional update. The
// status guard is the per-installment claim.
func (r *Repository) MarkPaidIfPending(ctx context.Context, installmentID uuid.UUID, paidAt time.Time, method, txnRef string) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE installments
		SET status = 'paid', paid_amount = amount, paid_at = $2,
			method = $3, transaction_ref = $4, updated_at = $2
		WHERE id = $1 AND status = 'pending'`,
		installmentID, paidAt, method, txnRef)
	if err != nil {
		return false, fmt.Errorf("sweep: mark paid: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// ListLateFeeCandidates selects installments past grace with no fee record.
func (r *Repository) ListLateFeeCandidates(ctx context.Context, now time.Time) ([]FeeCandidate, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT i.id, i.plan_id, i.sequence, i.due_date, p.late_fee_amount
		FROM installments i
		JOIN payment_plans p ON p.id = i.plan_id
		WHERE i.due_date < $1 - (p.grace_days * INTERVAL '1 day')
			AND i.status IN ('pending','overdue')
			AND p.late_fee_enabled = TRUE
			AND p.status = 'active'
			AND NOT EXISTS (
				SELECT 1 FROM late_fees f WHERE f.installment_id = i.id
			)
		ORDER BY i.due_date`, now)
	if err != nil {
		return nil, fmt.Errorf("sweep: list late fee candidates: %w", err)
	}
	defer rows.Close()

	var out []FeeCandidate
	for rows.Next() {
		var c FeeCandidate
		if err := rows.Scan(&c.InstallmentID, &c.PlanID, &c.Sequence, &c.DueDate, &c.FeeAmount); err != nil {
			return nil, fmt.Errorf("sweep: scan fee candidate: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// ApplyLateFee inserts the fee record and flags the installment in one
// transaction. The unique constraint on late_fees.installment_id is the
// at-most-once guard: a duplicate insert reports applied=false.
func (r *Repository) ApplyLateFee(ctx context.Context, fee plans.LateFee) (bool, error) {
	applied := false
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO late_fees (id, installment_id, amount, applied_at)
			VALUES ($1,$2,$3,$4)`,
			fee.ID, fee.InstallmentID, fee.Amount, fee.AppliedAt)
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == "23505" {
				return nil
			}
			return fmt.Errorf("sweep: insert late fee: %w", err)
		}
		applied = true

		_, err = tx.Exec(ctx, `
			UPDATE installments
			SET late_fee_applied = TRUE, late_fee_amount = $2,
				status = CASE WHEN status = 'pending' THEN 'overdue' ELSE status END,
				updated_at = $3
			WHERE id = $1 AND status <> 'paid'`,
			fee.InstallmentID, fee.Amount, fee.AppliedAt)
		if err != nil {
			return fmt.Errorf("sweep: flag installment: %w", err)
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	return applied, nil
}

// ListReminderCandidates selects installments whose due date offset by one of
// the plan's reminder offsets lands on the given day.
func (r *Repository) ListReminderCandidates(ctx context.Context, day time.Time) ([]ReminderCandidate, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT i.id, i.plan_id, p.student_id, i.sequence, i.amount, i.due_date,
			p.reminder_channels
		FROM installments i
		JOIN payment_plans p ON p.id = i.plan_id
		WHERE i.status IN ('pending','partial','overdue')
			AND p.status = 'active'
			AND cardinality(p.reminder_offsets) > 0
			AND EXISTS (
				SELECT 1 FROM unnest(p.reminder_offsets) AS o
				WHERE (i.due_date + (o * INTERVAL '1 day'))::date = $1::date
			)
		ORDER BY i.due_date`, day)
	if err != nil {
		return nil, fmt.Errorf("sweep: list reminder candidates: %w", err)
	}
	defer rows.Close()

	var out []ReminderCandidate
	for rows.Next() {
		var c ReminderCandidate
		if err := rows.Scan(&c.InstallmentID, &c.PlanID, &c.StudentID, &c.Sequence,
			&c.Amount, &c.DueDate, &c.Channels); err != nil {
			return nil, fmt.Errorf("sweep: scan reminder candidate: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// RecordReminder appends one send record.
func (r *Repository) RecordReminder(ctx context.Context, installmentID uuid.UUID, rec plans.ReminderRecord) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO installment_reminders (installment_id, sent_at, channel, outcome)
		VALUES ($1,$2,$3,$4)`,
		installmentID, rec.SentAt, rec.Channel, rec.Outcome)
	if err != nil {
		return fmt.Errorf("sweep: record reminder: %w", err)
	}
	return nil
}
