package billing

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when an invoice id has no row.
var ErrNotFound = errors.New("billing: invoice not found")

// Repository is the PostgreSQL-backed InvoiceStore.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// GetInvoice loads one invoice snapshot.
func (r *Repository) GetInvoice(ctx context.Context, id string) (*Invoice, error) {
	var inv Invoice
	err := r.pool.QueryRow(ctx, `
		SELECT id, student_id, total, balance, status, has_active_plan
		FROM invoices
		WHERE id = $1`, id).Scan(
		&inv.ID, &inv.StudentID, &inv.Total, &inv.Balance, &inv.Status, &inv.HasActivePlan)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("billing: get invoice: %w", err)
	}
	return &inv, nil
}

// SetActivePlan toggles the active-plan bookkeeping flag.
func (r *Repository) SetActivePlan(ctx context.Context, invoiceID string, active bool) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE invoices SET has_active_plan = $2, updated_at = NOW()
		WHERE id = $1`, invoiceID, active)
	if err != nil {
		return fmt.Errorf("billing: set active plan: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SetPaymentStatus patches the invoice payment status.
func (r *Repository) SetPaymentStatus(ctx context.Context, invoiceID string, status PaymentStatus) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE invoices SET status = $2, updated_at = NOW()
		WHERE id = $1`, invoiceID, status)
	if err != nil {
		return fmt.Errorf("billing: set payment status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
