package analytics

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PGRepository runs the analytics queries against PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// PlanAggregates rolls up plans created inside the reporting period.
func (r *PGRepository) PlanAggregates(ctx context.Context, from, to time.Time) (PlanAggregates, error) {
	var agg PlanAggregates
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*),
			COUNT(*) FILTER (WHERE status = 'active'),
			COUNT(*) FILTER (WHERE status = 'completed'),
			COUNT(*) FILTER (WHERE status = 'cancelled'),
			COUNT(*) FILTER (WHERE status = 'defaulted'),
			COUNT(*) FILTER (WHERE auto_pay),
			COALESCE(SUM(total), 0)
		FROM payment_plans
		WHERE created_at >= $1 AND created_at <= $2`, from, to).Scan(
		&agg.Total, &agg.Active, &agg.Completed, &agg.Cancelled,
		&agg.Defaulted, &agg.AutoPay, &agg.TotalValue)
	if err != nil {
		return PlanAggregates{}, fmt.Errorf("analytics: plan aggregates: %w", err)
	}
	return agg, nil
}

// PaymentAggregates counts paid installments in the period and how many of
// them were settled on or before their due date.
func (r *PGRepository) PaymentAggregates(ctx context.Context, from, to time.Time) (PaymentAggregates, error) {
	var agg PaymentAggregates
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*),
			COUNT(*) FILTER (WHERE paid_at::date <= due_date::date)
		FROM installments
		WHERE status = 'paid' AND paid_at >= $1 AND paid_at <= $2`, from, to).Scan(
		&agg.Paid, &agg.PaidOnTime)
	if err != nil {
		return PaymentAggregates{}, fmt.Errorf("analytics: payment aggregates: %w", err)
	}
	return agg, nil
}
