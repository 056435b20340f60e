// Package analytics aggregates plan and installment figures for reporting.
// Read-only: nothing here mutates engine state.
package analytics

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/qistas/qistas/internal/shared"
)

// PlanAggregates is the raw plan rollup for a reporting period.
type PlanAggregates struct {
	Total      int             `json:"total"`
	Active     int             `json:"active"`
	Completed  int             `json:"completed"`
	Cancelled  int             `json:"cancelled"`
	Defaulted  int             `json:"defaulted"`
	AutoPay    int             `json:"auto_pay"`
	TotalValue decimal.Decimal `json:"total_value"`
}

// PaymentAggregates is the raw paid-installment rollup for a period.
type PaymentAggregates struct {
	Paid       int `json:"paid"`
	PaidOnTime int `json:"paid_on_time"`
}

// Repository defines the analytics queries.
type Repository interface {
	PlanAggregates(ctx context.Context, from, to time.Time) (PlanAggregates, error)
	PaymentAggregates(ctx context.Context, from, to time.Time) (PaymentAggregates, error)
}

// Summary is the reporting payload for a date range.
type Summary struct {
	From           time.Time       `json:"from"`
	To             time.Time       `json:"to"`
	TotalPlans     int             `json:"total_plans"`
	ActivePlans    int             `json:"active_plans"`
	CompletedPlans int             `json:"completed_plans"`
	CancelledPlans int             `json:"cancelled_plans"`
	DefaultedPlans int             `json:"defaulted_plans"`
	TotalValue     decimal.Decimal `json:"total_value"`
	AverageValue   decimal.Decimal `json:"average_value"`
	OnTimeRate     float64         `json:"on_time_rate"`
	AutoPayRate    float64         `json:"auto_pay_rate"`
}

// Service computes summaries with a redis cache in front of the repository.
type Service struct {
	repo  Repository
	cache *Cache
}

// NewService builds the analytics service.
func NewService(repo Repository, cache *Cache) *Service {
	return &Service{repo: repo, cache: cache}
}

// GetSummary returns the aggregate summary for [from, to].
func (s *Service) GetSummary(ctx context.Context, from, to time.Time) (Summary, error) {
	key, err := s.cache.BuildKey(ctx, "analytics", "plans",
		from.Format("2006-01-02"), to.Format("2006-01-02"))
	if err != nil {
		return Summary{}, shared.WrapError(shared.KindStorageFailure, err)
	}

	var summary Summary
	err = s.cache.FetchJSON(ctx, key, &summary, func(ctx context.Context) (interface{}, error) {
		return s.buildSummary(ctx, from, to)
	})
	if err != nil {
		return Summary{}, shared.WrapError(shared.KindStorageFailure, err)
	}
	return summary, nil
}

func (s *Service) buildSummary(ctx context.Context, from, to time.Time) (Summary, error) {
	planAgg, err := s.repo.PlanAggregates(ctx, from, to)
	if err != nil {
		return Summary{}, err
	}
	payAgg, err := s.repo.PaymentAggregates(ctx, from, to)
	if err != nil {
		return Summary{}, err
	}

	summary := Summary{
		From:           from,
		To:             to,
		TotalPlans:     planAgg.Total,
		ActivePlans:    planAgg.Active,
		CompletedPlans: planAgg.Completed,
		CancelledPlans: planAgg.Cancelled,
		DefaultedPlans: planAgg.Defaulted,
		TotalValue:     planAgg.TotalValue,
		AverageValue:   decimal.Zero,
	}
	if planAgg.Total > 0 {
		summary.AverageValue = planAgg.TotalValue.Div(decimal.New(int64(planAgg.Total), 0)).Round(2)
		summary.AutoPayRate = float64(planAgg.AutoPay) / float64(planAgg.Total)
	}
	if payAgg.Paid > 0 {
		summary.OnTimeRate = float64(payAgg.PaidOnTime) / float64(payAgg.Paid)
	}
	return summary, nil
}

// Invalidate bumps the cache version after plan or installment writes.
func (s *Service) Invalidate(ctx context.Context) error {
	return s.cache.Bump(ctx)
}
