package sweep

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/qistas/qistas/internal/plans"
	"github.com/qistas/qistas/internal/shared"
)

// LateFeeResult aggregates one late-fee sweep run.
type LateFeeResult struct {
	Scanned  int       `json:"scanned"`
	Applied  int       `json:"applied"`
	Skipped  int       `json:"skipped"`
	Failed   int       `json:"failed"`
	Failures []Failure `json:"failures,omitempty"`
}

// LateFeeSweeperConfig collects the sweeper's dependencies.
type LateFeeSweeperConfig struct {
	Store       Store
	Invalidator CacheInvalidator
	Logger      *slog.Logger
	Clock       shared.Clock
}

// LateFeeSweeper applies a one-time late fee to installments past their
// plan's grace period. The unique fee record per installment makes repeated
// runs idempotent.
type LateFeeSweeper struct {
	store       Store
	invalidator CacheInvalidator
	logger      *slog.Logger
	clock       shared.Clock
}

// NewLateFeeSweeper builds a LateFeeSweeper.
func NewLateFeeSweeper(cfg LateFeeSweeperConfig) *LateFeeSweeper {
	s := &LateFeeSweeper{store: cfg.Store, invalidator: cfg.Invalidator, logger: cfg.Logger, clock: cfg.Clock}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.clock == nil {
		s.clock = shared.SystemClock
	}
	return s
}

// Run executes one late-fee sweep. Installments still inside their grace
// period never appear as candidates.
func (s *LateFeeSweeper) Run(ctx context.Context) (LateFeeResult, error) {
	now := s.clock()
	candidates, err := s.store.ListLateFeeCandidates(ctx, now)
	if err != nil {
		return LateFeeResult{}, shared.WrapError(shared.KindStorageFailure, err)
	}

	s.logger.Info("late fee sweep started", slog.Int("candidates", len(candidates)))

	var result LateFeeResult
	result.Scanned = len(candidates)
	for _, candidate := range candidates {
		status, err := s.store.PlanStatus(ctx, candidate.PlanID)
		if err != nil {
			result.Failed++
			result.Failures = append(result.Failures, Failure{
				InstallmentID: candidate.InstallmentID,
				PlanID:        candidate.PlanID,
				Sequence:      candidate.Sequence,
				Reason:        err.Error(),
			})
			continue
		}
		if status != plans.PlanActive {
			result.Skipped++
			continue
		}

		applied, err := s.store.ApplyLateFee(ctx, plans.LateFee{
			ID:            uuid.New(),
			InstallmentID: candidate.InstallmentID,
			Amount:        candidate.FeeAmount,
			AppliedAt:     now,
		})
		if err != nil {
			result.Failed++
			result.Failures = append(result.Failures, Failure{
				InstallmentID: candidate.InstallmentID,
				PlanID:        candidate.PlanID,
				Sequence:      candidate.Sequence,
				Reason:        err.Error(),
			})
			continue
		}
		if !applied {
			// A fee record already exists, typically from a concurrent run.
			result.Skipped++
			continue
		}
		result.Applied++
		s.logger.Info("late fee applied",
			slog.String("installment_id", candidate.InstallmentID.String()),
			slog.String("amount", candidate.FeeAmount.String()),
			slog.Time("due_date", candidate.DueDate))
	}

	if result.Applied > 0 && s.invalidator != nil {
		if err := s.invalidator.Invalidate(ctx); err != nil {
			s.logger.Warn("analytics cache invalidation failed", slog.Any("error", err))
		}
	}

	s.logger.Info("late fee sweep finished",
		slog.Int("scanned", result.Scanned),
		slog.Int("applied", result.Applied),
		slog.Int("skipped", result.Skipped),
		slog.Int("failed", result.Failed))
	return result, nil
}
