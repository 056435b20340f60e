package sweep

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/qistas/qistas/internal/billing"
	"github.com/qistas/qistas/internal/plans"
	"github.com/qistas/qistas/internal/shared"
)

// Failure records one installment the sweep could not settle.
type Failure struct {
	InstallmentID uuid.UUID `json:"installment_id"`
	PlanID        uuid.UUID `json:"plan_id"`
	Sequence      int       `json:"sequence"`
	Reason        string    `json:"reason"`
}

// Result aggregates one sweep run.
type Result struct {
	Processed int       `json:"processed"`
	Succeeded int       `json:"succeeded"`
	Failed    int       `json:"failed"`
	Skipped   int       `json:"skipped"`
	Failures  []Failure `json:"failures,omitempty"`
}

// PaymentSweeperConfig collects the sweeper's dependencies and tuning.
type PaymentSweeperConfig struct {
	Store         Store
	Gateway       billing.ChargeGateway
	Invalidator   CacheInvalidator
	Logger        *slog.Logger
	Clock         shared.Clock
	Lookahead     time.Duration
	ChargeTimeout time.Duration
	Concurrency   int
}

// PaymentSweeper attempts automatic charges for due installments of auto-pay
// plans. One installment's failure never aborts the sweep.
type PaymentSweeper struct {
	store         Store
	gateway       billing.ChargeGateway
	invalidator   CacheInvalidator
	logger        *slog.Logger
	clock         shared.Clock
	lookahead     time.Duration
	chargeTimeout time.Duration
	concurrency   int
}

// NewPaymentSweeper builds a PaymentSweeper with sane defaults.
func NewPaymentSweeper(cfg PaymentSweeperConfig) *PaymentSweeper {
	s := &PaymentSweeper{
		store:         cfg.Store,
		gateway:       cfg.Gateway,
		invalidator:   cfg.Invalidator,
		logger:        cfg.Logger,
		clock:         cfg.Clock,
		lookahead:     cfg.Lookahead,
		chargeTimeout: cfg.ChargeTimeout,
		concurrency:   cfg.Concurrency,
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.clock == nil {
		s.clock = shared.SystemClock
	}
	if s.lookahead <= 0 {
		s.lookahead = 72 * time.Hour
	}
	if s.chargeTimeout <= 0 {
		s.chargeTimeout = 30 * time.Second
	}
	if s.concurrency <= 0 {
		s.concurrency = 4
	}
	return s
}

// Run executes one sweep with the configured lookahead window.
func (s *PaymentSweeper) Run(ctx context.Context) (Result, error) {
	return s.RunWindow(ctx, s.lookahead)
}

// RunWindow executes one sweep over [now, now+lookahead]. The error return
// covers only the candidate query; per-installment outcomes land in the
// Result.
func (s *PaymentSweeper) RunWindow(ctx context.Context, lookahead time.Duration) (Result, error) {
	if lookahead <= 0 {
		lookahead = s.lookahead
	}
	now := s.clock()
	due, err := s.store.ListDueAutoPay(ctx, now, now.Add(lookahead))
	if err != nil {
		return Result{}, shared.WrapError(shared.KindStorageFailure, err)
	}

	s.logger.Info("payment sweep started",
		slog.Int("candidates", len(due)),
		slog.Time("window_from", now),
		slog.Time("window_to", now.Add(lookahead)))

	var (
		mu     sync.Mutex
		result Result
	)
	result.Processed = len(due)

	g := new(errgroup.Group)
	g.SetLimit(s.concurrency)
	for _, candidate := range due {
		g.Go(func() error {
			outcome := s.chargeOne(ctx, candidate)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case outcome == nil:
				result.Succeeded++
			case outcome.Reason == reasonSkipped:
				result.Skipped++
			default:
				result.Failed++
				result.Failures = append(result.Failures, *outcome)
			}
			return nil
		})
	}
	_ = g.Wait()

	if result.Succeeded > 0 && s.invalidator != nil {
		if err := s.invalidator.Invalidate(ctx); err != nil {
			s.logger.Warn("analytics cache invalidation failed", slog.Any("error", err))
		}
	}

	s.logger.Info("payment sweep finished",
		slog.Int("processed", result.Processed),
		slog.Int("succeeded", result.Succeeded),
		slog.Int("failed", result.Failed),
		slog.Int("skipped", result.Skipped))
	return result, nil
}

const reasonSkipped = "plan no longer active"

// chargeOne attempts one charge. A nil return means the installment was
// settled; a Failure with reasonSkipped means the plan stopped being active.
func (s *PaymentSweeper) chargeOne(ctx context.Context, candidate DueInstallment) *Failure {
	fail := func(reason string) *Failure {
		return &Failure{
			InstallmentID: candidate.InstallmentID,
			PlanID:        candidate.PlanID,
			Sequence:      candidate.Sequence,
			Reason:        reason,
		}
	}

	status, err := s.store.PlanStatus(ctx, candidate.PlanID)
	if err != nil {
		return fail(fmt.Sprintf("plan status check: %v", err))
	}
	if status != plans.PlanActive {
		return fail(reasonSkipped)
	}

	chargeCtx, cancel := context.WithTimeout(ctx, s.chargeTimeout)
	defer cancel()
	res, err := s.gateway.Charge(chargeCtx, billing.ChargeRequest{
		Method:    candidate.Method,
		Amount:    candidate.Amount,
		Reference: fmt.Sprintf("%s/%d", candidate.PlanID, candidate.Sequence),
	})
	if err != nil {
		s.logger.Warn("charge attempt failed",
			slog.String("installment_id", candidate.InstallmentID.String()),
			slog.Any("error", err))
		return fail(err.Error())
	}

	claimed, err := s.store.MarkPaidIfPending(ctx, candidate.InstallmentID, s.clock(), candidate.Method, res.TransactionID)
	if err != nil {
		return fail(fmt.Sprintf("mark paid: %v", err))
	}
	if !claimed {
		// Charged but someone settled the row first; surfaced for manual
		// reconciliation against the gateway transaction.
		s.logger.Error("charge succeeded but installment was already settled",
			slog.String("installment_id", candidate.InstallmentID.String()),
			slog.String("transaction_id", res.TransactionID))
		return fail("installment already settled")
	}
	return nil
}
