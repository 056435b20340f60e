package sweep

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/qistas/qistas/internal/billing"
	"github.com/qistas/qistas/internal/plans"
	"github.com/qistas/qistas/internal/shared"
)

// ReminderResult aggregates one reminder scan.
type ReminderResult struct {
	Scanned    int `json:"scanned"`
	Dispatched int `json:"dispatched"`
	Failed     int `json:"failed"`
}

// ReminderScannerConfig collects the scanner's dependencies.
type ReminderScannerConfig struct {
	Store      Store
	Dispatcher billing.ReminderDispatcher
	Logger     *slog.Logger
	Clock      shared.Clock
}

// ReminderScanner decides which installments are due a reminder today and
// hands them to the dispatch collaborator. Delivery itself is out of scope;
// the scan only records that a send was attempted.
type ReminderScanner struct {
	store      Store
	dispatcher billing.ReminderDispatcher
	logger     *slog.Logger
	clock      shared.Clock
}

// NewReminderScanner builds a ReminderScanner.
func NewReminderScanner(cfg ReminderScannerConfig) *ReminderScanner {
	s := &ReminderScanner{
		store:      cfg.Store,
		dispatcher: cfg.Dispatcher,
		logger:     cfg.Logger,
		clock:      cfg.Clock,
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.clock == nil {
		s.clock = shared.SystemClock
	}
	return s
}

// Run executes one reminder scan for the current day.
func (s *ReminderScanner) Run(ctx context.Context) (ReminderResult, error) {
	now := s.clock()
	candidates, err := s.store.ListReminderCandidates(ctx, now)
	if err != nil {
		return ReminderResult{}, shared.WrapError(shared.KindStorageFailure, err)
	}

	var result ReminderResult
	result.Scanned = len(candidates)
	for _, candidate := range candidates {
		for _, channel := range candidate.Channels {
			reminder := billing.Reminder{
				Recipient: candidate.StudentID,
				Channel:   channel,
				Message: fmt.Sprintf("installment %d of %s due %s",
					candidate.Sequence, candidate.Amount.StringFixed(2),
					candidate.DueDate.Format("2006-01-02")),
			}
			outcome := "sent"
			if err := s.dispatcher.Dispatch(ctx, reminder); err != nil {
				outcome = "failed"
				result.Failed++
				s.logger.Warn("reminder dispatch failed",
					slog.String("installment_id", candidate.InstallmentID.String()),
					slog.String("channel", channel),
					slog.Any("error", err))
			} else {
				result.Dispatched++
			}
			if err := s.store.RecordReminder(ctx, candidate.InstallmentID, plans.ReminderRecord{
				SentAt:  now,
				Channel: channel,
				Outcome: outcome,
			}); err != nil {
				s.logger.Warn("record reminder failed",
					slog.String("installment_id", candidate.InstallmentID.String()),
					slog.Any("error", err))
			}
		}
	}

	s.logger.Info("reminder scan finished",
		slog.Int("scanned", result.Scanned),
		slog.Int("dispatched", result.Dispatched),
		slog.Int("failed", result.Failed))
	return result, nil
}
