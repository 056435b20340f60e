package sweep

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/qistas/qistas/internal/platform/httpx"
)

// Handler exposes on-demand sweep runs. The same sweepers also run on the
// worker's cron schedule; partial failures come back 200 with the failure
// list in the body, batch failure is never an HTTP error.
type Handler struct {
	logger    *slog.Logger
	payments  *PaymentSweeper
	lateFees  *LateFeeSweeper
	reminders *ReminderScanner
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, payments *PaymentSweeper, lateFees *LateFeeSweeper, reminders *ReminderScanner) *Handler {
	return &Handler{logger: logger, payments: payments, lateFees: lateFees, reminders: reminders}
}

// MountRoutes registers sweep routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/payments/run", h.runPayments)
	r.Post("/late-fees/run", h.runLateFees)
	r.Post("/reminders/run", h.runReminders)
}

func (h *Handler) runPayments(w http.ResponseWriter, r *http.Request) {
	result, err := h.payments.Run(r.Context())
	if err != nil {
		h.logger.Error("payment sweep failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) runLateFees(w http.ResponseWriter, r *http.Request) {
	result, err := h.lateFees.Run(r.Context())
	if err != nil {
		h.logger.Error("late fee sweep failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) runReminders(w http.ResponseWriter, r *http.Request) {
	result, err := h.reminders.Run(r.Context())
	if err != nil {
		h.logger.Error("reminder scan failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}
