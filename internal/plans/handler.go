package plans

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/qistas/qistas/internal/platform/httpx"
)

// Handler exposes the plan operations to the UI/report layer.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{
		logger:   logger,
		service:  service,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// MountRoutes registers plan routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/", h.createPlan)
	r.Get("/dashboard", h.dashboard)
	r.Get("/overdue", h.overdue)
	r.Get("/{planID}", h.getPlan)
	r.Post("/{planID}/modifications", h.modifyPlan)
	r.Post("/{planID}/cancel", h.cancelPlan)
	r.Post("/{planID}/installments/{sequence}/payments", h.recordPayment)
}

func (h *Handler) createPlan(w http.ResponseWriter, r *http.Request) {
	var req createPlanRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	startDate, _ := time.Parse(dateLayout, req.StartDate)
	plan, installments, err := h.service.CreatePlan(r.Context(), CreatePlanInput{
		InvoiceID:     req.InvoiceID,
		StudentID:     req.StudentID,
		Total:         req.Total,
		Count:         req.Installments,
		Frequency:     Frequency(req.Frequency),
		StartDate:     startDate,
		FirstAmount:   req.FirstAmount,
		CustomAmounts: req.CustomAmounts,
		TermsAccepted: req.TermsAccepted,
		LateFees: LateFeePolicy{
			Enabled:   req.LateFees.Enabled,
			FeeAmount: req.LateFees.FeeAmount,
			GraceDays: req.LateFees.GraceDays,
		},
		Reminders: ReminderPolicy{
			OffsetDays: req.Reminders.OffsetDays,
			Channels:   req.Reminders.Channels,
		},
		AutoPay:       req.AutoPay,
		AutoPayMethod: req.AutoPayMethod,
	})
	if err != nil {
		h.logger.Warn("create plan rejected",
			slog.String("invoice_id", req.InvoiceID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toPlanResponse(plan, installments))
}

func (h *Handler) getPlan(w http.ResponseWriter, r *http.Request) {
	planID, ok := h.parsePlanID(w, r)
	if !ok {
		return
	}
	plan, installments, err := h.service.GetPlan(r.Context(), planID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toPlanResponse(plan, installments))
}

func (h *Handler) modifyPlan(w http.ResponseWriter, r *http.Request) {
	planID, ok := h.parsePlanID(w, r)
	if !ok {
		return
	}
	var req modifyPlanRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	entries := make([]ScheduleEntry, 0, len(req.Entries))
	for _, e := range req.Entries {
		dueDate, _ := time.Parse(dateLayout, e.DueDate)
		entries = append(entries, ScheduleEntry{Sequence: e.Sequence, Amount: e.Amount, DueDate: dueDate})
	}

	err := h.service.ModifyPlan(r.Context(), ModificationInput{
		PlanID:   planID,
		Entries:  entries,
		ReasonAR: req.ReasonAR,
		ReasonEN: req.ReasonEN,
		Actor:    req.Actor,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) cancelPlan(w http.ResponseWriter, r *http.Request) {
	planID, ok := h.parsePlanID(w, r)
	if !ok {
		return
	}
	if err := h.service.CancelPlan(r.Context(), planID); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) recordPayment(w http.ResponseWriter, r *http.Request) {
	planID, ok := h.parsePlanID(w, r)
	if !ok {
		return
	}
	sequence, err := strconv.Atoi(chi.URLParam(r, "sequence"))
	if err != nil || sequence < 1 {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid installment sequence")
		return
	}
	var req recordPaymentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	inst, err := h.service.RecordPayment(r.Context(), planID, sequence, req.Amount, req.Method, req.TransactionRef)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toInstallmentResponse(*inst))
}

func (h *Handler) dashboard(w http.ResponseWriter, r *http.Request) {
	rows, err := h.service.GetDashboardRows(r.Context())
	if err != nil {
		h.logger.Error("dashboard query failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	out := make([]dashboardRowResponse, 0, len(rows))
	for _, row := range rows {
		out = append(out, toDashboardRowResponse(row))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) overdue(w http.ResponseWriter, r *http.Request) {
	installments, err := h.service.GetOverdueInstallments(r.Context())
	if err != nil {
		h.logger.Error("overdue query failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	out := make([]installmentResponse, 0, len(installments))
	for _, inst := range installments {
		out = append(out, toInstallmentResponse(inst))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) parsePlanID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	planID, err := uuid.Parse(chi.URLParam(r, "planID"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid plan ID")
		return uuid.Nil, false
	}
	return planID, true
}
