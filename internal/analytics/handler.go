package analytics

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/qistas/qistas/internal/platform/httpx"
)

// Handler exposes the analytics summary endpoint.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers analytics routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/summary", h.summary)
}

func (h *Handler) summary(w http.ResponseWriter, r *http.Request) {
	from, err := parseDateParam(r, "from")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid from date (use YYYY-MM-DD)")
		return
	}
	to, err := parseDateParam(r, "to")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid to date (use YYYY-MM-DD)")
		return
	}
	if to.Before(from) {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "to must not be before from")
		return
	}

	summary, err := h.service.GetSummary(r.Context(), from, to.Add(24*time.Hour-time.Nanosecond))
	if err != nil {
		h.logger.Error("analytics summary failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, summary)
}

func parseDateParam(r *http.Request, name string) (time.Time, error) {
	return time.Parse("2006-01-02", r.URL.Query().Get(name))
}
