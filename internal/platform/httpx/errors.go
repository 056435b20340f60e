package httpx

import (
	"net/http"

	"github.com/qistas/qistas/internal/shared"
)

// RespondError maps engine errors to HTTP responses. Validation errors come
// back 400, conflicts 409, missing resources 404, everything else 502 with the
// cause hidden from the client.
func RespondError(w http.ResponseWriter, err error) {
	engineErr, ok := shared.AsError(err)
	if !ok {
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}

	status := http.StatusBadGateway
	title := "Downstream Failure"
	switch shared.ClassOf(engineErr.Kind) {
	case shared.ClassValidation:
		status = http.StatusBadRequest
		title = "Validation Failed"
	case shared.ClassConflict:
		status = http.StatusConflict
		title = "Conflict"
	case shared.ClassNotFound:
		status = http.StatusNotFound
		title = "Not Found"
	}

	JSON(w, status, ProblemDetail{
		Title:    title,
		Status:   status,
		Detail:   engineErr.MessageEN,
		DetailAR: engineErr.MessageAR,
		Kind:     string(engineErr.Kind),
	})
}
