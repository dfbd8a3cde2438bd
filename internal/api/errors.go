package api

import (
	"errors"
	"net/http"

	"github.com/phrazzld/curation-engine/internal/api/shared"
	"github.com/phrazzld/curation-engine/internal/task"
)

// MapErrorToStatusCode maps internal errors to HTTP status codes without
// leaking their type or message to clients.
func MapErrorToStatusCode(err error) int {
	var admission *task.AdmissionError
	switch {
	case errors.As(err, &admission):
		return http.StatusBadRequest
	case errors.Is(err, task.ErrTaskNotFound),
		errors.Is(err, task.ErrUnknownKind):
		return http.StatusNotFound
	case errors.Is(err, task.ErrInvalidTransition):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// GetSafeErrorMessage returns a client-safe message for err. Admission
// rejections are reported verbatim since their reason is meant for the caller.
func GetSafeErrorMessage(err error) string {
	if err == nil {
		return "An unexpected error occurred"
	}

	var admission *task.AdmissionError
	switch {
	case errors.As(err, &admission):
		return admission.Reason
	case errors.Is(err, task.ErrTaskNotFound):
		return "Task not found"
	case errors.Is(err, task.ErrUnknownKind):
		return "Unknown task kind"
	case errors.Is(err, task.ErrInvalidTransition):
		return "Task status does not allow this operation"
	default:
		return "An unexpected error occurred"
	}
}

// HandleAPIError writes the mapped status and message for err and logs the
// redacted detail. fallback replaces the generic message of 5xx responses.
func HandleAPIError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	status := MapErrorToStatusCode(err)
	msg := GetSafeErrorMessage(err)
	if status >= http.StatusInternalServerError && fallback != "" {
		msg = fallback
	}
	shared.RespondWithErrorAndLog(w, r, status, msg, err)
}
