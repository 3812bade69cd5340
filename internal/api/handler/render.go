// Package handler contains HTTP handlers grouped by resource.
package handler

import (
	"errors"
	"net/http"

	"github.com/callvault/callvault/internal/api/jsonapi"
	"github.com/callvault/callvault/internal/apperr"
)

// renderServiceError maps the service error taxonomy onto HTTP status
// codes: validation 422, not found 404, expired 410, conflict 409, and
// everything else 500. Store errors never leak driver detail.
func renderServiceError(w http.ResponseWriter, err error) {
	msg := "an internal error occurred"
	var e *apperr.Error
	if errors.As(err, &e) && e.Kind != apperr.KindStore {
		msg = e.Msg
	}

	switch apperr.KindOf(err) {
	case apperr.KindValidation:
		jsonapi.RenderError(w, http.StatusUnprocessableEntity,
			"validation_error", "Unprocessable Entity", msg)
	case apperr.KindNotFound:
		jsonapi.RenderError(w, http.StatusNotFound,
			"not_found", "Not Found", msg)
	case apperr.KindExpired:
		jsonapi.RenderError(w, http.StatusGone,
			"expired", "Gone", msg)
	case apperr.KindConflict:
		jsonapi.RenderError(w, http.StatusConflict,
			"conflict", "Conflict", msg)
	default:
		jsonapi.RenderError(w, http.StatusInternalServerError,
			"internal_error", "Internal Server Error", msg)
	}
}
