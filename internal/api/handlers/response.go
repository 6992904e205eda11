package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/educates/lookup-service/internal/errdefs"
)

// statusForError maps the error taxonomy onto HTTP status codes.
func statusForError(err error) int {
	switch {
	case errors.Is(err, errdefs.ErrValidation), errors.Is(err, errdefs.ErrTokenMissing):
		return http.StatusBadRequest
	case errors.Is(err, errdefs.ErrAuthentication):
		return http.StatusUnauthorized
	case errors.Is(err, errdefs.ErrTokenExpired),
		errors.Is(err, errdefs.ErrTokenInvalid),
		errors.Is(err, errdefs.ErrClientNotFound),
		errors.Is(err, errdefs.ErrIdentityMismatch),
		errors.Is(err, errdefs.ErrAuthorization),
		errors.Is(err, errdefs.ErrTenantAccessDenied),
		errors.Is(err, errdefs.ErrTenantNotFound):
		return http.StatusForbidden
	case errors.Is(err, errdefs.ErrWorkshopNotAvailable),
		errors.Is(err, errdefs.ErrCapacityUnavailable),
		errors.Is(err, errdefs.ErrUpstreamUnreachable),
		errors.Is(err, errdefs.ErrOutcomeUnknown):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// respondWithJSON writes a JSON response
func respondWithJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(payload)
}

// respondWithError writes an error response
func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, map[string]string{
		"error": message,
	})
}

// respondWithErr writes the status matching err with its message. Internal
// errors are not described to the caller.
func respondWithErr(w http.ResponseWriter, err error) {
	code := statusForError(err)
	if code == http.StatusInternalServerError {
		respondWithError(w, code, "Internal server error")
		return
	}
	respondWithError(w, code, err.Error())
}

// readBody safely reads and limits request body
func readBody(r *http.Request) ([]byte, error) {
	const maxBodySize = 1 << 20 // 1MB
	return io.ReadAll(io.LimitReader(r.Body, maxBodySize))
}
