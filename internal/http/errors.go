package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/kjstillabower/nurse-directory/internal/auth"
	"github.com/kjstillabower/nurse-directory/internal/dataset"
	"github.com/kjstillabower/nurse-directory/internal/observability"
	"github.com/kjstillabower/nurse-directory/internal/service"
	"github.com/kjstillabower/nurse-directory/internal/validation"
)

// writeJSON writes a JSON response with the specified HTTP status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}

// writeError writes an error response in the standard error format with code, message,
// and requestId (correlation ID) if available in request context.
func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]string{
			"code":      code,
			"message":   message,
			"requestId": observability.CorrelationID(r.Context()),
		},
	})
}

// statusFor maps an error from the lookup path to its HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, auth.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, validation.ErrValidationFailed):
		return http.StatusUnprocessableEntity
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// writeLookupError writes the error response for err. Server-side failures
// are logged at error level with the request logger.
func writeLookupError(w http.ResponseWriter, r *http.Request, err error, exposeInternal bool) {
	switch {
	case errors.Is(err, auth.ErrForbidden):
		writeError(w, r, http.StatusForbidden, "FORBIDDEN", auth.ErrForbidden.Error())
	case errors.Is(err, validation.ErrValidationFailed):
		writeError(w, r, http.StatusUnprocessableEntity, "VALIDATION_FAILED", err.Error())
	case errors.Is(err, service.ErrNotFound):
		var nf *service.NotFoundError
		msg := err.Error()
		if errors.As(err, &nf) {
			msg = nf.Error()
		}
		writeError(w, r, http.StatusNotFound, "NOT_FOUND", msg)
	case errors.Is(err, dataset.ErrDataUnavailable):
		observability.LoggerFromContext(r.Context()).Error("nurse data unavailable", zap.Error(err))
		writeError(w, r, http.StatusInternalServerError, "DATA_UNAVAILABLE", "nurse data file is unavailable")
	default:
		observability.LoggerFromContext(r.Context()).Error("lookup failed", zap.Error(err))
		msg := "internal error"
		if exposeInternal {
			msg = "internal error: " + err.Error()
		}
		writeError(w, r, http.StatusInternalServerError, "INTERNAL", msg)
	}
}
