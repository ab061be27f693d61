package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/getsentry/sentry-go"

	"github.com/moodtunes/backend/internal/logging"
	"github.com/moodtunes/backend/internal/models"
)

// writeJSON serializes data as JSON and writes it to the response.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError writes an error response without logging.
// For simple client errors (400-level), use: writeError(w, status, msg)
// For server errors with cause, use: writeErrorWithCause(ctx, w, status, msg, err)
func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(models.ErrorResponse{Error: message})
}

// writeErrorWithCause writes an error response, logs the cause with a stack
// trace and reports 5xx errors to Sentry when a hub is bound to ctx.
func writeErrorWithCause(ctx context.Context, w http.ResponseWriter, status int, message string, err error) {
	writeError(w, status, message)

	// 401/403 are logged as security events by the auth middleware
	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		return
	}

	if status >= 400 && err != nil {
		wrappedErr := logging.WrapError(err, message)
		logging.LogErrorWithStatus(ctx, status, "error response", wrappedErr)

		if status >= 500 {
			if hub := sentry.GetHubFromContext(ctx); hub != nil {
				hub.CaptureException(err)
			}
		}
	}
}
