package handler

// RESPONSE HELPERS:
// These functions standardise how we send JSON responses and errors.
//
// CONSISTENT ERROR FORMAT:
// Every error response from our API has the same shape:
//   {"error": "unauthorized", "message": "invalid email or password"}
//
// This makes it easy for the frontend to parse errors — it always knows
// what fields to expect, regardless of whether it's a 400, 401, or 500.
// The OAuth callback additionally uses its own {"message","error"} body for
// flow failures (see oauth.go) to match what the frontend expects there.

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/daryonoff/postboard/internal/apperror"
)

// ErrorResponse is the standard error format returned by API endpoints.
type ErrorResponse struct {
	Error   string `json:"error"`           // Machine-readable error type (e.g., "unauthorized")
	Message string `json:"message"`         // Human-readable description
	Field   string `json:"field,omitempty"` // Offending input field, when known
}

// writeJSON sends a JSON response with the given status code. Headers and
// status must be set before the body goes out — once Encode writes, any
// later header change is silently ignored.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
		}
	}
}

// writeError maps a domain error to the appropriate HTTP status code and
// sends it. This is the only place domain errors get translated to HTTP —
// the service layer never sees a status code.
//
// errors.Is() walks the whole chain (via Unwrap), so it matches the
// sentinel no matter how many times the service wrapped the error.
func writeError(w http.ResponseWriter, err error) {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		status, errorType := classify(err)
		writeJSON(w, status, ErrorResponse{
			Error:   errorType,
			Message: appErr.Message,
			Field:   appErr.Field,
		})
		return
	}

	// Unknown error — return a generic 500. The raw message might contain
	// SQL or upstream details; never expose it.
	writeJSON(w, http.StatusInternalServerError, ErrorResponse{
		Error:   "internal_error",
		Message: "An internal error occurred",
	})
}

// classify maps an AppError chain to a status code and a machine-readable
// error type. Shared by writeError and the OAuth callback's debug path, so
// a failure keeps the same status whether or not detail is attached.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, apperror.ErrValidation):
		return http.StatusBadRequest, "validation_error" // 400
	case errors.Is(err, apperror.ErrUnauthorized):
		return http.StatusUnauthorized, "unauthorized" // 401
	case errors.Is(err, apperror.ErrForbidden):
		return http.StatusForbidden, "forbidden" // 403
	case errors.Is(err, apperror.ErrNotFound),
		errors.Is(err, apperror.ErrUnsupportedProvider):
		return http.StatusNotFound, "not_found" // 404
	case errors.Is(err, apperror.ErrConflict):
		return http.StatusConflict, "conflict" // 409
	case errors.Is(err, apperror.ErrProviderDenied),
		errors.Is(err, apperror.ErrMissingAuthData),
		errors.Is(err, apperror.ErrTokenExchange),
		errors.Is(err, apperror.ErrProfileFetch):
		// OAuth flow failures are the caller's problem (bad or stale
		// callback), not ours.
		return http.StatusBadRequest, "oauth_error" // 400
	}
	return http.StatusInternalServerError, "internal_error"
}
