// Package apperror defines the application's error taxonomy.
//
// Every layer below HTTP returns one of these sentinel-wrapped errors; the
// handler layer maps them to status codes with errors.Is. The OAuth sentinels
// mirror the stages of the login flow: the provider refused, the callback
// was malformed, the code-for-token exchange failed, or the profile fetch
// failed after every fallback was exhausted.
package apperror

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrValidation   = errors.New("Validation Error")
	ErrConflict     = errors.New("conflict")
	ErrForbidden    = errors.New("forbidden")
	ErrUnauthorized = errors.New("unauthorized")

	// OAuth flow sentinels. All map to 400 except ErrUnsupportedProvider
	// (404 — the route parameter names a provider we do not have).
	ErrUnsupportedProvider = errors.New("unsupported provider")
	ErrProviderDenied      = errors.New("provider denied")
	ErrMissingAuthData     = errors.New("missing authorization data")
	ErrTokenExchange       = errors.New("token exchange failed")
	ErrProfileFetch        = errors.New("profile fetch failed")
)

type AppError struct {
	Err     error  // actual error
	Message string // Human-readable error message
	Field   string // Optional: field causing the error
}

func (e *AppError) Error() string {
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func NotFound(resource, id string) *AppError {
	return &AppError{
		Err:     ErrNotFound,
		Message: fmt.Sprintf("%s not found with id %s", resource, id),
	}
}

func ValidationFailed(field, message string) *AppError {
	return &AppError{
		Err:     ErrValidation,
		Message: message,
		Field:   field,
	}
}

func Conflict(resource, id string) *AppError {
	return &AppError{
		Err:     ErrConflict,
		Message: fmt.Sprintf("%s conflict with id %s", resource, id),
	}
}

// Forbidden returns an AppError indicating the caller lacks permission.
// HTTP handlers map this to 403 Forbidden.
func Forbidden(message string) *AppError {
	return &AppError{
		Err:     ErrForbidden,
		Message: message,
	}
}

// Unauthorized returns an AppError for missing or invalid credentials.
// HTTP handlers map this to 401.
func Unauthorized(message string) *AppError {
	return &AppError{
		Err:     ErrUnauthorized,
		Message: message,
	}
}

// UnsupportedProvider is returned when the {provider} route parameter is not
// a provider this backend knows about.
func UnsupportedProvider(provider string) *AppError {
	return &AppError{
		Err:     ErrUnsupportedProvider,
		Message: fmt.Sprintf("provider %q is not supported", provider),
	}
}

// ProviderDenied is returned when the provider redirected back with an error
// parameter (most commonly error=access_denied when the user refuses).
func ProviderDenied(code, description string) *AppError {
	msg := fmt.Sprintf("provider returned %q", code)
	if description != "" {
		msg = fmt.Sprintf("provider returned %q: %s", code, description)
	}
	return &AppError{
		Err:     ErrProviderDenied,
		Message: msg,
	}
}

// MissingAuthData is returned when a callback carries neither a code nor an
// access token, or its anti-forgery state fails verification.
func MissingAuthData(message string) *AppError {
	return &AppError{
		Err:     ErrMissingAuthData,
		Message: message,
	}
}

// TokenExchangeFailed wraps an upstream failure of the code-for-token call.
// The cause is preserved for logging; the message stays generic so raw
// provider payloads are not echoed to clients.
func TokenExchangeFailed(cause error) *AppError {
	return &AppError{
		Err:     fmt.Errorf("%w: %w", ErrTokenExchange, cause),
		Message: "could not exchange authorization code",
	}
}

// ProfileFetchFailed wraps an upstream failure to obtain any usable profile.
func ProfileFetchFailed(cause error) *AppError {
	return &AppError{
		Err:     fmt.Errorf("%w: %w", ErrProfileFetch, cause),
		Message: "could not fetch user profile",
	}
}
