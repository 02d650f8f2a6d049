package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
)

var errNoToken = errors.New("auth: no bearer token")

// contextKey is an unexported type used for context keys in this package.
//
// WHY A CUSTOM TYPE FOR CONTEXT KEYS?
// context.WithValue uses any as the key type. If you use a plain string,
// any package that knows the string can read or shadow your value. A
// package-private type means only this package can create the key, so only
// this package can read or write userID values in the context.
type contextKey string

const userIDKey contextKey = "userID"

// Authenticator resolves a presented bearer token to a user ID.
// Implemented by service.AuthService, which hashes the plaintext and looks
// the digest up in the token store.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (userID string, err error)
}

// RequireBearer is a middleware that enforces bearer-token authentication.
//
// It reads the "Authorization: Bearer <token>" header, resolves the token
// through the Authenticator, and stores the userID in the request context.
// Missing or invalid tokens end the request with 401.
//
// MIDDLEWARE PATTERN IN GO:
// A middleware is a function that takes an http.Handler and returns a new
// http.Handler wrapping it. Chi applies them in a chain:
// req → M1 → M2 → Handler → M2 → M1 → resp.
func RequireBearer(authn Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, err := extractUserID(r, authn)
			if err != nil {
				w.Header().Set("Content-Type", "application/json")
				http.Error(w, `{"error":"unauthorized","message":"valid authentication required"}`, http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), userIDKey, userID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// OptionalBearer extracts the user identity if a valid token is present but
// never blocks the request. Used on public routes (e.g. GET /api/v1/posts)
// where logged-in callers get slightly richer responses.
func OptionalBearer(authn Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if userID, err := extractUserID(r, authn); err == nil && userID != "" {
				r = r.WithContext(context.WithValue(r.Context(), userIDKey, userID))
			}
			next.ServeHTTP(w, r)
		})
	}
}

// UserIDFromContext retrieves the authenticated user's ID from the request
// context. Returns ("", false) for anonymous requests.
func UserIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(userIDKey).(string)
	return id, ok && id != ""
}

// BearerFromRequest returns the raw bearer token from the Authorization
// header, or "" if the header is absent or malformed. The logout handler
// needs the plaintext to know which token row to delete.
func BearerFromRequest(r *http.Request) string {
	h := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(h) <= len(prefix) || !strings.EqualFold(h[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(h[len(prefix):])
}

// extractUserID reads the bearer header and resolves it to a user ID.
// Shared by RequireBearer and OptionalBearer.
func extractUserID(r *http.Request, authn Authenticator) (string, error) {
	token := BearerFromRequest(r)
	if token == "" {
		return "", errNoToken
	}
	return authn.Authenticate(r.Context(), token)
}
