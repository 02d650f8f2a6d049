package handler

import (
	"log/slog"
	"net/http"

	"github.com/daryonoff/postboard/internal/auth"
	"github.com/daryonoff/postboard/internal/model"
	"github.com/daryonoff/postboard/internal/service"
)

// AuthHandler exposes password authentication and session management.
//
// HANDLER RESPONSIBILITIES:
//   - HandleRegister → create a password account and issue a token
//   - HandleLogin    → verify credentials and issue a token
//   - HandleUser     → return the currently authenticated user
//   - HandleLogout   → revoke the presented token
//
// All business decisions live in service.AuthService; this layer only
// decodes requests, validates input shape, and shapes responses.
type AuthHandler struct {
	auth   *service.AuthService
	logger *slog.Logger
}

// NewAuthHandler creates an AuthHandler. Dependencies are injected; the
// handler has no knowledge of how they're constructed.
func NewAuthHandler(auth *service.AuthService, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{auth: auth, logger: logger}
}

// registerRequest is the expected body of POST /register.
//
// The password bounds mirror bcrypt's input limit: at most 72 bytes go into
// the hash, so longer passwords would silently truncate.
type registerRequest struct {
	Name     string `json:"name" validate:"required,max=255"`
	Email    string `json:"email" validate:"required,email,max=255"`
	Password string `json:"password" validate:"required,min=8,max=72"`
}

// loginRequest is the expected body of POST /login.
type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// authResponse is the success shape for register, login, and the OAuth
// callback: the user plus a plaintext bearer token the client must store.
type authResponse struct {
	Message string      `json:"message"`
	User    *model.User `json:"user"`
	Token   string      `json:"token"`
}

// HandleRegister creates a new password account.
//
// HTTP: POST /api/v1/register
func (h *AuthHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, err)
		return
	}

	result, err := h.auth.Register(r.Context(), req.Name, req.Email, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, authResponse{
		Message: "registered",
		User:    result.User,
		Token:   result.Token,
	})
}

// HandleLogin authenticates a password account.
//
// HTTP: POST /api/v1/login
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, err)
		return
	}

	result, err := h.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, authResponse{
		Message: "logged in",
		User:    result.User,
		Token:   result.Token,
	})
}

// HandleUser returns the authenticated user's profile.
//
// HTTP: GET /api/v1/user
// Auth: Required (RequireBearer middleware sets userID in context)
func (h *AuthHandler) HandleUser(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		// Should never happen on a protected route, but be safe.
		writeJSON(w, http.StatusUnauthorized, ErrorResponse{
			Error:   "unauthorized",
			Message: "authentication required",
		})
		return
	}

	user, err := h.auth.CurrentUser(r.Context(), userID)
	if err != nil {
		h.logger.Error("HandleUser: lookup failed", slog.String("userID", userID))
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, user)
}

// HandleLogout revokes the presented bearer token. Other sessions of the
// same user stay logged in.
//
// HTTP: POST /api/v1/logout
// Auth: Required
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	token := auth.BearerFromRequest(r)
	if token == "" {
		writeJSON(w, http.StatusUnauthorized, ErrorResponse{
			Error:   "unauthorized",
			Message: "authentication required",
		})
		return
	}

	if err := h.auth.Logout(r.Context(), token); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "logged out"})
}
