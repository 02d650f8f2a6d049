// Package service — authentication business logic.
//
// AuthService sits between the HTTP handlers and the repositories:
//
//	handlers (HTTP) → AuthService (rules) → UserRepository / TokenRepository
//	                ↘ auth.PasswordService (bcrypt)
//
// It owns every auth decision: password registration and login, resolving an
// external VK ID profile onto a local account (resolver.go), and issuing and
// checking the opaque bearer tokens. Handlers never touch the repositories
// directly, and nothing in here knows about HTTP.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/daryonoff/postboard/internal/apperror"
	"github.com/daryonoff/postboard/internal/auth"
	"github.com/daryonoff/postboard/internal/model"
	"github.com/daryonoff/postboard/internal/repository"
	"github.com/daryonoff/postboard/internal/vkid"
)

// AuthService handles the authentication business logic.
type AuthService struct {
	users     repository.UserRepository
	tokens    repository.TokenRepository
	passwords *auth.PasswordService
	logger    *slog.Logger
}

// NewAuthService creates an AuthService with all required dependencies.
// Called from server.go when the dependency graph is wired.
func NewAuthService(
	users repository.UserRepository,
	tokens repository.TokenRepository,
	passwords *auth.PasswordService,
	logger *slog.Logger,
) *AuthService {
	return &AuthService{
		users:     users,
		tokens:    tokens,
		passwords: passwords,
		logger:    logger,
	}
}

// AuthResult bundles the user and the freshly issued bearer token so the
// handler can shape one response from it. Token is the plaintext — this is
// the only moment it exists server-side.
type AuthResult struct {
	User  *model.User
	Token string
}

// Register creates a password account and logs it in.
func (s *AuthService) Register(ctx context.Context, name, email, password string) (*AuthResult, error) {
	hash, err := s.passwords.Hash(password)
	if err != nil {
		return nil, fmt.Errorf("service/auth: %w", err)
	}

	user := &model.User{
		Name:         name,
		Email:        email,
		PasswordHash: hash,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, apperror.ErrConflict) {
			return nil, &apperror.AppError{
				Err:     apperror.ErrConflict,
				Message: "email is already registered",
				Field:   "email",
			}
		}
		return nil, fmt.Errorf("service/auth: creating user: %w", err)
	}

	s.logger.Info("user registered", slog.String("userID", user.ID))

	return s.loginResult(ctx, user, "register")
}

// Login authenticates a password account.
//
// All failure shapes (unknown email, OAuth-only account, wrong password)
// collapse into the same 401 so the endpoint doesn't leak which emails exist
// or how an account authenticates. The distinction is still logged.
func (s *AuthService) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	invalid := apperror.Unauthorized("invalid email or password")

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, invalid
		}
		return nil, fmt.Errorf("service/auth: looking up user by email: %w", err)
	}

	if !user.HasPassword() {
		// OAuth-only account — there is no password to be right.
		s.logger.Info("password login attempted against OAuth-only account",
			slog.String("userID", user.ID))
		return nil, invalid
	}

	if err := s.passwords.Verify(user.PasswordHash, password); err != nil {
		return nil, invalid
	}

	return s.loginResult(ctx, user, "login")
}

// LoginExternal completes an OAuth login: the profile from the provider
// adapter is resolved onto a local account (created, linked, or refreshed —
// see resolver.go) and a session token is issued for it.
func (s *AuthService) LoginExternal(ctx context.Context, profile *vkid.Profile, provider string) (*AuthResult, error) {
	user, err := s.ResolveExternal(ctx, profile, provider)
	if err != nil {
		return nil, err
	}

	s.logger.Info("user authenticated via oauth",
		slog.String("userID", user.ID),
		slog.String("provider", provider))

	return s.loginResult(ctx, user, "oauth")
}

// loginResult issues a fresh session token for the user.
func (s *AuthService) loginResult(ctx context.Context, user *model.User, label string) (*AuthResult, error) {
	plaintext, digest, err := auth.NewSessionToken()
	if err != nil {
		return nil, fmt.Errorf("service/auth: %w", err)
	}

	if err := s.tokens.CreateToken(ctx, &model.APIToken{
		UserID:    user.ID,
		TokenHash: digest,
		Name:      label,
	}); err != nil {
		return nil, fmt.Errorf("service/auth: storing token for user %s: %w", user.ID, err)
	}

	return &AuthResult{User: user, Token: plaintext}, nil
}

// Authenticate resolves a presented bearer token to a user ID. This is the
// auth.Authenticator implementation the middleware uses on every protected
// request.
func (s *AuthService) Authenticate(ctx context.Context, token string) (string, error) {
	t, err := s.tokens.GetTokenByHash(ctx, auth.HashToken(token))
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return "", apperror.Unauthorized("invalid or revoked token")
		}
		return "", fmt.Errorf("service/auth: looking up token: %w", err)
	}
	return t.UserID, nil
}

// CurrentUser returns the full user record for an authenticated user ID.
func (s *AuthService) CurrentUser(ctx context.Context, id string) (*model.User, error) {
	if id == "" {
		return nil, fmt.Errorf("service/auth: user ID must not be empty")
	}
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("service/auth: fetching user %s: %w", id, err)
	}
	return user, nil
}

// Logout deletes the presented token. Other sessions of the same user stay
// valid — logout is per-token, not per-account.
func (s *AuthService) Logout(ctx context.Context, token string) error {
	if err := s.tokens.DeleteTokenByHash(ctx, auth.HashToken(token)); err != nil {
		return fmt.Errorf("service/auth: deleting token: %w", err)
	}
	return nil
}
