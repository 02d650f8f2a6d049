// Package repository declares the storage interfaces the service layer
// depends on. Concrete implementations live in subpackages (sqlite).
package repository

import (
	"context"

	"github.com/daryonoff/postboard/internal/model"
)

// UserRepository is the user-record store.
//
// Create and Update return apperror.ErrConflict (wrapped) when a UNIQUE
// constraint fires — the resolver relies on that to detect a concurrent
// callback creating the same identity.
type UserRepository interface {
	Create(ctx context.Context, user *model.User) error
	GetByID(ctx context.Context, id string) (*model.User, error)
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	GetByProviderID(ctx context.Context, provider, providerID string) (*model.User, error)
	Update(ctx context.Context, user *model.User) error
}

// TokenRepository stores session-token digests. The plaintext never reaches
// this layer.
type TokenRepository interface {
	CreateToken(ctx context.Context, token *model.APIToken) error
	// GetTokenByHash also bumps last_used_at.
	GetTokenByHash(ctx context.Context, tokenHash string) (*model.APIToken, error)
	DeleteTokenByHash(ctx context.Context, tokenHash string) error
}
