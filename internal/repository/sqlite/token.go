package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/xid"

	"github.com/daryonoff/postboard/internal/apperror"
	"github.com/daryonoff/postboard/internal/model"
	"github.com/daryonoff/postboard/internal/repository"
)

// compile-time check that *DB implements repository.TokenRepository
var _ repository.TokenRepository = (*DB)(nil)

// CreateToken stores a freshly issued session-token digest.
// Inserting is always safe concurrently — every token is a fresh random
// value, so the UNIQUE(token_hash) constraint can only fire on a generator
// bug, which deserves the error.
func (db *DB) CreateToken(ctx context.Context, token *model.APIToken) error {
	now := time.Now()
	token.ID = xid.New().String()
	token.CreatedAt = now
	token.LastUsedAt = now

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO tokens (id, user_id, token_hash, name, created_at, last_used_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		token.ID,
		token.UserID,
		token.TokenHash,
		token.Name,
		token.CreatedAt,
		token.LastUsedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: inserting token for user %s: %w", token.UserID, err)
	}
	return nil
}

// GetTokenByHash looks a token up by digest and bumps last_used_at.
// Returns apperror.ErrNotFound for unknown digests — the middleware turns
// that into a 401.
func (db *DB) GetTokenByHash(ctx context.Context, tokenHash string) (*model.APIToken, error) {
	var t model.APIToken
	err := db.conn.QueryRowContext(ctx,
		`SELECT id, user_id, token_hash, name, created_at, last_used_at
		 FROM tokens WHERE token_hash = ?`,
		tokenHash,
	).Scan(&t.ID, &t.UserID, &t.TokenHash, &t.Name, &t.CreatedAt, &t.LastUsedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("token", "presented")
		}
		return nil, fmt.Errorf("sqlite: querying token: %w", err)
	}

	// Best effort — an auth decision never fails because the usage
	// timestamp could not be written.
	t.LastUsedAt = time.Now()
	_, _ = db.conn.ExecContext(ctx,
		`UPDATE tokens SET last_used_at = ? WHERE id = ?`, t.LastUsedAt, t.ID)

	return &t, nil
}

// DeleteTokenByHash removes one token (logout). Deleting an already-deleted
// token is not an error — logout is idempotent.
func (db *DB) DeleteTokenByHash(ctx context.Context, tokenHash string) error {
	_, err := db.conn.ExecContext(ctx,
		`DELETE FROM tokens WHERE token_hash = ?`, tokenHash)
	if err != nil {
		return fmt.Errorf("sqlite: deleting token: %w", err)
	}
	return nil
}
