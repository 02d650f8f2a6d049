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

// compile-time check that *DB implements repository.UserRepository
var _ repository.UserRepository = (*DB)(nil)

const userColumns = `id, name, email, password_hash, provider, provider_id, avatar_url, created_at, updated_at`

// Create inserts a new user. The ID and timestamps are assigned here and
// written back into the caller's struct.
//
// A UNIQUE violation (duplicate email, or duplicate provider identity from a
// concurrent OAuth callback) comes back as apperror.ErrConflict — the
// resolver treats that as "somebody beat us to it" and re-reads.
func (db *DB) Create(ctx context.Context, user *model.User) error {
	now := time.Now()
	user.ID = xid.New().String()
	user.CreatedAt = now
	user.UpdatedAt = now

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO users (`+userColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		user.ID,
		user.Name,
		user.Email,
		user.PasswordHash,
		user.Provider,
		user.ProviderID,
		user.AvatarURL,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		if werr := wrapConstraint(err, "user", user.Email); werr != err {
			return werr
		}
		return fmt.Errorf("sqlite: inserting user (email=%s): %w", user.Email, err)
	}
	return nil
}

// Update rewrites the mutable fields of an existing user: name, avatar, and
// the provider linkage (set once on the linking path, refreshed never).
func (db *DB) Update(ctx context.Context, user *model.User) error {
	user.UpdatedAt = time.Now()

	res, err := db.conn.ExecContext(ctx,
		`UPDATE users
		 SET name = ?, email = ?, password_hash = ?, provider = ?, provider_id = ?,
		     avatar_url = ?, updated_at = ?
		 WHERE id = ?`,
		user.Name,
		user.Email,
		user.PasswordHash,
		user.Provider,
		user.ProviderID,
		user.AvatarURL,
		user.UpdatedAt,
		user.ID,
	)
	if err != nil {
		if werr := wrapConstraint(err, "user", user.ID); werr != err {
			return werr
		}
		return fmt.Errorf("sqlite: updating user %s: %w", user.ID, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: updating user %s: %w", user.ID, err)
	}
	if n == 0 {
		return apperror.NotFound("user", user.ID)
	}
	return nil
}

// GetByID retrieves a user by internal ID.
// Returns apperror.ErrNotFound if no such user exists.
func (db *DB) GetByID(ctx context.Context, id string) (*model.User, error) {
	return db.getUser(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ?`, id)
}

// GetByEmail retrieves a user by email (globally unique).
func (db *DB) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	return db.getUser(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = ?`, email)
}

// GetByProviderID retrieves a user by external provider identity.
func (db *DB) GetByProviderID(ctx context.Context, provider, providerID string) (*model.User, error) {
	return db.getUser(ctx,
		`SELECT `+userColumns+` FROM users WHERE provider = ? AND provider_id = ?`,
		provider, providerID)
}

func (db *DB) getUser(ctx context.Context, query string, args ...any) (*model.User, error) {
	var u model.User
	err := db.conn.QueryRowContext(ctx, query, args...).Scan(
		&u.ID,
		&u.Name,
		&u.Email,
		&u.PasswordHash,
		&u.Provider,
		&u.ProviderID,
		&u.AvatarURL,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("user", fmt.Sprint(args[0]))
		}
		return nil, fmt.Errorf("sqlite: querying user: %w", err)
	}
	return &u, nil
}
