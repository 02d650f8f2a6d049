package model

import "time"

// APIToken is an opaque bearer credential bound to one user.
//
// The plaintext value is returned to the client exactly once, at issue time.
// Only its SHA-256 digest is stored, so a database leak does not leak live
// credentials. A user may hold any number of concurrently valid tokens (one
// per device/login); logout deletes the single presented token.
//
// There is no expiry or refresh machinery here on purpose — tokens live
// until the owning session logs out.
type APIToken struct {
	ID         string    `json:"id"         db:"id"`
	UserID     string    `json:"userId"     db:"user_id"`
	TokenHash  string    `json:"-"          db:"token_hash"` // hex SHA-256 of the plaintext
	Name       string    `json:"name"       db:"name"`       // label, e.g. "oauth" or "login"
	CreatedAt  time.Time `json:"createdAt"  db:"created_at"`
	LastUsedAt time.Time `json:"lastUsedAt" db:"last_used_at"`
}
