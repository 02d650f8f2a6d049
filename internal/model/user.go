// Package model defines the data structures used throughout the application.
package model

import "time"

// ProviderVKID is the tag stored on users whose account is linked to a
// VK ID identity. It is also the only value accepted in the
// /auth/{provider}/... route parameter.
const ProviderVKID = "vkid"

// User represents a registered account.
//
// An account can be created two ways: password registration (PasswordHash
// set, Provider empty) or a first VK ID login (PasswordHash empty, Provider
// and ProviderID set). A password account that later logs in through VK ID
// with a matching email gets the provider fields attached — that is the
// "linking" path, and it is permanent.
//
// WHY PasswordHash string (not *string)?
// We follow the zero-value convention used elsewhere in this codebase: an
// empty string means "no password set". OAuth-only accounts therefore can
// never pass a bcrypt comparison, which is exactly the behaviour we want.
// The JSON tag "-" keeps the hash out of every API response.
//
// UNIQUENESS:
// email is globally unique; the (provider, provider_id) pair is unique
// whenever provider is non-empty. Both are enforced by the database, which
// is the real backstop against two concurrent callbacks racing to create
// the same identity.
type User struct {
	ID           string    `json:"id"        db:"id"`
	Name         string    `json:"name"      db:"name"`
	Email        string    `json:"email"     db:"email"`
	PasswordHash string    `json:"-"         db:"password_hash"` // empty for OAuth-only accounts
	Provider     string    `json:"provider,omitempty"   db:"provider"`    // e.g. "vkid"; empty if never linked
	ProviderID   string    `json:"providerId,omitempty" db:"provider_id"` // VK's user identifier, stable per account
	AvatarURL    string    `json:"avatarUrl" db:"avatar_url"`
	CreatedAt    time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt    time.Time `json:"updatedAt" db:"updated_at"`
}

// HasPassword reports whether this account can log in with a password.
func (u *User) HasPassword() bool {
	return u.PasswordHash != ""
}
