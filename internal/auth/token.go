package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Opaque bearer tokens.
//
// A session token is 32 bytes from crypto/rand, hex-encoded — 64 characters
// of pure entropy with no structure to parse or forge. The plaintext goes to
// the client exactly once; the database keeps only the SHA-256 digest, so a
// leaked dump contains nothing presentable as a credential.
//
// WHY NOT bcrypt FOR THE TOKEN HASH?
// bcrypt exists to slow down guessing of low-entropy secrets (passwords).
// A 256-bit random token is not guessable, so a single fast SHA-256 is
// enough — and it keeps the per-request auth lookup cheap and indexable
// (the digest is deterministic, the bcrypt salt is not).

// tokenBytes is the raw entropy per token.
const tokenBytes = 32

// NewSessionToken generates a fresh opaque token, returning the plaintext
// to hand to the client and the digest to persist.
func NewSessionToken() (plaintext, digest string, err error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", "", fmt.Errorf("auth: generating session token: %w", err)
	}
	plaintext = hex.EncodeToString(buf)
	return plaintext, HashToken(plaintext), nil
}

// HashToken returns the hex SHA-256 digest of a plaintext token. Used at
// issue time and again on every authenticated request to look the token up.
func HashToken(plaintext string) string {
	sum := sha256.Sum256([]byte(plaintext))
	return hex.EncodeToString(sum[:])
}
