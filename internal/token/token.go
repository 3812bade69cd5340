// Package token generates the opaque credentials used by share links and
// invites: 24 bytes from crypto/rand, base64url-encoded to a 32-character
// URL-safe string.
package token

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"time"
)

const rawLen = 24

// New returns a fresh URL-safe token with 192 bits of entropy.
func New() (string, error) {
	b := make([]byte, rawLen)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// ExpiresAt returns the UTC expiry instant for a token issued now.
func ExpiresAt(ttl time.Duration) time.Time {
	return time.Now().UTC().Add(ttl)
}

// IsExpired reports whether an expiry instant has passed. A nil expiry
// means the token never expires.
func IsExpired(expiresAt *time.Time) bool {
	return expiresAt != nil && expiresAt.Before(time.Now().UTC())
}
