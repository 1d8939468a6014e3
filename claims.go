package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenClaims is the unverified view of a bearer token payload. Only the
// expiry is ever used for decisions; everything else is informational.
type TokenClaims struct {
	jwt.RegisteredClaims
	UID     string `json:"uid,omitempty"`
	Role    string `json:"role,omitempty"`
	IsAdmin bool   `json:"is_admin,omitempty"`
	Scope   string `json:"scope,omitempty"`

	// expSeconds is the exp claim as sent, fraction included
	expSeconds float64
}

// UserID returns the user ID
func (c *TokenClaims) UserID() string {
	if c.UID != "" {
		return c.UID
	}
	return c.Subject
}

// Expires returns the expiration time
func (c *TokenClaims) Expires() time.Time {
	if c.ExpiresAt != nil {
		return c.ExpiresAt.Time
	}
	return time.Time{}
}

// IssuedAtTime returns the issued at time
func (c *TokenClaims) IssuedAtTime() time.Time {
	if c.IssuedAt != nil {
		return c.IssuedAt.Time
	}
	return time.Time{}
}

// TTL is the time left before expiry relative to now
func (c *TokenClaims) TTL(now time.Time) time.Duration {
	exp := c.Expires()
	if exp.IsZero() {
		return 0
	}
	return exp.Sub(now)
}
