// internal/pkg/jwt/claims.go
package jwt

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims is the payload of an issued token. The downstream gateway matches
// Issuer and Audience exactly, so Audience is a plain string rather than
// jwt.ClaimStrings (which would serialize as an array).
type Claims struct {
	KeyID     string           `json:"kid"`
	Name      string           `json:"name"`
	Issuer    string           `json:"iss"`
	Audience  string           `json:"aud"`
	IssuedAt  *jwt.NumericDate `json:"iat"`
	ExpiresAt *jwt.NumericDate `json:"exp"`
}

var _ jwt.Claims = (*Claims)(nil)

func (c *Claims) GetExpirationTime() (*jwt.NumericDate, error) { return c.ExpiresAt, nil }
func (c *Claims) GetIssuedAt() (*jwt.NumericDate, error)       { return c.IssuedAt, nil }
func (c *Claims) GetNotBefore() (*jwt.NumericDate, error)      { return nil, nil }
func (c *Claims) GetIssuer() (string, error)                   { return c.Issuer, nil }
func (c *Claims) GetSubject() (string, error)                  { return "", nil }

func (c *Claims) GetAudience() (jwt.ClaimStrings, error) {
	if c.Audience == "" {
		return nil, nil
	}
	return jwt.ClaimStrings{c.Audience}, nil
}

// VerifyAudience checks if the expected audience is set in the claims.
func (c *Claims) VerifyAudience(audience string, required bool) bool {
	if c.Audience == "" {
		return !required
	}
	return c.Audience == audience
}

// Lifetime is the distance between issuance and expiry.
func (c *Claims) Lifetime() time.Duration {
	if c.IssuedAt == nil || c.ExpiresAt == nil {
		return 0
	}
	return c.ExpiresAt.Sub(c.IssuedAt.Time)
}
