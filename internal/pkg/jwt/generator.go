// internal/pkg/jwt/generator.go
package jwt

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type Generator struct {
	key      *SigningKey
	issuer   string
	audience string
	ttl      time.Duration
	now      func() time.Time
}

func NewGenerator(key *SigningKey, issuer, audience string, ttl time.Duration) *Generator {
	return &Generator{
		key:      key,
		issuer:   issuer,
		audience: audience,
		ttl:      ttl,
		now:      time.Now,
	}
}

// WithClock returns a copy of the generator that reads time from now.
func (g *Generator) WithClock(now func() time.Time) *Generator {
	cp := *g
	cp.now = now
	return &cp
}

// KeyID is the kid stamped on every token.
func (g *Generator) KeyID() string {
	if g.key == nil {
		return ""
	}
	return g.key.KID
}

// TTL is the validity window of issued tokens.
func (g *Generator) TTL() time.Duration {
	return g.ttl
}

// Generate signs a token for name valid from now until now+ttl.
func (g *Generator) Generate(name string) (string, *Claims, error) {
	if g.key == nil || g.key.Private == nil {
		return "", nil, fmt.Errorf("jwt generator has nil private key")
	}

	now := g.now()
	claims := &Claims{
		KeyID:     g.key.KID,
		Name:      name,
		Issuer:    g.issuer,
		Audience:  g.audience,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(g.ttl)),
	}

	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	tok.Header["kid"] = g.key.KID

	signed, err := tok.SignedString(g.key.Private)
	if err != nil {
		return "", nil, fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, claims, nil
}
