// internal/pkg/jwt/verifier.go
package jwt

import (
	"crypto/rsa"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Verifier checks tokens the way the downstream gateway does: the header
// kid selects the public key, then signature, issuer, audience and expiry
// are enforced.
type Verifier struct {
	keys     map[string]*rsa.PublicKey
	issuer   string
	audience string
	now      func() time.Time
}

func NewVerifier(keys map[string]*rsa.PublicKey, issuer, audience string) *Verifier {
	return &Verifier{
		keys:     keys,
		issuer:   issuer,
		audience: audience,
		now:      time.Now,
	}
}

// WithClock returns a copy of the verifier that reads time from now.
func (v *Verifier) WithClock(now func() time.Time) *Verifier {
	cp := *v
	cp.now = now
	return &cp
}

// Verify validates a JWT token and returns the claims
func (v *Verifier) Verify(tokenString string) (*Claims, error) {
	if len(v.keys) == 0 {
		return nil, fmt.Errorf("jwt verifier has no public keys")
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, v.keyFunc,
		jwt.WithValidMethods([]string{Algorithm}),
		jwt.WithIssuer(v.issuer),
		jwt.WithAudience(v.audience),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(v.now),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}

	if kid, _ := token.Header["kid"].(string); claims.KeyID != kid {
		return nil, fmt.Errorf("kid claim %q does not match header kid %q", claims.KeyID, kid)
	}

	return claims, nil
}

func (v *Verifier) keyFunc(token *jwt.Token) (interface{}, error) {
	if _, ok := token.Method.(*jwt.SigningMethodRSA); !ok {
		return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
	}
	kid, _ := token.Header["kid"].(string)
	if kid == "" {
		return nil, fmt.Errorf("token has no kid header")
	}
	pub, ok := v.keys[kid]
	if !ok {
		return nil, fmt.Errorf("unknown kid %q", kid)
	}
	return pub, nil
}
