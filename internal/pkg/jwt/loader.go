// internal/pkg/jwt/loader.go
package jwt

import (
	"crypto/rsa"
	"fmt"
	"time"
)

type Config struct {
	PrivPath string        `env:"JWT_PRIVATE_JWKS_PATH" envDefault:"jwt_secrets_priv.jwks"`
	Issuer   string        `env:"JWT_ISSUER" envDefault:"android-emulator@jwt-provider.py"`
	Audience string        `env:"JWT_AUDIENCE" envDefault:"android.emulation.control.EmulatorController"`
	TTL      time.Duration `env:"JWT_TTL" envDefault:"2h"`
}

type Manager struct {
	Generator *Generator
	Verifier  *Verifier
	// KeysInSet is how many keys the private set held; only the last is used.
	KeysInSet int
}

func LoadAndBuild(cfg Config) (*Manager, error) {
	key, n, err := LoadRSAPrivateKeyFromJWKS(cfg.PrivPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load private key from %s: %w", cfg.PrivPath, err)
	}

	gen := NewGenerator(key, cfg.Issuer, cfg.Audience, cfg.TTL)
	ver := NewVerifier(map[string]*rsa.PublicKey{key.KID: key.Public()}, cfg.Issuer, cfg.Audience)

	return &Manager{
		Generator: gen,
		Verifier:  ver,
		KeysInSet: n,
	}, nil
}
