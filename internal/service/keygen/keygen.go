// internal/service/keygen/keygen.go
package keygen

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"jwt-provider/internal/domain/credential"
	xerrors "jwt-provider/internal/pkg/errors"
	"jwt-provider/internal/pkg/jwt"
	"jwt-provider/internal/pkg/password"
	"jwt-provider/internal/repository/file"

	"go.uber.org/zap"
)

const selfCheckParty = "jwt-provider-keygen"

// Service produces the credential file and the correlated private/public
// JWK sets in one run.
type Service struct {
	random io.Reader
	logger *zap.Logger
}

func NewKeygenService(logger *zap.Logger) *Service {
	return &Service{random: rand.Reader, logger: logger}
}

// Generate hashes every password, creates one RSA keypair, tags both halves
// with the derived kid and writes the three files. Nothing is written unless
// every step, including a sign/verify round trip through the encoded key
// sets, succeeded.
func (s *Service) Generate(ctx context.Context, req *credential.GenerateRequest) (*credential.GenerateResult, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	bits := req.KeyBits
	if bits == 0 {
		bits = jwt.MinKeyBits
	}

	// ----- Credentials -----
	table := make(credential.Table, len(req.Pairs))
	for _, p := range req.Pairs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		h, err := password.Hash(p.Password, req.BcryptCost)
		if err != nil {
			return nil, fmt.Errorf("user %q: %w", p.Username, err)
		}
		table[p.Username] = h
	}
	credBytes, err := file.EncodeCredentials(table)
	if err != nil {
		return nil, err
	}

	// ----- Keys -----
	priv, err := rsa.GenerateKey(s.random, bits)
	if err != nil {
		return nil, fmt.Errorf("failed to generate RSA key: %w", err)
	}
	kid, err := jwt.KeyID(&priv.PublicKey)
	if err != nil {
		return nil, err
	}

	privBytes, err := jwt.EncodeKeySet(jwt.PrivateJWK(priv, kid))
	if err != nil {
		return nil, err
	}
	pubBytes, err := jwt.EncodeKeySet(jwt.PublicJWK(priv, kid))
	if err != nil {
		return nil, err
	}

	if err := selfCheck(privBytes, pubBytes, kid); err != nil {
		return nil, fmt.Errorf("generated key material failed verification: %w", err)
	}

	// ----- Write -----
	outputs := []struct {
		path string
		data []byte
		perm os.FileMode
	}{
		{req.CredentialsPath, credBytes, 0o600},
		{req.PrivateKeyPath, privBytes, 0o600},
		{req.PublicKeyPath, pubBytes, 0o644},
	}
	for _, out := range outputs {
		if err := file.WriteAtomic(out.path, out.data, out.perm); err != nil {
			return nil, err
		}
	}

	res := &credential.GenerateResult{
		KeyID:           kid,
		Usernames:       usernames(table),
		CredentialsPath: req.CredentialsPath,
		PrivateKeyPath:  req.PrivateKeyPath,
		PublicKeyPath:   req.PublicKeyPath,
	}
	s.logger.Info("key material generated",
		zap.String("kid", kid),
		zap.Int("key_bits", bits),
		zap.Strings("users", res.Usernames),
		zap.String("credentials", res.CredentialsPath),
		zap.String("private_jwks", res.PrivateKeyPath),
		zap.String("public_jwks", res.PublicKeyPath),
	)
	return res, nil
}

func validateRequest(req *credential.GenerateRequest) error {
	if req == nil || len(req.Pairs) == 0 {
		return fmt.Errorf("%w: at least one user is required", xerrors.ErrConfig)
	}

	seen := make(map[string]struct{}, len(req.Pairs))
	for _, p := range req.Pairs {
		if err := p.Validate(); err != nil {
			return fmt.Errorf("%w: %v", xerrors.ErrConfig, err)
		}
		if _, dup := seen[p.Username]; dup {
			return fmt.Errorf("%w: duplicate user %q", xerrors.ErrConfig, p.Username)
		}
		seen[p.Username] = struct{}{}
	}

	if req.KeyBits != 0 && req.KeyBits < jwt.MinKeyBits {
		return fmt.Errorf("%w: key size %d is below %d bits", xerrors.ErrConfig, req.KeyBits, jwt.MinKeyBits)
	}

	paths := map[string]string{}
	for name, p := range map[string]string{
		"credentials": req.CredentialsPath,
		"private key": req.PrivateKeyPath,
		"public key":  req.PublicKeyPath,
	} {
		if p == "" {
			return fmt.Errorf("%w: %s path is required", xerrors.ErrConfig, name)
		}
		clean := filepath.Clean(p)
		if other, ok := paths[clean]; ok {
			return fmt.Errorf("%w: %s and %s share the path %s", xerrors.ErrConfig, other, name, p)
		}
		paths[clean] = name
	}
	return nil
}

// selfCheck parses the encoded sets back, signs with the private one and
// verifies with the public one.
func selfCheck(privBytes, pubBytes []byte, kid string) error {
	privKeys, err := jwt.DecodeKeySet(privBytes)
	if err != nil {
		return err
	}
	signing, err := jwt.SelectSigningKey(privKeys)
	if err != nil {
		return err
	}
	if signing.KID != kid {
		return fmt.Errorf("private set kid %q, want %q", signing.KID, kid)
	}

	pubKeys, err := jwt.DecodeKeySet(pubBytes)
	if err != nil {
		return err
	}
	published, err := jwt.PublicKeys(pubKeys)
	if err != nil {
		return err
	}

	tok, _, err := jwt.NewGenerator(signing, selfCheckParty, selfCheckParty, time.Minute).Generate(selfCheckParty)
	if err != nil {
		return err
	}
	_, err = jwt.NewVerifier(published, selfCheckParty, selfCheckParty).Verify(tok)
	return err
}

func usernames(t credential.Table) []string {
	out := make([]string, 0, len(t))
	for name := range t {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
