package keygen

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"jwt-provider/internal/domain/credential"
	xerrors "jwt-provider/internal/pkg/errors"
	"jwt-provider/internal/pkg/jwt"
	"jwt-provider/internal/pkg/password"
	"jwt-provider/internal/repository/file"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/crypto/bcrypt"
)

func newRequest(dir string, pairs ...credential.Pair) *credential.GenerateRequest {
	return &credential.GenerateRequest{
		Pairs:           pairs,
		CredentialsPath: filepath.Join(dir, "passwd"),
		PrivateKeyPath:  filepath.Join(dir, "jwt_secrets_priv.jwks"),
		PublicKeyPath:   filepath.Join(dir, "jwt_secrets_pub.jwks"),
		BcryptCost:      bcrypt.MinCost,
	}
}

func TestGenerate_WritesCorrelatedFiles(t *testing.T) {
	dir := t.TempDir()
	svc := NewKeygenService(zaptest.NewLogger(t))

	req := newRequest(dir,
		credential.Pair{Username: "alice", Password: "secret1"},
		credential.Pair{Username: "bob", Password: "hunter2"},
	)
	res, err := svc.Generate(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "bob"}, res.Usernames)

	// credentials: hashed, never plaintext
	raw, err := os.ReadFile(req.CredentialsPath)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "secret1")
	assert.NotContains(t, string(raw), "hunter2")

	creds, err := file.LoadCredentials(req.CredentialsPath)
	require.NoError(t, err)
	assert.Equal(t, 2, creds.Count())
	h, ok := creds.FindPasswordHash("alice")
	require.True(t, ok)
	assert.NoError(t, password.Verify(h, "secret1"))
	assert.ErrorIs(t, password.Verify(h, "wrong"), password.ErrMismatch)

	// private key: loads, kid matches result and derived kid
	signing, n, err := jwt.LoadRSAPrivateKeyFromJWKS(req.PrivateKeyPath)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, res.KeyID, signing.KID)
	derived, err := jwt.KeyID(signing.Public())
	require.NoError(t, err)
	assert.Equal(t, derived, signing.KID)
	assert.GreaterOrEqual(t, signing.Private.N.BitLen(), jwt.MinKeyBits)

	// public key: same kid, same modulus, no private material
	pubRaw, err := os.ReadFile(req.PublicKeyPath)
	require.NoError(t, err)
	assert.NotContains(t, string(pubRaw), `"d"`)
	published, err := jwt.LoadRSAPublicKeysFromJWKS(req.PublicKeyPath)
	require.NoError(t, err)
	require.Contains(t, published, res.KeyID)
	assert.True(t, signing.Public().Equal(published[res.KeyID]))

	// a token from the private file verifies against the public file
	tok, _, err := jwt.NewGenerator(signing, "iss", "aud", 2*time.Hour).Generate("alice")
	require.NoError(t, err)
	claims, err := jwt.NewVerifier(published, "iss", "aud").Verify(tok)
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.Name)

	info, err := os.Stat(req.PrivateKeyPath)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
	info, err = os.Stat(req.CredentialsPath)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestGenerate_Overwrites(t *testing.T) {
	dir := t.TempDir()
	svc := NewKeygenService(zaptest.NewLogger(t))

	first, err := svc.Generate(context.Background(), newRequest(dir, credential.Pair{Username: "alice", Password: "one"}))
	require.NoError(t, err)
	second, err := svc.Generate(context.Background(), newRequest(dir, credential.Pair{Username: "carol", Password: "two"}))
	require.NoError(t, err)
	assert.NotEqual(t, first.KeyID, second.KeyID)

	creds, err := file.LoadCredentials(filepath.Join(dir, "passwd"))
	require.NoError(t, err)
	assert.Equal(t, []string{"carol"}, creds.Usernames())

	signing, _, err := jwt.LoadRSAPrivateKeyFromJWKS(filepath.Join(dir, "jwt_secrets_priv.jwks"))
	require.NoError(t, err)
	assert.Equal(t, second.KeyID, signing.KID)
}

func TestGenerate_InvalidRequests(t *testing.T) {
	dir := t.TempDir()
	svc := NewKeygenService(zaptest.NewLogger(t))
	alice := credential.Pair{Username: "alice", Password: "secret1"}

	tests := []struct {
		name string
		req  *credential.GenerateRequest
	}{
		{"nil request", nil},
		{"no users", newRequest(dir)},
		{"duplicate user", newRequest(dir, alice, credential.Pair{Username: "alice", Password: "other"})},
		{"empty password", newRequest(dir, credential.Pair{Username: "alice"})},
		{"small key", func() *credential.GenerateRequest {
			r := newRequest(dir, alice)
			r.KeyBits = 1024
			return r
		}()},
		{"missing path", func() *credential.GenerateRequest {
			r := newRequest(dir, alice)
			r.PublicKeyPath = ""
			return r
		}()},
		{"shared path", func() *credential.GenerateRequest {
			r := newRequest(dir, alice)
			r.PublicKeyPath = r.PrivateKeyPath
			return r
		}()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Generate(context.Background(), tt.req)
			require.Error(t, err)
			assert.ErrorIs(t, err, xerrors.ErrConfig)
		})
	}

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "nothing may be written for a rejected request")
}

func TestGenerate_WriteFailure(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "not-a-dir")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o600))

	req := newRequest(dir, credential.Pair{Username: "alice", Password: "secret1"})
	req.PublicKeyPath = filepath.Join(blocker, "jwt_secrets_pub.jwks")

	_, err := NewKeygenService(zaptest.NewLogger(t)).Generate(context.Background(), req)
	assert.Error(t, err)
}

func TestGenerate_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewKeygenService(zaptest.NewLogger(t)).Generate(ctx,
		newRequest(t.TempDir(), credential.Pair{Username: "alice", Password: "secret1"}))
	assert.ErrorIs(t, err, context.Canceled)
}
