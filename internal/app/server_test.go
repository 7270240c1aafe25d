package app

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"jwt-provider/internal/config"
	"jwt-provider/internal/domain/credential"
	"jwt-provider/internal/pkg/jwt"
	"jwt-provider/internal/service/keygen"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/crypto/bcrypt"
)

const (
	testIssuer   = "android-emulator@jwt-provider.py"
	testAudience = "android.emulation.control.EmulatorController"
)

type fixture struct {
	cfg    config.AppConfig
	result *credential.GenerateResult
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dir := t.TempDir()
	res, err := keygen.NewKeygenService(zaptest.NewLogger(t)).Generate(context.Background(), &credential.GenerateRequest{
		Pairs:           []credential.Pair{{Username: "alice", Password: "secret1"}},
		CredentialsPath: filepath.Join(dir, "passwd"),
		PrivateKeyPath:  filepath.Join(dir, "jwt_secrets_priv.jwks"),
		PublicKeyPath:   filepath.Join(dir, "jwt_secrets_pub.jwks"),
		BcryptCost:      bcrypt.MinCost,
	})
	require.NoError(t, err)

	return fixture{
		result: res,
		cfg: config.AppConfig{
			HTTPAddr:        "127.0.0.1:0",
			CredentialsPath: res.CredentialsPath,
			AuthChallenge:   config.DefaultChallenge,
			Login:           config.LoginLimit{MaxAttempts: 5, Window: 15 * time.Minute},
			JWT: jwt.Config{
				PrivPath: res.PrivateKeyPath,
				Issuer:   testIssuer,
				Audience: testAudience,
				TTL:      2 * time.Hour,
			},
		},
	}
}

func (f fixture) handler(t *testing.T) http.Handler {
	t.Helper()
	srv, err := NewServer(context.Background(), f.cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	return srv.Handler()
}

func getToken(h http.Handler, user, pass string, withAuth bool) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/token", nil)
	if withAuth {
		req.SetBasicAuth(user, pass)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestTokenEndpoint(t *testing.T) {
	f := newFixture(t)
	h := f.handler(t)

	pubKeys, err := jwt.LoadRSAPublicKeysFromJWKS(f.result.PublicKeyPath)
	require.NoError(t, err)
	verifier := jwt.NewVerifier(pubKeys, testIssuer, testAudience)

	t.Run("valid credentials", func(t *testing.T) {
		w := getToken(h, "alice", "secret1", true)
		require.Equal(t, http.StatusOK, w.Code)
		assert.True(t, strings.HasPrefix(w.Header().Get("Content-Type"), "text/plain"))
		assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))
		assert.Empty(t, w.Header().Get("WWW-Authenticate"))

		body, err := io.ReadAll(w.Body)
		require.NoError(t, err)
		claims, err := verifier.Verify(string(body))
		require.NoError(t, err)
		assert.Equal(t, "alice", claims.Name)
		assert.Equal(t, f.result.KeyID, claims.KeyID)
		assert.Equal(t, 2*time.Hour, claims.Lifetime())
	})

	unauthorized := []struct {
		name     string
		user     string
		pass     string
		withAuth bool
	}{
		{"wrong password", "alice", "wrong", true},
		{"unknown user", "bob", "anything", true},
		{"no credentials", "", "", false},
	}
	for _, tt := range unauthorized {
		t.Run(tt.name, func(t *testing.T) {
			w := getToken(h, tt.user, tt.pass, tt.withAuth)
			assert.Equal(t, http.StatusUnauthorized, w.Code)
			assert.Equal(t, `Token realm="Token"`, w.Header().Get("WWW-Authenticate"))
			assert.NotContains(t, w.Body.String(), "eyJ")
		})
	}

	t.Run("tokens differ only by time", func(t *testing.T) {
		a := getToken(h, "alice", "secret1", true)
		b := getToken(h, "alice", "secret1", true)
		require.Equal(t, http.StatusOK, a.Code)
		require.Equal(t, http.StatusOK, b.Code)

		ca, err := verifier.Verify(a.Body.String())
		require.NoError(t, err)
		cb, err := verifier.Verify(b.Body.String())
		require.NoError(t, err)
		assert.Equal(t, ca.KeyID, cb.KeyID)
		assert.Equal(t, ca.Name, cb.Name)
	})
}

func TestTokenEndpoint_RequestID(t *testing.T) {
	h := newFixture(t).handler(t)

	req := httptest.NewRequest(http.MethodGet, "/token", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "abc-123", w.Header().Get("X-Request-ID"))

	w = getToken(h, "", "", false)
	assert.Len(t, w.Header().Get("X-Request-ID"), 26, "generated ids are ULIDs")
}

func TestTokenEndpoint_RateLimited(t *testing.T) {
	f := newFixture(t)
	f.cfg.Login.MaxAttempts = 2
	h := f.handler(t)

	for i := 0; i < 2; i++ {
		w := getToken(h, "alice", "wrong", true)
		require.Equal(t, http.StatusUnauthorized, w.Code)
	}

	w := getToken(h, "alice", "secret1", true)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "900", w.Header().Get("Retry-After"))

	// other usernames from the same client are counted separately
	w = getToken(h, "bob", "anything", true)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func loginFrom(h http.Handler, forwardedFor, user, pass string) int {
	req := httptest.NewRequest(http.MethodGet, "/token", nil)
	req.SetBasicAuth(user, pass)
	req.Header.Set("X-Forwarded-For", forwardedFor)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w.Code
}

func TestTokenEndpoint_ForwardedForIgnoredByDefault(t *testing.T) {
	h := newFixture(t).handler(t)

	codes := make([]int, 0, 6)
	for i := 0; i < 6; i++ {
		codes = append(codes, loginFrom(h, fmt.Sprintf("10.0.0.%d", i), "alice", "wrong"))
	}

	assert.Equal(t, []int{401, 401, 401, 401, 401, 429}, codes,
		"a spoofed X-Forwarded-For must not reset the per-client counter")
}

func TestTokenEndpoint_TrustedProxy(t *testing.T) {
	f := newFixture(t)
	f.cfg.TrustedProxies = []string{"192.0.2.0/24"} // httptest peer address
	h := f.handler(t)

	for i := 0; i < 6; i++ {
		assert.Equal(t, http.StatusUnauthorized, loginFrom(h, fmt.Sprintf("10.0.0.%d", i), "alice", "wrong"),
			"each forwarded client has its own counter")
	}
	for i := 0; i < 5; i++ {
		require.Equal(t, http.StatusUnauthorized, loginFrom(h, "10.0.1.1", "alice", "wrong"))
	}
	assert.Equal(t, http.StatusTooManyRequests, loginFrom(h, "10.0.1.1", "alice", "secret1"))
}

func TestHealth(t *testing.T) {
	h := newFixture(t).handler(t)

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestUnknownRoute(t *testing.T) {
	h := newFixture(t).handler(t)

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/tokens", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestNewServer_StartupFailures(t *testing.T) {
	logger := zaptest.NewLogger(t)

	t.Run("missing credentials file", func(t *testing.T) {
		f := newFixture(t)
		f.cfg.CredentialsPath = filepath.Join(t.TempDir(), "nope")
		_, err := NewServer(context.Background(), f.cfg, logger)
		assert.Error(t, err)
	})

	t.Run("missing private key set", func(t *testing.T) {
		f := newFixture(t)
		f.cfg.JWT.PrivPath = filepath.Join(t.TempDir(), "nope.jwks")
		_, err := NewServer(context.Background(), f.cfg, logger)
		assert.Error(t, err)
	})

	t.Run("public set given as signing key", func(t *testing.T) {
		f := newFixture(t)
		f.cfg.JWT.PrivPath = f.result.PublicKeyPath
		_, err := NewServer(context.Background(), f.cfg, logger)
		assert.ErrorIs(t, err, jwt.ErrNotPrivate)
	})

	t.Run("invalid trusted proxy", func(t *testing.T) {
		f := newFixture(t)
		f.cfg.TrustedProxies = []string{"not-an-ip"}
		_, err := NewServer(context.Background(), f.cfg, logger)
		assert.Error(t, err)
	})

	t.Run("malformed credentials", func(t *testing.T) {
		f := newFixture(t)
		path := filepath.Join(t.TempDir(), "passwd")
		require.NoError(t, os.WriteFile(path, []byte(`["alice"]`), 0o600))
		f.cfg.CredentialsPath = path
		_, err := NewServer(context.Background(), f.cfg, logger)
		assert.Error(t, err)
	})
}

func TestServer_StartShutdown(t *testing.T) {
	f := newFixture(t)
	srv, err := NewServer(context.Background(), f.cfg, zaptest.NewLogger(t))
	require.NoError(t, err)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	time.Sleep(50 * time.Millisecond)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, srv.Shutdown(ctx))

	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
