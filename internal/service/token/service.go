// internal/service/token/service.go
package token

import (
	"context"
	"errors"

	xerrors "jwt-provider/internal/pkg/errors"
	"jwt-provider/internal/pkg/jwt"
	"jwt-provider/internal/pkg/password"
	"jwt-provider/internal/pkg/ratelimit"

	"go.uber.org/zap"
)

// CredentialStore resolves a username to its stored password hash.
type CredentialStore interface {
	FindPasswordHash(username string) (string, bool)
	Usernames() []string
}

// Service authenticates Basic credentials and issues signed tokens. All of
// its fields are set once in NewTokenService and only read afterwards.
type Service struct {
	credentials CredentialStore
	decoy       *password.Decoy
	generator   *jwt.Generator
	limiter     *ratelimit.LoginLimiter
	logger      *zap.Logger
}

func NewTokenService(
	credentials CredentialStore,
	generator *jwt.Generator,
	limiter *ratelimit.LoginLimiter,
	logger *zap.Logger,
) *Service {
	return &Service{
		credentials: credentials,
		decoy:       newDecoy(credentials),
		generator:   generator,
		limiter:     limiter,
		logger:      logger,
	}
}

// newDecoy shapes the unknown-user hash after the first stored one, so
// tables written at a non-default cost or in a legacy format keep both
// paths equally slow.
func newDecoy(credentials CredentialStore) *password.Decoy {
	var like string
	if names := credentials.Usernames(); len(names) > 0 {
		like, _ = credentials.FindPasswordHash(names[0])
	}
	return password.NewDecoy(like)
}

// Authenticate reports whether password matches the stored hash for
// username. Unknown users are verified against the decoy and return false,
// so they look exactly like a wrong password.
func (s *Service) Authenticate(username, pass string) bool {
	hashed, ok := s.credentials.FindPasswordHash(username)
	if !ok {
		s.decoy.Burn(pass)
		return false
	}

	err := password.Verify(hashed, pass)
	if err != nil && !errors.Is(err, password.ErrMismatch) {
		s.logger.Warn("stored password hash is unusable",
			zap.String("username", username),
			zap.Error(err),
		)
	}
	return err == nil
}

// Login runs the rate limiter and Authenticate for one request. It returns
// xerrors.ErrInvalidCredentials for both unknown users and wrong passwords.
func (s *Service) Login(ctx context.Context, username, pass, clientIP string) error {
	if s.limiter != nil {
		allowed, retryAfter, err := s.limiter.CheckLoginAttempt(ctx, clientIP, username)
		switch {
		case err != nil:
			// The credential check below still guards the token.
			s.logger.Error("login rate limiter unavailable", zap.Error(err))
		case !allowed:
			return &xerrors.RateLimitedError{RetryAfter: retryAfter}
		}
	}

	if !s.Authenticate(username, pass) {
		return xerrors.ErrInvalidCredentials
	}

	if s.limiter != nil {
		if err := s.limiter.ResetLoginAttempts(ctx, clientIP, username); err != nil {
			s.logger.Warn("failed to reset login attempts", zap.Error(err))
		}
	}
	return nil
}

// IssueToken signs a token for an already authenticated username.
func (s *Service) IssueToken(username string) (string, error) {
	signed, claims, err := s.generator.Generate(username)
	if err != nil {
		return "", xerrors.Wrap(err, "failed to issue token")
	}

	s.logger.Info("token issued",
		zap.String("name", username),
		zap.String("kid", claims.KeyID),
		zap.Time("expires_at", claims.ExpiresAt.Time),
	)
	return signed, nil
}
