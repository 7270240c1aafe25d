// internal/middleware/auth_middleware.go
package middleware

import (
	xerrors "jwt-provider/internal/pkg/errors"
	"jwt-provider/internal/pkg/response"
	"jwt-provider/internal/service/token"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	ContextUsername  = "username"
	ContextRequestID = "request_id"
)

type AuthMiddleware struct {
	tokenService *token.Service
	challenge    string
	logger       *zap.Logger
}

// NewAuthMiddleware builds the Basic-auth gate. challenge is sent verbatim
// as the WWW-Authenticate value of every 401.
func NewAuthMiddleware(tokenService *token.Service, challenge string, logger *zap.Logger) *AuthMiddleware {
	return &AuthMiddleware{
		tokenService: tokenService,
		challenge:    challenge,
		logger:       logger,
	}
}

// BasicAuth verifies HTTP Basic credentials and stores the username in the
// context. Unknown users and wrong passwords get the same 401.
func (m *AuthMiddleware) BasicAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		username, pass, ok := c.Request.BasicAuth()
		if !ok {
			response.Unauthorized(c, m.challenge, "authentication required")
			return
		}

		err := m.tokenService.Login(c.Request.Context(), username, pass, c.ClientIP())
		if err != nil {
			var limited *xerrors.RateLimitedError
			switch {
			case xerrors.As(err, &limited):
				m.logger.Warn("login rate limited",
					zap.String("username", username),
					zap.String("ip", c.ClientIP()),
				)
				response.TooManyRequests(c, limited.RetryAfter, "too many login attempts")
			case xerrors.Is(err, xerrors.ErrInvalidCredentials):
				m.logger.Info("authentication failed",
					zap.String("username", username),
					zap.String("ip", c.ClientIP()),
				)
				response.Unauthorized(c, m.challenge, "invalid credentials")
			default:
				m.logger.Error("authentication error", zap.Error(err))
				response.InternalError(c, "internal server error")
			}
			return
		}

		c.Set(ContextUsername, username)
		c.Next()
	}
}
