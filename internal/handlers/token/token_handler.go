// internal/handlers/token/token_handler.go
package token

import (
	"net/http"

	"jwt-provider/internal/middleware"
	"jwt-provider/internal/pkg/response"
	tokenUsecase "jwt-provider/internal/service/token"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type TokenHandler struct {
	tokenService *tokenUsecase.Service
	logger       *zap.Logger
}

func NewTokenHandler(tokenService *tokenUsecase.Service, logger *zap.Logger) *TokenHandler {
	return &TokenHandler{
		tokenService: tokenService,
		logger:       logger,
	}
}

// GetToken returns a freshly signed JWT for the caller that passed
// BasicAuth. The body is the compact token and nothing else.
func (h *TokenHandler) GetToken(c *gin.Context) {
	username := middleware.MustGetUsername(c)

	signed, err := h.tokenService.IssueToken(username)
	if err != nil {
		h.logger.Error("token issuance failed",
			zap.String("username", username),
			zap.String("request_id", middleware.GetRequestID(c)),
			zap.Error(err),
		)
		response.InternalError(c, "failed to issue token")
		return
	}

	response.Text(c, http.StatusOK, signed)
}
