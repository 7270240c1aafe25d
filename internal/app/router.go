// internal/app/router.go
package app

import (
	tokenHandler "jwt-provider/internal/handlers/token"
	"jwt-provider/internal/middleware"

	"github.com/gin-gonic/gin"
)

type Handlers struct {
	TokenHandler   *tokenHandler.TokenHandler
	AuthMiddleware *middleware.AuthMiddleware
}

func SetupRouter(r *gin.Engine, h *Handlers) {
	// ==================== Health Check ====================
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	// ==================== Token ====================
	r.GET("/token", h.AuthMiddleware.BasicAuth(), h.TokenHandler.GetToken)
}
