// internal/pkg/response/response.go
package response

import (
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

// Response defines the standard error body.
type Response struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// Text sends a plain text body. Tokens are returned this way so callers can
// use the body directly as a bearer credential.
func Text(c *gin.Context, status int, body string) {
	if status == 0 {
		status = http.StatusOK
	}
	c.Header("Cache-Control", "no-store")
	c.Data(status, "text/plain; charset=utf-8", []byte(body))
}

// Error sends a standardized error response.
func Error(c *gin.Context, code int, message string, err error, data ...interface{}) {
	// Abort first so no later handler writes to the response.
	c.Abort()

	response := Response{
		Success: false,
		Message: message,
	}

	if err != nil {
		response.Error = err.Error()
	}

	if len(data) > 0 {
		response.Data = data[0]
	}

	c.JSON(code, response)
}

// Unauthorized sends a 401 with the given WWW-Authenticate challenge.
func Unauthorized(c *gin.Context, challenge, message string) {
	c.Header("WWW-Authenticate", challenge)
	Error(c, http.StatusUnauthorized, message, nil)
}

// TooManyRequests sends a 429 with a Retry-After in whole seconds.
func TooManyRequests(c *gin.Context, retryAfter time.Duration, message string) {
	secs := int(math.Ceil(retryAfter.Seconds()))
	if secs < 1 {
		secs = 1
	}
	c.Header("Retry-After", strconv.Itoa(secs))
	Error(c, http.StatusTooManyRequests, message, nil)
}

// InternalError sends a 500 without exposing the cause.
func InternalError(c *gin.Context, message string) {
	Error(c, http.StatusInternalServerError, message, nil)
}
