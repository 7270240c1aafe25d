// internal/middleware/helpers.go
package middleware

import "github.com/gin-gonic/gin"

// MustGetUsername gets the authenticated username from context or panics
func MustGetUsername(c *gin.Context) string {
	username, exists := GetUsername(c)
	if !exists {
		panic("username not found in context")
	}
	return username
}

// GetUsername gets the authenticated username from context
func GetUsername(c *gin.Context) (string, bool) {
	v, exists := c.Get(ContextUsername)
	if !exists {
		return "", false
	}
	username, ok := v.(string)
	return username, ok
}

// GetRequestID gets the request id assigned by LoggingMiddleware
func GetRequestID(c *gin.Context) string {
	return c.GetString(ContextRequestID)
}
