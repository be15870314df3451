// Package middleware provides HTTP middleware for authentication, logging,
// body limits, and rate limiting.
package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// TokenAuth requires a bearer token matching the configured API token.
// Comparison is constant time. An empty configured token disables auth,
// for single-user installs on a trusted management network.
func TokenAuth(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token == "" {
			c.Next()
			return
		}

		supplied := c.GetHeader("Authorization")
		supplied = strings.TrimPrefix(supplied, "Bearer ")
		if supplied == "" {
			supplied = c.Query("token")
		}

		if subtle.ConstantTimeCompare([]byte(supplied), []byte(token)) != 1 {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			c.Abort()
			return
		}
		c.Next()
	}
}
