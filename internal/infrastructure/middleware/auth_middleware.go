package middleware

import (
	"crypto/subtle"
	"strings"

	apperrors "vcv/pkg/errors"

	"github.com/gin-gonic/gin"
)

const apiKeyHeader = "X-API-Key"

// APIKeyMiddleware guards operator endpoints. The key is accepted either in
// the X-API-Key header or as a Bearer token. An empty key disables the check.
func APIKeyMiddleware(apiKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if apiKey == "" {
			c.Next()
			return
		}

		provided := c.GetHeader(apiKeyHeader)
		if provided == "" {
			authHeader := c.GetHeader("Authorization")
			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || parts[0] != "Bearer" {
				c.Error(apperrors.NewUnauthorizedError("api key required"))
				c.Abort()
				return
			}
			provided = parts[1]
		}

		if subtle.ConstantTimeCompare([]byte(provided), []byte(apiKey)) != 1 {
			c.Error(apperrors.NewUnauthorizedError("invalid api key"))
			c.Abort()
			return
		}
		c.Next()
	}
}
