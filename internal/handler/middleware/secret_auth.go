package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const apiKeyHeader = "X-API-Key"

// SecretAuthMiddleware guards operator routes with the static shared
// secret. The comparison is constant-time; /api/verify stays outside
// this middleware entirely.
func SecretAuthMiddleware(secret string, logger *zap.Logger) gin.HandlerFunc {
	log := logger.Named("SecretAuthMiddleware")
	return func(c *gin.Context) {
		provided := c.GetHeader(apiKeyHeader)
		if provided == "" {
			log.Debug("API secret header is missing", zap.String("header", apiKeyHeader))
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "API key required"})
			return
		}

		if subtle.ConstantTimeCompare([]byte(provided), []byte(secret)) != 1 {
			log.Warn("API secret mismatch", zap.String("path", c.FullPath()))
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid API key"})
			return
		}

		c.Next()
	}
}
