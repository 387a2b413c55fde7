package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"sysdesign-ai/internal/pkg/jwtutil"
	"sysdesign-ai/internal/transport/http/response"
)

const ContextSessionIDKey = "session_id"

// AuthSession resolves the bearer session token into the planning session id.
func AuthSession(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := strings.TrimSpace(c.GetHeader("Authorization"))
		if authHeader == "" {
			response.Error(c, 401, response.CodeUnauthorized, "missing authorization header")
			c.Abort()
			return
		}

		const prefix = "Bearer "
		if !strings.HasPrefix(authHeader, prefix) {
			response.Error(c, 401, response.CodeUnauthorized, "invalid authorization scheme")
			c.Abort()
			return
		}

		token := strings.TrimSpace(strings.TrimPrefix(authHeader, prefix))
		claims, err := jwtutil.ParseToken(secret, token)
		if err != nil {
			response.Error(c, 401, response.CodeUnauthorized, "invalid or expired session token")
			c.Abort()
			return
		}

		c.Set(ContextSessionIDKey, claims.SessionID)
		c.Next()
	}
}

// SessionID returns the id set by AuthSession.
func SessionID(c *gin.Context) (string, bool) {
	value, exists := c.Get(ContextSessionIDKey)
	if !exists {
		return "", false
	}
	id, ok := value.(string)
	return id, ok && id != ""
}
