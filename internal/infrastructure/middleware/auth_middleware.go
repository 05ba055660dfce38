package middleware

import (
	"net/http"
	"strings"

	"botlink/internal/core/services"

	"github.com/gin-gonic/gin"
)

// ContextKeyRobotID is the gin context key holding the authenticated robot id.
const ContextKeyRobotID = "robot_id"

func bearerToken(c *gin.Context) (string, bool) {
	parts := strings.Split(c.GetHeader("Authorization"), " ")
	if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

// AuthMiddleware rejects requests whose bearer token was not issued for robotID.
func AuthMiddleware(tokens services.TokenService, robotID string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetHeader("Authorization") == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authorization header required"})
			return
		}

		token, ok := bearerToken(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization header format"})
			return
		}

		claims, err := tokens.Authorize(token, robotID)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}

		c.Set(ContextKeyRobotID, claims.RobotID)
		c.Next()
	}
}

// OptionalAuthMiddleware records the robot id of a valid token and lets
// everything else through.
func OptionalAuthMiddleware(tokens services.TokenService, robotID string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token, ok := bearerToken(c); ok {
			if claims, err := tokens.Authorize(token, robotID); err == nil {
				c.Set(ContextKeyRobotID, claims.RobotID)
			}
		}
		c.Next()
	}
}
