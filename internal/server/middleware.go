package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"user-auth-service/internal/security"
)

// Context keys set by RequireAuth for downstream handlers.
const (
	ctxUserID   = "userID"
	ctxUsername = "username"
	ctxUserType = "userType"
)

// RequireAuth validates the Bearer access token and stores the caller's
// identity in the gin context. Requests without a valid token get 401.
func RequireAuth(tokens *security.TokenProvider) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := bearerToken(c.GetHeader("Authorization"))
		if raw == "" {
			unauthorized(c, "missing bearer token")
			return
		}
		claims, err := tokens.ValidateAccess(raw)
		if err != nil {
			unauthorized(c, "invalid or expired token")
			return
		}
		c.Set(ctxUserID, claims.Subject)
		c.Set(ctxUsername, claims.Username)
		c.Set(ctxUserType, claims.UserType)
		c.Next()
	}
}

func bearerToken(header string) string {
	const prefix = "Bearer "
	if len(header) > len(prefix) && strings.EqualFold(header[:len(prefix)], prefix) {
		return strings.TrimSpace(header[len(prefix):])
	}
	return ""
}

func unauthorized(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"code":    "UNAUTHORIZED",
		"message": message,
	})
}

// callerID returns the authenticated user id set by RequireAuth.
func callerID(c *gin.Context) string {
	return c.GetString(ctxUserID)
}
