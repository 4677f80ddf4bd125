package httpapi

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"salon-chat/auth"
)

const actorKey = "actorID"

// Identity authenticates the caller from a bearer token and stores the
// actor identity for handlers. The core trusts this identity and only
// performs ownership comparisons on it.
func Identity(tokens auth.TokenManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token, found := strings.CutPrefix(header, "Bearer ")
		if !found || token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}

		claims, err := tokens.Validate(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		c.Set(actorKey, claims.UserID)
		c.Next()
	}
}
