package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// SessionAuth enforces bearer JWT tokens signed with HS256 and stores
// the claims on the gin context.
func SessionAuth(signingKey, issuer string) gin.HandlerFunc {
	return func(c *gin.Context) {
		authz := c.GetHeader("Authorization")
		if authz == "" || !strings.HasPrefix(strings.ToLower(authz), "bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}
		tokenStr := strings.TrimSpace(authz[len("bearer "):])
		claims, err := Parse(tokenStr, signingKey, issuer)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		c.Set("claims", claims)
		c.Next()
	}
}

// RequireAdmin rejects requests whose session does not carry the admin role.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := FromContext(c)
		if claims.Role != "admin" {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "admin only"})
			return
		}
		c.Next()
	}
}

// FromContext returns the claims set by SessionAuth, zero when absent.
func FromContext(c *gin.Context) Claims {
	claimsAny, _ := c.Get("claims")
	claims, _ := claimsAny.(Claims)
	return claims
}

// CanActFor reports whether the session may clock or view data for the
// given subject: admins for everyone, users only for themselves.
func CanActFor(claims Claims, subjectID string) bool {
	return claims.Role == "admin" || claims.Subject == subjectID
}
