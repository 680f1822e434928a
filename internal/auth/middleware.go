package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// RoleAdmin marks accounts allowed to manage activities.
const RoleAdmin = "admin"

// UserAuth enforces bearer JWT tokens signed with HS256.
func UserAuth(signingKey, issuer string) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := bearerClaims(c, signingKey, issuer)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing or invalid bearer token"})
			return
		}
		c.Set("claims", claims)
		c.Next()
	}
}

// OptionalAuth parses a bearer token when one is supplied but lets
// anonymous requests through.
func OptionalAuth(signingKey, issuer string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if claims, ok := bearerClaims(c, signingKey, issuer); ok {
			c.Set("claims", claims)
		}
		c.Next()
	}
}

// RequireAdmin rejects requests whose claims lack the admin role.
// Must run after UserAuth.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := FromContext(c)
		if !ok || claims.Role != RoleAdmin {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "admin role required"})
			return
		}
		c.Next()
	}
}

// FromContext returns the claims set by the auth middlewares.
func FromContext(c *gin.Context) (Claims, bool) {
	v, ok := c.Get("claims")
	if !ok {
		return Claims{}, false
	}
	claims, ok := v.(Claims)
	return claims, ok
}

func bearerClaims(c *gin.Context, signingKey, issuer string) (Claims, bool) {
	authz := c.GetHeader("Authorization")
	if authz == "" || !strings.HasPrefix(strings.ToLower(authz), "bearer ") {
		return Claims{}, false
	}
	tokenStr := strings.TrimSpace(authz[len("bearer "):])
	claims, err := Parse(tokenStr, signingKey, issuer)
	if err != nil {
		return Claims{}, false
	}
	return claims, true
}
