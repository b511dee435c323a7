package authorization

import (
	"fmt"
	"net/http"
	"strings"

	jwt "github.com/appleboy/gin-jwt/v2"
	"github.com/gin-gonic/gin"
)

// Guard hands out the middleware that protects API routes.
type Guard struct {
	jwt *jwt.GinJWTMiddleware
}

// NewGuard wraps a configured JWT middleware.
func NewGuard(jwtMiddleware *jwt.GinJWTMiddleware) *Guard {
	if jwtMiddleware == nil {
		return nil
	}
	return &Guard{jwt: jwtMiddleware}
}

// Guard returns a guard over the module's middleware.
func (m *Module) Guard() *Guard {
	if m == nil {
		return nil
	}
	return NewGuard(m.jwtMiddleware)
}

// RequireAuthenticated rejects requests without a valid token. A nil guard
// rejects everything.
func (g *Guard) RequireAuthenticated() gin.HandlerFunc {
	if g == nil || g.jwt == nil {
		return func(c *gin.Context) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		}
	}
	return g.jwt.MiddlewareFunc()
}

// RequireRole must run after RequireAuthenticated.
func (g *Guard) RequireRole(role string) gin.HandlerFunc {
	role = strings.TrimSpace(role)
	return func(c *gin.Context) {
		client, ok := CurrentClient(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
			return
		}
		if role != "" && !client.HasRole(role) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": fmt.Sprintf("%s role required", role)})
			return
		}
		c.Next()
	}
}
