// Package middleware holds the gin middlewares of the service.
package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"oc-search-go/pkg/log"
	"oc-search-go/pkg/token"
)

// AuthMiddleware verifies the bearer token of a request and stores its
// claims in the gin context under "claims".
func AuthMiddleware(jwtManager *token.JWTManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"code": http.StatusUnauthorized, "message": "missing authorization header", "data": nil})
			return
		}

		const bearerPrefix = "Bearer "
		if !strings.HasPrefix(authHeader, bearerPrefix) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"code": http.StatusUnauthorized, "message": "invalid authorization header", "data": nil})
			return
		}
		tokenString := strings.TrimPrefix(authHeader, bearerPrefix)

		claims, err := jwtManager.VerifyToken(tokenString)
		if err != nil {
			log.Warnf("[Auth] token rejected for %s: %v", c.Request.URL.Path, err)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"code": http.StatusUnauthorized, "message": "invalid or expired token", "data": nil})
			return
		}

		c.Set("claims", claims)
		c.Next()
	}
}
