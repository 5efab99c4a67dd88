package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"oc-search-go/pkg/token"
)

// AdminAuthMiddleware requires the admin role. It must run after AuthMiddleware.
func AdminAuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		value, exists := c.Get("claims")
		if !exists {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "missing token claims", "data": nil})
			return
		}

		claims, ok := value.(*token.AdminClaims)
		if !ok {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "unexpected claims type", "data": nil})
			return
		}

		if claims.Role != token.RoleAdmin {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"code": http.StatusForbidden, "message": "admin role required", "data": nil})
			return
		}

		c.Next()
	}
}
