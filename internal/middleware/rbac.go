package middleware

import (
	"github.com/gin-gonic/gin"

	appErrors "github.com/noah-isme/gracetrack-api/pkg/errors"
	"github.com/noah-isme/gracetrack-api/pkg/response"
)

// RequireChurchOwner limits a route to the account that owns the church document.
func RequireChurchOwner() gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := Claims(c)
		if claims == nil {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}
		if claims.Church() != claims.UserID {
			response.Error(c, appErrors.Clone(appErrors.ErrForbidden, "only the church owner can change this setting"))
			c.Abort()
			return
		}
		c.Next()
	}
}
