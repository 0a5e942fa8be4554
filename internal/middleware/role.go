package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/vitalink-health/telehealth/internal/models"
	"github.com/vitalink-health/telehealth/pkg/response"
)

// RequireRole returns a middleware that allows only the given roles. It
// runs after JWT and rejects tokens carrying a role the platform no
// longer recognizes.
func RequireRole(roles ...models.Role) gin.HandlerFunc {
	allowed := make(map[string]struct{})
	for _, r := range roles {
		allowed[string(r)] = struct{}{}
	}
	return func(c *gin.Context) {
		roleVal, ok := c.Get(ContextUserRole)
		if !ok {
			response.Unauthorized(c, "missing user context")
			c.Abort()
			return
		}
		role, _ := roleVal.(string)
		if _, ok := allowed[role]; !ok {
			response.Forbidden(c, "insufficient permissions")
			c.Abort()
			return
		}
		c.Next()
	}
}
