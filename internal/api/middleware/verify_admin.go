package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// AdminRole is the only role this engine's JWTs ever carry: the single
// admin account from internal/api/handlers/auth.go. Students never hold a
// bearer token — apply/bookSeat/drop identify them by studentId in the
// request body, so there is no separate "student" role to gate against.
const AdminRole = "admin"

// AdminMiddleware requires AuthMiddleware to have run earlier (so admin_role
// is set). It rejects requests where the caller's role is not AdminRole,
// gating openBooking/closeBooking/analytics (spec.md §6).
func AdminMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		val, exists := c.Get("admin_role")
		if !exists {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}
		role, ok := val.(string)
		if !ok || role != AdminRole {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Forbidden: admin only"})
			return
		}
		c.Next()
	}
}
