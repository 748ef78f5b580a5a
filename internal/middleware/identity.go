package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/lars-symptom-tracker/internal/domain"
)

// Identity headers set by the upstream auth gateway
const (
	HeaderUserID   = "X-User-ID"
	HeaderUserRole = "X-User-Role"
)

// RequireIdentity reads the caller's identity from gateway headers.
// Requests without a user ID or with an unknown role are rejected.
func RequireIdentity() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := strings.TrimSpace(c.GetHeader(HeaderUserID))
		if userID == "" {
			Abort(c, http.StatusUnauthorized, domain.ErrCodeUnauthenticated, "missing "+HeaderUserID+" header")
			return
		}

		role := domain.Role(strings.ToLower(strings.TrimSpace(c.GetHeader(HeaderUserRole))))
		if !role.IsValid() {
			Abort(c, http.StatusForbidden, domain.ErrCodeForbidden, "unknown role")
			return
		}

		c.Set(UserIDKey, userID)
		c.Set(UserRoleKey, role)
		c.Next()
	}
}

// RequirePermission rejects callers whose role lacks perm. It must run after RequireIdentity.
func RequirePermission(perm domain.Permission) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !domain.HasPermission(Role(c), perm) {
			Abort(c, http.StatusForbidden, domain.ErrCodeForbidden, "role lacks permission "+string(perm))
			return
		}
		c.Next()
	}
}

// UserID returns the authenticated user ID
func UserID(c *gin.Context) string {
	return c.GetString(UserIDKey)
}

// Role returns the authenticated role, or "" when identity was not established
func Role(c *gin.Context) domain.Role {
	if v, ok := c.Get(UserRoleKey); ok {
		if role, ok := v.(domain.Role); ok {
			return role
		}
	}
	return ""
}
