package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ce-seminars/backend/internal/auth"
	"github.com/ce-seminars/backend/internal/models"
	"github.com/ce-seminars/backend/pkg/response"
)

const (
	// ContextUserID is the key for user ID in gin context.
	ContextUserID = "user_id"
	// ContextUserRole is the key for user role in gin context.
	ContextUserRole = "user_role"
	// ContextUserEmail is the key for user email in gin context.
	ContextUserEmail = "user_email"
)

// JWT returns a middleware that validates a Bearer token and sets user claims in context.
func JWT(jwtService *auth.JWTService) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			response.Unauthorized(c, "missing authorization header")
			c.Abort()
			return
		}
		scheme, token, ok := strings.Cut(header, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") || token == "" {
			response.Unauthorized(c, "invalid authorization header")
			c.Abort()
			return
		}
		claims, err := jwtService.Validate(token)
		if err != nil {
			response.Unauthorized(c, "invalid or expired token")
			c.Abort()
			return
		}
		c.Set(ContextUserID, claims.UserID)
		c.Set(ContextUserRole, claims.Role)
		c.Set(ContextUserEmail, claims.Email)
		c.Next()
	}
}

// CurrentUser returns the authenticated user's ID and role. ok is false outside the JWT middleware.
func CurrentUser(c *gin.Context) (id uuid.UUID, role models.Role, ok bool) {
	idVal, exists := c.Get(ContextUserID)
	if !exists {
		return uuid.Nil, "", false
	}
	id, ok = idVal.(uuid.UUID)
	if !ok {
		return uuid.Nil, "", false
	}
	roleVal, _ := c.Get(ContextUserRole)
	role, _ = roleVal.(models.Role)
	return id, role, true
}

// IsStaff reports whether role may operate the check-in desk.
func IsStaff(role models.Role) bool {
	return role == models.RoleAdmin || role == models.RoleStaff
}
