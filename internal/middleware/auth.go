package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	iauth "github.com/charlesng35/crewbell/internal/auth"
	"github.com/charlesng35/crewbell/pkg/errors"
	"github.com/charlesng35/crewbell/pkg/response"
)

const (
	CtxClaimsKey = "authClaims"
	CtxCrewIDKey = "crewID"
	CtxRoleKey   = "crewRole"
)

// Auth enforces JWT authentication using the supplied JWT service.
func Auth(jwt *iauth.JWTService) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := BearerToken(c.GetHeader("Authorization"))
		if !ok {
			c.Header("WWW-Authenticate", "Bearer")
			response.Error(c, errors.ErrUnauthorized)
			c.Abort()
			return
		}

		claims, err := jwt.ValidateAccessToken(token)
		if err != nil {
			c.Header("WWW-Authenticate", "Bearer")
			response.Error(c, errors.ErrUnauthorized)
			c.Abort()
			return
		}

		c.Set(CtxClaimsKey, claims)
		c.Set(CtxCrewIDKey, claims.CrewID)
		c.Set(CtxRoleKey, claims.Role)

		c.Next()
	}
}

// RequireAdmin rejects callers whose token does not carry the admin role.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetString(CtxRoleKey) != iauth.RoleAdmin {
			response.Error(c, errors.ErrForbidden)
			c.Abort()
			return
		}
		c.Next()
	}
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) (string, bool) {
	if len(header) < 8 || !strings.EqualFold(header[:7], "Bearer ") {
		return "", false
	}
	token := strings.TrimSpace(header[7:])
	return token, token != ""
}

// CrewID returns the authenticated crew id set by Auth.
func CrewID(c *gin.Context) (int64, bool) {
	v, ok := c.Get(CtxCrewIDKey)
	if !ok {
		return 0, false
	}
	id, ok := v.(int64)
	return id, ok && id > 0
}
