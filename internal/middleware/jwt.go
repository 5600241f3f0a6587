package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/Xzayogn-ECS/trueport-backend/internal/model"
	"github.com/Xzayogn-ECS/trueport-backend/internal/pkg/errcode"
	"github.com/Xzayogn-ECS/trueport-backend/internal/pkg/jwt"
	"github.com/Xzayogn-ECS/trueport-backend/internal/pkg/response"
)

const (
	ContextUserIDKey    = "user_id"
	ContextUserEmailKey = "user_email"
	ContextUserRoleKey  = "user_role"
)

func JWTAuth(secret []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			response.Error(c, errcode.ErrUnauthorized, "missing authorization")
			c.Abort()
			return
		}
		claims, ok := parseBearer(header, secret)
		if !ok {
			response.Error(c, errcode.ErrUnauthorized, "invalid token")
			c.Abort()
			return
		}
		setClaims(c, claims)
		c.Next()
	}
}

// OptionalJWTAuth attaches the session when a valid one is present and lets the
// request through either way. Token-authenticated endpoints use it so a signed-in
// verifier can act without an action token.
func OptionalJWTAuth(secret []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		if header := c.GetHeader("Authorization"); header != "" {
			if claims, ok := parseBearer(header, secret); ok {
				setClaims(c, claims)
			}
		}
		c.Next()
	}
}

// RequireRole must run after JWTAuth.
func RequireRole(roles ...model.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		role := model.Role(c.GetString(ContextUserRoleKey))
		for _, r := range roles {
			if r == role {
				c.Next()
				return
			}
		}
		response.Error(c, errcode.ErrForbidden, "insufficient role")
		c.Abort()
	}
}

func parseBearer(header string, secret []byte) (*jwt.Claims, bool) {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return nil, false
	}
	claims, err := jwt.ParseToken(strings.TrimSpace(parts[1]), secret)
	if err != nil {
		return nil, false
	}
	return claims, true
}

func setClaims(c *gin.Context, claims *jwt.Claims) {
	c.Set(ContextUserIDKey, claims.UserID)
	if claims.Email != "" {
		c.Set(ContextUserEmailKey, claims.Email)
	}
	if claims.Role != "" {
		c.Set(ContextUserRoleKey, claims.Role)
	}
}
