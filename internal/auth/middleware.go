package auth

import (
	"errors"
	"net/http"
	"slices"
	"strings"

	"github.com/KevinKickass/OpenMotionCore/internal/types"
	"github.com/gin-gonic/gin"
)

const permissionsKey = "permissions"

var (
	ErrMissingToken = errors.New("missing authorization header")
	ErrTokenFormat  = errors.New("invalid authorization header format")
)

// BearerToken extracts the token from an "Authorization: Bearer <token>" value.
// REST, websocket upgrades and gRPC metadata all carry it this way.
func BearerToken(header string) (string, error) {
	if header == "" {
		return "", ErrMissingToken
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || scheme != "Bearer" || token == "" {
		return "", ErrTokenFormat
	}
	return token, nil
}

// AuthMiddleware validates bearer tokens and stores the permissions in the context.
func (a *AuthService) AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := BearerToken(c.GetHeader("Authorization"))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, types.NewErrorResponse("AUTH_401", err.Error(), nil))
			return
		}

		permissions, err := a.ValidateToken(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, types.NewErrorResponse("AUTH_401", "Invalid or expired token", nil))
			return
		}

		c.Set(permissionsKey, permissions)
		c.Next()
	}
}

// Permissions returns what AuthMiddleware stored for this request.
func Permissions(c *gin.Context) []Permission {
	perms, _ := c.Get(permissionsKey)
	p, _ := perms.([]Permission)
	return p
}

// RequirePermission aborts with 403 unless the caller holds required.
// Bus shutdown is admin-only, everything read-only needs operator.
func RequirePermission(required Permission) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !slices.Contains(Permissions(c), required) {
			c.AbortWithStatusJSON(http.StatusForbidden,
				types.NewErrorResponse("AUTH_403", "Insufficient permissions", gin.H{"required": required}))
			return
		}
		c.Next()
	}
}
