package auth

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	apierrors "github.com/tabledrop/backend/internal/errors"
	"github.com/tabledrop/backend/internal/models"
)

// Middleware validates Bearer tokens and stores the authenticated user
// on the gin context under "user" and "user_id"
func Middleware(svc ServiceInterface) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.JSON(http.StatusUnauthorized, apierrors.Unauthorized("no token provided"))
			c.Abort()
			return
		}

		tokenString := strings.TrimPrefix(header, "Bearer ")
		if tokenString == header || tokenString == "" {
			c.JSON(http.StatusUnauthorized, apierrors.Unauthorized("malformed authorization header"))
			c.Abort()
			return
		}

		user, err := svc.ValidateToken(tokenString)
		if err != nil {
			if errors.Is(err, ErrAccountBanned) {
				c.JSON(http.StatusForbidden, apierrors.Banned())
			} else {
				c.JSON(http.StatusUnauthorized, apierrors.Unauthorized("invalid token"))
			}
			c.Abort()
			return
		}

		c.Set("user", user)
		c.Set("user_id", user.ID)
		c.Next()
	}
}

// RequireAdmin rejects requests from non-admin users. Must run after
// Middleware.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		value, exists := c.Get("user")
		if !exists {
			c.JSON(http.StatusUnauthorized, apierrors.Unauthorized("no token provided"))
			c.Abort()
			return
		}

		user, ok := value.(*models.User)
		if !ok || !user.IsAdmin() {
			c.JSON(http.StatusForbidden, apierrors.Forbidden("admin access required"))
			c.Abort()
			return
		}

		c.Next()
	}
}

// CurrentUser returns the authenticated user from the gin context
func CurrentUser(c *gin.Context) (*models.User, bool) {
	value, exists := c.Get("user")
	if !exists {
		return nil, false
	}
	user, ok := value.(*models.User)
	return user, ok
}
