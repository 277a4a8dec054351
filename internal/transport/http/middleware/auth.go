package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"docchat/internal/app"
	"docchat/internal/model"
	"docchat/internal/transport/http/response"
)

const (
	ContextUserIDKey   = "user_id"
	ContextUsernameKey = "username"
	ContextIsAdminKey  = "is_admin"
)

type Authenticator interface {
	AuthenticateAdmin(username, password string) bool
	AuthenticateUser(ctx context.Context, username, password string) (*model.User, error)
	UserFromToken(ctx context.Context, raw string) (*model.User, error)
}

func unauthorized(c *gin.Context, code int, message string) {
	c.Header("WWW-Authenticate", `Basic realm="docchat"`)
	response.Abort(c, http.StatusUnauthorized, code, message)
}

// AdminBasicAuth accepts only the configured admin credentials.
func AdminBasicAuth(auth Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		username, password, ok := c.Request.BasicAuth()
		if !ok {
			unauthorized(c, response.CodeUnauthorized, "missing basic credentials")
			return
		}
		if !auth.AuthenticateAdmin(username, password) {
			unauthorized(c, response.CodeInvalidCredentials, "Incorrect admin credentials")
			return
		}
		c.Set(ContextUsernameKey, username)
		c.Set(ContextIsAdminKey, true)
		c.Next()
	}
}

// UserAuth accepts HTTP Basic credentials checked against the user store, or a bearer token.
func UserAuth(auth Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		var (
			user *model.User
			err  error
		)

		header := strings.TrimSpace(c.GetHeader("Authorization"))
		const bearer = "Bearer "
		switch {
		case strings.HasPrefix(header, bearer):
			user, err = auth.UserFromToken(c.Request.Context(), strings.TrimSpace(strings.TrimPrefix(header, bearer)))
		default:
			username, password, ok := c.Request.BasicAuth()
			if !ok {
				unauthorized(c, response.CodeUnauthorized, "missing credentials")
				return
			}
			user, err = auth.AuthenticateUser(c.Request.Context(), username, password)
		}

		if err != nil {
			if errors.Is(err, app.ErrInvalidCredential) {
				unauthorized(c, response.CodeInvalidCredentials, "Incorrect username or password")
				return
			}
			response.Abort(c, http.StatusInternalServerError, response.CodeInternalServer, "authentication failed")
			return
		}

		c.Set(ContextUserIDKey, user.ID)
		c.Set(ContextUsernameKey, user.Username)
		c.Next()
	}
}

func UserID(c *gin.Context) (uint, bool) {
	v, ok := c.Get(ContextUserIDKey)
	if !ok {
		return 0, false
	}
	id, ok := v.(uint)
	return id, ok
}

func Username(c *gin.Context) string {
	return c.GetString(ContextUsernameKey)
}
