package middleware

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/dentalbook/marketplace-api/internal/model"
	"github.com/dentalbook/marketplace-api/pkg/auth"
	"github.com/dentalbook/marketplace-api/pkg/errors"
	"github.com/dentalbook/marketplace-api/pkg/httputil"
)

// Context keys set by the auth middleware.
const (
	ContextUser         = "user"
	ContextUserID       = "user_id"
	ContextUserType     = "user_type"
	ContextSessionToken = "session_token"
)

// Authenticator resolves a bearer token to the user it was issued to.
type Authenticator interface {
	Authenticate(ctx context.Context, bearer string) (*model.User, *auth.Claims, error)
}

type AuthMiddleware struct {
	authenticator Authenticator
}

func NewAuthMiddleware(authenticator Authenticator) *AuthMiddleware {
	return &AuthMiddleware{authenticator: authenticator}
}

// Authenticate requires a valid bearer token and sets the user in context
func (m *AuthMiddleware) Authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := bearerToken(c)
		if err == nil && token == "" {
			err = errors.Authentication("missing authorization header")
		}
		if err != nil {
			httputil.RespondWithError(c, err, false)
			return
		}
		if !m.authenticate(c, token) {
			return
		}
		c.Next()
	}
}

// OptionalAuthenticate sets the user in context when a bearer token is
// sent. A token that is sent must be valid.
func (m *AuthMiddleware) OptionalAuthenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := bearerToken(c)
		if err != nil {
			httputil.RespondWithError(c, err, false)
			return
		}
		if token != "" && !m.authenticate(c, token) {
			return
		}
		c.Next()
	}
}

func (m *AuthMiddleware) authenticate(c *gin.Context, token string) bool {
	user, claims, err := m.authenticator.Authenticate(c.Request.Context(), token)
	if err != nil {
		httputil.RespondWithError(c, err, false)
		return false
	}
	c.Set(ContextUser, user)
	c.Set(ContextUserID, user.ID)
	c.Set(ContextUserType, string(user.UserType))
	c.Set(ContextSessionToken, claims.ID)
	return true
}

// RequireUserType allows only authenticated users of one of the given
// types. It must run after Authenticate.
func RequireUserType(types ...model.UserType) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := CurrentUser(c)
		if !ok {
			httputil.RespondWithError(c, errors.Authentication("authentication required"), false)
			return
		}
		for _, t := range types {
			if user.UserType == t {
				c.Next()
				return
			}
		}
		httputil.RespondWithError(c, errors.Authorization("insufficient permissions"), false)
	}
}

func bearerToken(c *gin.Context) (string, error) {
	header := c.GetHeader("Authorization")
	if header == "" {
		return "", nil
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", errors.Authentication("invalid authorization format")
	}
	return strings.TrimSpace(parts[1]), nil
}

// CurrentUser returns the authenticated user, if any.
func CurrentUser(c *gin.Context) (*model.User, bool) {
	v, ok := c.Get(ContextUser)
	if !ok {
		return nil, false
	}
	user, ok := v.(*model.User)
	return user, ok && user != nil
}

// CurrentUserID returns the authenticated user's id or nil.
func CurrentUserID(c *gin.Context) *int64 {
	if id, ok := c.Get(ContextUserID); ok {
		if v, ok := id.(int64); ok {
			return &v
		}
	}
	return nil
}

// SessionToken returns the raw session token of the authenticated request.
func SessionToken(c *gin.Context) string {
	return c.GetString(ContextSessionToken)
}
