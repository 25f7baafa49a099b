package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/you/phoneauth/domain"
	"github.com/you/phoneauth/internal/http/response"
)

const (
	userIDKey   = "user_id"
	userRoleKey = "user_role"
	userKey     = "user"
)

// AuthMW wraps the token issuer and user lookup for middleware
type AuthMW struct {
	tokens domain.TokenIssuer
	users  domain.AuthService
}

// NewAuthMW creates new auth middleware wrapper
func NewAuthMW(tokens domain.TokenIssuer, users domain.AuthService) *AuthMW {
	return &AuthMW{tokens: tokens, users: users}
}

// WithJWT returns the JWT middleware function
func (mw *AuthMW) WithJWT() gin.HandlerFunc {
	return AuthMiddleware(mw.tokens, mw.users)
}

// AuthMiddleware authenticates the bearer access token and loads its user.
// The user must still exist and be active.
func AuthMiddleware(tokens domain.TokenIssuer, users domain.AuthService) gin.HandlerFunc {
	return gin.HandlerFunc(func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		tokenParts := strings.SplitN(authHeader, " ", 2)
		if len(tokenParts) != 2 || tokenParts[0] != "Bearer" || tokenParts[1] == "" {
			response.Abort(c, http.StatusUnauthorized, domain.CodeUnauthorized,
				"You are not logged in. Please log in to access this route.")
			return
		}

		claims, err := tokens.VerifyAccessToken(tokenParts[1])
		if err != nil {
			message := "Invalid token. Please log in again."
			if errors.Is(err, domain.ErrTokenExpired) {
				message = "Your token has expired. Please log in again."
			}
			response.Abort(c, http.StatusUnauthorized, domain.CodeUnauthorized, message)
			return
		}

		user, err := users.CurrentUser(c.Request.Context(), claims.UserID)
		switch {
		case errors.Is(err, domain.ErrUserNotFound) || (err == nil && !user.IsActive):
			response.Abort(c, http.StatusUnauthorized, domain.CodeUnauthorized,
				"The user belonging to this token no longer exists.")
			return
		case err != nil:
			response.Fail(c, err)
			return
		}

		// Role comes from the stored user so a role change applies before the token expires
		c.Set(userIDKey, user.ID)
		c.Set(userRoleKey, user.Role)
		c.Set(userKey, user)

		c.Next()
	})
}

// RequirePhoneVerified rejects callers whose phone number is not verified.
// It must run after AuthMiddleware.
func RequirePhoneVerified() gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := CurrentUser(c)
		if !ok {
			response.Fail(c, domain.ErrUnauthorized)
			return
		}
		if !user.PhoneVerified {
			response.Fail(c, domain.ErrPhoneNotVerified)
			return
		}
		c.Next()
	}
}

// CurrentUserID returns the authenticated user id
func CurrentUserID(c *gin.Context) (uint, bool) {
	v, ok := c.Get(userIDKey)
	if !ok {
		return 0, false
	}
	id, ok := v.(uint)
	return id, ok
}

// CurrentRole returns the authenticated user's role
func CurrentRole(c *gin.Context) (domain.Role, bool) {
	v, ok := c.Get(userRoleKey)
	if !ok {
		return "", false
	}
	role, ok := v.(domain.Role)
	return role, ok
}

// CurrentUser returns the authenticated user
func CurrentUser(c *gin.Context) (*domain.User, bool) {
	v, ok := c.Get(userKey)
	if !ok {
		return nil, false
	}
	user, ok := v.(*domain.User)
	return user, ok
}
