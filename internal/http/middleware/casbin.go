package middleware

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/you/phoneauth/domain"
	"github.com/you/phoneauth/internal/http/response"
	"github.com/you/phoneauth/internal/logger"
)

// RoleMW authorizes authenticated requests against the role policy table
type RoleMW struct {
	policies domain.PolicyService
}

// NewRoleMW creates new role middleware wrapper
func NewRoleMW(policies domain.PolicyService) *RoleMW {
	return &RoleMW{policies: policies}
}

// Enforce returns the casbin authorization middleware. It must run after AuthMiddleware.
func (mw *RoleMW) Enforce() gin.HandlerFunc {
	return gin.HandlerFunc(func(c *gin.Context) {
		userID, userOK := CurrentUserID(c)
		role, roleOK := CurrentRole(c)
		if !userOK || !roleOK {
			response.Fail(c, domain.ErrUnauthorized)
			return
		}

		headerUserID := c.GetHeader("x-user-id")
		if headerUserID != "" && headerUserID != strconv.FormatUint(uint64(userID), 10) {
			response.Abort(c, http.StatusForbidden, domain.CodeForbidden, "Header x-user-id does not match token user ID")
			return
		}

		allowed, err := mw.policies.CheckPermission(role, c.Request.URL.Path, c.Request.Method)
		if err != nil {
			logger.FromContext(c.Request.Context(), zap.L()).Error("authorization check failed", zap.Error(err))
			response.Abort(c, http.StatusInternalServerError, domain.CodeInternal, "Authorization check failed")
			return
		}
		if !allowed {
			response.Fail(c, domain.ErrInsufficientRole)
			return
		}

		c.Next()
	})
}

// RestrictTo allows only the listed roles through. It must run after AuthMiddleware.
func RestrictTo(roles ...domain.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		role, ok := CurrentRole(c)
		if !ok {
			response.Fail(c, domain.ErrUnauthorized)
			return
		}
		for _, r := range roles {
			if r == role {
				c.Next()
				return
			}
		}
		response.Fail(c, domain.ErrInsufficientRole)
	}
}
