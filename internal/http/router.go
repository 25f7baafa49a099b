package httpx

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/you/phoneauth/domain"
	"github.com/you/phoneauth/internal/http/handlers"
	"github.com/you/phoneauth/internal/http/middleware"
	"github.com/you/phoneauth/internal/infrastructure/metrics"
	"github.com/you/phoneauth/internal/logger"
)

// HealthCheck reports whether a backing dependency is reachable
type HealthCheck func(ctx context.Context) error

func BuildRouter(log *zap.Logger, ah *handlers.AuthHandlers, ph *handlers.PolicyHandlers, jwtmw *middleware.AuthMW, rolemw *middleware.RoleMW, limiter *middleware.IPRateLimiter, checks map[string]HealthCheck) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestLogger(log), metrics.Middleware())

	r.GET("/health", healthHandler(log, checks))
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	auth := r.Group("/auth")
	public := auth.Group("")
	if limiter != nil {
		public.Use(limiter.Middleware())
	}
	public.POST("/signup", ah.Signup)
	public.POST("/send-otp", ah.SendOTP)
	public.POST("/verify-otp", ah.VerifyOTP)
	public.POST("/google", ah.Google)
	public.POST("/refresh-token", ah.Refresh)

	protected := auth.Group("").Use(jwtmw.WithJWT(), rolemw.Enforce())
	protected.GET("/me", ah.Me)
	protected.POST("/logout", ah.Logout)

	// stored policies cannot open admin routes to other roles
	adm := r.Group("/admin").Use(jwtmw.WithJWT(), middleware.RestrictTo(domain.RoleAdmin), middleware.RequirePhoneVerified(), rolemw.Enforce())
	adm.GET("/policies", ph.List)
	adm.POST("/policies", ph.Add)
	adm.DELETE("/policies", ph.Remove)

	return r
}

// healthHandler reports each dependency as ok or unavailable; failure detail
// goes to the log only.
func healthHandler(log *zap.Logger, checks map[string]HealthCheck) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		results := make(map[string]string, len(checks))
		for name, check := range checks {
			if err := check(ctx); err != nil {
				logger.FromContext(c.Request.Context(), log).Warn("health check failed", zap.String("check", name), zap.Error(err))
				results[name] = "unavailable"
				status = http.StatusServiceUnavailable
				continue
			}
			results[name] = "ok"
		}
		c.JSON(status, gin.H{"ok": status == http.StatusOK, "checks": results})
	}
}
