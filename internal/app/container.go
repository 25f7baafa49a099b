package app

import (
	"context"
	"fmt"
	"time"

	"github.com/casbin/casbin/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/you/phoneauth/domain"
	"github.com/you/phoneauth/internal/config"
	httpx "github.com/you/phoneauth/internal/http"
	"github.com/you/phoneauth/internal/http/handlers"
	"github.com/you/phoneauth/internal/http/middleware"
	"github.com/you/phoneauth/internal/infrastructure/auth"
	"github.com/you/phoneauth/internal/infrastructure/database"
	"github.com/you/phoneauth/internal/infrastructure/identity"
	"github.com/you/phoneauth/internal/infrastructure/notifications"
	"github.com/you/phoneauth/internal/infrastructure/repositories"
	"github.com/you/phoneauth/internal/logger"
	"github.com/you/phoneauth/internal/services"
)

// rateLimiterIdleTTL is how long an idle per-IP bucket is kept
const rateLimiterIdleTTL = 10 * time.Minute

// Container holds all dependencies
type Container struct {
	Config *config.Config
	Logger *zap.Logger

	// Infrastructure
	DB          *gorm.DB
	RedisClient *redis.Client
	Enforcer    *casbin.Enforcer

	// Repositories
	UserRepo      domain.UserRepository
	ChallengeRepo domain.ChallengeRepository

	// Services
	TokenSvc        domain.TokenService
	NotificationSvc domain.NotificationService
	IdentitySvc     domain.IdentityVerifier
	AuditLogger     domain.AuditLogger
	OTPSvc          domain.OTPService
	TokenIssuer     domain.TokenIssuer
	AuthSvc         domain.AuthService
	PolicySvc       domain.PolicyService
	Sweeper         *services.ChallengeSweeper

	// Transport
	RateLimiter *middleware.IPRateLimiter
	Router      *gin.Engine

	ownsConnections bool
}

// Option overrides a collaborator chosen from configuration
type Option func(*Container)

// WithNotifier replaces the configured SMS sender
func WithNotifier(n domain.NotificationService) Option {
	return func(c *Container) { c.NotificationSvc = n }
}

// WithIdentityVerifier replaces the Google verifier
func WithIdentityVerifier(v domain.IdentityVerifier) Option {
	return func(c *Container) { c.IdentitySvc = v }
}

// NewContainer opens the configured database and redis and wires every component
func NewContainer(ctx context.Context, cfg *config.Config, log *zap.Logger, opts ...Option) (*Container, error) {
	db, err := database.Open(cfg.Database)
	if err != nil {
		return nil, err
	}

	var rdb *redis.Client
	if cfg.Store.ChallengeBackend == config.ChallengeBackendRedis {
		rdb = database.NewRedis(cfg.Redis, cfg.Store.Timeout)
		if err := database.PingRedis(ctx, rdb, cfg.Store.Timeout); err != nil {
			closeDB(db)
			return nil, err
		}
	}

	c, err := Build(ctx, cfg, log, db, rdb, opts...)
	if err != nil {
		closeDB(db)
		if rdb != nil {
			rdb.Close()
		}
		return nil, err
	}
	c.ownsConnections = true
	return c, nil
}

// Build wires every component over already-open connections. rdb may be nil
// when the postgres challenge backend is configured.
func Build(ctx context.Context, cfg *config.Config, log *zap.Logger, db *gorm.DB, rdb *redis.Client, opts ...Option) (*Container, error) {
	c := &Container{Config: cfg, Logger: log, DB: db, RedisClient: rdb}
	for _, opt := range opts {
		opt(c)
	}

	if err := database.AutoMigrate(db); err != nil {
		return nil, err
	}
	if err := c.initRepositories(); err != nil {
		return nil, err
	}
	if err := c.initServices(ctx); err != nil {
		return nil, err
	}
	if err := c.initPolicies(); err != nil {
		return nil, err
	}
	c.initTransport()
	return c, nil
}

func (c *Container) initRepositories() error {
	timeout := c.Config.Store.Timeout
	c.UserRepo = repositories.NewUserRepository(c.DB, timeout)

	switch c.Config.Store.ChallengeBackend {
	case config.ChallengeBackendRedis:
		if c.RedisClient == nil {
			return fmt.Errorf("redis challenge backend requires a redis client")
		}
		c.ChallengeRepo = repositories.NewRedisChallengeRepository(c.RedisClient, timeout, repositories.DefaultChallengeRetention)
	case config.ChallengeBackendPostgres:
		c.ChallengeRepo = repositories.NewChallengeRepository(c.DB, timeout)
	default:
		return fmt.Errorf("unknown challenge backend %q", c.Config.Store.ChallengeBackend)
	}
	return nil
}

func (c *Container) initServices(ctx context.Context) error {
	cfg := c.Config

	c.TokenSvc = auth.NewJWTService(
		cfg.JWT.AccessSecret,
		cfg.JWT.RefreshSecret,
		cfg.JWT.Issuer,
		cfg.JWT.AccessTTL,
		cfg.JWT.RefreshTTL,
	)
	c.AuditLogger = logger.NewAuditLogger(c.Logger)

	if c.NotificationSvc == nil {
		switch cfg.SMS.Provider {
		case "twilio":
			c.NotificationSvc = notifications.NewTwilioService(
				cfg.SMS.Twilio.AccountSID,
				cfg.SMS.Twilio.AuthToken,
				cfg.SMS.Twilio.FromNumber,
				cfg.SMS.CountryCode,
				c.Logger,
			)
		default:
			c.NotificationSvc = notifications.NewConsoleService(cfg.SMS.CountryCode, c.Logger)
		}
	}

	if c.IdentitySvc == nil {
		if cfg.Google.ClientID == "" {
			c.Logger.Warn("google client id not set, federated sign-in disabled")
			c.IdentitySvc = identity.Disabled{}
		} else {
			verifier, err := identity.NewGoogleVerifier(ctx, cfg.Google.ClientID, cfg.Google.Timeout)
			if err != nil {
				return fmt.Errorf("google verifier: %w", err)
			}
			c.IdentitySvc = verifier
		}
	}

	c.OTPSvc = services.NewOTPService(
		c.ChallengeRepo,
		c.UserRepo,
		c.NotificationSvc,
		auth.NewBcryptCodeHasher(cfg.OTP.HashCost),
		c.AuditLogger,
		c.Logger,
		services.OTPConfig{
			Length:      cfg.OTP.Length,
			TTL:         cfg.OTP.TTL,
			MaxAttempts: cfg.OTP.MaxAttempts,
			RateWindow:  cfg.OTP.RateWindow,
			MaxRequests: cfg.OTP.MaxRequests,
		},
	)
	c.TokenIssuer = services.NewTokenIssuer(c.TokenSvc, c.UserRepo, time.Now)
	c.AuthSvc = services.NewAuthService(
		c.UserRepo,
		c.OTPSvc,
		c.TokenIssuer,
		c.IdentitySvc,
		c.AuditLogger,
		c.Logger,
		time.Now,
	)
	c.Sweeper = services.NewChallengeSweeper(c.ChallengeRepo, cfg.OTP.SweepInterval, c.Logger)
	return nil
}

func (c *Container) initPolicies() error {
	var (
		cas *auth.CasbinService
		err error
	)
	if c.Config.Casbin.Enabled {
		cas, err = auth.NewCasbinService(c.DB)
	} else {
		cas, err = auth.NewInMemoryCasbinService()
	}
	if err != nil {
		return err
	}

	enforcer := services.NewCasbinEnforcerWrapper(cas.E)
	if err := services.SeedDefaultPolicies(enforcer); err != nil {
		return err
	}
	c.Enforcer = cas.E
	c.PolicySvc = services.NewPolicyServiceWithEnforcer(enforcer)
	return nil
}

func (c *Container) initTransport() {
	if c.Config.HTTP.RateLimitRPS > 0 {
		c.RateLimiter = middleware.NewIPRateLimiter(c.Config.HTTP.RateLimitRPS, c.Config.HTTP.RateLimitBurst, rateLimiterIdleTTL)
	}

	checks := map[string]httpx.HealthCheck{
		"database": func(ctx context.Context) error {
			sqlDB, err := c.DB.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		},
	}
	if c.RedisClient != nil {
		checks["redis"] = func(ctx context.Context) error {
			return c.RedisClient.Ping(ctx).Err()
		}
	}

	c.Router = httpx.BuildRouter(
		c.Logger,
		handlers.NewAuthHandlers(c.AuthSvc),
		handlers.NewPolicyHandlers(c.PolicySvc),
		middleware.NewAuthMW(c.TokenIssuer, c.AuthSvc),
		middleware.NewRoleMW(c.PolicySvc),
		c.RateLimiter,
		checks,
	)
}

// Close closes connections opened by NewContainer
func (c *Container) Close() error {
	if !c.ownsConnections {
		return nil
	}
	if c.RedisClient != nil {
		c.RedisClient.Close()
	}
	if c.DB != nil {
		sqlDB, err := c.DB.DB()
		if err != nil {
			return err
		}
		return sqlDB.Close()
	}
	return nil
}

func closeDB(db *gorm.DB) {
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.Close()
	}
}
