package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

type AppConfig struct {
	Port    int    `yaml:"port" env:"AUTH_PORT"`
	GinMode string `yaml:"gin_mode" env:"GIN_MODE"`
	Env     string `yaml:"env" env:"AUTH_ENV"`
}

type DatabaseConfig struct {
	DSN          string `yaml:"dsn" env:"AUTH_DATABASE_DSN"`
	MaxOpenConns int    `yaml:"max_open_conns" env:"AUTH_DATABASE_MAX_OPEN_CONNS"`
	MaxIdleConns int    `yaml:"max_idle_conns" env:"AUTH_DATABASE_MAX_IDLE_CONNS"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr" env:"AUTH_REDIS_ADDR"`
	Password string `yaml:"password" env:"AUTH_REDIS_PASSWORD"`
	DB       int    `yaml:"db" env:"AUTH_REDIS_DB"`
}

type StoreConfig struct {
	ChallengeBackend string        `yaml:"challenge_backend" env:"AUTH_CHALLENGE_BACKEND"`
	Timeout          time.Duration `yaml:"timeout" env:"AUTH_STORE_TIMEOUT"`
}

type JWTConfig struct {
	AccessSecret  string        `yaml:"access_secret" env:"JWT_ACCESS_SECRET"`
	RefreshSecret string        `yaml:"refresh_secret" env:"JWT_REFRESH_SECRET"`
	Issuer        string        `yaml:"issuer" env:"JWT_ISSUER"`
	AccessTTL     time.Duration `yaml:"access_ttl" env:"JWT_ACCESS_TTL"`
	RefreshTTL    time.Duration `yaml:"refresh_ttl" env:"JWT_REFRESH_TTL"`
}

type OTPConfig struct {
	Length        int           `yaml:"length" env:"OTP_LENGTH"`
	TTL           time.Duration `yaml:"ttl" env:"OTP_TTL"`
	MaxAttempts   int           `yaml:"max_attempts" env:"OTP_MAX_ATTEMPTS"`
	RateWindow    time.Duration `yaml:"rate_window" env:"OTP_RATE_WINDOW"`
	MaxRequests   int           `yaml:"max_requests" env:"OTP_MAX_REQUESTS"`
	HashCost      int           `yaml:"hash_cost" env:"OTP_HASH_COST"`
	SweepInterval time.Duration `yaml:"sweep_interval" env:"OTP_SWEEP_INTERVAL"`
}

type TwilioConfig struct {
	AccountSID string `yaml:"account_sid" env:"TWILIO_ACCOUNT_SID"`
	AuthToken  string `yaml:"auth_token" env:"TWILIO_AUTH_TOKEN"`
	FromNumber string `yaml:"from_number" env:"TWILIO_FROM_NUMBER"`
}

type SMSConfig struct {
	Provider    string       `yaml:"provider" env:"SMS_PROVIDER"`
	CountryCode string       `yaml:"country_code" env:"SMS_COUNTRY_CODE"`
	Twilio      TwilioConfig `yaml:"twilio"`
}

type GoogleConfig struct {
	ClientID string        `yaml:"client_id" env:"GOOGLE_CLIENT_ID"`
	Timeout  time.Duration `yaml:"timeout" env:"GOOGLE_TIMEOUT"`
}

type CasbinConfig struct {
	Enabled bool `yaml:"enabled" env:"AUTH_CASBIN_ENABLED"`
}

type HTTPConfig struct {
	RateLimitRPS   float64 `yaml:"rate_limit_rps" env:"AUTH_HTTP_RATE_LIMIT_RPS"`
	RateLimitBurst int     `yaml:"rate_limit_burst" env:"AUTH_HTTP_RATE_LIMIT_BURST"`
}

type LogConfig struct {
	Level string `yaml:"level" env:"LOG_LEVEL"`
}

// Config is built once at startup and passed to every component constructor
type Config struct {
	App      AppConfig      `yaml:"app"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Store    StoreConfig    `yaml:"store"`
	JWT      JWTConfig      `yaml:"jwt"`
	OTP      OTPConfig      `yaml:"otp"`
	SMS      SMSConfig      `yaml:"sms"`
	Google   GoogleConfig   `yaml:"google"`
	Casbin   CasbinConfig   `yaml:"casbin"`
	HTTP     HTTPConfig     `yaml:"http"`
	Log      LogConfig      `yaml:"log"`
}

const (
	ChallengeBackendRedis    = "redis"
	ChallengeBackendPostgres = "postgres"

	minProductionSecretLen = 32
)

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		App:      AppConfig{Port: 8080, GinMode: "release", Env: "development"},
		Database: DatabaseConfig{MaxOpenConns: 25, MaxIdleConns: 5},
		Redis:    RedisConfig{Addr: "localhost:6379"},
		Store:    StoreConfig{ChallengeBackend: ChallengeBackendRedis, Timeout: 3 * time.Second},
		JWT: JWTConfig{
			Issuer:     "phoneauth",
			AccessTTL:  15 * time.Minute,
			RefreshTTL: 7 * 24 * time.Hour,
		},
		OTP: OTPConfig{
			Length:        6,
			TTL:           10 * time.Minute,
			MaxAttempts:   3,
			RateWindow:    15 * time.Minute,
			MaxRequests:   3,
			HashCost:      10,
			SweepInterval: 5 * time.Minute,
		},
		SMS:    SMSConfig{Provider: "console", CountryCode: "+91"},
		Google: GoogleConfig{Timeout: 5 * time.Second},
		Casbin: CasbinConfig{Enabled: true},
		HTTP:   HTTPConfig{RateLimitRPS: 10, RateLimitBurst: 20},
		Log:    LogConfig{Level: "info"},
	}
}

// Load reads the YAML file at path over the defaults, applies environment
// overrides and validates the result. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	bytes, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(bytes, cfg); err != nil {
			return nil, fmt.Errorf("could not parse config yaml: %w", err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, fmt.Errorf("could not read config file at %s: %w", path, err)
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("could not parse environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// IsProduction reports whether the service runs in production mode
func (c *Config) IsProduction() bool {
	return c.App.Env == "production"
}

// Validate checks required fields and invariants between fields
func (c *Config) Validate() error {
	var errs []error

	if c.JWT.AccessSecret == "" {
		errs = append(errs, errors.New("jwt access secret is required"))
	}
	if c.JWT.RefreshSecret == "" {
		errs = append(errs, errors.New("jwt refresh secret is required"))
	}
	if c.JWT.AccessSecret != "" && c.JWT.AccessSecret == c.JWT.RefreshSecret {
		errs = append(errs, errors.New("jwt access and refresh secrets must differ"))
	}
	if c.IsProduction() {
		if len(c.JWT.AccessSecret) < minProductionSecretLen {
			errs = append(errs, fmt.Errorf("jwt access secret must be at least %d characters", minProductionSecretLen))
		}
		if len(c.JWT.RefreshSecret) < minProductionSecretLen {
			errs = append(errs, fmt.Errorf("jwt refresh secret must be at least %d characters", minProductionSecretLen))
		}
	}
	if c.JWT.AccessTTL <= 0 || c.JWT.RefreshTTL <= 0 {
		errs = append(errs, errors.New("jwt ttls must be positive"))
	}
	if c.OTP.Length < 4 || c.OTP.Length > 10 {
		errs = append(errs, errors.New("otp length must be between 4 and 10"))
	}
	if c.OTP.TTL <= 0 || c.OTP.RateWindow <= 0 {
		errs = append(errs, errors.New("otp ttl and rate window must be positive"))
	}
	if c.OTP.MaxAttempts <= 0 || c.OTP.MaxRequests <= 0 {
		errs = append(errs, errors.New("otp max attempts and max requests must be positive"))
	}
	if c.Store.Timeout <= 0 {
		errs = append(errs, errors.New("store timeout must be positive"))
	}
	switch c.Store.ChallengeBackend {
	case ChallengeBackendRedis, ChallengeBackendPostgres:
	default:
		errs = append(errs, fmt.Errorf("unknown challenge backend %q", c.Store.ChallengeBackend))
	}
	switch c.SMS.Provider {
	case "console":
	case "twilio":
		if c.SMS.Twilio.AccountSID == "" || c.SMS.Twilio.AuthToken == "" || c.SMS.Twilio.FromNumber == "" {
			errs = append(errs, errors.New("twilio provider requires account sid, auth token and from number"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown sms provider %q", c.SMS.Provider))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return nil
}
