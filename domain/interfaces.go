package domain

import (
	"context"
	"time"
)

// UserRepository defines credential store operations
type UserRepository interface {
	Create(ctx context.Context, user *User) error
	FindByID(ctx context.Context, id uint) (*User, error)
	FindByEmailOrPhone(ctx context.Context, email, phone string) (*User, error)
	FindActiveByPhone(ctx context.Context, phone string) (*User, error)
	FindByFederatedID(ctx context.Context, federatedID string) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	Save(ctx context.Context, user *User) error
	// SwapRefreshToken replaces the stored refresh token only if it still
	// equals expected. It reports whether the swap happened.
	SwapRefreshToken(ctx context.Context, userID uint, expected, next string) (bool, error)
}

// ChallengeRepository defines challenge store operations
type ChallengeRepository interface {
	Create(ctx context.Context, challenge *Challenge) error
	FindLatestValidForPhone(ctx context.Context, phone string, now time.Time) (*Challenge, error)
	FindLatestForPhone(ctx context.Context, phone string) (*Challenge, error)
	CountRecentForPhone(ctx context.Context, phone string, windowStart time.Time) (int64, error)
	// ReserveAttempt atomically increments attempts only when the challenge is
	// unused and has fewer than maxAttempts, and reports whether it did.
	ReserveAttempt(ctx context.Context, id string, maxAttempts int) (bool, error)
	// MarkUsedIfUnused atomically sets used=true only when used=false and
	// reports whether this call performed the transition.
	MarkUsedIfUnused(ctx context.Context, id string) (bool, error)
	Delete(ctx context.Context, id string) error
	DeleteStaleForPhone(ctx context.Context, phone string, now time.Time) error
	DeleteStale(ctx context.Context, now time.Time) (int64, error)
}

// NotificationService delivers OTP codes
type NotificationService interface {
	SendOTP(ctx context.Context, phone, code string, ttl time.Duration) error
}

// IdentityVerifier validates identity tokens from an external provider
type IdentityVerifier interface {
	VerifyIdentityToken(ctx context.Context, token string) (*FederatedIdentity, error)
}

// CodeHasher hashes OTP codes with a per-code salt
type CodeHasher interface {
	Hash(code string) (string, error)
	Compare(hash, code string) bool
}

// TokenService signs and parses JWTs
type TokenService interface {
	GenerateAccessToken(userID uint, role Role, now time.Time) (string, error)
	GenerateRefreshToken(userID uint, now time.Time) (string, error)
	ValidateAccessToken(token string) (*TokenClaims, error)
	ValidateRefreshToken(token string) (*TokenClaims, error)
	AccessTTL() time.Duration
}

// OTPService defines the OTP lifecycle
type OTPService interface {
	RequestChallenge(ctx context.Context, phone string, purpose Purpose) (expiresIn int64, err error)
	VerifyChallenge(ctx context.Context, phone, code string) error
}

// TokenIssuer mints, validates and rotates token pairs
type TokenIssuer interface {
	IssueTokenPair(userID uint, role Role) (TokenPair, error)
	VerifyAccessToken(token string) (*TokenClaims, error)
	VerifyRefreshToken(ctx context.Context, token string) (*User, error)
	RotateOnRefresh(ctx context.Context, user *User) (TokenPair, error)
}

// AuthService composes signup, sign-in, refresh and logout flows
type AuthService interface {
	Register(ctx context.Context, in RegisterInput) (*RegisterResult, error)
	RequestOTP(ctx context.Context, phone string, purpose Purpose) (int64, error)
	VerifyOTPAndSignIn(ctx context.Context, phone, code string) (*AuthResult, error)
	FederatedSignIn(ctx context.Context, idToken string, role Role) (*AuthResult, error)
	Refresh(ctx context.Context, refreshToken string) (TokenPair, error)
	Logout(ctx context.Context, userID uint) error
	CurrentUser(ctx context.Context, userID uint) (*User, error)
}

// PolicyService defines role authorization policy operations
type PolicyService interface {
	AddPolicy(role Role, resource, action string) error
	RemovePolicy(role Role, resource, action string) error
	CheckPermission(role Role, resource, action string) (bool, error)
	GetPolicies() [][]string
}

// CasbinEnforcer is the subset of the casbin enforcer we use
type CasbinEnforcer interface {
	AddPolicy(params ...interface{}) (bool, error)
	RemovePolicy(params ...interface{}) (bool, error)
	Enforce(rvals ...interface{}) (bool, error)
	GetPolicy() ([][]string, error)
}
