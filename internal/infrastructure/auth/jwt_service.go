package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/you/phoneauth/domain"
)

const (
	tokenTypeAccess  = "access"
	tokenTypeRefresh = "refresh"
)

// accessClaims embeds the subject and role
type accessClaims struct {
	UserID uint        `json:"user_id"`
	Role   domain.Role `json:"role"`
	Type   string      `json:"typ"`
	jwt.RegisteredClaims
}

// refreshClaims embeds only the subject
type refreshClaims struct {
	UserID uint   `json:"user_id"`
	Type   string `json:"typ"`
	jwt.RegisteredClaims
}

// JWTServiceImpl implements domain.TokenService. Access and refresh tokens are
// signed with distinct secrets so neither can be forged from the other.
type JWTServiceImpl struct {
	accessSecret    []byte
	refreshSecret   []byte
	issuer          string
	accessTokenTTL  time.Duration
	refreshTokenTTL time.Duration
	now             func() time.Time
}

// NewJWTService creates a new JWT service
func NewJWTService(accessSecret, refreshSecret, issuer string, accessTTL, refreshTTL time.Duration) *JWTServiceImpl {
	return &JWTServiceImpl{
		accessSecret:    []byte(accessSecret),
		refreshSecret:   []byte(refreshSecret),
		issuer:          issuer,
		accessTokenTTL:  accessTTL,
		refreshTokenTTL: refreshTTL,
		now:             time.Now,
	}
}

// WithClock overrides the validation clock
func (j *JWTServiceImpl) WithClock(now func() time.Time) *JWTServiceImpl {
	j.now = now
	return j
}

// AccessTTL implements domain.TokenService
func (j *JWTServiceImpl) AccessTTL() time.Duration {
	return j.accessTokenTTL
}

func (j *JWTServiceImpl) registered(userID uint, now time.Time, ttl time.Duration) jwt.RegisteredClaims {
	return jwt.RegisteredClaims{
		Subject:   fmt.Sprintf("%d", userID),
		Issuer:    j.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		// Unique id keeps two tokens minted in the same second distinct
		ID: uuid.NewString(),
	}
}

// GenerateAccessToken implements domain.TokenService
func (j *JWTServiceImpl) GenerateAccessToken(userID uint, role domain.Role, now time.Time) (string, error) {
	claims := &accessClaims{
		UserID:           userID,
		Role:             role,
		Type:             tokenTypeAccess,
		RegisteredClaims: j.registered(userID, now, j.accessTokenTTL),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(j.accessSecret)
	if err != nil {
		return "", fmt.Errorf("failed to sign access token: %w", err)
	}
	return token, nil
}

// GenerateRefreshToken implements domain.TokenService
func (j *JWTServiceImpl) GenerateRefreshToken(userID uint, now time.Time) (string, error) {
	claims := &refreshClaims{
		UserID:           userID,
		Type:             tokenTypeRefresh,
		RegisteredClaims: j.registered(userID, now, j.refreshTokenTTL),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(j.refreshSecret)
	if err != nil {
		return "", fmt.Errorf("failed to sign refresh token: %w", err)
	}
	return token, nil
}

// ValidateAccessToken implements domain.TokenService
func (j *JWTServiceImpl) ValidateAccessToken(tokenString string) (*domain.TokenClaims, error) {
	claims := &accessClaims{}
	if err := j.parse(tokenString, claims, j.accessSecret); err != nil {
		return nil, err
	}
	if claims.Type != tokenTypeAccess || claims.UserID == 0 {
		return nil, domain.ErrTokenInvalid
	}
	return toDomainClaims(claims.UserID, claims.Role, claims.RegisteredClaims), nil
}

// ValidateRefreshToken implements domain.TokenService
func (j *JWTServiceImpl) ValidateRefreshToken(tokenString string) (*domain.TokenClaims, error) {
	claims := &refreshClaims{}
	if err := j.parse(tokenString, claims, j.refreshSecret); err != nil {
		return nil, err
	}
	if claims.Type != tokenTypeRefresh || claims.UserID == 0 {
		return nil, domain.ErrTokenInvalid
	}
	return toDomainClaims(claims.UserID, "", claims.RegisteredClaims), nil
}

func (j *JWTServiceImpl) parse(tokenString string, claims jwt.Claims, secret []byte) error {
	_, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(j.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(j.now),
	)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, jwt.ErrTokenExpired):
		return domain.ErrTokenExpired
	default:
		return domain.Wrap(domain.ErrTokenInvalid, err)
	}
}

func toDomainClaims(userID uint, role domain.Role, rc jwt.RegisteredClaims) *domain.TokenClaims {
	claims := &domain.TokenClaims{UserID: userID, Role: role, TokenID: rc.ID}
	if rc.IssuedAt != nil {
		claims.IssuedAt = rc.IssuedAt.Unix()
	}
	if rc.ExpiresAt != nil {
		claims.ExpiresAt = rc.ExpiresAt.Unix()
	}
	return claims
}

var _ domain.TokenService = (*JWTServiceImpl)(nil)
