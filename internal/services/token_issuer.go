package services

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/you/phoneauth/domain"
)

// TokenIssuerImpl implements domain.TokenIssuer
type TokenIssuerImpl struct {
	tokens domain.TokenService
	users  domain.UserRepository
	now    func() time.Time
}

// NewTokenIssuer creates a token issuer over a signer and the credential store
func NewTokenIssuer(tokens domain.TokenService, users domain.UserRepository, now func() time.Time) domain.TokenIssuer {
	if now == nil {
		now = time.Now
	}
	return &TokenIssuerImpl{tokens: tokens, users: users, now: now}
}

// IssueTokenPair implements domain.TokenIssuer. It persists nothing.
func (t *TokenIssuerImpl) IssueTokenPair(userID uint, role domain.Role) (domain.TokenPair, error) {
	now := t.now()
	access, err := t.tokens.GenerateAccessToken(userID, role, now)
	if err != nil {
		return domain.TokenPair{}, fmt.Errorf("failed to generate access token: %w", err)
	}
	refresh, err := t.tokens.GenerateRefreshToken(userID, now)
	if err != nil {
		return domain.TokenPair{}, fmt.Errorf("failed to generate refresh token: %w", err)
	}
	return domain.TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    int64(t.tokens.AccessTTL() / time.Second),
	}, nil
}

// VerifyAccessToken implements domain.TokenIssuer
func (t *TokenIssuerImpl) VerifyAccessToken(token string) (*domain.TokenClaims, error) {
	return t.tokens.ValidateAccessToken(token)
}

// VerifyRefreshToken implements domain.TokenIssuer. A valid signature is not
// enough: the token must also be the one currently stored for the user.
func (t *TokenIssuerImpl) VerifyRefreshToken(ctx context.Context, token string) (*domain.User, error) {
	claims, err := t.tokens.ValidateRefreshToken(token)
	if err != nil {
		return nil, err
	}
	user, err := t.users.FindByID(ctx, claims.UserID)
	if errors.Is(err, domain.ErrUserNotFound) {
		return nil, domain.ErrRefreshTokenMismatch
	}
	if err != nil {
		return nil, err
	}
	if user.RefreshToken == "" || subtle.ConstantTimeCompare([]byte(user.RefreshToken), []byte(token)) != 1 {
		return nil, domain.ErrRefreshTokenMismatch
	}
	if !user.IsActive {
		return nil, domain.ErrUserInactive
	}
	return user, nil
}

// RotateOnRefresh implements domain.TokenIssuer. The stored token is swapped
// only if it is still the one user was loaded with.
func (t *TokenIssuerImpl) RotateOnRefresh(ctx context.Context, user *domain.User) (domain.TokenPair, error) {
	pair, err := t.IssueTokenPair(user.ID, user.Role)
	if err != nil {
		return domain.TokenPair{}, err
	}
	ok, err := t.users.SwapRefreshToken(ctx, user.ID, user.RefreshToken, pair.RefreshToken)
	if err != nil {
		return domain.TokenPair{}, err
	}
	if !ok {
		return domain.TokenPair{}, domain.ErrConcurrentRefresh
	}
	user.RefreshToken = pair.RefreshToken
	return pair, nil
}
