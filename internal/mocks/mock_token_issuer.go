package mocks

import (
	"context"
	"fmt"

	"github.com/you/phoneauth/domain"
)

// MockTokenIssuer implements domain.TokenIssuer interface for testing
type MockTokenIssuer struct {
	IssueTokenPairFunc     func(userID uint, role domain.Role) (domain.TokenPair, error)
	VerifyAccessTokenFunc  func(token string) (*domain.TokenClaims, error)
	VerifyRefreshTokenFunc func(ctx context.Context, token string) (*domain.User, error)
	RotateOnRefreshFunc    func(ctx context.Context, user *domain.User) (domain.TokenPair, error)
}

// NewMockTokenIssuer creates a new MockTokenIssuer with default behaviors
func NewMockTokenIssuer() *MockTokenIssuer {
	return &MockTokenIssuer{}
}

// IssueTokenPair mints a pair
func (m *MockTokenIssuer) IssueTokenPair(userID uint, role domain.Role) (domain.TokenPair, error) {
	if m.IssueTokenPairFunc != nil {
		return m.IssueTokenPairFunc(userID, role)
	}
	return domain.TokenPair{
		AccessToken:  fmt.Sprintf("access-%d", userID),
		RefreshToken: fmt.Sprintf("refresh-%d", userID),
		ExpiresIn:    900,
	}, nil
}

// VerifyAccessToken decodes an access token
func (m *MockTokenIssuer) VerifyAccessToken(token string) (*domain.TokenClaims, error) {
	if m.VerifyAccessTokenFunc != nil {
		return m.VerifyAccessTokenFunc(token)
	}
	// Default behavior: "access-<id>" tokens belong to Customer <id>
	var id uint
	if _, err := fmt.Sscanf(token, "access-%d", &id); err != nil || id == 0 {
		return nil, domain.ErrTokenInvalid
	}
	return &domain.TokenClaims{UserID: id, Role: domain.RoleCustomer}, nil
}

// VerifyRefreshToken decodes and cross-checks a refresh token
func (m *MockTokenIssuer) VerifyRefreshToken(ctx context.Context, token string) (*domain.User, error) {
	if m.VerifyRefreshTokenFunc != nil {
		return m.VerifyRefreshTokenFunc(ctx, token)
	}
	return nil, domain.ErrTokenInvalid
}

// RotateOnRefresh replaces the stored refresh token
func (m *MockTokenIssuer) RotateOnRefresh(ctx context.Context, user *domain.User) (domain.TokenPair, error) {
	if m.RotateOnRefreshFunc != nil {
		return m.RotateOnRefreshFunc(ctx, user)
	}
	return m.IssueTokenPair(user.ID, user.Role)
}

// Compile-time interface compliance verification
var _ domain.TokenIssuer = (*MockTokenIssuer)(nil)
