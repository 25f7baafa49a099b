package mocks

import (
	"context"

	"github.com/you/phoneauth/domain"
)

// MockAuthService implements domain.AuthService interface for testing
type MockAuthService struct {
	RegisterFunc           func(ctx context.Context, in domain.RegisterInput) (*domain.RegisterResult, error)
	RequestOTPFunc         func(ctx context.Context, phone string, purpose domain.Purpose) (int64, error)
	VerifyOTPAndSignInFunc func(ctx context.Context, phone, code string) (*domain.AuthResult, error)
	FederatedSignInFunc    func(ctx context.Context, idToken string, role domain.Role) (*domain.AuthResult, error)
	RefreshFunc            func(ctx context.Context, refreshToken string) (domain.TokenPair, error)
	LogoutFunc             func(ctx context.Context, userID uint) error
	CurrentUserFunc        func(ctx context.Context, userID uint) (*domain.User, error)
}

// NewMockAuthService creates a new MockAuthService with default behaviors
func NewMockAuthService() *MockAuthService {
	return &MockAuthService{}
}

// Register creates an account
func (m *MockAuthService) Register(ctx context.Context, in domain.RegisterInput) (*domain.RegisterResult, error) {
	if m.RegisterFunc != nil {
		return m.RegisterFunc(ctx, in)
	}
	return &domain.RegisterResult{UserID: 1, OTPSent: true, ExpiresIn: 600}, nil
}

// RequestOTP issues a challenge
func (m *MockAuthService) RequestOTP(ctx context.Context, phone string, purpose domain.Purpose) (int64, error) {
	if m.RequestOTPFunc != nil {
		return m.RequestOTPFunc(ctx, phone, purpose)
	}
	return 600, nil
}

// VerifyOTPAndSignIn signs a user in with a code
func (m *MockAuthService) VerifyOTPAndSignIn(ctx context.Context, phone, code string) (*domain.AuthResult, error) {
	if m.VerifyOTPAndSignInFunc != nil {
		return m.VerifyOTPAndSignInFunc(ctx, phone, code)
	}
	return nil, domain.ErrOTPInvalid
}

// FederatedSignIn signs a user in with an identity token
func (m *MockAuthService) FederatedSignIn(ctx context.Context, idToken string, role domain.Role) (*domain.AuthResult, error) {
	if m.FederatedSignInFunc != nil {
		return m.FederatedSignInFunc(ctx, idToken, role)
	}
	return nil, domain.ErrIdentityTokenInvalid
}

// Refresh rotates a token pair
func (m *MockAuthService) Refresh(ctx context.Context, refreshToken string) (domain.TokenPair, error) {
	if m.RefreshFunc != nil {
		return m.RefreshFunc(ctx, refreshToken)
	}
	return domain.TokenPair{}, domain.ErrTokenInvalid
}

// Logout revokes the session
func (m *MockAuthService) Logout(ctx context.Context, userID uint) error {
	if m.LogoutFunc != nil {
		return m.LogoutFunc(ctx, userID)
	}
	return nil
}

// CurrentUser loads the caller
func (m *MockAuthService) CurrentUser(ctx context.Context, userID uint) (*domain.User, error) {
	if m.CurrentUserFunc != nil {
		return m.CurrentUserFunc(ctx, userID)
	}
	return nil, domain.ErrUserNotFound
}

// Compile-time interface compliance verification
var _ domain.AuthService = (*MockAuthService)(nil)
