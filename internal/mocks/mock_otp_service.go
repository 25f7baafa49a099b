package mocks

import (
	"context"

	"github.com/you/phoneauth/domain"
)

// MockOTPService implements domain.OTPService interface for testing
type MockOTPService struct {
	RequestChallengeFunc func(ctx context.Context, phone string, purpose domain.Purpose) (int64, error)
	VerifyChallengeFunc  func(ctx context.Context, phone, code string) error
}

// NewMockOTPService creates a new MockOTPService with default behaviors
func NewMockOTPService() *MockOTPService {
	return &MockOTPService{}
}

// RequestChallenge issues a challenge
func (m *MockOTPService) RequestChallenge(ctx context.Context, phone string, purpose domain.Purpose) (int64, error) {
	if m.RequestChallengeFunc != nil {
		return m.RequestChallengeFunc(ctx, phone, purpose)
	}
	// Default behavior: ten minute challenge
	return 600, nil
}

// VerifyChallenge checks a code
func (m *MockOTPService) VerifyChallenge(ctx context.Context, phone, code string) error {
	if m.VerifyChallengeFunc != nil {
		return m.VerifyChallengeFunc(ctx, phone, code)
	}
	// Default behavior: accept "123456"
	if code == "123456" {
		return nil
	}
	return domain.ErrOTPInvalid
}

// Compile-time interface compliance verification
var _ domain.OTPService = (*MockOTPService)(nil)
