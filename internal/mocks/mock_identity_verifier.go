package mocks

import (
	"context"

	"github.com/you/phoneauth/domain"
)

// MockIdentityVerifier implements domain.IdentityVerifier interface for testing
type MockIdentityVerifier struct {
	VerifyIdentityTokenFunc func(ctx context.Context, token string) (*domain.FederatedIdentity, error)
	Identities              map[string]*domain.FederatedIdentity
}

// NewMockIdentityVerifier creates a new MockIdentityVerifier with default behaviors
func NewMockIdentityVerifier() *MockIdentityVerifier {
	return &MockIdentityVerifier{Identities: make(map[string]*domain.FederatedIdentity)}
}

// VerifyIdentityToken resolves token from Identities by default
func (m *MockIdentityVerifier) VerifyIdentityToken(ctx context.Context, token string) (*domain.FederatedIdentity, error) {
	if m.VerifyIdentityTokenFunc != nil {
		return m.VerifyIdentityTokenFunc(ctx, token)
	}
	if id, ok := m.Identities[token]; ok {
		cp := *id
		return &cp, nil
	}
	// Default behavior: unknown tokens are rejected
	return nil, domain.ErrIdentityTokenInvalid
}

// Compile-time interface compliance verification
var _ domain.IdentityVerifier = (*MockIdentityVerifier)(nil)
