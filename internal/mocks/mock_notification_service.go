package mocks

import (
	"context"
	"sync"
	"time"

	"github.com/you/phoneauth/domain"
)

// SentOTP records one delivered code
type SentOTP struct {
	Phone string
	Code  string
	TTL   time.Duration
}

// MockNotificationService implements domain.NotificationService interface for testing
type MockNotificationService struct {
	SendOTPFunc func(ctx context.Context, phone, code string, ttl time.Duration) error

	mu   sync.Mutex
	sent []SentOTP
}

// NewMockNotificationService creates a new MockNotificationService with default behaviors
func NewMockNotificationService() *MockNotificationService {
	return &MockNotificationService{}
}

// SendOTP records the code, then delegates to SendOTPFunc when set
func (m *MockNotificationService) SendOTP(ctx context.Context, phone, code string, ttl time.Duration) error {
	if m.SendOTPFunc != nil {
		if err := m.SendOTPFunc(ctx, phone, code, ttl); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, SentOTP{Phone: phone, Code: code, TTL: ttl})
	return nil
}

// Sent returns every successfully delivered code (test helper)
func (m *MockNotificationService) Sent() []SentOTP {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]SentOTP(nil), m.sent...)
}

// LastCode returns the most recent code sent to phone (test helper)
func (m *MockNotificationService) LastCode(phone string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.sent) - 1; i >= 0; i-- {
		if m.sent[i].Phone == phone {
			return m.sent[i].Code
		}
	}
	return ""
}

// Compile-time interface compliance verification
var _ domain.NotificationService = (*MockNotificationService)(nil)
