package services

import (
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/you/phoneauth/domain"
	"github.com/you/phoneauth/internal/infrastructure/auth"
	"github.com/you/phoneauth/internal/mocks"
)

// testClock is a settable clock shared by the services under test
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

var testOTPConfig = OTPConfig{
	Length:      6,
	TTL:         10 * time.Minute,
	MaxAttempts: 3,
	RateWindow:  15 * time.Minute,
	MaxRequests: 3,
}

// otpFixture wires an OTPServiceImpl over in-memory mocks
type otpFixture struct {
	svc        domain.OTPService
	challenges *mocks.MockChallengeRepository
	users      *mocks.MockUserRepository
	notifier   *mocks.MockNotificationService
	audit      *mocks.MockAuditLogger
	clock      *testClock
}

func newOTPFixture(t *testing.T, opts ...OTPOption) *otpFixture {
	t.Helper()
	f := &otpFixture{
		challenges: mocks.NewMockChallengeRepository(),
		users:      mocks.NewMockUserRepository(),
		notifier:   mocks.NewMockNotificationService(),
		audit:      mocks.NewMockAuditLogger(),
		clock:      newTestClock(),
	}
	opts = append([]OTPOption{WithOTPClock(f.clock.Now)}, opts...)
	f.svc = NewOTPService(
		f.challenges,
		f.users,
		f.notifier,
		auth.NewBcryptCodeHasher(bcrypt.MinCost),
		f.audit,
		zap.NewNop(),
		testOTPConfig,
		opts...,
	)
	return f
}

// createValidUser creates an active phone user and stores it in repo
func createValidUser(t *testing.T, repo *mocks.MockUserRepository, email, phone string) *domain.User {
	t.Helper()
	u, err := domain.NewUser("Asha Rao", email, phone, "", domain.RoleCustomer, time.Now())
	if err != nil {
		t.Fatalf("failed to build user: %v", err)
	}
	repo.Seed(&u)
	return &u
}

func fixedCode(code string) OTPOption {
	return WithCodeGenerator(func(int) (string, error) { return code, nil })
}
