package mocks

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/you/phoneauth/domain"
)

// MockChallengeRepository implements domain.ChallengeRepository interface for
// testing. Without overrides it keeps challenges in memory.
type MockChallengeRepository struct {
	CreateFunc                  func(ctx context.Context, challenge *domain.Challenge) error
	FindLatestValidForPhoneFunc func(ctx context.Context, phone string, now time.Time) (*domain.Challenge, error)
	FindLatestForPhoneFunc      func(ctx context.Context, phone string) (*domain.Challenge, error)
	CountRecentForPhoneFunc     func(ctx context.Context, phone string, windowStart time.Time) (int64, error)
	ReserveAttemptFunc          func(ctx context.Context, id string, maxAttempts int) (bool, error)
	MarkUsedIfUnusedFunc        func(ctx context.Context, id string) (bool, error)
	DeleteFunc                  func(ctx context.Context, id string) error
	DeleteStaleForPhoneFunc     func(ctx context.Context, phone string, now time.Time) error
	DeleteStaleFunc             func(ctx context.Context, now time.Time) (int64, error)

	mu         sync.Mutex
	challenges map[string]domain.Challenge
}

// Compile-time interface compliance verification
var _ domain.ChallengeRepository = (*MockChallengeRepository)(nil)

// NewMockChallengeRepository creates a new MockChallengeRepository with default behaviors
func NewMockChallengeRepository() *MockChallengeRepository {
	return &MockChallengeRepository{challenges: make(map[string]domain.Challenge)}
}

// All returns stored challenges ordered newest first (test helper)
func (m *MockChallengeRepository) All() []domain.Challenge {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.Challenge, 0, len(m.challenges))
	for _, c := range m.challenges {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

func (m *MockChallengeRepository) latest(phone string, match func(domain.Challenge) bool) (*domain.Challenge, error) {
	for _, c := range m.All() {
		if c.Phone == phone && match(c) {
			c := c
			return &c, nil
		}
	}
	return nil, domain.ErrOTPNotFound
}

// Create stores a challenge
func (m *MockChallengeRepository) Create(ctx context.Context, challenge *domain.Challenge) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, challenge)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.challenges[challenge.ID] = *challenge
	return nil
}

// FindLatestValidForPhone returns the newest unused, unexpired challenge
func (m *MockChallengeRepository) FindLatestValidForPhone(ctx context.Context, phone string, now time.Time) (*domain.Challenge, error) {
	if m.FindLatestValidForPhoneFunc != nil {
		return m.FindLatestValidForPhoneFunc(ctx, phone, now)
	}
	return m.latest(phone, func(c domain.Challenge) bool { return !c.Used && !c.IsExpired(now) })
}

// FindLatestForPhone returns the newest challenge regardless of state
func (m *MockChallengeRepository) FindLatestForPhone(ctx context.Context, phone string) (*domain.Challenge, error) {
	if m.FindLatestForPhoneFunc != nil {
		return m.FindLatestForPhoneFunc(ctx, phone)
	}
	return m.latest(phone, func(domain.Challenge) bool { return true })
}

// CountRecentForPhone counts challenges created since windowStart
func (m *MockChallengeRepository) CountRecentForPhone(ctx context.Context, phone string, windowStart time.Time) (int64, error) {
	if m.CountRecentForPhoneFunc != nil {
		return m.CountRecentForPhoneFunc(ctx, phone, windowStart)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, c := range m.challenges {
		if c.Phone == phone && !c.CreatedAt.Before(windowStart) {
			n++
		}
	}
	return n, nil
}

// ReserveAttempt bumps the attempt counter while below maxAttempts
func (m *MockChallengeRepository) ReserveAttempt(ctx context.Context, id string, maxAttempts int) (bool, error) {
	if m.ReserveAttemptFunc != nil {
		return m.ReserveAttemptFunc(ctx, id, maxAttempts)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.challenges[id]
	if !ok {
		return false, domain.ErrOTPNotFound
	}
	if c.Used || c.Attempts >= maxAttempts {
		return false, nil
	}
	c.Attempts++
	m.challenges[id] = c
	return true, nil
}

// MarkUsedIfUnused sets used when it is still false
func (m *MockChallengeRepository) MarkUsedIfUnused(ctx context.Context, id string) (bool, error) {
	if m.MarkUsedIfUnusedFunc != nil {
		return m.MarkUsedIfUnusedFunc(ctx, id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.challenges[id]
	if !ok {
		return false, domain.ErrOTPNotFound
	}
	if c.Used {
		return false, nil
	}
	c.Used = true
	m.challenges[id] = c
	return true, nil
}

// Delete removes a challenge
func (m *MockChallengeRepository) Delete(ctx context.Context, id string) error {
	if m.DeleteFunc != nil {
		return m.DeleteFunc(ctx, id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.challenges, id)
	return nil
}

// DeleteStaleForPhone removes used or expired challenges for phone
func (m *MockChallengeRepository) DeleteStaleForPhone(ctx context.Context, phone string, now time.Time) error {
	if m.DeleteStaleForPhoneFunc != nil {
		return m.DeleteStaleForPhoneFunc(ctx, phone, now)
	}
	m.purge(func(c domain.Challenge) bool { return c.Phone == phone && c.IsStale(now) })
	return nil
}

// DeleteStale removes every used or expired challenge
func (m *MockChallengeRepository) DeleteStale(ctx context.Context, now time.Time) (int64, error) {
	if m.DeleteStaleFunc != nil {
		return m.DeleteStaleFunc(ctx, now)
	}
	return m.purge(func(c domain.Challenge) bool { return c.IsStale(now) }), nil
}

func (m *MockChallengeRepository) purge(match func(domain.Challenge) bool) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, c := range m.challenges {
		if match(c) {
			delete(m.challenges, id)
			n++
		}
	}
	return n
}
