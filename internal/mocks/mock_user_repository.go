package mocks

import (
	"context"
	"sync"

	"github.com/you/phoneauth/domain"
)

// MockUserRepository implements domain.UserRepository interface for testing.
// Without overrides it behaves like an in-memory store with unique email and phone.
type MockUserRepository struct {
	CreateFunc             func(ctx context.Context, user *domain.User) error
	FindByIDFunc           func(ctx context.Context, id uint) (*domain.User, error)
	FindByEmailOrPhoneFunc func(ctx context.Context, email, phone string) (*domain.User, error)
	FindActiveByPhoneFunc  func(ctx context.Context, phone string) (*domain.User, error)
	FindByFederatedIDFunc  func(ctx context.Context, federatedID string) (*domain.User, error)
	FindByEmailFunc        func(ctx context.Context, email string) (*domain.User, error)
	SaveFunc               func(ctx context.Context, user *domain.User) error
	SwapRefreshTokenFunc   func(ctx context.Context, userID uint, expected, next string) (bool, error)

	mu     sync.Mutex
	users  map[uint]domain.User
	nextID uint
}

// Compile-time interface compliance verification
var _ domain.UserRepository = (*MockUserRepository)(nil)

// NewMockUserRepository creates a new MockUserRepository with default behaviors
func NewMockUserRepository() *MockUserRepository {
	return &MockUserRepository{users: make(map[uint]domain.User), nextID: 1}
}

// Seed stores a copy of user, assigning an id when it has none (test helper)
func (m *MockUserRepository) Seed(user *domain.User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if user.ID == 0 {
		user.ID = m.nextID
	}
	if user.ID >= m.nextID {
		m.nextID = user.ID + 1
	}
	m.users[user.ID] = *user
}

// Get returns the stored copy of a user (test helper)
func (m *MockUserRepository) Get(id uint) (domain.User, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	return u, ok
}

// Create creates a new user
func (m *MockUserRepository) Create(ctx context.Context, user *domain.User) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, user)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.conflict(user); err != nil {
		return err
	}
	user.ID = m.nextID
	m.nextID++
	m.users[user.ID] = *user
	return nil
}

func (m *MockUserRepository) conflict(user *domain.User) error {
	for id, u := range m.users {
		if id == user.ID {
			continue
		}
		if u.Email == user.Email {
			return domain.ErrEmailExists
		}
		if user.Phone != "" && u.Phone == user.Phone {
			return domain.ErrPhoneExists
		}
	}
	return nil
}

func (m *MockUserRepository) find(match func(domain.User) bool) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var found *domain.User
	for _, u := range m.users {
		if match(u) && (found == nil || u.ID < found.ID) {
			u := u
			found = &u
		}
	}
	if found == nil {
		return nil, domain.ErrUserNotFound
	}
	return found, nil
}

// FindByID finds a user by ID
func (m *MockUserRepository) FindByID(ctx context.Context, id uint) (*domain.User, error) {
	if m.FindByIDFunc != nil {
		return m.FindByIDFunc(ctx, id)
	}
	return m.find(func(u domain.User) bool { return u.ID == id })
}

// FindByEmailOrPhone finds a user matching either field
func (m *MockUserRepository) FindByEmailOrPhone(ctx context.Context, email, phone string) (*domain.User, error) {
	if m.FindByEmailOrPhoneFunc != nil {
		return m.FindByEmailOrPhoneFunc(ctx, email, phone)
	}
	return m.find(func(u domain.User) bool {
		return u.Email == email || (phone != "" && u.Phone == phone)
	})
}

// FindActiveByPhone finds an active user by phone number
func (m *MockUserRepository) FindActiveByPhone(ctx context.Context, phone string) (*domain.User, error) {
	if m.FindActiveByPhoneFunc != nil {
		return m.FindActiveByPhoneFunc(ctx, phone)
	}
	return m.find(func(u domain.User) bool { return u.IsActive && u.Phone == phone })
}

// FindByFederatedID finds a user by external subject id
func (m *MockUserRepository) FindByFederatedID(ctx context.Context, federatedID string) (*domain.User, error) {
	if m.FindByFederatedIDFunc != nil {
		return m.FindByFederatedIDFunc(ctx, federatedID)
	}
	return m.find(func(u domain.User) bool { return federatedID != "" && u.FederatedID == federatedID })
}

// FindByEmail finds a user by email
func (m *MockUserRepository) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	if m.FindByEmailFunc != nil {
		return m.FindByEmailFunc(ctx, email)
	}
	email = domain.NormalizeEmail(email)
	return m.find(func(u domain.User) bool { return u.Email == email })
}

// Save upserts a user
func (m *MockUserRepository) Save(ctx context.Context, user *domain.User) error {
	if m.SaveFunc != nil {
		return m.SaveFunc(ctx, user)
	}
	if user.ID == 0 {
		return m.Create(ctx, user)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.conflict(user); err != nil {
		return err
	}
	m.users[user.ID] = *user
	return nil
}

// SwapRefreshToken replaces the refresh token when it still equals expected
func (m *MockUserRepository) SwapRefreshToken(ctx context.Context, userID uint, expected, next string) (bool, error) {
	if m.SwapRefreshTokenFunc != nil {
		return m.SwapRefreshTokenFunc(ctx, userID, expected, next)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok || u.RefreshToken != expected {
		return false, nil
	}
	u.RefreshToken = next
	m.users[userID] = u
	return true, nil
}
