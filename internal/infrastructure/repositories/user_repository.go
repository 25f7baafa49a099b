package repositories

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/you/phoneauth/domain"
)

// UserRepositoryImpl implements domain.UserRepository using GORM
type UserRepositoryImpl struct {
	db      *gorm.DB
	timeout time.Duration
}

// DBUser represents the database model for User (with GORM tags). Phone and
// FederatedID are nullable so the unique indexes ignore absent values.
type DBUser struct {
	ID            uint                 `gorm:"primaryKey"`
	FullName      string               `gorm:"size:50"`
	Email         string               `gorm:"uniqueIndex;size:255;not null"`
	Phone         *string              `gorm:"uniqueIndex;size:32"`
	Role          string               `gorm:"index;size:32"`
	FederatedID   *string              `gorm:"uniqueIndex;size:255"`
	EmailVerified bool                 `gorm:"not null"`
	PhoneVerified bool                 `gorm:"index;not null"`
	IsActive      bool                 `gorm:"index;not null"`
	LastLoginAt   *time.Time
	RefreshToken  string               `gorm:"size:1024"`
	AgentProfile  *domain.AgentProfile `gorm:"type:text;serializer:json"`
	CreatedAt     time.Time            `gorm:"index"`
	UpdatedAt     time.Time
}

// TableName returns the table name for GORM
func (DBUser) TableName() string {
	return "users"
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *gorm.DB, timeout time.Duration) domain.UserRepository {
	return &UserRepositoryImpl{db: db, timeout: timeout}
}

// Create implements domain.UserRepository
func (r *UserRepositoryImpl) Create(ctx context.Context, user *domain.User) error {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	dbUser := r.domainToDB(user)
	if err := r.db.WithContext(ctx).Create(dbUser).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return r.duplicateCause(ctx, user)
		}
		return translateStoreError("create user", err)
	}
	user.ID = dbUser.ID
	user.CreatedAt = dbUser.CreatedAt
	user.UpdatedAt = dbUser.UpdatedAt
	return nil
}

// duplicateCause re-reads the colliding row to report which field conflicted
func (r *UserRepositoryImpl) duplicateCause(ctx context.Context, user *domain.User) error {
	var existing DBUser
	err := r.db.WithContext(ctx).Where("email = ?", user.Email).First(&existing).Error
	if err == nil {
		return domain.ErrEmailExists
	}
	if user.Phone != "" {
		if err := r.db.WithContext(ctx).Where("phone = ?", user.Phone).First(&existing).Error; err == nil {
			return domain.ErrPhoneExists
		}
	}
	return domain.NewError(domain.CodeConflict, "user already exists")
}

// FindByID implements domain.UserRepository
func (r *UserRepositoryImpl) FindByID(ctx context.Context, id uint) (*domain.User, error) {
	return r.first(ctx, "find user by id", "id = ?", id)
}

// FindByEmailOrPhone implements domain.UserRepository
func (r *UserRepositoryImpl) FindByEmailOrPhone(ctx context.Context, email, phone string) (*domain.User, error) {
	return r.first(ctx, "find user by email or phone", "email = ? OR phone = ?", email, phone)
}

// FindActiveByPhone implements domain.UserRepository
func (r *UserRepositoryImpl) FindActiveByPhone(ctx context.Context, phone string) (*domain.User, error) {
	return r.first(ctx, "find active user by phone", "phone = ? AND is_active = ?", phone, true)
}

// FindByFederatedID implements domain.UserRepository
func (r *UserRepositoryImpl) FindByFederatedID(ctx context.Context, federatedID string) (*domain.User, error) {
	return r.first(ctx, "find user by federated id", "federated_id = ?", federatedID)
}

// FindByEmail implements domain.UserRepository
func (r *UserRepositoryImpl) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.first(ctx, "find user by email", "email = ?", domain.NormalizeEmail(email))
}

func (r *UserRepositoryImpl) first(ctx context.Context, op, query string, args ...interface{}) (*domain.User, error) {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	var dbUser DBUser
	err := r.db.WithContext(ctx).Where(query, args...).Order("id").First(&dbUser).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrUserNotFound
		}
		return nil, translateStoreError(op, err)
	}
	return r.dbToDomain(&dbUser), nil
}

// Save implements domain.UserRepository with upsert semantics
func (r *UserRepositoryImpl) Save(ctx context.Context, user *domain.User) error {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	dbUser := r.domainToDB(user)
	if err := r.db.WithContext(ctx).Save(dbUser).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return r.duplicateCause(ctx, user)
		}
		return translateStoreError("save user", err)
	}
	user.ID = dbUser.ID
	user.UpdatedAt = dbUser.UpdatedAt
	return nil
}

// SwapRefreshToken implements domain.UserRepository as a conditional update
func (r *UserRepositoryImpl) SwapRefreshToken(ctx context.Context, userID uint, expected, next string) (bool, error) {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	result := r.db.WithContext(ctx).Model(&DBUser{}).
		Where("id = ? AND refresh_token = ?", userID, expected).
		Updates(map[string]interface{}{"refresh_token": next, "updated_at": time.Now()})
	if result.Error != nil {
		return false, translateStoreError("swap refresh token", result.Error)
	}
	return result.RowsAffected == 1, nil
}

// domainToDB converts domain user to database user
func (r *UserRepositoryImpl) domainToDB(user *domain.User) *DBUser {
	return &DBUser{
		ID:            user.ID,
		FullName:      user.FullName,
		Email:         user.Email,
		Phone:         nullable(user.Phone),
		Role:          string(user.Role),
		FederatedID:   nullable(user.FederatedID),
		EmailVerified: user.EmailVerified,
		PhoneVerified: user.PhoneVerified,
		IsActive:      user.IsActive,
		LastLoginAt:   user.LastLoginAt,
		RefreshToken:  user.RefreshToken,
		AgentProfile:  user.AgentProfile,
		CreatedAt:     user.CreatedAt,
		UpdatedAt:     user.UpdatedAt,
	}
}

// dbToDomain converts database user to domain user
func (r *UserRepositoryImpl) dbToDomain(dbUser *DBUser) *domain.User {
	return &domain.User{
		ID:            dbUser.ID,
		FullName:      dbUser.FullName,
		Email:         dbUser.Email,
		Phone:         deref(dbUser.Phone),
		Role:          domain.Role(dbUser.Role),
		FederatedID:   deref(dbUser.FederatedID),
		EmailVerified: dbUser.EmailVerified,
		PhoneVerified: dbUser.PhoneVerified,
		IsActive:      dbUser.IsActive,
		LastLoginAt:   dbUser.LastLoginAt,
		RefreshToken:  dbUser.RefreshToken,
		AgentProfile:  dbUser.AgentProfile,
		CreatedAt:     dbUser.CreatedAt,
		UpdatedAt:     dbUser.UpdatedAt,
	}
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
