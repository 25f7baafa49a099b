package repositories

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/you/phoneauth/domain"
)

// DBChallenge is the relational form of an OTP challenge
type DBChallenge struct {
	ID        string    `gorm:"primaryKey;size:36"`
	Phone     string    `gorm:"index:idx_otp_phone_created;size:32;not null"`
	CodeHash  string    `gorm:"size:255;not null"`
	Purpose   string    `gorm:"size:16;not null"`
	Attempts  int       `gorm:"not null"`
	ExpiresAt time.Time `gorm:"index;not null"`
	Used      bool      `gorm:"not null"`
	CreatedAt time.Time `gorm:"index:idx_otp_phone_created;not null"`
}

// TableName returns the table name for GORM
func (DBChallenge) TableName() string {
	return "otp_challenges"
}

// ChallengeRepositoryImpl implements domain.ChallengeRepository using GORM
type ChallengeRepositoryImpl struct {
	db      *gorm.DB
	timeout time.Duration
}

// NewChallengeRepository creates a relational challenge store
func NewChallengeRepository(db *gorm.DB, timeout time.Duration) domain.ChallengeRepository {
	return &ChallengeRepositoryImpl{db: db, timeout: timeout}
}

// Create implements domain.ChallengeRepository
func (r *ChallengeRepositoryImpl) Create(ctx context.Context, c *domain.Challenge) error {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	row := &DBChallenge{
		ID:        c.ID,
		Phone:     c.Phone,
		CodeHash:  c.CodeHash,
		Purpose:   string(c.Purpose),
		Attempts:  c.Attempts,
		ExpiresAt: c.ExpiresAt,
		Used:      c.Used,
		CreatedAt: c.CreatedAt,
	}
	return translateStoreError("create challenge", r.db.WithContext(ctx).Create(row).Error)
}

// FindLatestValidForPhone implements domain.ChallengeRepository
func (r *ChallengeRepositoryImpl) FindLatestValidForPhone(ctx context.Context, phone string, now time.Time) (*domain.Challenge, error) {
	return r.latest(ctx, r.db.Where("phone = ? AND used = ? AND expires_at >= ?", phone, false, now))
}

// FindLatestForPhone implements domain.ChallengeRepository
func (r *ChallengeRepositoryImpl) FindLatestForPhone(ctx context.Context, phone string) (*domain.Challenge, error) {
	return r.latest(ctx, r.db.Where("phone = ?", phone))
}

func (r *ChallengeRepositoryImpl) latest(ctx context.Context, scope *gorm.DB) (*domain.Challenge, error) {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	var row DBChallenge
	err := scope.WithContext(ctx).Order("created_at DESC").Order("id DESC").First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrOTPNotFound
		}
		return nil, translateStoreError("find challenge", err)
	}
	return &domain.Challenge{
		ID:        row.ID,
		Phone:     row.Phone,
		CodeHash:  row.CodeHash,
		Purpose:   domain.Purpose(row.Purpose),
		Attempts:  row.Attempts,
		ExpiresAt: row.ExpiresAt,
		Used:      row.Used,
		CreatedAt: row.CreatedAt,
	}, nil
}

// CountRecentForPhone implements domain.ChallengeRepository
func (r *ChallengeRepositoryImpl) CountRecentForPhone(ctx context.Context, phone string, windowStart time.Time) (int64, error) {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	var count int64
	err := r.db.WithContext(ctx).Model(&DBChallenge{}).
		Where("phone = ? AND created_at >= ?", phone, windowStart).
		Count(&count).Error
	return count, translateStoreError("count challenges", err)
}

// ReserveAttempt implements domain.ChallengeRepository
func (r *ChallengeRepositoryImpl) ReserveAttempt(ctx context.Context, id string, maxAttempts int) (bool, error) {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	result := r.db.WithContext(ctx).Model(&DBChallenge{}).
		Where("id = ? AND used = ? AND attempts < ?", id, false, maxAttempts).
		UpdateColumn("attempts", gorm.Expr("attempts + 1"))
	if result.Error != nil {
		return false, translateStoreError("reserve attempt", result.Error)
	}
	return result.RowsAffected == 1, nil
}

// MarkUsedIfUnused implements domain.ChallengeRepository
func (r *ChallengeRepositoryImpl) MarkUsedIfUnused(ctx context.Context, id string) (bool, error) {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	result := r.db.WithContext(ctx).Model(&DBChallenge{}).
		Where("id = ? AND used = ?", id, false).
		UpdateColumn("used", true)
	if result.Error != nil {
		return false, translateStoreError("mark challenge used", result.Error)
	}
	return result.RowsAffected == 1, nil
}

// Delete implements domain.ChallengeRepository
func (r *ChallengeRepositoryImpl) Delete(ctx context.Context, id string) error {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	return translateStoreError("delete challenge", r.db.WithContext(ctx).Delete(&DBChallenge{}, "id = ?", id).Error)
}

// DeleteStaleForPhone implements domain.ChallengeRepository
func (r *ChallengeRepositoryImpl) DeleteStaleForPhone(ctx context.Context, phone string, now time.Time) error {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	err := r.db.WithContext(ctx).
		Where("phone = ? AND (used = ? OR expires_at < ?)", phone, true, now).
		Delete(&DBChallenge{}).Error
	return translateStoreError("delete stale challenges", err)
}

// DeleteStale implements domain.ChallengeRepository
func (r *ChallengeRepositoryImpl) DeleteStale(ctx context.Context, now time.Time) (int64, error) {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	result := r.db.WithContext(ctx).Where("used = ? OR expires_at < ?", true, now).Delete(&DBChallenge{})
	return result.RowsAffected, translateStoreError("sweep challenges", result.Error)
}
