package auth

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"github.com/you/phoneauth/domain"
)

// BcryptCodeHasher implements domain.CodeHasher. bcrypt salts every hash and
// compares in constant time.
type BcryptCodeHasher struct {
	cost int
}

// NewBcryptCodeHasher creates a hasher; cost outside bcrypt's range falls back to the default
func NewBcryptCodeHasher(cost int) *BcryptCodeHasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &BcryptCodeHasher{cost: cost}
}

// Hash implements domain.CodeHasher
func (h *BcryptCodeHasher) Hash(code string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(code), h.cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash otp code: %w", err)
	}
	return string(hashed), nil
}

// Compare implements domain.CodeHasher
func (h *BcryptCodeHasher) Compare(hash, code string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(code)) == nil
}

var _ domain.CodeHasher = (*BcryptCodeHasher)(nil)
