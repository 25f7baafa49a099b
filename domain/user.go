package domain

import (
	"strings"
	"time"
)

// NewUser builds a user record for creation. Exactly one identifying
// credential (phone or federated id) must be present.
func NewUser(fullName, email, phone, federatedID string, role Role, now time.Time) (User, error) {
	hasPhone := strings.TrimSpace(phone) != ""
	hasFederated := strings.TrimSpace(federatedID) != ""
	if hasPhone == hasFederated {
		return User{}, ErrMissingIdentity
	}
	if role == "" {
		role = RoleCustomer
	}
	if !role.Valid() {
		return User{}, ErrInvalidRole
	}
	return User{
		FullName:    strings.TrimSpace(fullName),
		Email:       NormalizeEmail(email),
		Phone:       phone,
		FederatedID: federatedID,
		Role:        role,
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// WithPhoneLogin returns u after a successful OTP sign-in
func WithPhoneLogin(u User, now time.Time) User {
	u.PhoneVerified = true
	u.LastLoginAt = &now
	u.UpdatedAt = now
	return u
}

// WithFederatedLogin returns u after a federated sign-in, linking the
// subject id when none is set yet.
func WithFederatedLogin(u User, id FederatedIdentity, now time.Time) User {
	if u.FederatedID == "" {
		u.FederatedID = id.SubjectID
	}
	if id.EmailVerified {
		u.EmailVerified = true
	}
	u.LastLoginAt = &now
	u.UpdatedAt = now
	return u
}

// WithRefreshToken returns u holding token as its single active refresh token
func WithRefreshToken(u User, token string, now time.Time) User {
	u.RefreshToken = token
	u.UpdatedAt = now
	return u
}

// WithoutRefreshToken returns u with its session revoked
func WithoutRefreshToken(u User, now time.Time) User {
	return WithRefreshToken(u, "", now)
}
