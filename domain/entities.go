package domain

import (
	"regexp"
	"strings"
	"time"
)

// Role is the account role
type Role string

const (
	RoleCustomer Role = "Customer"
	RoleAgent    Role = "Agent"
	RoleAdmin    Role = "Admin"
)

// Valid reports whether r is a known role
func (r Role) Valid() bool {
	switch r {
	case RoleCustomer, RoleAgent, RoleAdmin:
		return true
	}
	return false
}

// SelfAssignable reports whether r may be chosen by the user at signup
func (r Role) SelfAssignable() bool {
	return r == RoleCustomer || r == RoleAgent
}

// Purpose is the reason an OTP challenge was issued
type Purpose string

const (
	PurposeSignin       Purpose = "signin"
	PurposeSignup       Purpose = "signup"
	PurposeVerification Purpose = "verification"
)

// Valid reports whether p is a known purpose
func (p Purpose) Valid() bool {
	switch p {
	case PurposeSignin, PurposeSignup, PurposeVerification:
		return true
	}
	return false
}

// AgentProfile holds agent-only attributes
type AgentProfile struct {
	LicenseNumber string  `json:"licenseNumber,omitempty"`
	Experience    int     `json:"experience,omitempty"`
	Rating        float64 `json:"rating"`
	TotalDeals    int     `json:"totalDeals"`
}

// User represents a user in the system
type User struct {
	ID            uint
	FullName      string
	Email         string
	Phone         string
	Role          Role
	FederatedID   string
	EmailVerified bool
	PhoneVerified bool
	IsActive      bool
	LastLoginAt   *time.Time
	RefreshToken  string
	AgentProfile  *AgentProfile
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Challenge is a single OTP proof-of-possession record. CodeHash is the only
// form in which the code is ever stored.
type Challenge struct {
	ID        string
	Phone     string
	CodeHash  string
	Purpose   Purpose
	Attempts  int
	ExpiresAt time.Time
	Used      bool
	CreatedAt time.Time
}

// TokenPair is an access/refresh token pair
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    int64
}

// TokenClaims represents decoded JWT claims
type TokenClaims struct {
	UserID    uint   `json:"user_id"`
	Role      Role   `json:"role,omitempty"`
	TokenID   string `json:"jti"`
	IssuedAt  int64  `json:"iat"`
	ExpiresAt int64  `json:"exp"`
}

// FederatedIdentity is a verified assertion from an external identity provider
type FederatedIdentity struct {
	SubjectID     string
	Email         string
	Name          string
	EmailVerified bool
}

// AuthResult represents authentication outcome
type AuthResult struct {
	User          *User
	Tokens        TokenPair
	RequiresPhone bool
}

// RegisterInput carries signup fields
type RegisterInput struct {
	FullName     string
	Email        string
	Phone        string
	Role         Role
	AgentProfile *AgentProfile
}

// RegisterResult carries the outcome of a signup
type RegisterResult struct {
	UserID    uint
	OTPSent   bool
	ExpiresIn int64
}

var (
	phonePattern = regexp.MustCompile(`^[6-9]\d{9}$`)
	emailPattern = regexp.MustCompile(`^\S+@\S+\.\S+$`)
	namePattern  = regexp.MustCompile(`^[a-zA-Z\s]+$`)
)

// ValidatePhone checks the regional 10-digit mobile format
func ValidatePhone(phone string) error {
	if !phonePattern.MatchString(phone) {
		return ErrInvalidPhone
	}
	return nil
}

// NormalizeEmail trims and lower-cases an email address
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidateEmail checks email shape
func ValidateEmail(email string) error {
	if !emailPattern.MatchString(email) {
		return ErrInvalidEmail
	}
	return nil
}

// ValidateFullName checks length and charset of a display name
func ValidateFullName(name string) error {
	n := len(strings.TrimSpace(name))
	if n < 2 || n > 50 || !namePattern.MatchString(name) {
		return ErrInvalidName
	}
	return nil
}

// ValidateCode checks that code is exactly length ASCII digits
func ValidateCode(code string, length int) error {
	if len(code) != length {
		return ErrInvalidCodeForm
	}
	for i := 0; i < len(code); i++ {
		if code[i] < '0' || code[i] > '9' {
			return ErrInvalidCodeForm
		}
	}
	return nil
}

// Validate checks the signup input and normalizes it in place
func (in *RegisterInput) Validate() error {
	in.FullName = strings.TrimSpace(in.FullName)
	in.Email = NormalizeEmail(in.Email)
	in.Phone = strings.TrimSpace(in.Phone)
	if in.Role == "" {
		in.Role = RoleCustomer
	}

	if err := ValidateFullName(in.FullName); err != nil {
		return err
	}
	if err := ValidateEmail(in.Email); err != nil {
		return err
	}
	if err := ValidatePhone(in.Phone); err != nil {
		return err
	}
	if !in.Role.Valid() || !in.Role.SelfAssignable() {
		return ErrInvalidRole
	}
	return nil
}
