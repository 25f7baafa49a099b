package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/you/phoneauth/domain"
	"github.com/you/phoneauth/internal/http/middleware"
	"github.com/you/phoneauth/internal/http/response"
)

// AuthHandlers handles authentication HTTP requests
type AuthHandlers struct {
	authSvc domain.AuthService
}

// NewAuthHandlers creates new auth handlers
func NewAuthHandlers(authSvc domain.AuthService) *AuthHandlers {
	return &AuthHandlers{authSvc: authSvc}
}

// AgentProfileRequest carries the optional agent attributes at signup
type AgentProfileRequest struct {
	LicenseNumber string `json:"licenseNumber"`
	Experience    int    `json:"experience" binding:"min=0"`
}

// SignupRequest represents a registration request
type SignupRequest struct {
	FullName     string               `json:"fullName" binding:"required"`
	Email        string               `json:"email" binding:"required"`
	Phone        string               `json:"phone" binding:"required"`
	Role         string               `json:"role,omitempty"`
	AgentProfile *AgentProfileRequest `json:"agentProfile,omitempty"`
}

// SendOTPRequest represents a challenge request
type SendOTPRequest struct {
	Phone string `json:"phone" binding:"required"`
	Type  string `json:"type,omitempty"`
}

// VerifyOTPRequest represents a code submission
type VerifyOTPRequest struct {
	Phone string `json:"phone" binding:"required"`
	OTP   string `json:"otp" binding:"required"`
}

// GoogleAuthRequest represents a federated sign-in request
type GoogleAuthRequest struct {
	IDToken string `json:"idToken" binding:"required"`
	Role    string `json:"role,omitempty"`
}

// RefreshRequest represents token refresh request
type RefreshRequest struct {
	RefreshToken string `json:"refreshToken" binding:"required"`
}

// UserResponse is the public view of a user; the refresh token is never part of it
type UserResponse struct {
	ID              uint                 `json:"id"`
	FullName        string               `json:"fullName"`
	Email           string               `json:"email"`
	Phone           string               `json:"phone,omitempty"`
	Role            domain.Role          `json:"role"`
	IsEmailVerified bool                 `json:"isEmailVerified"`
	IsPhoneVerified bool                 `json:"isPhoneVerified"`
	IsActive        bool                 `json:"isActive"`
	LastLogin       *time.Time           `json:"lastLogin,omitempty"`
	AgentProfile    *domain.AgentProfile `json:"agentProfile,omitempty"`
	CreatedAt       time.Time            `json:"createdAt"`
}

// TokensResponse is the wire form of a token pair
type TokensResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	TokenType    string `json:"tokenType"`
	ExpiresIn    int64  `json:"expiresIn"`
}

// NewUserResponse builds the public view of u
func NewUserResponse(u *domain.User) UserResponse {
	return UserResponse{
		ID:              u.ID,
		FullName:        u.FullName,
		Email:           u.Email,
		Phone:           u.Phone,
		Role:            u.Role,
		IsEmailVerified: u.EmailVerified,
		IsPhoneVerified: u.PhoneVerified,
		IsActive:        u.IsActive,
		LastLogin:       u.LastLoginAt,
		AgentProfile:    u.AgentProfile,
		CreatedAt:       u.CreatedAt,
	}
}

func newTokensResponse(p domain.TokenPair) TokensResponse {
	return TokensResponse{
		AccessToken:  p.AccessToken,
		RefreshToken: p.RefreshToken,
		TokenType:    "Bearer",
		ExpiresIn:    p.ExpiresIn,
	}
}

// Signup handles user registration
func (h *AuthHandlers) Signup(c *gin.Context) {
	var req SignupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err)
		return
	}

	in := domain.RegisterInput{
		FullName: req.FullName,
		Email:    req.Email,
		Phone:    req.Phone,
		Role:     domain.Role(req.Role),
	}
	if req.AgentProfile != nil {
		in.AgentProfile = &domain.AgentProfile{
			LicenseNumber: req.AgentProfile.LicenseNumber,
			Experience:    req.AgentProfile.Experience,
		}
	}

	result, err := h.authSvc.Register(c.Request.Context(), in)
	if err != nil {
		response.Fail(c, err)
		return
	}

	message := "Account created successfully. Please verify your phone."
	if !result.OTPSent {
		message = "Account created, but the verification code could not be sent. Please request a new code."
	}
	response.OK(c, http.StatusCreated, message, gin.H{
		"userId":      result.UserID,
		"requiresOTP": true,
		"otpSent":     result.OTPSent,
		"expiresIn":   result.ExpiresIn,
	})
}

// SendOTP issues a one-time code to a phone
func (h *AuthHandlers) SendOTP(c *gin.Context) {
	var req SendOTPRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err)
		return
	}

	expiresIn, err := h.authSvc.RequestOTP(c.Request.Context(), req.Phone, domain.Purpose(req.Type))
	if err != nil {
		response.Fail(c, err)
		return
	}

	response.OK(c, http.StatusOK, "OTP sent successfully", gin.H{"expiresIn": expiresIn})
}

// VerifyOTP exchanges a valid code for a session
func (h *AuthHandlers) VerifyOTP(c *gin.Context) {
	var req VerifyOTPRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err)
		return
	}

	result, err := h.authSvc.VerifyOTPAndSignIn(c.Request.Context(), req.Phone, req.OTP)
	if err != nil {
		response.Fail(c, err)
		return
	}

	response.OK(c, http.StatusOK, "Login successful", gin.H{
		"user":   NewUserResponse(result.User),
		"tokens": newTokensResponse(result.Tokens),
	})
}

// Google signs a user in with a Google ID token
func (h *AuthHandlers) Google(c *gin.Context) {
	var req GoogleAuthRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err)
		return
	}

	result, err := h.authSvc.FederatedSignIn(c.Request.Context(), req.IDToken, domain.Role(req.Role))
	if err != nil {
		response.Fail(c, err)
		return
	}

	response.OK(c, http.StatusOK, "Google authentication successful", gin.H{
		"user":          NewUserResponse(result.User),
		"tokens":        newTokensResponse(result.Tokens),
		"requiresPhone": result.RequiresPhone,
	})
}

// Refresh rotates the caller's token pair
func (h *AuthHandlers) Refresh(c *gin.Context) {
	var req RefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err)
		return
	}

	pair, err := h.authSvc.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		response.Fail(c, err)
		return
	}

	response.OK(c, http.StatusOK, "Token refreshed successfully", newTokensResponse(pair))
}

// Logout revokes the caller's refresh token
func (h *AuthHandlers) Logout(c *gin.Context) {
	userID, ok := middleware.CurrentUserID(c)
	if !ok {
		response.Fail(c, domain.ErrUnauthorized)
		return
	}

	if err := h.authSvc.Logout(c.Request.Context(), userID); err != nil {
		response.Fail(c, err)
		return
	}

	response.OK(c, http.StatusOK, "Logged out successfully", nil)
}

// Me returns the caller's profile
func (h *AuthHandlers) Me(c *gin.Context) {
	userID, ok := middleware.CurrentUserID(c)
	if !ok {
		response.Fail(c, domain.ErrUnauthorized)
		return
	}

	user, err := h.authSvc.CurrentUser(c.Request.Context(), userID)
	if err != nil {
		response.Fail(c, err)
		return
	}

	response.OK(c, http.StatusOK, "User retrieved successfully", gin.H{"user": NewUserResponse(user)})
}
