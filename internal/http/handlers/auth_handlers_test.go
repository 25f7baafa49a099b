package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/you/phoneauth/domain"
	"github.com/you/phoneauth/internal/http/middleware"
	"github.com/you/phoneauth/internal/mocks"
)

type envelope struct {
	Success bool                   `json:"success"`
	Message string                 `json:"message"`
	Code    string                 `json:"code"`
	Data    map[string]interface{} `json:"data"`
}

func setupAuthRouter(authSvc *mocks.MockAuthService, tokens *mocks.MockTokenIssuer) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewAuthHandlers(authSvc)
	r := gin.New()
	r.POST("/auth/signup", h.Signup)
	r.POST("/auth/send-otp", h.SendOTP)
	r.POST("/auth/verify-otp", h.VerifyOTP)
	r.POST("/auth/google", h.Google)
	r.POST("/auth/refresh-token", h.Refresh)
	authed := r.Group("/auth").Use(middleware.AuthMiddleware(tokens, authSvc))
	authed.GET("/me", h.Me)
	authed.POST("/logout", h.Logout)
	return r
}

func doJSON(t *testing.T, r http.Handler, method, path string, body interface{}, bearer string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else {
			require.NoError(t, json.NewEncoder(&buf).Encode(body))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return w, env
}

func sampleUser() *domain.User {
	login := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	return &domain.User{
		ID:            7,
		FullName:      "Asha Rao",
		Email:         "asha@example.com",
		Phone:         "9876543210",
		Role:          domain.RoleCustomer,
		PhoneVerified: true,
		IsActive:      true,
		LastLoginAt:   &login,
		RefreshToken:  "stored-refresh-secret",
		CreatedAt:     login,
	}
}

func TestAuthHandlers_Signup(t *testing.T) {
	tests := []struct {
		name           string
		body           interface{}
		setupMocks     func(*mocks.MockAuthService)
		expectedStatus int
		expectedCode   string
		validate       func(t *testing.T, env envelope)
	}{
		{
			name: "creates account and sends code",
			body: map[string]interface{}{
				"fullName": "Asha Rao",
				"email":    "asha@example.com",
				"phone":    "9876543210",
				"role":     "Agent",
				"agentProfile": map[string]interface{}{
					"licenseNumber": "LIC-1",
					"experience":    4,
				},
			},
			setupMocks: func(m *mocks.MockAuthService) {
				m.RegisterFunc = func(ctx context.Context, in domain.RegisterInput) (*domain.RegisterResult, error) {
					if in.Role != domain.RoleAgent || in.AgentProfile == nil || in.AgentProfile.LicenseNumber != "LIC-1" {
						return nil, errors.New("unexpected input")
					}
					return &domain.RegisterResult{UserID: 3, OTPSent: true, ExpiresIn: 600}, nil
				}
			},
			expectedStatus: http.StatusCreated,
			validate: func(t *testing.T, env envelope) {
				assert.Equal(t, float64(3), env.Data["userId"])
				assert.Equal(t, true, env.Data["requiresOTP"])
				assert.Equal(t, true, env.Data["otpSent"])
				assert.Equal(t, float64(600), env.Data["expiresIn"])
			},
		},
		{
			name: "account created but code not sent",
			body: map[string]interface{}{"fullName": "Asha Rao", "email": "asha@example.com", "phone": "9876543210"},
			setupMocks: func(m *mocks.MockAuthService) {
				m.RegisterFunc = func(ctx context.Context, in domain.RegisterInput) (*domain.RegisterResult, error) {
					return &domain.RegisterResult{UserID: 4}, nil
				}
			},
			expectedStatus: http.StatusCreated,
			validate: func(t *testing.T, env envelope) {
				assert.Equal(t, false, env.Data["otpSent"])
				assert.Contains(t, env.Message, "request a new code")
			},
		},
		{
			name:           "missing required fields",
			body:           map[string]interface{}{"email": "asha@example.com"},
			expectedStatus: http.StatusBadRequest,
			expectedCode:   string(domain.CodeInvalidInput),
		},
		{
			name:           "malformed json",
			body:           "{not json",
			expectedStatus: http.StatusBadRequest,
			expectedCode:   string(domain.CodeInvalidInput),
		},
		{
			name: "email conflict",
			body: map[string]interface{}{"fullName": "Asha Rao", "email": "asha@example.com", "phone": "9876543210"},
			setupMocks: func(m *mocks.MockAuthService) {
				m.RegisterFunc = func(ctx context.Context, in domain.RegisterInput) (*domain.RegisterResult, error) {
					return nil, domain.ErrEmailExists
				}
			},
			expectedStatus: http.StatusConflict,
			expectedCode:   string(domain.CodeConflict),
		},
		{
			name: "invalid phone",
			body: map[string]interface{}{"fullName": "Asha Rao", "email": "asha@example.com", "phone": "12"},
			setupMocks: func(m *mocks.MockAuthService) {
				m.RegisterFunc = func(ctx context.Context, in domain.RegisterInput) (*domain.RegisterResult, error) {
					return nil, domain.ErrInvalidPhone
				}
			},
			expectedStatus: http.StatusBadRequest,
			expectedCode:   string(domain.CodeInvalidInput),
		},
		{
			name: "unclassified failure hides details",
			body: map[string]interface{}{"fullName": "Asha Rao", "email": "asha@example.com", "phone": "9876543210"},
			setupMocks: func(m *mocks.MockAuthService) {
				m.RegisterFunc = func(ctx context.Context, in domain.RegisterInput) (*domain.RegisterResult, error) {
					return nil, errors.New("pq: relation users does not exist")
				}
			},
			expectedStatus: http.StatusInternalServerError,
			expectedCode:   string(domain.CodeInternal),
			validate: func(t *testing.T, env envelope) {
				assert.Equal(t, "Something went wrong", env.Message)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			authSvc := mocks.NewMockAuthService()
			if tt.setupMocks != nil {
				tt.setupMocks(authSvc)
			}
			r := setupAuthRouter(authSvc, mocks.NewMockTokenIssuer())

			w, env := doJSON(t, r, http.MethodPost, "/auth/signup", tt.body, "")

			assert.Equal(t, tt.expectedStatus, w.Code)
			assert.Equal(t, tt.expectedStatus < 300, env.Success)
			if tt.expectedCode != "" {
				assert.Equal(t, tt.expectedCode, env.Code)
			}
			if tt.validate != nil {
				tt.validate(t, env)
			}
		})
	}
}

func TestAuthHandlers_SendOTP(t *testing.T) {
	tests := []struct {
		name           string
		body           interface{}
		err            error
		expectedStatus int
		expectedType   domain.Purpose
	}{
		{"default purpose", map[string]string{"phone": "9876543210"}, nil, http.StatusOK, ""},
		{"signup purpose", map[string]string{"phone": "9876543210", "type": "signup"}, nil, http.StatusOK, domain.PurposeSignup},
		{"unknown user", map[string]string{"phone": "9876543210"}, domain.ErrUserNotFound, http.StatusNotFound, ""},
		{"rate limited", map[string]string{"phone": "9876543210"}, domain.ErrOTPRateLimited, http.StatusTooManyRequests, ""},
		{"send failure", map[string]string{"phone": "9876543210"}, domain.Wrap(domain.ErrOTPSendFailed, errors.New("twilio 500")), http.StatusServiceUnavailable, ""},
		{"missing phone", map[string]string{}, nil, http.StatusBadRequest, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			authSvc := mocks.NewMockAuthService()
			var gotPurpose domain.Purpose
			authSvc.RequestOTPFunc = func(ctx context.Context, phone string, purpose domain.Purpose) (int64, error) {
				gotPurpose = purpose
				if tt.err != nil {
					return 0, tt.err
				}
				return 600, nil
			}
			r := setupAuthRouter(authSvc, mocks.NewMockTokenIssuer())

			w, env := doJSON(t, r, http.MethodPost, "/auth/send-otp", tt.body, "")

			assert.Equal(t, tt.expectedStatus, w.Code)
			if tt.expectedStatus == http.StatusOK {
				assert.True(t, env.Success)
				assert.Equal(t, float64(600), env.Data["expiresIn"])
				assert.Equal(t, tt.expectedType, gotPurpose)
			} else {
				assert.False(t, env.Success)
				assert.NotEmpty(t, env.Code)
			}
		})
	}
}

func TestAuthHandlers_VerifyOTP(t *testing.T) {
	tests := []struct {
		name           string
		err            error
		expectedStatus int
		expectedCode   domain.ErrorCode
	}{
		{"success", nil, http.StatusOK, ""},
		{"wrong code", domain.ErrOTPInvalid, http.StatusBadRequest, domain.CodeInvalidCode},
		{"expired", domain.ErrOTPExpired, http.StatusBadRequest, domain.CodeExpired},
		{"exhausted", domain.ErrOTPMaxAttempts, http.StatusBadRequest, domain.CodeMaxAttemptsExceeded},
		{"no challenge", domain.ErrOTPNotFound, http.StatusNotFound, domain.CodeNotFound},
		{"store down", domain.Wrap(domain.ErrServiceUnavailable, context.DeadlineExceeded), http.StatusServiceUnavailable, domain.CodeServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			authSvc := mocks.NewMockAuthService()
			authSvc.VerifyOTPAndSignInFunc = func(ctx context.Context, phone, code string) (*domain.AuthResult, error) {
				if tt.err != nil {
					return nil, tt.err
				}
				return &domain.AuthResult{
					User:   sampleUser(),
					Tokens: domain.TokenPair{AccessToken: "a", RefreshToken: "r", ExpiresIn: 900},
				}, nil
			}
			r := setupAuthRouter(authSvc, mocks.NewMockTokenIssuer())

			w, env := doJSON(t, r, http.MethodPost, "/auth/verify-otp", map[string]string{"phone": "9876543210", "otp": "123456"}, "")

			assert.Equal(t, tt.expectedStatus, w.Code)
			if tt.err != nil {
				assert.Equal(t, string(tt.expectedCode), env.Code)
				assert.Equal(t, domain.MessageOf(tt.err), env.Message)
				return
			}
			user := env.Data["user"].(map[string]interface{})
			assert.Equal(t, "asha@example.com", user["email"])
			assert.Equal(t, true, user["isPhoneVerified"])
			assert.NotContains(t, w.Body.String(), "stored-refresh-secret")
			tokens := env.Data["tokens"].(map[string]interface{})
			assert.Equal(t, "a", tokens["accessToken"])
			assert.Equal(t, "r", tokens["refreshToken"])
			assert.Equal(t, "Bearer", tokens["tokenType"])
		})
	}
}

func TestAuthHandlers_Google(t *testing.T) {
	authSvc := mocks.NewMockAuthService()
	var gotRole domain.Role
	authSvc.FederatedSignInFunc = func(ctx context.Context, idToken string, role domain.Role) (*domain.AuthResult, error) {
		gotRole = role
		if idToken != "good-token" {
			return nil, domain.ErrIdentityTokenInvalid
		}
		u := sampleUser()
		u.Phone = ""
		return &domain.AuthResult{User: u, Tokens: domain.TokenPair{AccessToken: "a", RefreshToken: "r"}, RequiresPhone: true}, nil
	}
	r := setupAuthRouter(authSvc, mocks.NewMockTokenIssuer())

	w, env := doJSON(t, r, http.MethodPost, "/auth/google", map[string]string{"idToken": "good-token", "role": "Agent"}, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, domain.RoleAgent, gotRole)
	assert.Equal(t, true, env.Data["requiresPhone"])

	w, env = doJSON(t, r, http.MethodPost, "/auth/google", map[string]string{"idToken": "forged"}, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, string(domain.CodeUnauthorized), env.Code)

	w, _ = doJSON(t, r, http.MethodPost, "/auth/google", map[string]string{}, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAuthHandlers_Refresh(t *testing.T) {
	authSvc := mocks.NewMockAuthService()
	authSvc.RefreshFunc = func(ctx context.Context, token string) (domain.TokenPair, error) {
		switch token {
		case "current":
			return domain.TokenPair{AccessToken: "a2", RefreshToken: "r2", ExpiresIn: 900}, nil
		case "raced":
			return domain.TokenPair{}, domain.ErrConcurrentRefresh
		}
		return domain.TokenPair{}, domain.ErrRefreshTokenMismatch
	}
	r := setupAuthRouter(authSvc, mocks.NewMockTokenIssuer())

	w, env := doJSON(t, r, http.MethodPost, "/auth/refresh-token", map[string]string{"refreshToken": "current"}, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "a2", env.Data["accessToken"])
	assert.Equal(t, "r2", env.Data["refreshToken"])

	for _, token := range []string{"stale", "raced"} {
		w, env = doJSON(t, r, http.MethodPost, "/auth/refresh-token", map[string]string{"refreshToken": token}, "")
		assert.Equal(t, http.StatusUnauthorized, w.Code, token)
		assert.False(t, env.Success)
	}
}

func TestAuthHandlers_ProtectedRoutes(t *testing.T) {
	expired := func(token string) (*domain.TokenClaims, error) {
		if token == "expired" {
			return nil, domain.ErrTokenExpired
		}
		return mocks.NewMockTokenIssuer().VerifyAccessToken(token)
	}

	tests := []struct {
		name           string
		method         string
		path           string
		bearer         string
		user           *domain.User
		expectedStatus int
		expectedMsg    string
	}{
		{"me without token", http.MethodGet, "/auth/me", "", nil, http.StatusUnauthorized, "You are not logged in"},
		{"me with garbage token", http.MethodGet, "/auth/me", "garbage", nil, http.StatusUnauthorized, "Invalid token"},
		{"me with expired token", http.MethodGet, "/auth/me", "expired", nil, http.StatusUnauthorized, "expired"},
		{"me for deleted user", http.MethodGet, "/auth/me", "access-7", nil, http.StatusUnauthorized, "no longer exists"},
		{"me for inactive user", http.MethodGet, "/auth/me", "access-7", &domain.User{ID: 7, Role: domain.RoleCustomer}, http.StatusUnauthorized, "no longer exists"},
		{"me succeeds", http.MethodGet, "/auth/me", "access-7", sampleUser(), http.StatusOK, "User retrieved successfully"},
		{"logout succeeds", http.MethodPost, "/auth/logout", "access-7", sampleUser(), http.StatusOK, "Logged out successfully"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			authSvc := mocks.NewMockAuthService()
			authSvc.CurrentUserFunc = func(ctx context.Context, id uint) (*domain.User, error) {
				if tt.user == nil || tt.user.ID != id {
					return nil, domain.ErrUserNotFound
				}
				return tt.user, nil
			}
			var loggedOut uint
			authSvc.LogoutFunc = func(ctx context.Context, id uint) error {
				loggedOut = id
				return nil
			}
			tokens := mocks.NewMockTokenIssuer()
			tokens.VerifyAccessTokenFunc = expired
			r := setupAuthRouter(authSvc, tokens)

			w, env := doJSON(t, r, tt.method, tt.path, nil, tt.bearer)

			assert.Equal(t, tt.expectedStatus, w.Code)
			if tt.expectedMsg != "" {
				assert.Contains(t, env.Message, tt.expectedMsg)
			}
			if tt.path == "/auth/me" && w.Code == http.StatusOK {
				user := env.Data["user"].(map[string]interface{})
				assert.Equal(t, float64(7), user["id"])
				assert.NotContains(t, w.Body.String(), "stored-refresh-secret")
			}
			if tt.path == "/auth/logout" && w.Code == http.StatusOK {
				assert.Equal(t, uint(7), loggedOut)
			}
		})
	}
}
