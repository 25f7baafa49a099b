package services

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/you/phoneauth/domain"
	"github.com/you/phoneauth/internal/infrastructure/metrics"
)

// AuthServiceImpl implements domain.AuthService
type AuthServiceImpl struct {
	users    domain.UserRepository
	otpSvc   domain.OTPService
	tokens   domain.TokenIssuer
	identity domain.IdentityVerifier
	audit    domain.AuditLogger
	logger   *zap.Logger
	now      func() time.Time
}

// NewAuthService creates a new auth service
func NewAuthService(
	users domain.UserRepository,
	otpSvc domain.OTPService,
	tokens domain.TokenIssuer,
	identity domain.IdentityVerifier,
	audit domain.AuditLogger,
	logger *zap.Logger,
	now func() time.Time,
) domain.AuthService {
	if now == nil {
		now = time.Now
	}
	return &AuthServiceImpl{
		users:    users,
		otpSvc:   otpSvc,
		tokens:   tokens,
		identity: identity,
		audit:    audit,
		logger:   logger.Named("auth"),
		now:      now,
	}
}

// Register implements domain.AuthService
func (s *AuthServiceImpl) Register(ctx context.Context, in domain.RegisterInput) (*domain.RegisterResult, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	existing, err := s.users.FindByEmailOrPhone(ctx, in.Email, in.Phone)
	switch {
	case err == nil && existing.Email == in.Email:
		return nil, domain.ErrEmailExists
	case err == nil:
		return nil, domain.ErrPhoneExists
	case !errors.Is(err, domain.ErrUserNotFound):
		return nil, err
	}

	user, err := domain.NewUser(in.FullName, in.Email, in.Phone, "", in.Role, s.now())
	if err != nil {
		return nil, err
	}
	if in.Role == domain.RoleAgent && in.AgentProfile != nil {
		profile := *in.AgentProfile
		user.AgentProfile = &profile
	}
	// the unique indexes settle races the lookup above cannot see
	if err := s.users.Create(ctx, &user); err != nil {
		return nil, err
	}

	s.audit.LogEvent(ctx, domain.NewAuditEvent(domain.UserRegistrationEvent, user.ID).
		WithEmail(user.Email).
		WithPhone(user.Phone).
		WithMetadata("role", string(user.Role)))

	result := &domain.RegisterResult{UserID: user.ID}
	expiresIn, err := s.otpSvc.RequestChallenge(ctx, user.Phone, domain.PurposeSignup)
	if err != nil {
		s.logger.Warn("signup challenge not sent", zap.Uint("user_id", user.ID), zap.Error(err))
		return result, nil
	}
	result.OTPSent = true
	result.ExpiresIn = expiresIn
	return result, nil
}

// RequestOTP implements domain.AuthService
func (s *AuthServiceImpl) RequestOTP(ctx context.Context, phone string, purpose domain.Purpose) (int64, error) {
	if purpose == "" {
		purpose = domain.PurposeSignin
	}
	return s.otpSvc.RequestChallenge(ctx, phone, purpose)
}

// VerifyOTPAndSignIn implements domain.AuthService
func (s *AuthServiceImpl) VerifyOTPAndSignIn(ctx context.Context, phone, code string) (*domain.AuthResult, error) {
	if err := s.otpSvc.VerifyChallenge(ctx, phone, code); err != nil {
		return nil, err
	}

	user, err := s.users.FindActiveByPhone(ctx, phone)
	if err != nil {
		return nil, err
	}

	pair, err := s.tokens.IssueTokenPair(user.ID, user.Role)
	if err != nil {
		return nil, err
	}
	now := s.now()
	signedIn := domain.WithRefreshToken(domain.WithPhoneLogin(*user, now), pair.RefreshToken, now)
	if err := s.users.Save(ctx, &signedIn); err != nil {
		return nil, err
	}

	metrics.TokenIssuedCounter.WithLabelValues("login").Inc()
	s.audit.LogEvent(ctx, domain.NewAuditEvent(domain.UserLoginEvent, signedIn.ID).WithPhone(phone))
	return &domain.AuthResult{User: &signedIn, Tokens: pair}, nil
}

// FederatedSignIn implements domain.AuthService. Lookup by subject id and by
// email are separate passes; an email match only links when it carries no
// federated id of its own.
func (s *AuthServiceImpl) FederatedSignIn(ctx context.Context, idToken string, role domain.Role) (*domain.AuthResult, error) {
	if role == "" {
		role = domain.RoleCustomer
	}
	if !role.Valid() || !role.SelfAssignable() {
		return nil, domain.ErrInvalidRole
	}

	identity, err := s.identity.VerifyIdentityToken(ctx, idToken)
	if err != nil {
		return nil, err
	}

	user, err := s.resolveFederatedUser(ctx, identity, role)
	if err != nil {
		return nil, err
	}
	if !user.IsActive {
		return nil, domain.ErrUserInactive
	}

	pair, err := s.tokens.IssueTokenPair(user.ID, user.Role)
	if err != nil {
		return nil, err
	}
	now := s.now()
	signedIn := domain.WithRefreshToken(domain.WithFederatedLogin(*user, *identity, now), pair.RefreshToken, now)
	if err := s.users.Save(ctx, &signedIn); err != nil {
		return nil, err
	}

	metrics.TokenIssuedCounter.WithLabelValues("federated").Inc()
	s.audit.LogEvent(ctx, domain.NewAuditEvent(domain.FederatedLoginEvent, signedIn.ID).WithEmail(signedIn.Email))
	return &domain.AuthResult{
		User:          &signedIn,
		Tokens:        pair,
		RequiresPhone: signedIn.Phone == "",
	}, nil
}

func (s *AuthServiceImpl) resolveFederatedUser(ctx context.Context, identity *domain.FederatedIdentity, role domain.Role) (*domain.User, error) {
	user, err := s.users.FindByFederatedID(ctx, identity.SubjectID)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, domain.ErrUserNotFound) {
		return nil, err
	}

	user, err = s.users.FindByEmail(ctx, identity.Email)
	if err == nil {
		if user.FederatedID != "" && user.FederatedID != identity.SubjectID {
			return nil, domain.ErrIdentityLink
		}
		return user, nil
	}
	if !errors.Is(err, domain.ErrUserNotFound) {
		return nil, err
	}

	created, err := domain.NewUser(identity.Name, identity.Email, "", identity.SubjectID, role, s.now())
	if err != nil {
		return nil, err
	}
	created.EmailVerified = identity.EmailVerified
	if err := s.users.Create(ctx, &created); err != nil {
		return nil, err
	}
	s.audit.LogEvent(ctx, domain.NewAuditEvent(domain.UserRegistrationEvent, created.ID).
		WithEmail(created.Email).
		WithMetadata("provider", "google"))
	return &created, nil
}

// Refresh implements domain.AuthService
func (s *AuthServiceImpl) Refresh(ctx context.Context, refreshToken string) (domain.TokenPair, error) {
	user, err := s.tokens.VerifyRefreshToken(ctx, refreshToken)
	if err != nil {
		return domain.TokenPair{}, err
	}
	pair, err := s.tokens.RotateOnRefresh(ctx, user)
	if err != nil {
		return domain.TokenPair{}, err
	}

	metrics.TokenIssuedCounter.WithLabelValues("refresh").Inc()
	s.audit.LogEvent(ctx, domain.NewAuditEvent(domain.TokenRefreshEvent, user.ID))
	return pair, nil
}

// Logout implements domain.AuthService
func (s *AuthServiceImpl) Logout(ctx context.Context, userID uint) error {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return err
	}
	loggedOut := domain.WithoutRefreshToken(*user, s.now())
	if err := s.users.Save(ctx, &loggedOut); err != nil {
		return err
	}
	s.audit.LogEvent(ctx, domain.NewAuditEvent(domain.UserLogoutEvent, userID))
	return nil
}

// CurrentUser implements domain.AuthService
func (s *AuthServiceImpl) CurrentUser(ctx context.Context, userID uint) (*domain.User, error) {
	return s.users.FindByID(ctx, userID)
}
