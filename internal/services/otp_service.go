package services

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/you/phoneauth/domain"
	"github.com/you/phoneauth/internal/infrastructure/metrics"
)

// OTPConfig carries the challenge policy
type OTPConfig struct {
	Length      int
	TTL         time.Duration
	MaxAttempts int
	RateWindow  time.Duration
	MaxRequests int
}

// OTPServiceImpl implements domain.OTPService over a challenge store
type OTPServiceImpl struct {
	challenges domain.ChallengeRepository
	users      domain.UserRepository
	notifier   domain.NotificationService
	hasher     domain.CodeHasher
	audit      domain.AuditLogger
	logger     *zap.Logger
	config     OTPConfig

	now      func() time.Time
	generate func(length int) (string, error)
	newID    func() string
}

// OTPOption customizes an OTPServiceImpl
type OTPOption func(*OTPServiceImpl)

// WithOTPClock replaces the wall clock
func WithOTPClock(now func() time.Time) OTPOption {
	return func(s *OTPServiceImpl) { s.now = now }
}

// WithCodeGenerator replaces the random code source
func WithCodeGenerator(generate func(length int) (string, error)) OTPOption {
	return func(s *OTPServiceImpl) { s.generate = generate }
}

// NewOTPService creates a new OTP lifecycle manager
func NewOTPService(
	challenges domain.ChallengeRepository,
	users domain.UserRepository,
	notifier domain.NotificationService,
	hasher domain.CodeHasher,
	audit domain.AuditLogger,
	logger *zap.Logger,
	config OTPConfig,
	opts ...OTPOption,
) domain.OTPService {
	s := &OTPServiceImpl{
		challenges: challenges,
		users:      users,
		notifier:   notifier,
		hasher:     hasher,
		audit:      audit,
		logger:     logger.Named("otp"),
		config:     config,
		now:        time.Now,
		generate:   GenerateNumericCode,
		newID:      uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RequestChallenge implements domain.OTPService
func (s *OTPServiceImpl) RequestChallenge(ctx context.Context, phone string, purpose domain.Purpose) (int64, error) {
	expiresIn, err := s.requestChallenge(ctx, phone, purpose)
	metrics.OTPRequestCounter.WithLabelValues(string(purpose), metrics.Result(err)).Inc()

	event := domain.NewAuditEvent(domain.OTPRequestedEvent, 0).
		WithPhone(phone).
		WithMetadata("purpose", string(purpose))
	if err != nil {
		event.WithError(err)
	}
	s.audit.LogEvent(ctx, event)
	return expiresIn, err
}

func (s *OTPServiceImpl) requestChallenge(ctx context.Context, phone string, purpose domain.Purpose) (int64, error) {
	if err := domain.ValidatePhone(phone); err != nil {
		return 0, err
	}
	if !purpose.Valid() {
		return 0, domain.ErrInvalidPurpose
	}
	now := s.now()

	if purpose == domain.PurposeSignin {
		if _, err := s.users.FindActiveByPhone(ctx, phone); err != nil {
			return 0, err
		}
	}

	if err := s.challenges.DeleteStaleForPhone(ctx, phone, now); err != nil {
		s.logger.Warn("stale challenge cleanup failed", zap.Error(err))
	}

	count, err := s.challenges.CountRecentForPhone(ctx, phone, now.Add(-s.config.RateWindow))
	if err != nil {
		return 0, err
	}
	if count >= int64(s.config.MaxRequests) {
		return 0, domain.ErrOTPRateLimited
	}

	code, err := s.generate(s.config.Length)
	if err != nil {
		return 0, fmt.Errorf("failed to generate OTP code: %w", err)
	}
	hash, err := s.hasher.Hash(code)
	if err != nil {
		return 0, err
	}

	challenge := domain.NewChallenge(s.newID(), phone, hash, purpose, now, s.config.TTL)
	if err := s.challenges.Create(ctx, &challenge); err != nil {
		return 0, err
	}

	if err := s.notifier.SendOTP(ctx, phone, code, s.config.TTL); err != nil {
		// roll back so an undeliverable code neither lingers nor counts toward the limit
		if derr := s.challenges.Delete(context.WithoutCancel(ctx), challenge.ID); derr != nil {
			s.logger.Error("failed to roll back challenge", zap.String("challenge_id", challenge.ID), zap.Error(derr))
		}
		s.logger.Warn("otp delivery failed", zap.Error(err))
		return 0, domain.Wrap(domain.ErrOTPSendFailed, err)
	}

	return int64(s.config.TTL / time.Second), nil
}

// VerifyChallenge implements domain.OTPService
func (s *OTPServiceImpl) VerifyChallenge(ctx context.Context, phone, code string) error {
	err := s.verifyChallenge(ctx, phone, code)
	metrics.OTPVerifyCounter.WithLabelValues(metrics.Result(err)).Inc()

	if err != nil {
		s.audit.LogEvent(ctx, domain.NewAuditEvent(domain.OTPVerifyFailureEvent, 0).WithPhone(phone).WithError(err))
	} else {
		s.audit.LogEvent(ctx, domain.NewAuditEvent(domain.OTPVerifiedEvent, 0).WithPhone(phone))
	}
	return err
}

func (s *OTPServiceImpl) verifyChallenge(ctx context.Context, phone, code string) error {
	if err := domain.ValidatePhone(phone); err != nil {
		return err
	}
	if err := domain.ValidateCode(code, s.config.Length); err != nil {
		return err
	}
	now := s.now()

	challenge, err := s.challenges.FindLatestValidForPhone(ctx, phone, now)
	if errors.Is(err, domain.ErrOTPNotFound) {
		return s.explainMissing(ctx, phone, now)
	}
	if err != nil {
		return err
	}

	if _, err := domain.ReserveAttempt(*challenge, now, s.config.MaxAttempts); err != nil {
		return err
	}
	// the store re-checks the limit so concurrent guesses cannot share a snapshot
	reserved, err := s.challenges.ReserveAttempt(ctx, challenge.ID, s.config.MaxAttempts)
	if err != nil {
		return err
	}
	if !reserved {
		return s.explainRejected(ctx, phone, now)
	}

	matched := s.hasher.Compare(challenge.CodeHash, code)
	_, op, verr := domain.ApplyVerification(*challenge, matched)
	if op == domain.ChallengeOpMarkUsed {
		ok, err := s.challenges.MarkUsedIfUnused(ctx, challenge.ID)
		if err != nil {
			return err
		}
		if !ok {
			return domain.ErrOTPAlreadyUsed
		}
	}
	return verr
}

// explainRejected classifies a challenge whose attempt reservation was refused
// by the store: it was used or exhausted by a concurrent verification.
func (s *OTPServiceImpl) explainRejected(ctx context.Context, phone string, now time.Time) error {
	latest, err := s.challenges.FindLatestForPhone(ctx, phone)
	if err != nil {
		return err
	}
	if err := latest.CheckVerifiable(now, s.config.MaxAttempts); err != nil {
		return err
	}
	return domain.ErrOTPMaxAttempts
}

// explainMissing reports why no verifiable challenge exists: the latest one
// is used or expired, or there never was one.
func (s *OTPServiceImpl) explainMissing(ctx context.Context, phone string, now time.Time) error {
	latest, err := s.challenges.FindLatestForPhone(ctx, phone)
	if err != nil {
		return err
	}
	if err := latest.CheckVerifiable(now, s.config.MaxAttempts); err != nil {
		return err
	}
	return domain.ErrOTPNotFound
}

// GenerateNumericCode returns a uniformly random code of length decimal digits
func GenerateNumericCode(length int) (string, error) {
	if length <= 0 || length > 18 {
		return "", fmt.Errorf("unsupported code length %d", length)
	}
	upper := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(length)), nil)
	n, err := rand.Int(rand.Reader, upper)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", length, n.Int64()), nil
}
