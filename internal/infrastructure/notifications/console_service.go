package notifications

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/you/phoneauth/domain"
)

// ConsoleServiceImpl writes OTP messages to the log. Development only.
type ConsoleServiceImpl struct {
	countryCode string
	logger      *zap.Logger
}

// NewConsoleService creates a log-backed notification service
func NewConsoleService(countryCode string, logger *zap.Logger) domain.NotificationService {
	return &ConsoleServiceImpl{countryCode: countryCode, logger: logger.Named("sms")}
}

// SendOTP implements domain.NotificationService
func (c *ConsoleServiceImpl) SendOTP(ctx context.Context, phone, code string, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.logger.Info("[MOCK SMS]",
		zap.String("to", InternationalNumber(c.countryCode, phone)),
		zap.String("message", OTPMessage(code, ttl)),
	)
	return nil
}
