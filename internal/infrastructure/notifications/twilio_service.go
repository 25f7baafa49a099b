package notifications

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
	"go.uber.org/zap"

	"github.com/you/phoneauth/domain"
)

// messageSender is the slice of the Twilio REST client the sender uses
type messageSender interface {
	CreateMessage(params *twilioApi.CreateMessageParams) (*twilioApi.ApiV2010Message, error)
}

// TwilioServiceImpl implements domain.NotificationService over Twilio SMS
type TwilioServiceImpl struct {
	api         messageSender
	fromNumber  string
	countryCode string
	logger      *zap.Logger
}

// NewTwilioService creates a new Twilio notification service
func NewTwilioService(accountSID, authToken, fromNumber, countryCode string, logger *zap.Logger) domain.NotificationService {
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: accountSID,
		Password: authToken,
	})
	return newTwilioService(client.Api, fromNumber, countryCode, logger)
}

func newTwilioService(api messageSender, fromNumber, countryCode string, logger *zap.Logger) *TwilioServiceImpl {
	return &TwilioServiceImpl{
		api:         api,
		fromNumber:  fromNumber,
		countryCode: countryCode,
		logger:      logger.Named("twilio"),
	}
}

// SendOTP implements domain.NotificationService. The REST client has no
// context support, so the call runs in a goroutine and ctx bounds the wait.
func (t *TwilioServiceImpl) SendOTP(ctx context.Context, phone, code string, ttl time.Duration) error {
	params := &twilioApi.CreateMessageParams{}
	params.SetTo(InternationalNumber(t.countryCode, phone))
	params.SetFrom(t.fromNumber)
	params.SetBody(OTPMessage(code, ttl))

	done := make(chan error, 1)
	go func() {
		resp, err := t.api.CreateMessage(params)
		if err == nil && resp != nil && resp.Sid != nil {
			t.logger.Debug("sms queued", zap.String("sid", *resp.Sid))
		}
		done <- err
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("failed to send SMS: %w", err)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("failed to send SMS: %w", ctx.Err())
	}
}

// InternationalNumber prefixes a national number with the country code
func InternationalNumber(countryCode, phone string) string {
	if strings.HasPrefix(phone, "+") {
		return phone
	}
	return countryCode + phone
}

// OTPMessage renders the SMS body
func OTPMessage(code string, ttl time.Duration) string {
	return fmt.Sprintf("Your verification code is: %s. Valid for %d minutes.", code, int(ttl.Minutes()))
}
