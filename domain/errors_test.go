package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorCodes(t *testing.T) {
	tests := []struct {
		name         string
		err          error
		expectedCode ErrorCode
		expectedMsg  string
	}{
		{"ErrInvalidPhone", ErrInvalidPhone, CodeInvalidInput, "please provide a valid 10-digit phone number"},
		{"ErrUserNotFound", ErrUserNotFound, CodeNotFound, "user not found"},
		{"ErrEmailExists", ErrEmailExists, CodeConflict, "email already registered"},
		{"ErrPhoneExists", ErrPhoneExists, CodeConflict, "phone number already registered"},
		{"ErrOTPRateLimited", ErrOTPRateLimited, CodeRateLimited, "too many otp requests, please try again later"},
		{"ErrOTPExpired", ErrOTPExpired, CodeExpired, "otp has expired"},
		{"ErrOTPInvalid", ErrOTPInvalid, CodeInvalidCode, "invalid otp code"},
		{"ErrOTPMaxAttempts", ErrOTPMaxAttempts, CodeMaxAttemptsExceeded, "maximum otp attempts exceeded"},
		{"ErrTokenExpired", ErrTokenExpired, CodeUnauthorized, "token has expired"},
		{"ErrServiceUnavailable", ErrServiceUnavailable, CodeServiceUnavailable, "service temporarily unavailable"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CodeOf(tt.err); got != tt.expectedCode {
				t.Errorf("expected code %s, got %s", tt.expectedCode, got)
			}
			if tt.err.Error() != tt.expectedMsg {
				t.Errorf("expected message %q, got %q", tt.expectedMsg, tt.err.Error())
			}
		})
	}
}

func TestWrapPreservesIdentity(t *testing.T) {
	cause := errors.New("dial tcp: i/o timeout")
	wrapped := fmt.Errorf("find user: %w", Wrap(ErrServiceUnavailable, cause))

	if !errors.Is(wrapped, ErrServiceUnavailable) {
		t.Error("wrapped error should match its sentinel")
	}
	if !errors.Is(wrapped, cause) {
		t.Error("wrapped error should expose its cause")
	}
	if errors.Is(wrapped, ErrOTPExpired) {
		t.Error("wrapped error should not match an unrelated sentinel")
	}
	if CodeOf(wrapped) != CodeServiceUnavailable {
		t.Errorf("expected %s, got %s", CodeServiceUnavailable, CodeOf(wrapped))
	}
	if MessageOf(wrapped) != "service temporarily unavailable" {
		t.Errorf("unexpected public message %q", MessageOf(wrapped))
	}
}

func TestUnclassifiedErrors(t *testing.T) {
	err := errors.New("boom")
	if CodeOf(err) != CodeInternal {
		t.Errorf("expected %s, got %s", CodeInternal, CodeOf(err))
	}
	if MessageOf(err) != "Something went wrong" {
		t.Errorf("internal detail leaked: %q", MessageOf(err))
	}
}
