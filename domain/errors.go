package domain

import "errors"

// ErrorCode classifies a failure for transport mapping
type ErrorCode string

const (
	CodeInvalidInput        ErrorCode = "INVALID_INPUT"
	CodeNotFound            ErrorCode = "NOT_FOUND"
	CodeConflict            ErrorCode = "CONFLICT"
	CodeRateLimited         ErrorCode = "RATE_LIMITED"
	CodeExpired             ErrorCode = "EXPIRED"
	CodeInvalidCode         ErrorCode = "INVALID_CODE"
	CodeMaxAttemptsExceeded ErrorCode = "MAX_ATTEMPTS_EXCEEDED"
	CodeUnauthorized        ErrorCode = "UNAUTHORIZED"
	CodeForbidden           ErrorCode = "FORBIDDEN"
	CodeServiceUnavailable  ErrorCode = "SERVICE_UNAVAILABLE"
	CodeInternal            ErrorCode = "INTERNAL"
)

// Error is a classified failure. Sentinel values are compared with errors.Is;
// Wrap keeps the sentinel identity while attaching the underlying cause.
type Error struct {
	Code    ErrorCode
	Message string
	Err     error
}

// NewError creates a classified error
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches sentinel errors by identity of code and message, so a wrapped copy
// still satisfies errors.Is against the sentinel it was derived from.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code && e.Message == t.Message
}

// Wrap returns a copy of the sentinel carrying cause
func Wrap(sentinel *Error, cause error) *Error {
	return &Error{Code: sentinel.Code, Message: sentinel.Message, Err: cause}
}

// CodeOf returns the code of the first classified error in the chain, or CodeInternal
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// MessageOf returns the public message of a classified error
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return "Something went wrong"
}

// Validation errors
var (
	ErrInvalidPhone    = NewError(CodeInvalidInput, "please provide a valid 10-digit phone number")
	ErrInvalidEmail    = NewError(CodeInvalidInput, "please provide a valid email address")
	ErrInvalidName     = NewError(CodeInvalidInput, "full name must be 2-50 letters and spaces")
	ErrInvalidRole     = NewError(CodeInvalidInput, "invalid role selected")
	ErrInvalidPurpose  = NewError(CodeInvalidInput, "invalid otp type")
	ErrInvalidCodeForm = NewError(CodeInvalidInput, "otp must be numeric with the configured length")
	ErrMissingIdentity = NewError(CodeInvalidInput, "exactly one of phone or federated id is required")
)

// Authentication errors
var (
	ErrUserNotFound = NewError(CodeNotFound, "user not found")
	ErrEmailExists  = NewError(CodeConflict, "email already registered")
	ErrPhoneExists  = NewError(CodeConflict, "phone number already registered")
	ErrUserInactive = NewError(CodeUnauthorized, "user account is inactive")
	ErrIdentityLink = NewError(CodeConflict, "email is linked to a different federated account")
)

// OTP errors
var (
	ErrOTPNotFound    = NewError(CodeNotFound, "otp not found")
	ErrOTPExpired     = NewError(CodeExpired, "otp has expired")
	ErrOTPInvalid     = NewError(CodeInvalidCode, "invalid otp code")
	ErrOTPAlreadyUsed = NewError(CodeInvalidCode, "otp has already been used")
	ErrOTPMaxAttempts = NewError(CodeMaxAttemptsExceeded, "maximum otp attempts exceeded")
	ErrOTPRateLimited = NewError(CodeRateLimited, "too many otp requests, please try again later")
	ErrOTPSendFailed  = NewError(CodeServiceUnavailable, "failed to send otp, please try again")
)

// Token errors
var (
	ErrTokenInvalid         = NewError(CodeUnauthorized, "invalid token")
	ErrTokenExpired         = NewError(CodeUnauthorized, "token has expired")
	ErrRefreshTokenMismatch = NewError(CodeUnauthorized, "invalid refresh token")
	ErrConcurrentRefresh    = NewError(CodeUnauthorized, "concurrent token refresh detected")
	ErrIdentityTokenInvalid = NewError(CodeUnauthorized, "invalid identity token")
)

// Authorization errors
var (
	ErrUnauthorized     = NewError(CodeUnauthorized, "you are not authorized to access this resource")
	ErrInsufficientRole = NewError(CodeForbidden, "you do not have permission to perform this action")
	ErrPhoneNotVerified = NewError(CodeForbidden, "please verify your phone number first")
)

// Infrastructure errors
var (
	ErrServiceUnavailable = NewError(CodeServiceUnavailable, "service temporarily unavailable")
)
