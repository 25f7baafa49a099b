package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/you/phoneauth/domain"
	"github.com/you/phoneauth/internal/logger"
)

// Envelope is the body of every JSON response
type Envelope struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Code    string      `json:"code,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

// StatusOf maps an error code to its HTTP status
func StatusOf(code domain.ErrorCode) int {
	switch code {
	case domain.CodeInvalidInput, domain.CodeExpired, domain.CodeInvalidCode, domain.CodeMaxAttemptsExceeded:
		return http.StatusBadRequest
	case domain.CodeNotFound:
		return http.StatusNotFound
	case domain.CodeConflict:
		return http.StatusConflict
	case domain.CodeRateLimited:
		return http.StatusTooManyRequests
	case domain.CodeUnauthorized:
		return http.StatusUnauthorized
	case domain.CodeForbidden:
		return http.StatusForbidden
	case domain.CodeServiceUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// OK writes a success envelope
func OK(c *gin.Context, status int, message string, data interface{}) {
	c.JSON(status, Envelope{Success: true, Message: message, Data: data})
}

// Fail writes the failure envelope for err and aborts the chain. Unclassified
// errors are logged in full and reported with a generic message.
func Fail(c *gin.Context, err error) {
	code := domain.CodeOf(err)
	status := StatusOf(code)
	log := logger.FromContext(c.Request.Context(), zap.L())
	if status >= http.StatusInternalServerError {
		log.Error("request failed", zap.String("code", string(code)), zap.Error(err))
	} else {
		log.Debug("request rejected", zap.String("code", string(code)), zap.Error(err))
	}
	Abort(c, status, code, domain.MessageOf(err))
}

// Abort writes a failure envelope with an explicit status and message
func Abort(c *gin.Context, status int, code domain.ErrorCode, message string) {
	c.AbortWithStatusJSON(status, Envelope{Success: false, Message: message, Code: string(code)})
}

// BadRequest reports a malformed request body
func BadRequest(c *gin.Context, err error) {
	logger.FromContext(c.Request.Context(), zap.L()).Debug("bad request body", zap.Error(err))
	Abort(c, http.StatusBadRequest, domain.CodeInvalidInput, "invalid request body")
}
