package logger

import (
	"context"

	"go.uber.org/zap"

	"github.com/you/phoneauth/domain"
)

// AuditLogger writes audit events as structured log lines
type AuditLogger struct {
	log *zap.Logger
}

// NewAuditLogger creates a zap-backed audit logger
func NewAuditLogger(log *zap.Logger) *AuditLogger {
	return &AuditLogger{log: log.Named("audit")}
}

// LogEvent implements domain.AuditLogger
func (a *AuditLogger) LogEvent(ctx context.Context, event *domain.AuditEvent) {
	fields := []zap.Field{
		zap.String("event_type", string(event.EventType)),
		zap.Bool("success", event.Success),
		zap.Time("timestamp", event.Timestamp),
	}
	if event.UserID != 0 {
		fields = append(fields, zap.Uint("user_id", event.UserID))
	}
	if event.Phone != "" {
		fields = append(fields, zap.String("phone", maskPhone(event.Phone)))
	}
	if event.Email != "" {
		fields = append(fields, zap.String("email", event.Email))
	}
	if event.ErrorMsg != "" {
		fields = append(fields, zap.String("error", event.ErrorMsg))
	}
	if len(event.Metadata) > 0 {
		fields = append(fields, zap.Any("metadata", event.Metadata))
	}
	FromContext(ctx, a.log).Info("audit", fields...)
}

func maskPhone(phone string) string {
	if len(phone) <= 4 {
		return phone
	}
	masked := make([]byte, len(phone))
	for i := range masked {
		if i < len(phone)-4 {
			masked[i] = '*'
		} else {
			masked[i] = phone[i]
		}
	}
	return string(masked)
}

var _ domain.AuditLogger = (*AuditLogger)(nil)
