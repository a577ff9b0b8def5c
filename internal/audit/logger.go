// Package audit records security-relevant actions as structured log entries.
package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"chat-credential-engine/internal/telemetry"
)

// IPExtractor returns the client IP from the request context.
type IPExtractor func(context.Context) string

// AuditLogger writes a single audit event with explicit action/resource. Used by the HTTP audit
// middleware. LogEvent is best-effort and never affects the caller.
type AuditLogger interface {
	LogEvent(ctx context.Context, userID, action, resource, metadata string)
}

// Logger implements AuditLogger on a zap logger. It also implements telemetry.EventEmitter so
// auth lifecycle events land in the same audit stream.
type Logger struct {
	logger      *zap.Logger
	ipExtractor IPExtractor
	nowF        func() time.Time
}

var (
	_ AuditLogger            = (*Logger)(nil)
	_ telemetry.EventEmitter = (*Logger)(nil)
)

// NewLogger returns an audit logger writing to logger under the "audit" name.
// ipExtractor may be nil; then IP is recorded as "unknown".
func NewLogger(logger *zap.Logger, ipExtractor IPExtractor) *Logger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Logger{
		logger:      logger.Named("audit"),
		ipExtractor: ipExtractor,
		nowF:        func() time.Time { return time.Now().UTC() },
	}
}

// LogEvent writes one audit entry.
func (l *Logger) LogEvent(ctx context.Context, userID, action, resource, metadata string) {
	ip := "unknown"
	if l.ipExtractor != nil {
		if v := l.ipExtractor(ctx); v != "" {
			ip = v
		}
	}
	l.logger.Info("audit",
		zap.String("id", uuid.New().String()),
		zap.String("user_id", userID),
		zap.String("action", action),
		zap.String("resource", resource),
		zap.String("ip", ip),
		zap.String("metadata", metadata),
		zap.Time("created_at", l.nowF()),
	)
}

// Emit writes an auth lifecycle event. Never fails.
func (l *Logger) Emit(ctx context.Context, event *telemetry.AuthEvent) error {
	if event == nil {
		return nil
	}
	fields := []zap.Field{
		zap.String("id", uuid.New().String()),
		zap.String("event_type", event.Type),
		zap.String("user_id", event.UserID),
		zap.Time("created_at", event.CreatedAt),
	}
	if event.DeviceID != "" {
		fields = append(fields, zap.String("device_id", event.DeviceID))
	}
	if event.TokenID != "" {
		fields = append(fields, zap.String("jti", event.TokenID))
	}
	if event.ClientIP != "" {
		fields = append(fields, zap.String("ip", event.ClientIP))
	}
	if event.Reason != "" {
		fields = append(fields, zap.String("reason", event.Reason))
	}
	if event.Type == telemetry.EventRegistrationUnresolved {
		l.logger.Error("auth event", fields...)
		return nil
	}
	l.logger.Info("auth event", fields...)
	return nil
}
