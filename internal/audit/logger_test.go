package audit

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"chat-credential-engine/internal/telemetry"
)

func TestLogger_LogEvent(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	l := NewLogger(zap.New(core), func(context.Context) string { return "192.168.1.1" })

	l.LogEvent(context.Background(), "user-1", "create", "invite", "")

	if logs.Len() != 1 {
		t.Fatalf("expected 1 entry, got %d", logs.Len())
	}
	fields := logs.All()[0].ContextMap()
	if fields["user_id"] != "user-1" || fields["action"] != "create" || fields["resource"] != "invite" {
		t.Errorf("fields = %v", fields)
	}
	if fields["ip"] != "192.168.1.1" {
		t.Errorf("ip = %v, want 192.168.1.1", fields["ip"])
	}
	if id, _ := fields["id"].(string); id == "" {
		t.Error("entry id should be set")
	}
	if logs.All()[0].LoggerName != "audit" {
		t.Errorf("logger name = %q", logs.All()[0].LoggerName)
	}
}

func TestLogger_LogEvent_UnknownIP(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	NewLogger(zap.New(core), nil).LogEvent(context.Background(), "u", "get", "auth", "")
	if ip := logs.All()[0].ContextMap()["ip"]; ip != "unknown" {
		t.Errorf("ip = %v, want unknown", ip)
	}

	core, logs = observer.New(zapcore.InfoLevel)
	NewLogger(zap.New(core), func(context.Context) string { return "" }).LogEvent(context.Background(), "u", "get", "auth", "")
	if ip := logs.All()[0].ContextMap()["ip"]; ip != "unknown" {
		t.Errorf("ip = %v, want unknown for empty extractor result", ip)
	}
}

func TestLogger_Emit(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	l := NewLogger(zap.New(core), nil)
	ctx := context.Background()

	err := l.Emit(ctx, &telemetry.AuthEvent{
		Type: telemetry.EventTokenRefreshed, UserID: "u1", TokenID: "jti-1", CreatedAt: time.Now(),
	})
	if err != nil {
		t.Fatalf("Emit: %v", err)
	}
	_ = l.Emit(ctx, &telemetry.AuthEvent{Type: telemetry.EventRegistrationUnresolved, UserID: "u2", Reason: "delete failed"})
	_ = l.Emit(ctx, nil)

	if logs.Len() != 2 {
		t.Fatalf("expected 2 entries, got %d", logs.Len())
	}
	first := logs.All()[0]
	if first.Level != zapcore.InfoLevel || first.ContextMap()["jti"] != "jti-1" {
		t.Errorf("first = %v %v", first.Level, first.ContextMap())
	}
	if _, ok := first.ContextMap()["device_id"]; ok {
		t.Error("empty device id should be omitted")
	}
	second := logs.All()[1]
	if second.Level != zapcore.ErrorLevel || second.ContextMap()["reason"] != "delete failed" {
		t.Errorf("unresolved registration should log at error: %v %v", second.Level, second.ContextMap())
	}
}
