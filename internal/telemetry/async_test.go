package telemetry

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

// mockEventEmitter implements EventEmitter for tests.
type mockEventEmitter struct {
	mu      sync.Mutex
	events  []*AuthEvent
	emitErr error
	done    chan struct{}
}

func newMockEmitter(emitErr error) *mockEventEmitter {
	return &mockEventEmitter{emitErr: emitErr, done: make(chan struct{}, 16)}
}

func (m *mockEventEmitter) Emit(ctx context.Context, event *AuthEvent) error {
	m.mu.Lock()
	m.events = append(m.events, event)
	m.mu.Unlock()
	m.done <- struct{}{}
	return m.emitErr
}

func (m *mockEventEmitter) wait(t *testing.T) {
	t.Helper()
	select {
	case <-m.done:
	case <-time.After(2 * time.Second):
		t.Fatal("emit did not run")
	}
}

func TestEmitAsync_NilInputs(t *testing.T) {
	EmitAsync(nil, &AuthEvent{Type: EventLogout}, nil)
	m := newMockEmitter(nil)
	EmitAsync(m, nil, nil)
	select {
	case <-m.done:
		t.Fatal("Emit should not be called for nil event")
	case <-time.After(20 * time.Millisecond):
	}
}

func TestEmitAsync_SetsTimestampAndEmits(t *testing.T) {
	m := newMockEmitter(nil)
	event := &AuthEvent{Type: EventTokenIssued, UserID: "u1"}
	EmitAsync(m, event, zap.NewNop())
	m.wait(t)

	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.events) != 1 || m.events[0].UserID != "u1" {
		t.Fatalf("events = %+v", m.events)
	}
	if m.events[0].CreatedAt.IsZero() {
		t.Error("CreatedAt should be filled")
	}
}

func TestEmitAsync_LogsErrors(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	m := newMockEmitter(errors.New("collector down"))
	EmitAsync(m, &AuthEvent{Type: EventLogout}, zap.New(core))
	m.wait(t)

	deadline := time.Now().Add(2 * time.Second)
	for logs.Len() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	entries := logs.FilterMessage("telemetry: async emit failed").All()
	if len(entries) != 1 {
		t.Fatalf("logged %d warnings, want 1", len(entries))
	}
	if entries[0].ContextMap()["event_type"] != EventLogout {
		t.Errorf("event_type field = %v", entries[0].ContextMap()["event_type"])
	}
}

func TestEmitterFunc(t *testing.T) {
	var got string
	f := EmitterFunc(func(ctx context.Context, e *AuthEvent) error {
		got = e.Type
		return nil
	})
	if err := f.Emit(context.Background(), &AuthEvent{Type: EventRegistered}); err != nil {
		t.Fatalf("Emit: %v", err)
	}
	if got != EventRegistered {
		t.Errorf("got %q", got)
	}
}

func TestFanout(t *testing.T) {
	var calls []string
	ok := EmitterFunc(func(ctx context.Context, e *AuthEvent) error {
		calls = append(calls, "ok")
		return nil
	})
	failing := EmitterFunc(func(ctx context.Context, e *AuthEvent) error {
		calls = append(calls, "failing")
		return errors.New("collector down")
	})
	err := Fanout(failing, nil, ok).Emit(context.Background(), &AuthEvent{Type: EventLoginSuccess})
	if err == nil || err.Error() != "collector down" {
		t.Errorf("err = %v, want collector down", err)
	}
	if len(calls) != 2 || calls[0] != "failing" || calls[1] != "ok" {
		t.Errorf("calls = %v", calls)
	}
	if err := Fanout().Emit(context.Background(), &AuthEvent{}); err != nil {
		t.Errorf("empty fanout: %v", err)
	}
}
