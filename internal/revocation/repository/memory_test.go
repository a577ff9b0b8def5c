package repository

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"chat-credential-engine/internal/revocation/domain"
)

func TestMemoryRepository_BlacklistAndLookup(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryRepository()
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	r.SetClock(func() time.Time { return now })

	if ok, _ := r.IsBlacklisted(ctx, "jti-1"); ok {
		t.Fatal("empty store reports blacklisted")
	}
	if err := r.Blacklist(ctx, "jti-1", now.Add(time.Hour)); err != nil {
		t.Fatalf("Blacklist: %v", err)
	}
	if ok, _ := r.IsBlacklisted(ctx, "jti-1"); !ok {
		t.Error("jti-1 should be blacklisted")
	}
	if ok, _ := r.IsBlacklisted(ctx, "jti-2"); ok {
		t.Error("jti-2 should not be blacklisted")
	}
}

func TestMemoryRepository_BlacklistTwiceReturnsAlreadyRevoked(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryRepository()
	exp := time.Now().Add(time.Hour)
	if err := r.Blacklist(ctx, "jti", exp); err != nil {
		t.Fatalf("first Blacklist: %v", err)
	}
	if err := r.Blacklist(ctx, "jti", exp); !errors.Is(err, domain.ErrAlreadyRevoked) {
		t.Fatalf("second Blacklist: want ErrAlreadyRevoked, got %v", err)
	}
}

func TestMemoryRepository_PastExpiryReturnsAlreadyExpired(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryRepository()
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	r.SetClock(func() time.Time { return now })
	for _, exp := range []time.Time{now.Add(-time.Minute), now} {
		if err := r.Blacklist(ctx, "old", exp); !errors.Is(err, domain.ErrAlreadyExpired) {
			t.Fatalf("Blacklist(%v): want ErrAlreadyExpired, got %v", exp, err)
		}
	}
	if r.Len() != 0 {
		t.Errorf("Len = %d, want 0", r.Len())
	}
}

func TestMemoryRepository_EntryLapsesAtExpiry(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryRepository()
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	r.SetClock(func() time.Time { return now })
	if err := r.Blacklist(ctx, "jti", now.Add(time.Minute)); err != nil {
		t.Fatalf("Blacklist: %v", err)
	}
	now = now.Add(time.Minute)
	if ok, _ := r.IsBlacklisted(ctx, "jti"); ok {
		t.Error("entry should lapse at its expiry")
	}
	// A lapsed entry does not block a new one.
	if err := r.Blacklist(ctx, "jti", now.Add(time.Minute)); err != nil {
		t.Errorf("Blacklist after lapse: %v", err)
	}
}

func TestMemoryRepository_Cleanup(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryRepository()
	base := time.Now()
	r.SetClock(func() time.Time { return base })

	_ = r.Blacklist(ctx, "short", base.Add(time.Minute))
	_ = r.Blacklist(ctx, "long", base.Add(time.Hour))
	if r.Len() != 2 {
		t.Fatalf("Len = %d, want 2", r.Len())
	}
	if n := r.Cleanup(base.Add(30 * time.Second)); n != 0 {
		t.Errorf("early Cleanup removed %d, want 0", n)
	}
	if n := r.Cleanup(base.Add(2 * time.Minute)); n != 1 {
		t.Errorf("Cleanup removed %d, want 1", n)
	}
	if ok, _ := r.IsBlacklisted(ctx, "long"); !ok {
		t.Error("long entry should survive cleanup")
	}
	if n := r.Cleanup(base.Add(2 * time.Hour)); n != 1 {
		t.Errorf("final Cleanup removed %d, want 1", n)
	}
	if r.Len() != 0 {
		t.Errorf("Len = %d, want 0", r.Len())
	}
}

func TestMemoryRepository_ConcurrentBlacklistOneWinner(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryRepository()
	exp := time.Now().Add(time.Hour)

	const n = 50
	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := r.Blacklist(ctx, "contended", exp); err == nil {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	if wins.Load() != 1 {
		t.Fatalf("winners = %d, want 1", wins.Load())
	}
}

func TestMemoryRepository_RunStopsOnCancel(t *testing.T) {
	r := NewMemoryRepository()
	base := time.Now()
	r.SetClock(func() time.Time { return base })
	_ = r.Blacklist(context.Background(), "jti", base.Add(time.Millisecond))
	r.SetClock(func() time.Time { return base.Add(time.Second) })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx, 5*time.Millisecond, nil)
		close(done)
	}()
	deadline := time.After(2 * time.Second)
	for r.Len() != 0 {
		select {
		case <-deadline:
			t.Fatal("sweeper did not remove expired entry")
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
