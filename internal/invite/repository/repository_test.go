package repository

import (
	"context"
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"

	"chat-credential-engine/internal/db"
	"chat-credential-engine/internal/db/migrate"
	"chat-credential-engine/internal/invite/domain"
)

func newInvite(ttl time.Duration) *domain.Invite {
	now := time.Now().UTC().Truncate(time.Millisecond)
	return &domain.Invite{
		Token:     uuid.NewString() + "." + uuid.NewString(),
		InviterID: uuid.NewString(),
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
}

// exerciseRepository runs the contract shared by every Repository implementation.
func exerciseRepository(t *testing.T, repo Repository) {
	t.Helper()
	ctx := context.Background()
	inv := newInvite(time.Hour)

	if err := repo.Create(ctx, inv); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := repo.Create(ctx, inv); !errors.Is(err, domain.ErrDuplicateToken) {
		t.Errorf("duplicate Create: want ErrDuplicateToken, got %v", err)
	}

	got, err := repo.GetByToken(ctx, inv.Token)
	if err != nil || got == nil {
		t.Fatalf("GetByToken = %v, %v", got, err)
	}
	if got.InviterID != inv.InviterID || got.Used || got.UsedBy != nil || got.UsedAt != nil {
		t.Errorf("stored invite = %+v", got)
	}
	if !got.ExpiresAt.Equal(inv.ExpiresAt) {
		t.Errorf("ExpiresAt = %v, want %v (round trip must be exact)", got.ExpiresAt, inv.ExpiresAt)
	}
	if missing, err := repo.GetByToken(ctx, "missing."+inv.Token); err != nil || missing != nil {
		t.Errorf("GetByToken missing = %v, %v", missing, err)
	}

	now := time.Now().UTC()
	if n, err := repo.MarkUsed(ctx, inv.Token, "u2", now); err != nil || n != 1 {
		t.Fatalf("MarkUsed = %d, %v; want 1", n, err)
	}
	if n, err := repo.MarkUsed(ctx, inv.Token, "u3", now); err != nil || n != 0 {
		t.Errorf("second MarkUsed = %d, %v; want 0", n, err)
	}
	got, _ = repo.GetByToken(ctx, inv.Token)
	if !got.Used || got.UsedBy == nil || *got.UsedBy != "u2" || got.UsedAt == nil {
		t.Errorf("used invite = %+v", got)
	}

	if n, err := repo.ResetUsed(ctx, inv.Token, "u3"); err != nil || n != 0 {
		t.Errorf("ResetUsed by other user = %d, %v; want 0", n, err)
	}
	if n, err := repo.ResetUsed(ctx, inv.Token, "u2"); err != nil || n != 1 {
		t.Errorf("ResetUsed = %d, %v; want 1", n, err)
	}
	got, _ = repo.GetByToken(ctx, inv.Token)
	if got.Used || got.UsedBy != nil || got.UsedAt != nil {
		t.Errorf("reset invite = %+v", got)
	}

	expired := newInvite(time.Millisecond)
	if err := repo.Create(ctx, expired); err != nil {
		t.Fatalf("Create expired: %v", err)
	}
	if n, err := repo.MarkUsed(ctx, expired.Token, "u2", expired.ExpiresAt); err != nil || n != 0 {
		t.Errorf("MarkUsed at expiry = %d, %v; want 0", n, err)
	}
}

func exerciseConcurrentRedeem(t *testing.T, repo Repository) {
	t.Helper()
	ctx := context.Background()
	inv := newInvite(time.Hour)
	if err := repo.Create(ctx, inv); err != nil {
		t.Fatalf("Create: %v", err)
	}
	const n = 16
	var wins atomic.Int32
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			updated, err := repo.MarkUsed(ctx, inv.Token, uuid.NewString(), time.Now().UTC())
			if err != nil {
				t.Errorf("MarkUsed: %v", err)
				return
			}
			wins.Add(int32(updated))
		}(i)
	}
	close(start)
	wg.Wait()
	if wins.Load() != 1 {
		t.Fatalf("winners = %d, want 1", wins.Load())
	}
}

func TestMemoryRepository(t *testing.T) {
	exerciseRepository(t, NewMemoryRepository())
}

func TestMemoryRepository_ConcurrentRedeem(t *testing.T) {
	exerciseConcurrentRedeem(t, NewMemoryRepository())
}

func TestMemoryRepository_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	inv := newInvite(time.Hour)
	_ = repo.Create(ctx, inv)
	got, _ := repo.GetByToken(ctx, inv.Token)
	got.Used = true
	again, _ := repo.GetByToken(ctx, inv.Token)
	if again.Used {
		t.Error("mutating a returned invite must not change the store")
	}
}

func TestPostgresRepository(t *testing.T) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set")
	}
	if err := migrate.Run(dsn, migrate.Up); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	conn, err := db.Open(context.Background(), dsn)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer conn.Close()
	repo := NewPostgresRepository(conn)
	exerciseRepository(t, repo)
	exerciseConcurrentRedeem(t, repo)
}

func TestMongoRepository(t *testing.T) {
	uri := os.Getenv("MONGO_URI")
	if uri == "" {
		t.Skip("MONGO_URI not set")
	}
	ctx := context.Background()
	mdb, err := db.OpenMongo(ctx, uri, "chat_test")
	if err != nil {
		t.Fatalf("OpenMongo: %v", err)
	}
	defer func() { _ = mdb.Client().Disconnect(ctx) }()
	repo := NewMongoRepository(mdb)
	if err := repo.EnsureIndexes(ctx); err != nil {
		t.Fatalf("EnsureIndexes: %v", err)
	}
	exerciseRepository(t, repo)
	exerciseConcurrentRedeem(t, repo)
}
