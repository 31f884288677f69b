package memory

import (
	"context"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/snipvault/snipvault/internal/domain/auth"
)

func TestSessionStore_CreateGetDelete(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewSessionStore()

	sess := &auth.Session{
		Token:     "tok-1",
		UserID:    "user-1",
		Email:     "alice@example.com",
		ExpiresAt: time.Now().Add(time.Hour),
	}
	if err := store.Create(ctx, sess); err != nil {
		t.Fatalf("Create() error: %v", err)
	}

	got, err := store.Get(ctx, "tok-1")
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if got.UserID != "user-1" || got.Email != "alice@example.com" {
		t.Errorf("Get() = %+v, want user-1/alice@example.com", got)
	}

	// Returned session is a copy; mutating it must not affect the store.
	got.UserID = "mutated"
	again, err := store.Get(ctx, "tok-1")
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if again.UserID != "user-1" {
		t.Error("store returned a shared session pointer")
	}

	if err := store.Delete(ctx, "tok-1"); err != nil {
		t.Fatalf("Delete() error: %v", err)
	}
	if _, err := store.Get(ctx, "tok-1"); err != auth.ErrSessionNotFound {
		t.Errorf("Get() after delete = %v, want ErrSessionNotFound", err)
	}
}

func TestSessionStore_ExpiredSessionNotFound(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewSessionStore()

	_ = store.Create(ctx, &auth.Session{
		Token:     "expired",
		UserID:    "user-1",
		ExpiresAt: time.Now().Add(-time.Minute),
	})

	if _, err := store.Get(ctx, "expired"); err != auth.ErrSessionNotFound {
		t.Errorf("Get(expired) = %v, want ErrSessionNotFound", err)
	}
}

func TestSessionStore_CleanupAndLeak(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctx, cancel := context.WithCancel(context.Background())
	store := NewSessionStoreWithConfig(20 * time.Millisecond)
	store.StartCleanup(ctx)

	_ = store.Create(ctx, &auth.Session{
		Token:     "short",
		UserID:    "user-1",
		ExpiresAt: time.Now().Add(30 * time.Millisecond),
	})

	time.Sleep(100 * time.Millisecond)
	if size := store.Size(); size != 0 {
		t.Errorf("Size() = %d, want 0 after cleanup", size)
	}

	cancel()
	store.Stop()
}
