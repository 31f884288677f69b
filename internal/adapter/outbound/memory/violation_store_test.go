package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"
)

func TestViolationStore_RecordAndCount(t *testing.T) {
	t.Parallel()

	store := NewViolationStore()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	if count := store.Count("key"); count != 0 {
		t.Errorf("Count(absent) = %d, want 0", count)
	}

	// Counts are monotonically non-decreasing while the entry exists.
	for i := 1; i <= 7; i++ {
		if got := store.Record("key", now.Add(time.Duration(i)*time.Second)); got != i {
			t.Errorf("Record %d = %d, want %d", i, got, i)
		}
	}
	if count := store.Count("key"); count != 7 {
		t.Errorf("Count = %d, want 7", count)
	}
}

func TestViolationStore_NoDecayWithinRetention(t *testing.T) {
	t.Parallel()

	// Violation counts do not decay with elapsed time; only retention-based
	// eviction clears them.
	store := NewViolationStore(WithViolationRetention(time.Hour))
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	store.Record("key", now)
	store.Record("key", now.Add(time.Second))

	store.cleanup(now.Add(30 * time.Minute))
	if count := store.Count("key"); count != 2 {
		t.Errorf("Count after mid-retention sweep = %d, want 2", count)
	}

	store.cleanup(now.Add(2 * time.Hour))
	if count := store.Count("key"); count != 0 {
		t.Errorf("Count after retention horizon = %d, want 0", count)
	}
}

func TestViolationStore_KeyIsolation(t *testing.T) {
	t.Parallel()

	store := NewViolationStore()
	now := time.Now()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			store.Record("offender-a", now)
		}()
		go func() {
			defer wg.Done()
			store.Record("offender-b", now)
		}()
	}
	wg.Wait()

	if a := store.Count("offender-a"); a != 50 {
		t.Errorf("offender-a count = %d, want 50", a)
	}
	if b := store.Count("offender-b"); b != 50 {
		t.Errorf("offender-b count = %d, want 50", b)
	}
}

func TestViolationStore_CleanupEviction(t *testing.T) {
	t.Parallel()

	store := NewViolationStore(
		WithViolationCleanupInterval(20*time.Millisecond),
		WithViolationRetention(40*time.Millisecond),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	store.StartCleanup(ctx)
	defer store.Stop()

	store.Record("stale", time.Now())
	if size := store.Size(); size != 1 {
		t.Fatalf("Size() = %d, want 1", size)
	}

	time.Sleep(150 * time.Millisecond)

	if size := store.Size(); size != 0 {
		t.Errorf("Size() = %d, want 0 after retention sweep", size)
	}
}

func TestViolationStore_NoGoroutineLeak(t *testing.T) {
	defer goleak.VerifyNone(t)

	store := NewViolationStore(WithViolationCleanupInterval(10 * time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())

	store.StartCleanup(ctx)
	store.Record("leak-key", time.Now())

	time.Sleep(30 * time.Millisecond)

	cancel()
	store.Stop()
	store.Stop() // safe to call twice
}
