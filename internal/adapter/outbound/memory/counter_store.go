// Package memory provides in-memory implementations of outbound ports.
package memory

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// counterEntry is one fixed-window counter. Reset is lazy: an expired entry is
// replaced on the next increment rather than by a timer.
type counterEntry struct {
	count       int
	windowStart time.Time
	windowEnd   time.Time
}

// CounterStore implements admission.CounterStore with an in-process map.
// Thread-safe for concurrent access; the read-check-increment sequence holds
// the table lock, so per-key counts are linearizable. Includes background
// cleanup to prevent unbounded memory growth.
type CounterStore struct {
	entries         map[string]*counterEntry
	mu              sync.Mutex
	stopChan        chan struct{}
	wg              sync.WaitGroup
	once            sync.Once
	cleanupInterval time.Duration
	onSweep         func(size int)
}

// CounterOption configures a CounterStore.
type CounterOption func(*CounterStore)

// WithCounterCleanupInterval sets how often expired entries are swept.
func WithCounterCleanupInterval(interval time.Duration) CounterOption {
	return func(s *CounterStore) {
		s.cleanupInterval = interval
	}
}

// WithCounterSweepHook registers a callback invoked with the table size after
// every sweep. Used to feed the active-keys gauge without coupling the store
// to a metrics registry.
func WithCounterSweepHook(fn func(size int)) CounterOption {
	return func(s *CounterStore) {
		s.onSweep = fn
	}
}

// NewCounterStore creates a counter store. Default cleanup interval: 5 minutes.
func NewCounterStore(opts ...CounterOption) *CounterStore {
	s := &CounterStore{
		entries:         make(map[string]*counterEntry),
		stopChan:        make(chan struct{}),
		cleanupInterval: 5 * time.Minute,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Increment bumps the counter for key within its fixed window.
// A missing or expired entry is replaced with a fresh window of count 1.
func (s *CounterStore) Increment(key string, window time.Duration, now time.Time) (int, time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[key]
	if !ok || !entry.windowEnd.After(now) {
		entry = &counterEntry{
			count:       1,
			windowStart: now,
			windowEnd:   now.Add(window),
		}
		s.entries[key] = entry
		return entry.count, entry.windowEnd
	}

	entry.count++
	return entry.count, entry.windowEnd
}

// Peek returns the current count and window end without incrementing.
// Absent or expired entries read as (0, zero time).
func (s *CounterStore) Peek(key string, now time.Time) (int, time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[key]
	if !ok || !entry.windowEnd.After(now) {
		return 0, time.Time{}
	}
	return entry.count, entry.windowEnd
}

// StartCleanup starts the background sweeper goroutine.
// It stops when ctx is cancelled or Stop() is called.
func (s *CounterStore) StartCleanup(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.cleanupInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stopChan:
				return
			case <-ticker.C:
				s.cleanup(time.Now())
			}
		}
	}()
}

// cleanup evicts entries whose window ended before now. It takes the same
// table lock as Increment, so in-flight increments are never corrupted and an
// entry touched after the cutoff is never dropped.
func (s *CounterStore) cleanup(now time.Time) {
	s.mu.Lock()

	cleaned := 0
	for key, entry := range s.entries {
		if !entry.windowEnd.After(now) {
			delete(s.entries, key)
			cleaned++
		}
	}
	remaining := len(s.entries)
	s.mu.Unlock()

	if cleaned > 0 {
		slog.Debug("counter store cleanup completed",
			"cleaned_keys", cleaned,
			"remaining_keys", remaining)
	}
	if s.onSweep != nil {
		s.onSweep(remaining)
	}
}

// Stop gracefully stops the sweeper goroutine and waits for it to exit.
// Safe to call multiple times.
func (s *CounterStore) Stop() {
	s.once.Do(func() {
		close(s.stopChan)
	})
	s.wg.Wait()
}

// Size returns the current number of tracked keys.
func (s *CounterStore) Size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
