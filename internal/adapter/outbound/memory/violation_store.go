package memory

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// violationEntry tracks accumulated denials for one identity key.
// The count never decreases while the entry exists; there is no time decay.
// A caller only sheds penalty history when the retention sweeper evicts the
// entry, or on process restart.
type violationEntry struct {
	count           int
	lastViolationAt time.Time
}

// ViolationStore implements admission.ViolationStore with an in-process map.
// Thread-safe for concurrent access. Entries outlive counter windows: they
// persist until lastViolationAt falls behind the retention horizon.
type ViolationStore struct {
	entries         map[string]*violationEntry
	mu              sync.Mutex
	stopChan        chan struct{}
	wg              sync.WaitGroup
	once            sync.Once
	cleanupInterval time.Duration
	retention       time.Duration
}

// ViolationOption configures a ViolationStore.
type ViolationOption func(*ViolationStore)

// WithViolationCleanupInterval sets how often stale entries are swept.
func WithViolationCleanupInterval(interval time.Duration) ViolationOption {
	return func(s *ViolationStore) {
		s.cleanupInterval = interval
	}
}

// WithViolationRetention sets how long after the last violation an entry is
// kept. Eviction also discharges the caller's penalty.
func WithViolationRetention(retention time.Duration) ViolationOption {
	return func(s *ViolationStore) {
		s.retention = retention
	}
}

// NewViolationStore creates a violation store.
// Defaults: 5 minute cleanup interval, 1 hour retention.
func NewViolationStore(opts ...ViolationOption) *ViolationStore {
	s := &ViolationStore{
		entries:         make(map[string]*violationEntry),
		stopChan:        make(chan struct{}),
		cleanupInterval: 5 * time.Minute,
		retention:       time.Hour,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Record increments the violation count for key and returns the new count.
func (s *ViolationStore) Record(key string, now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[key]
	if !ok {
		entry = &violationEntry{}
		s.entries[key] = entry
	}
	entry.count++
	entry.lastViolationAt = now
	return entry.count
}

// Count returns the current violation count for key, or 0 if unknown.
func (s *ViolationStore) Count(key string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[key]
	if !ok {
		return 0
	}
	return entry.count
}

// StartCleanup starts the background retention sweeper.
// It stops when ctx is cancelled or Stop() is called.
func (s *ViolationStore) StartCleanup(ctx context.Context) {
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

// cleanup evicts entries whose last violation is older than the retention
// horizon, dropping their penalty history with them.
func (s *ViolationStore) cleanup(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := now.Add(-s.retention)
	cleaned := 0
	for key, entry := range s.entries {
		if entry.lastViolationAt.Before(cutoff) {
			delete(s.entries, key)
			cleaned++
		}
	}

	if cleaned > 0 {
		slog.Debug("violation store cleanup completed",
			"cleaned_keys", cleaned,
			"remaining_keys", len(s.entries))
	}
}

// Stop gracefully stops the sweeper goroutine and waits for it to exit.
// Safe to call multiple times.
func (s *ViolationStore) Stop() {
	s.once.Do(func() {
		close(s.stopChan)
	})
	s.wg.Wait()
}

// Size returns the current number of tracked keys.
func (s *ViolationStore) Size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
