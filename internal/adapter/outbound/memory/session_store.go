package memory

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/snipvault/snipvault/internal/domain/auth"
)

// DefaultSessionCleanupInterval is how often expired sessions are swept.
const DefaultSessionCleanupInterval = 1 * time.Minute

// SessionStore implements auth.SessionStore with an in-memory map.
// Thread-safe for concurrent access. A background cleanup goroutine removes
// expired sessions periodically.
type SessionStore struct {
	sessions        map[string]*auth.Session
	mu              sync.RWMutex
	stopChan        chan struct{}
	wg              sync.WaitGroup
	once            sync.Once
	cleanupInterval time.Duration
}

// NewSessionStore creates a session store with the default cleanup interval.
func NewSessionStore() *SessionStore {
	return NewSessionStoreWithConfig(DefaultSessionCleanupInterval)
}

// NewSessionStoreWithConfig creates a session store with a custom cleanup interval.
func NewSessionStoreWithConfig(cleanupInterval time.Duration) *SessionStore {
	return &SessionStore{
		sessions:        make(map[string]*auth.Session),
		stopChan:        make(chan struct{}),
		cleanupInterval: cleanupInterval,
	}
}

// StartCleanup starts the background cleanup goroutine.
// Call Stop() to stop it gracefully.
func (s *SessionStore) StartCleanup(ctx context.Context) {
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
				s.cleanup()
			}
		}
	}()
}

// cleanup removes all expired sessions from the store.
func (s *SessionStore) cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()

	cleaned := 0
	for token, sess := range s.sessions {
		if sess.IsExpired() {
			delete(s.sessions, token)
			cleaned++
		}
	}

	if cleaned > 0 {
		slog.Debug("cleaned expired sessions", "count", cleaned)
	}
}

// Stop stops the background cleanup goroutine and waits for it to exit.
// Safe to call multiple times.
func (s *SessionStore) Stop() {
	s.once.Do(func() {
		close(s.stopChan)
	})
	s.wg.Wait()
}

// Create stores a new session.
func (s *SessionStore) Create(ctx context.Context, sess *auth.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Store a copy to prevent external mutation.
	cp := *sess
	s.sessions[sess.Token] = &cp
	return nil
}

// Get retrieves a session by token.
// Expired sessions read as not found; background cleanup handles deletion.
func (s *SessionStore) Get(ctx context.Context, token string) (*auth.Session, error) {
	s.mu.RLock()
	sess, ok := s.sessions[token]
	s.mu.RUnlock()

	if !ok || sess.IsExpired() {
		return nil, auth.ErrSessionNotFound
	}

	cp := *sess
	return &cp, nil
}

// Delete removes a session by token. Deleting an unknown token is a no-op.
func (s *SessionStore) Delete(ctx context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, token)
	return nil
}

// Size returns the current number of stored sessions.
func (s *SessionStore) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Compile-time interface verification.
var _ auth.SessionStore = (*SessionStore)(nil)
