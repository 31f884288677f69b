package memory

import (
	"context"
	"sync"

	"github.com/snipvault/snipvault/internal/domain/audit"
)

const defaultRecentCap = 1000

// AuditStore implements audit.Store with a bounded in-memory ring buffer.
// Denial records are best-effort operational data; bounding the buffer keeps
// memory flat under sustained abuse.
type AuditStore struct {
	mu     sync.Mutex
	recent []audit.DenialRecord
	cap    int
}

// NewAuditStore creates an audit store.
// An optional capacity parameter sets the ring buffer size (default 1000).
func NewAuditStore(capacity ...int) *AuditStore {
	c := defaultRecentCap
	if len(capacity) > 0 && capacity[0] > 0 {
		c = capacity[0]
	}
	return &AuditStore{
		recent: make([]audit.DenialRecord, 0, c),
		cap:    c,
	}
}

// Append stores records in the ring buffer, dropping the oldest at capacity.
func (s *AuditStore) Append(ctx context.Context, records ...audit.DenialRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range records {
		if len(s.recent) >= s.cap {
			copy(s.recent, s.recent[1:])
			s.recent[len(s.recent)-1] = r
		} else {
			s.recent = append(s.recent, r)
		}
	}
	return nil
}

// Recent returns up to limit of the most recent records, newest last.
func (s *AuditStore) Recent(ctx context.Context, limit int) ([]audit.DenialRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if limit <= 0 || limit > len(s.recent) {
		limit = len(s.recent)
	}
	out := make([]audit.DenialRecord, limit)
	copy(out, s.recent[len(s.recent)-limit:])
	return out, nil
}

// Size returns the number of buffered records.
func (s *AuditStore) Size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.recent)
}

// Compile-time interface verification.
var _ audit.Store = (*AuditStore)(nil)
