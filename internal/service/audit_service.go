// Package service wires the admission domain to its stores and policies.
package service

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/snipvault/snipvault/internal/domain/audit"
)

// AuditService provides async denial auditing with a buffered channel and a
// background worker. Records are batched off the request hot path; a full
// channel drops records rather than blocking admission decisions.
type AuditService struct {
	store         audit.Store
	auditChan     chan audit.DenialRecord
	wg            sync.WaitGroup
	logger        *slog.Logger
	batchSize     int
	flushInterval time.Duration
	dropCount     atomic.Int64
}

// AuditOption configures AuditService.
type AuditOption func(*AuditService)

// WithAuditBatchSize sets the number of records to batch before writing.
func WithAuditBatchSize(size int) AuditOption {
	return func(s *AuditService) {
		s.batchSize = size
	}
}

// WithAuditFlushInterval sets the interval to flush pending records.
func WithAuditFlushInterval(interval time.Duration) AuditOption {
	return func(s *AuditService) {
		s.flushInterval = interval
	}
}

// WithAuditChannelSize sets the size of the audit channel buffer.
func WithAuditChannelSize(size int) AuditOption {
	return func(s *AuditService) {
		s.auditChan = make(chan audit.DenialRecord, size)
	}
}

// NewAuditService creates an AuditService with the given store and options.
func NewAuditService(store audit.Store, logger *slog.Logger, opts ...AuditOption) *AuditService {
	s := &AuditService{
		store:         store,
		auditChan:     make(chan audit.DenialRecord, 1000),
		logger:        logger,
		batchSize:     100,
		flushInterval: time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start begins the background worker that batches and writes records.
func (s *AuditService) Start(ctx context.Context) {
	s.wg.Add(1)
	go s.worker(ctx)
}

// Record sends a denial record to the background worker.
// Non-blocking: if the channel is full the record is dropped and counted.
func (s *AuditService) Record(record audit.DenialRecord) {
	select {
	case s.auditChan <- record:
	default:
		drops := s.dropCount.Add(1)
		s.logger.Warn("denial audit record dropped",
			"policy", record.Policy,
			"key", record.Key,
			"total_drops", drops,
		)
	}
}

// DroppedRecords returns the total number of dropped records.
func (s *AuditService) DroppedRecords() int64 {
	return s.dropCount.Load()
}

// ChannelDepth returns the number of records currently queued.
func (s *AuditService) ChannelDepth() int {
	return len(s.auditChan)
}

// ChannelCapacity returns the audit channel's buffer capacity.
func (s *AuditService) ChannelCapacity() int {
	return cap(s.auditChan)
}

// Recent returns up to limit of the most recent denial records.
func (s *AuditService) Recent(ctx context.Context, limit int) ([]audit.DenialRecord, error) {
	return s.store.Recent(ctx, limit)
}

// Stop signals the worker to stop and waits for it to finish.
// Pending records are flushed before returning.
func (s *AuditService) Stop() {
	close(s.auditChan)
	s.wg.Wait()
}

// worker collects and flushes denial records.
func (s *AuditService) worker(ctx context.Context) {
	defer s.wg.Done()

	batch := make([]audit.DenialRecord, 0, s.batchSize)
	ticker := time.NewTicker(s.flushInterval)
	defer ticker.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		if err := s.store.Append(context.Background(), batch...); err != nil {
			s.logger.Error("failed to write denial audit batch",
				"count", len(batch),
				"error", err,
			)
		}
		batch = batch[:0]
	}

	for {
		select {
		case record, ok := <-s.auditChan:
			if !ok {
				flush()
				return
			}
			batch = append(batch, record)
			if len(batch) >= s.batchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-ctx.Done():
			// Drain whatever is already queued, then exit.
			for {
				select {
				case record, ok := <-s.auditChan:
					if !ok {
						flush()
						return
					}
					batch = append(batch, record)
				default:
					flush()
					return
				}
			}
		}
	}
}
