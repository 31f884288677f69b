// Package audit provides file-based persistence for the denial audit trail,
// with JSON Lines output, daily rotation, size caps, retention cleanup, and
// an in-memory cache serving recent-denial queries.
package audit

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/snipvault/snipvault/internal/domain/audit"
)

// denialFilePattern matches denial log filenames: denials-YYYY-MM-DD.log or
// denials-YYYY-MM-DD-N.log for size-rotated files.
var denialFilePattern = regexp.MustCompile(`^denials-(\d{4}-\d{2}-\d{2})(?:-(\d+))?\.log$`)

// denialFileInfo holds parsed information about a denial log file.
type denialFileInfo struct {
	name   string
	date   string
	suffix int
}

// parseDenialFilename parses a denial log filename and returns its components.
func parseDenialFilename(name string) (denialFileInfo, bool) {
	matches := denialFilePattern.FindStringSubmatch(name)
	if matches == nil {
		return denialFileInfo{}, false
	}

	info := denialFileInfo{
		name: name,
		date: matches[1],
	}

	if matches[2] != "" {
		n, err := strconv.Atoi(matches[2])
		if err != nil {
			return denialFileInfo{}, false
		}
		info.suffix = n
	}

	return info, true
}

// sortDenialFiles sorts file info by date then suffix (chronological order).
func sortDenialFiles(files []denialFileInfo) {
	sort.Slice(files, func(i, j int) bool {
		if files[i].date != files[j].date {
			return files[i].date < files[j].date
		}
		return files[i].suffix < files[j].suffix
	})
}

// FileStoreConfig holds configuration for the file-based denial store.
type FileStoreConfig struct {
	// Dir is the directory where denial log files are stored.
	Dir string
	// RetentionDays is the number of days to keep log files (default 7).
	RetentionDays int
	// MaxFileSizeMB is the maximum file size in megabytes before rotation (default 100).
	MaxFileSizeMB int
	// CacheSize is the number of recent records kept in memory for queries (default 1000).
	CacheSize int
}

// FileStore implements audit.Store on top of daily JSON Lines files.
// Recent queries are served from an in-memory ring so reads never touch disk.
type FileStore struct {
	dir           string
	maxFileSize   int64
	retentionDays int
	currentFile   *os.File
	currentDate   string
	currentSize   int64
	currentSuffix int
	cache         *denialCache
	mu            sync.Mutex
	logger        *slog.Logger
	cancel        context.CancelFunc
	closed        bool
}

// NewFileStore creates a file-based denial store.
// It creates the directory if it does not exist, opens today's log file,
// runs retention cleanup, repopulates the cache from the most recent file,
// and starts the hourly cleanup goroutine.
func NewFileStore(cfg FileStoreConfig, logger *slog.Logger) (*FileStore, error) {
	if cfg.RetentionDays <= 0 {
		cfg.RetentionDays = 7
	}
	if cfg.MaxFileSizeMB <= 0 {
		cfg.MaxFileSizeMB = 100
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = 1000
	}

	// Denial records can carry request headers; keep the directory private.
	if err := os.MkdirAll(cfg.Dir, 0700); err != nil {
		return nil, fmt.Errorf("create denial log directory: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	s := &FileStore{
		dir:           cfg.Dir,
		maxFileSize:   int64(cfg.MaxFileSizeMB) * 1024 * 1024,
		retentionDays: cfg.RetentionDays,
		cache:         newDenialCache(cfg.CacheSize),
		logger:        logger,
		cancel:        cancel,
	}

	today := time.Now().UTC().Format("2006-01-02")
	if err := s.openCurrentFile(today); err != nil {
		cancel()
		return nil, fmt.Errorf("open denial log file: %w", err)
	}

	s.runCleanup()
	s.populateCache()

	go s.startCleanupLoop(ctx)

	return s, nil
}

// Append writes denial records as JSON Lines to the current log file,
// rotating by date and size as needed.
func (s *FileStore) Append(ctx context.Context, records ...audit.DenialRecord) error {
	if len(records) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, rec := range records {
		dateStr := rec.Time.UTC().Format("2006-01-02")

		if dateStr != s.currentDate {
			if err := s.rotateDateLocked(dateStr); err != nil {
				return fmt.Errorf("date rotation: %w", err)
			}
		}

		if s.currentSize >= s.maxFileSize {
			if err := s.rotateSizeLocked(); err != nil {
				return fmt.Errorf("size rotation: %w", err)
			}
		}

		data, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("marshal denial record: %w", err)
		}

		line := append(data, '\n')
		n, err := s.currentFile.Write(line)
		if err != nil {
			return fmt.Errorf("write denial record: %w", err)
		}
		s.currentSize += int64(n)

		s.cache.Add(rec)
	}

	return nil
}

// Recent returns up to limit of the most recent records, newest last.
// Served from the in-memory cache; records older than the cache window
// are only available in the log files.
func (s *FileStore) Recent(_ context.Context, limit int) ([]audit.DenialRecord, error) {
	return s.cache.Recent(limit), nil
}

// Size returns the number of cached records.
func (s *FileStore) Size() int {
	return s.cache.Len()
}

// Flush forces pending records to disk by syncing the current file.
func (s *FileStore) Flush(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.currentFile != nil {
		return s.currentFile.Sync()
	}
	return nil
}

// Close stops the cleanup goroutine and closes the current file.
// Safe to call more than once.
func (s *FileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	s.cancel()

	if s.currentFile != nil {
		_ = s.currentFile.Sync()
		err := s.currentFile.Close()
		s.currentFile = nil
		return err
	}

	return nil
}

// openCurrentFile opens or creates the log file for the given date.
// It determines the correct suffix by checking existing files on disk.
func (s *FileStore) openCurrentFile(dateStr string) error {
	suffix := s.findHighestSuffix(dateStr)

	f, size, err := s.openFile(dateStr, suffix)
	if err != nil {
		return err
	}

	s.currentFile = f
	s.currentDate = dateStr
	s.currentSize = size
	s.currentSuffix = suffix

	return nil
}

// findHighestSuffix returns the highest existing suffix for a date, or 0 if none.
func (s *FileStore) findHighestSuffix(dateStr string) int {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0
	}

	highest := 0
	for _, e := range entries {
		info, ok := parseDenialFilename(e.Name())
		if !ok || info.date != dateStr {
			continue
		}
		if info.suffix > highest {
			highest = info.suffix
		}
	}

	return highest
}

// openFile opens a log file with the given date and suffix.
// Returns the file handle and its current size.
func (s *FileStore) openFile(dateStr string, suffix int) (*os.File, int64, error) {
	filename := s.buildFilename(dateStr, suffix)
	path := filepath.Join(s.dir, filename)

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return nil, 0, fmt.Errorf("open file %s: %w", filename, err)
	}

	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, 0, fmt.Errorf("stat file %s: %w", filename, err)
	}

	return f, info.Size(), nil
}

// buildFilename constructs the log filename for a date and suffix.
func (s *FileStore) buildFilename(dateStr string, suffix int) string {
	if suffix == 0 {
		return fmt.Sprintf("denials-%s.log", dateStr)
	}
	return fmt.Sprintf("denials-%s-%d.log", dateStr, suffix)
}

// rotateDateLocked closes the current file and opens a new one for the given date.
// Must be called with s.mu held.
func (s *FileStore) rotateDateLocked(dateStr string) error {
	if s.currentFile != nil {
		_ = s.currentFile.Sync()
		_ = s.currentFile.Close()
		s.currentFile = nil
	}

	s.currentSuffix = 0
	s.currentSize = 0
	s.currentDate = dateStr

	f, size, err := s.openFile(dateStr, 0)
	if err != nil {
		return err
	}

	s.currentFile = f
	s.currentSize = size

	return nil
}

// rotateSizeLocked closes the current file and opens a new one with an incremented suffix.
// Must be called with s.mu held.
func (s *FileStore) rotateSizeLocked() error {
	if s.currentFile != nil {
		_ = s.currentFile.Sync()
		_ = s.currentFile.Close()
		s.currentFile = nil
	}

	s.currentSuffix++
	s.currentSize = 0

	f, size, err := s.openFile(s.currentDate, s.currentSuffix)
	if err != nil {
		return err
	}

	s.currentFile = f
	s.currentSize = size

	return nil
}

// runCleanup deletes log files older than the retention period.
func (s *FileStore) runCleanup() {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		s.logger.Error("denial log cleanup: failed to read directory", "dir", s.dir, "error", err)
		return
	}

	cutoff := time.Now().UTC().AddDate(0, 0, -s.retentionDays)
	deleted := 0

	for _, e := range entries {
		info, ok := parseDenialFilename(e.Name())
		if !ok {
			continue
		}

		fileDate, err := time.Parse("2006-01-02", info.date)
		if err != nil {
			continue
		}

		if fileDate.Before(cutoff) {
			path := filepath.Join(s.dir, e.Name())
			if err := os.Remove(path); err != nil {
				s.logger.Error("denial log cleanup: failed to delete file",
					"file", e.Name(), "error", err)
			} else {
				deleted++
			}
		}
	}

	if deleted > 0 {
		s.logger.Info("denial log cleanup completed", "deleted", deleted)
	}
}

// startCleanupLoop runs retention cleanup every hour until the context is cancelled.
func (s *FileStore) startCleanupLoop(ctx context.Context) {
	ticker := time.NewTicker(1 * time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runCleanup()
		}
	}
}

// populateCache reads the most recent log file and fills the cache so
// recent-denial queries survive a restart.
func (s *FileStore) populateCache() {
	mostRecent := s.findMostRecentFile()
	if mostRecent == "" {
		return
	}

	path := filepath.Join(s.dir, mostRecent)
	f, err := os.Open(path)
	if err != nil {
		s.logger.Error("denial cache: failed to open file for population",
			"file", mostRecent, "error", err)
		return
	}
	defer func() { _ = f.Close() }()

	var records []audit.DenialRecord
	scanner := bufio.NewScanner(f)
	// Suspicious records carry full request headers; allow large lines.
	scanner.Buffer(make([]byte, 0, 256*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}

		var rec audit.DenialRecord
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			s.logger.Warn("denial cache: skipping malformed line",
				"file", mostRecent, "error", err)
			continue
		}
		records = append(records, rec)
	}

	if err := scanner.Err(); err != nil {
		s.logger.Error("denial cache: error reading file",
			"file", mostRecent, "error", err)
	}

	start := 0
	if len(records) > s.cache.size {
		start = len(records) - s.cache.size
	}

	for _, rec := range records[start:] {
		s.cache.Add(rec)
	}
}

// findMostRecentFile returns the filename of the most recent non-empty log file,
// or an empty string if none exist.
func (s *FileStore) findMostRecentFile() string {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return ""
	}

	var files []denialFileInfo
	for _, e := range entries {
		info, ok := parseDenialFilename(e.Name())
		if !ok {
			continue
		}
		finfo, err := e.Info()
		if err != nil || finfo.Size() == 0 {
			continue
		}
		files = append(files, info)
	}

	if len(files) == 0 {
		return ""
	}

	sortDenialFiles(files)

	return files[len(files)-1].name
}

// Compile-time interface verification.
var _ audit.Store = (*FileStore)(nil)

// denialCache is a ring buffer of recent denial records.
type denialCache struct {
	entries []audit.DenialRecord
	size    int
	head    int
	count   int
	mu      sync.RWMutex
}

// newDenialCache creates a cache with the given capacity.
func newDenialCache(size int) *denialCache {
	if size <= 0 {
		size = 1000
	}
	return &denialCache{
		entries: make([]audit.DenialRecord, size),
		size:    size,
	}
}

// Add adds a record to the ring buffer, overwriting the oldest entry if full.
func (c *denialCache) Add(rec audit.DenialRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[c.head] = rec
	c.head = (c.head + 1) % c.size
	if c.count < c.size {
		c.count++
	}
}

// Recent returns the last n entries in chronological order, newest last.
// A non-positive or oversized n returns all entries.
func (c *denialCache) Recent(n int) []audit.DenialRecord {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if n <= 0 || n > c.count {
		n = c.count
	}

	result := make([]audit.DenialRecord, n)
	for i := 0; i < n; i++ {
		// head points to the next write position, so head-1 is the newest
		// and head-n is the oldest of the returned window.
		idx := (c.head - n + i + c.size*2) % c.size
		result[i] = c.entries[idx]
	}

	return result
}

// Len returns the number of entries currently in the cache.
func (c *denialCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.count
}
