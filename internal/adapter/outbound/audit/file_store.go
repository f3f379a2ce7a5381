// Package audit writes the session journal as JSON Lines files with daily
// and size-based rotation, retention cleanup, and an in-memory tail.
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

	"github.com/netcore-rdp/rdportal/internal/domain/audit"
)

const dateLayout = "2006-01-02"

// journalFilePattern matches sessions-YYYY-MM-DD.jsonl and sessions-YYYY-MM-DD-N.jsonl.
var journalFilePattern = regexp.MustCompile(`^sessions-(\d{4}-\d{2}-\d{2})(?:-(\d+))?\.jsonl$`)

// journalFile is a parsed journal filename.
type journalFile struct {
	name   string
	date   string
	suffix int
}

func parseJournalFilename(name string) (journalFile, bool) {
	m := journalFilePattern.FindStringSubmatch(name)
	if m == nil {
		return journalFile{}, false
	}
	f := journalFile{name: name, date: m[1]}
	if m[2] != "" {
		n, err := strconv.Atoi(m[2])
		if err != nil {
			return journalFile{}, false
		}
		f.suffix = n
	}
	return f, true
}

func journalFilename(date string, suffix int) string {
	if suffix == 0 {
		return fmt.Sprintf("sessions-%s.jsonl", date)
	}
	return fmt.Sprintf("sessions-%s-%d.jsonl", date, suffix)
}

// sortJournalFiles orders files chronologically: by date, then suffix.
func sortJournalFiles(files []journalFile) {
	sort.Slice(files, func(i, j int) bool {
		if files[i].date != files[j].date {
			return files[i].date < files[j].date
		}
		return files[i].suffix < files[j].suffix
	})
}

// Config configures FileJournal.
type Config struct {
	// Dir holds the journal files. Created with 0700 if missing.
	Dir string
	// RetentionDays is how long files are kept (default 30).
	RetentionDays int
	// MaxFileSizeMB rotates the day's file once it grows past this (default 50).
	MaxFileSizeMB int
	// CacheSize is how many recent events Recent can return (default 500).
	CacheSize int
}

// FileJournal implements audit.Journal on rotating JSON Lines files.
type FileJournal struct {
	dir           string
	maxFileSize   int64
	retentionDays int
	now           func() time.Time
	logger        *slog.Logger

	mu            sync.Mutex
	currentFile   *os.File
	currentDate   string
	currentSize   int64
	currentSuffix int
	closed        bool

	tail   *eventRing
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Option configures FileJournal.
type Option func(*FileJournal)

// WithClock overrides the time source used for retention.
func WithClock(now func() time.Time) Option {
	return func(j *FileJournal) { j.now = now }
}

// Open creates the directory if needed, opens today's file, removes files
// past retention, reloads the tail from the newest file and starts an
// hourly retention sweep.
func Open(cfg Config, logger *slog.Logger, opts ...Option) (*FileJournal, error) {
	if cfg.RetentionDays <= 0 {
		cfg.RetentionDays = 30
	}
	if cfg.MaxFileSizeMB <= 0 {
		cfg.MaxFileSizeMB = 50
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = 500
	}

	if err := os.MkdirAll(cfg.Dir, 0o700); err != nil {
		return nil, fmt.Errorf("create journal directory: %w", err)
	}

	j := &FileJournal{
		dir:           cfg.Dir,
		maxFileSize:   int64(cfg.MaxFileSizeMB) << 20,
		retentionDays: cfg.RetentionDays,
		now:           time.Now,
		logger:        logger,
		tail:          newEventRing(cfg.CacheSize),
	}
	for _, opt := range opts {
		opt(j)
	}

	if err := j.openLatest(j.now().UTC().Format(dateLayout)); err != nil {
		return nil, fmt.Errorf("open journal file: %w", err)
	}
	j.removeExpired()
	j.loadTail()

	ctx, cancel := context.WithCancel(context.Background())
	j.cancel = cancel
	j.wg.Add(1)
	go j.sweepLoop(ctx)

	return j, nil
}

// Append writes each event as one JSON line, rotating first when the
// event's day differs from the open file's or the file is full.
func (j *FileJournal) Append(_ context.Context, events ...audit.Event) error {
	if len(events) == 0 {
		return nil
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	if j.closed {
		return fmt.Errorf("journal closed")
	}

	for _, ev := range events {
		date := ev.Timestamp.UTC().Format(dateLayout)
		if date != j.currentDate {
			if err := j.rotateLocked(date, 0); err != nil {
				return fmt.Errorf("date rotation: %w", err)
			}
		}
		if j.currentSize >= j.maxFileSize {
			if err := j.rotateLocked(j.currentDate, j.currentSuffix+1); err != nil {
				return fmt.Errorf("size rotation: %w", err)
			}
		}

		line, err := json.Marshal(ev)
		if err != nil {
			return fmt.Errorf("marshal event: %w", err)
		}
		n, err := j.currentFile.Write(append(line, '\n'))
		j.currentSize += int64(n)
		if err != nil {
			return fmt.Errorf("write event: %w", err)
		}
		j.tail.Add(ev)
	}
	return nil
}

// Recent returns up to n events, newest first.
func (j *FileJournal) Recent(n int) []audit.Event {
	return j.tail.Recent(n)
}

// Flush syncs the open file.
func (j *FileJournal) Flush(_ context.Context) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.currentFile != nil {
		return j.currentFile.Sync()
	}
	return nil
}

// Close stops the sweep and closes the open file. Safe to call repeatedly.
func (j *FileJournal) Close() error {
	j.mu.Lock()
	if j.closed {
		j.mu.Unlock()
		return nil
	}
	j.closed = true
	j.cancel()

	var err error
	if j.currentFile != nil {
		_ = j.currentFile.Sync()
		err = j.currentFile.Close()
		j.currentFile = nil
	}
	j.mu.Unlock()

	j.wg.Wait()
	return err
}

// openLatest opens the highest-suffix file for date so a restart keeps
// appending where the previous run stopped.
func (j *FileJournal) openLatest(date string) error {
	suffix := 0
	for _, f := range j.listFiles() {
		if f.date == date && f.suffix > suffix {
			suffix = f.suffix
		}
	}
	return j.rotateLocked(date, suffix)
}

// rotateLocked closes the open file and opens date/suffix for appending.
func (j *FileJournal) rotateLocked(date string, suffix int) error {
	if j.currentFile != nil {
		_ = j.currentFile.Sync()
		_ = j.currentFile.Close()
		j.currentFile = nil
	}

	name := journalFilename(date, suffix)
	f, err := os.OpenFile(filepath.Join(j.dir, name), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("open %s: %w", name, err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return fmt.Errorf("stat %s: %w", name, err)
	}

	j.currentFile = f
	j.currentDate = date
	j.currentSuffix = suffix
	j.currentSize = info.Size()
	return nil
}

// listFiles returns the journal files in the directory, unsorted.
func (j *FileJournal) listFiles() []journalFile {
	entries, err := os.ReadDir(j.dir)
	if err != nil {
		return nil
	}
	files := make([]journalFile, 0, len(entries))
	for _, e := range entries {
		if f, ok := parseJournalFilename(e.Name()); ok {
			files = append(files, f)
		}
	}
	return files
}

// removeExpired deletes files dated before the retention cutoff. The open
// file is never removed.
func (j *FileJournal) removeExpired() int {
	cutoff := j.now().UTC().AddDate(0, 0, -j.retentionDays)

	j.mu.Lock()
	open := journalFilename(j.currentDate, j.currentSuffix)
	j.mu.Unlock()

	deleted := 0
	for _, f := range j.listFiles() {
		day, err := time.Parse(dateLayout, f.date)
		if err != nil || !day.Before(cutoff) || f.name == open {
			continue
		}
		if err := os.Remove(filepath.Join(j.dir, f.name)); err != nil {
			j.logger.Error("journal retention: failed to delete file", "file", f.name, "error", err)
			continue
		}
		deleted++
	}
	if deleted > 0 {
		j.logger.Info("journal retention completed", "deleted", deleted)
	}
	return deleted
}

func (j *FileJournal) sweepLoop(ctx context.Context) {
	defer j.wg.Done()
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			j.removeExpired()
		}
	}
}

// loadTail refills the in-memory tail from the newest non-empty file.
func (j *FileJournal) loadTail() {
	var candidates []journalFile
	for _, f := range j.listFiles() {
		info, err := os.Stat(filepath.Join(j.dir, f.name))
		if err == nil && info.Size() > 0 {
			candidates = append(candidates, f)
		}
	}
	if len(candidates) == 0 {
		return
	}
	sortJournalFiles(candidates)
	newest := candidates[len(candidates)-1].name

	f, err := os.Open(filepath.Join(j.dir, newest))
	if err != nil {
		j.logger.Error("journal tail: failed to open file", "file", newest, "error", err)
		return
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		if len(scanner.Bytes()) == 0 {
			continue
		}
		var ev audit.Event
		if err := json.Unmarshal(scanner.Bytes(), &ev); err != nil {
			j.logger.Warn("journal tail: skipping malformed line", "file", newest, "error", err)
			continue
		}
		j.tail.Add(ev)
	}
	if err := scanner.Err(); err != nil {
		j.logger.Error("journal tail: read failed", "file", newest, "error", err)
	}
}

var _ audit.Journal = (*FileJournal)(nil)

// eventRing keeps the most recent events.
type eventRing struct {
	mu      sync.RWMutex
	entries []audit.Event
	head    int
	count   int
}

func newEventRing(size int) *eventRing {
	return &eventRing{entries: make([]audit.Event, size)}
}

// Add stores ev, overwriting the oldest entry when full.
func (r *eventRing) Add(ev audit.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.entries[r.head] = ev
	r.head = (r.head + 1) % len(r.entries)
	if r.count < len(r.entries) {
		r.count++
	}
}

// Recent returns up to n entries, newest first.
func (r *eventRing) Recent(n int) []audit.Event {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if n <= 0 || r.count == 0 {
		return nil
	}
	n = min(n, r.count)

	out := make([]audit.Event, n)
	size := len(r.entries)
	for i := range n {
		out[i] = r.entries[(r.head-1-i+size)%size]
	}
	return out
}
