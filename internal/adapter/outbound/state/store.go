package state

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"sync"
	"time"
)

// MaxRecentIPs bounds the connect history kept on disk; older entries are
// dropped first.
const MaxRecentIPs = 500

// FileStateStore reads and writes state.json.
type FileStateStore struct {
	path   string
	mu     sync.Mutex
	logger *slog.Logger
	now    func() time.Time
}

// NewFileStateStore creates a new FileStateStore for the given file path.
func NewFileStateStore(path string, logger *slog.Logger) *FileStateStore {
	return &FileStateStore{
		path:   path,
		logger: logger,
		now:    time.Now,
	}
}

// Load reads and parses the state file. A missing file yields an empty
// state; invalid JSON is an error.
func (s *FileStateStore) Load() (*AppState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked()
}

func (s *FileStateStore) loadLocked() (*AppState, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return s.DefaultState(), nil
		}
		return nil, fmt.Errorf("read state file: %w", err)
	}

	if runtime.GOOS != "windows" {
		if info, statErr := os.Stat(s.path); statErr == nil && info.Mode().Perm()&0o077 != 0 {
			s.logger.Warn("state file readable by group or others, should be 0600",
				"path", s.path, "current_mode", fmt.Sprintf("%04o", info.Mode().Perm()))
		}
	}

	var st AppState
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("parse state file: %w", err)
	}
	if st.Sessions == nil {
		st.Sessions = make(map[string]SessionEntry)
	}
	return &st, nil
}

// Update loads the state, applies fn and saves the result, all under the
// store's locks. Nothing is written when fn returns an error.
func (s *FileStateStore) Update(fn func(*AppState) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	unlock, err := s.lockFile()
	if err != nil {
		return err
	}
	defer unlock()

	st, err := s.loadLocked()
	if err != nil {
		return err
	}
	if err := fn(st); err != nil {
		return err
	}
	return s.saveLocked(st)
}

// Save writes st to disk atomically.
func (s *FileStateStore) Save(st *AppState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	unlock, err := s.lockFile()
	if err != nil {
		return err
	}
	defer unlock()

	return s.saveLocked(st)
}

// lockFile takes the cross-process lock and returns its release func.
func (s *FileStateStore) lockFile() (func(), error) {
	f, err := os.OpenFile(s.path+".lock", os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}
	if err := flockLock(f.Fd()); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("acquire file lock: %w", err)
	}
	return func() {
		_ = flockUnlock(f.Fd())
		_ = f.Close()
	}, nil
}

func (s *FileStateStore) saveLocked(st *AppState) error {
	st.Version = SchemaVersion
	st.UpdatedAt = s.now().UTC()
	if n := len(st.RecentIPs); n > MaxRecentIPs {
		st.RecentIPs = append([]RecentIPEntry(nil), st.RecentIPs[n-MaxRecentIPs:]...)
	}

	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	data = append(data, '\n')

	if err := s.writeAtomic(data); err != nil {
		return err
	}
	if err := os.Chmod(s.path, 0o600); err != nil {
		s.logger.Warn("failed to set permissions on state file", "error", err)
	}

	s.logger.Debug("state saved", "path", s.path, "sessions", len(st.Sessions))
	return nil
}

// writeAtomic writes data to a temp file, fsyncs it and renames it over
// the target path. The temp file is removed on any error.
func (s *FileStateStore) writeAtomic(data []byte) error {
	tmpPath := s.path + ".tmp"

	f, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	fail := func(step string, err error) error {
		_ = f.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("%s temp file: %w", step, err)
	}

	if _, err := f.Write(data); err != nil {
		return fail("write", err)
	}
	if err := f.Sync(); err != nil {
		return fail("fsync", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("rename temp to state: %w", err)
	}
	return nil
}

// DefaultState returns an empty state.
func (s *FileStateStore) DefaultState() *AppState {
	now := s.now().UTC()
	return &AppState{
		Version:   SchemaVersion,
		Sessions:  make(map[string]SessionEntry),
		RecentIPs: []RecentIPEntry{},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Exists returns true if the state file exists on disk.
func (s *FileStateStore) Exists() bool {
	_, err := os.Stat(s.path)
	return err == nil
}

// Path returns the configured file path.
func (s *FileStateStore) Path() string {
	return s.path
}
