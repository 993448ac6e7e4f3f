package mirror

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/spf13/afero"
)

// MarkerStore persists the revision the current snapshot was extracted from.
// The marker is a plain text file beside the snapshot directory. The last
// value read or written is cached so callers can query it without disk I/O.
type MarkerStore struct {
	fs          afero.Fs
	snapshotDir string
	markerPath  string
	logger      Logger

	mu      sync.RWMutex
	current RevisionID
}

// NewMarkerStore creates a store and reads the marker once from disk.
// A nil fs selects the OS filesystem.
func NewMarkerStore(fs afero.Fs, snapshotDir, markerPath string, logger Logger) *MarkerStore {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	if logger == nil {
		logger = NopLogger()
	}

	s := &MarkerStore{
		fs:          fs,
		snapshotDir: snapshotDir,
		markerPath:  markerPath,
		logger:      logger,
	}
	s.Load()
	return s
}

// Load reads the marker from disk and refreshes the cache. The revision is
// unknown when the snapshot directory or the marker file is missing, or
// when the marker cannot be read.
func (s *MarkerStore) Load() RevisionID {
	rev := s.read()

	s.mu.Lock()
	s.current = rev
	s.mu.Unlock()

	return rev
}

func (s *MarkerStore) read() RevisionID {
	info, err := s.fs.Stat(s.snapshotDir)
	if err != nil || !info.IsDir() {
		return ""
	}

	data, err := afero.ReadFile(s.fs, s.markerPath)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Debug("marker unreadable, treating revision as unknown", "path", s.markerPath, "error", err)
		}
		return ""
	}

	return RevisionID(strings.TrimSpace(string(data)))
}

// Current returns the cached revision without touching disk.
func (s *MarkerStore) Current() RevisionID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Write replaces the marker with rev and updates the cache.
func (s *MarkerStore) Write(rev RevisionID) error {
	if rev.IsZero() {
		return fmt.Errorf("refusing to write empty revision marker")
	}

	if err := s.fs.MkdirAll(filepath.Dir(s.markerPath), 0755); err != nil {
		return fmt.Errorf("create marker dir: %w", err)
	}

	tmpPath := s.markerPath + ".tmp"
	if err := afero.WriteFile(s.fs, tmpPath, []byte(rev), 0644); err != nil {
		return fmt.Errorf("write marker: %w", err)
	}

	if err := s.fs.Rename(tmpPath, s.markerPath); err != nil {
		_ = s.fs.Remove(tmpPath)
		return fmt.Errorf("rename marker: %w", err)
	}

	s.mu.Lock()
	s.current = rev
	s.mu.Unlock()

	return nil
}

// Clear removes the marker so the next sync re-fetches the latest revision.
func (s *MarkerStore) Clear() error {
	if err := s.fs.Remove(s.markerPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove marker: %w", err)
	}

	s.mu.Lock()
	s.current = ""
	s.mu.Unlock()

	return nil
}

// Path returns the marker file location.
func (s *MarkerStore) Path() string {
	return s.markerPath
}
