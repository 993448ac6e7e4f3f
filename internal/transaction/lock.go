package transaction

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	// StaleLockThreshold is the age after which a lock is assumed to belong
	// to a crashed process.
	StaleLockThreshold = 10 * time.Minute

	// LockFileName is the lock file created inside the data directory.
	LockFileName = ".sync.lock"
)

// ErrLockExists is returned while another sync holds the data directory.
var ErrLockExists = errors.New("sync lock exists: another sync may be in progress")

// Logger receives lock diagnostics. mirror.Logger satisfies it.
type Logger interface {
	Warn(msg string, keysAndValues ...interface{})
}

// Lock is a held sync lock on a data directory.
type Lock struct {
	path string
	file *os.File
}

// holder describes the process that wrote a lock file.
type holder struct {
	pid      string
	acquired string
	age      time.Duration
}

// AcquireLock takes the sync lock on dir without blocking. A stale lock is
// replaced and reported through logger, which may be nil.
func AcquireLock(ctx context.Context, dir string, logger Logger) (*Lock, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("acquire lock: %w", err)
	}

	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("create lock directory: %w", err)
	}

	path := filepath.Join(dir, LockFileName)

	file, err := createLockFile(path)
	if errors.Is(err, fs.ErrExist) {
		file, err = replaceStale(path, logger)
	}
	if err != nil {
		return nil, err
	}

	stamp := fmt.Sprintf("pid=%d\ntimestamp=%s\n", os.Getpid(), time.Now().UTC().Format(time.RFC3339))
	if _, err := file.WriteString(stamp); err == nil {
		err = file.Sync()
	}
	if err != nil {
		file.Close()
		os.Remove(path)
		return nil, fmt.Errorf("write lock file: %w", err)
	}

	return &Lock{path: path, file: file}, nil
}

func createLockFile(path string) (*os.File, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0600)
	if err != nil && !errors.Is(err, fs.ErrExist) {
		return nil, fmt.Errorf("create lock file: %w", err)
	}
	return file, err
}

// replaceStale removes the lock at path if it is older than
// StaleLockThreshold and tries once more to create it.
func replaceStale(path string, logger Logger) (*os.File, error) {
	h, err := readHolder(path)
	if err != nil || h.age <= StaleLockThreshold {
		return nil, ErrLockExists
	}

	if logger != nil {
		logger.Warn("Replacing stale sync lock",
			"path", path, "pid", h.pid, "acquired", h.acquired, "age", h.age.Round(time.Second).String())
	}

	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("remove stale lock: %w", err)
	}

	file, err := createLockFile(path)
	if errors.Is(err, fs.ErrExist) {
		// Another process won the race for the replacement
		return nil, ErrLockExists
	}
	return file, err
}

// readHolder reads the metadata of an existing lock. The age comes from the
// file's modification time so a lock with unreadable content still expires.
func readHolder(path string) (holder, error) {
	info, err := os.Stat(path)
	if err != nil {
		return holder{}, err
	}

	h := holder{age: time.Since(info.ModTime())}

	f, err := os.Open(path)
	if err != nil {
		return h, nil
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		key, value, ok := strings.Cut(scanner.Text(), "=")
		if !ok {
			continue
		}
		switch key {
		case "pid":
			h.pid = value
		case "timestamp":
			h.acquired = value
		}
	}

	return h, nil
}

// Release releases the lock. It is safe to call more than once.
func (l *Lock) Release() error {
	if l.file != nil {
		l.file.Close()
		l.file = nil
	}

	if l.path == "" {
		return nil
	}

	err := os.Remove(l.path)
	l.path = ""
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove lock file: %w", err)
	}
	return nil
}
