package mirror

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// RevisionID identifies a state of the remote repository (a commit hash).
// The zero value means the revision is unknown.
type RevisionID string

// String returns the revision, or "unknown" for the zero value.
func (r RevisionID) String() string {
	if r == "" {
		return "unknown"
	}
	return string(r)
}

// IsZero reports whether the revision is unknown.
func (r RevisionID) IsZero() bool {
	return r == ""
}

// Short returns the first 12 characters of the revision.
func (r RevisionID) Short() string {
	if len(r) > 12 {
		return string(r[:12])
	}
	return r.String()
}

// Locator identifies the remote repository and branch to mirror.
type Locator struct {
	Owner  string
	Name   string
	Branch string
}

// String returns owner/name@branch.
func (l Locator) String() string {
	return fmt.Sprintf("%s/%s@%s", l.Owner, l.Name, l.Branch)
}

// Validate checks that all fields are set and safe to put into a URL path.
func (l Locator) Validate() error {
	fields := []struct {
		name  string
		value string
	}{
		{"owner", l.Owner},
		{"name", l.Name},
		{"branch", l.Branch},
	}

	for _, f := range fields {
		if strings.TrimSpace(f.value) == "" {
			return fmt.Errorf("locator %s is required", f.name)
		}
		if strings.ContainsAny(f.value, " \t\n?#") {
			return fmt.Errorf("locator %s contains invalid characters: %q", f.name, f.value)
		}
	}

	// Branches may contain slashes (feature/x), owner and name may not
	if strings.Contains(l.Owner, "/") || strings.Contains(l.Name, "/") {
		return fmt.Errorf("locator owner and name must not contain '/'")
	}
	if l.Owner == ".." || l.Name == ".." || l.Owner == "." || l.Name == "." {
		return fmt.Errorf("locator owner and name must not be relative path elements")
	}

	return nil
}

// SyncStatus is the outcome of a sync attempt.
type SyncStatus int

const (
	// StatusUnavailable means the latest revision could not be determined
	StatusUnavailable SyncStatus = iota
	// StatusUpToDate means the local snapshot already matches the remote
	StatusUpToDate
	// StatusUpdated means a new snapshot was installed
	StatusUpdated
)

// String returns the string representation of the status
func (s SyncStatus) String() string {
	switch s {
	case StatusUnavailable:
		return "unavailable"
	case StatusUpToDate:
		return "up-to-date"
	case StatusUpdated:
		return "updated"
	default:
		return "unknown"
	}
}

// SyncResult describes a completed sync attempt.
type SyncResult struct {
	Status   SyncStatus
	Updated  bool
	Previous RevisionID
	Current  RevisionID
	// Digest is the SHA-256 of the downloaded archive (empty unless updated)
	Digest   string
	Files    int
	Duration time.Duration
}

// ExtractStats summarizes an extraction.
type ExtractStats struct {
	Files   int
	Bytes   int64
	Skipped int
}

var (
	// ErrFetchFailed is returned when the archive download fails
	ErrFetchFailed = errors.New("fetch failed")
	// ErrRevisionQuery is returned when the revision endpoint cannot be reached
	ErrRevisionQuery = errors.New("revision query failed")
	// ErrExtractFailed is returned for I/O errors during extraction
	ErrExtractFailed = errors.New("extract failed")
	// ErrPathEscape is matched by every SecurityError
	ErrPathEscape = errors.New("archive entry escapes target directory")
	// ErrArchiveLimit is returned when an archive exceeds extraction limits
	ErrArchiveLimit = errors.New("archive exceeds extraction limits")
	// ErrVerifyFailed is returned when archive verification fails
	ErrVerifyFailed = errors.New("archive verification failed")
	// ErrSyncInProgress is returned when another process holds the sync lock
	ErrSyncInProgress = errors.New("sync already in progress")
)

// SecurityError reports an archive entry that would be written outside the
// target directory. It indicates a compromised or malicious source.
type SecurityError struct {
	Entry  string // Raw entry name from the archive
	Target string // Directory the entry tried to escape
	Reason string
}

func (e *SecurityError) Error() string {
	return fmt.Sprintf("invalid archive entry %q (%s): refusing to write outside %s", e.Entry, e.Reason, e.Target)
}

// Is makes errors.Is(err, ErrPathEscape) match any SecurityError.
func (e *SecurityError) Is(target error) bool {
	return target == ErrPathEscape
}

// IsSecurityViolation reports whether err was caused by a malicious archive.
func IsSecurityViolation(err error) bool {
	return errors.Is(err, ErrPathEscape)
}
