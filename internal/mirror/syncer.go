package mirror

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/ZebulonRouseFrantzich/repomirror/internal/transaction"
)

const (
	// SnapshotDirName is the extracted tree inside the data directory
	SnapshotDirName = "snapshot"
	// MarkerFileName holds the revision of the extracted tree
	MarkerFileName = "snapshot.revision"
)

// Syncer keeps the snapshot in a data directory in line with the tip of a
// remote branch.
type Syncer struct {
	locator     Locator
	dataDir     string
	snapshotDir string
	source      RevisionSource
	fetcher     *Fetcher
	extractor   *Extractor
	verifier    *Verifier
	markers     *MarkerStore
	logger      Logger

	group singleflight.Group
}

// Config holds configuration for the syncer. Only Locator and DataDir are
// required; the remaining collaborators default to GitHub-backed ones.
type Config struct {
	Locator Locator
	// DataDir holds the snapshot, the marker, the lock and the journal
	DataDir   string
	Source    RevisionSource
	Fetcher   *Fetcher
	Extractor *Extractor
	// Verifier is optional; when set every archive must carry a valid signature
	Verifier *Verifier
	Logger   Logger
}

// NewSyncer creates a new syncer and reads the current marker from disk.
func NewSyncer(cfg Config) (*Syncer, error) {
	if err := cfg.Locator.Validate(); err != nil {
		return nil, fmt.Errorf("invalid locator: %w", err)
	}

	if cfg.DataDir == "" {
		return nil, fmt.Errorf("DataDir is required")
	}

	dataDir, err := filepath.Abs(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("resolve data dir: %w", err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = NopLogger()
	}

	s := &Syncer{
		locator:     cfg.Locator,
		dataDir:     dataDir,
		snapshotDir: filepath.Join(dataDir, SnapshotDirName),
		source:      cfg.Source,
		fetcher:     cfg.Fetcher,
		extractor:   cfg.Extractor,
		verifier:    cfg.Verifier,
		logger:      logger,
	}

	if s.source == nil {
		s.source = NewGitHubSource(DefaultAPIBaseURL, DefaultUserAgent)
	}
	if s.fetcher == nil {
		s.fetcher = NewFetcher(FetcherConfig{})
	}
	if s.extractor == nil {
		s.extractor = NewExtractor().WithLogger(logger)
	}

	s.markers = NewMarkerStore(nil, s.snapshotDir, filepath.Join(dataDir, MarkerFileName), logger)

	return s, nil
}

// Locator returns the tracked repository.
func (s *Syncer) Locator() Locator {
	return s.locator
}

// SnapshotDir returns the directory consumers read the mirrored files from.
func (s *Syncer) SnapshotDir() string {
	return s.snapshotDir
}

// DataDir returns the directory holding the snapshot and its metadata.
func (s *Syncer) DataDir() string {
	return s.dataDir
}

// CurrentRevision returns the revision of the installed snapshot as last
// seen by this process. It does not touch disk.
func (s *Syncer) CurrentRevision() RevisionID {
	return s.markers.Current()
}

// SyncOption adjusts a single TrySync call.
type SyncOption func(*syncOptions)

type syncOptions struct {
	force bool
}

// WithForce installs the latest archive even when the marker already names
// the remote revision. The marker is only replaced once the new snapshot is
// in place, so a failed forced sync keeps the installed revision.
func WithForce() SyncOption {
	return func(o *syncOptions) {
		o.force = true
	}
}

// TrySync installs the latest remote revision if it differs from the local
// one. Concurrent calls within a process share a single execution (and the
// first caller's context); a lock file excludes other processes. Forced and
// regular calls do not share executions.
//
// An unreachable remote yields StatusUnavailable and a nil error. Download,
// verification and extraction failures are returned as errors and leave the
// installed snapshot untouched.
func (s *Syncer) TrySync(ctx context.Context, opts ...SyncOption) (*SyncResult, error) {
	var o syncOptions
	for _, opt := range opts {
		opt(&o)
	}

	key := "sync"
	if o.force {
		key = "sync-force"
	}

	v, err, _ := s.group.Do(key, func() (interface{}, error) {
		return s.trySync(ctx, o)
	})

	result, _ := v.(*SyncResult)
	if result != nil {
		// Shared callers each get their own copy
		copied := *result
		result = &copied
	}
	return result, err
}

func (s *Syncer) trySync(ctx context.Context, o syncOptions) (*SyncResult, error) {
	start := time.Now()

	lock, err := transaction.AcquireLock(ctx, s.dataDir, s.logger)
	if err != nil {
		if errors.Is(err, transaction.ErrLockExists) {
			return nil, fmt.Errorf("%w: %w", ErrSyncInProgress, err)
		}
		return nil, fmt.Errorf("acquire sync lock: %w", err)
	}
	defer lock.Release()

	action, err := transaction.Recover(s.dataDir)
	if err != nil {
		return nil, fmt.Errorf("recover interrupted sync: %w", err)
	}
	if action != transaction.RecoveryNone {
		s.logger.Warn("Recovered interrupted sync", "action", action)
	}

	latest, err := s.source.LatestRevision(ctx, s.locator)
	if err != nil && ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if err != nil || latest.IsZero() {
		s.logger.Warn("Could not determine latest revision", "repo", s.locator.String(), "error", err)
		return &SyncResult{
			Status:   StatusUnavailable,
			Previous: s.markers.Current(),
			Current:  s.markers.Current(),
			Duration: time.Since(start),
		}, nil
	}

	current := s.markers.Load()
	if latest == current && !o.force {
		s.logger.Debug("Snapshot on latest revision, not updating", "revision", current.String())
		return &SyncResult{
			Status:   StatusUpToDate,
			Previous: current,
			Current:  current,
			Duration: time.Since(start),
		}, nil
	}

	url := s.fetcher.ArchiveURL(s.locator, latest)
	s.logger.Info("Updating snapshot", "from", current.String(), "to", latest.String(), "url", url, "force", o.force)

	archivePath, err := s.fetcher.DownloadArchive(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("download archive: %w", err)
	}
	defer os.Remove(archivePath)

	digest, err := ArchiveDigest(archivePath)
	if err != nil {
		return nil, fmt.Errorf("%w: hash archive: %w", ErrFetchFailed, err)
	}
	s.logger.Debug("Downloaded archive", "path", archivePath, "sha256", digest)

	if s.verifier != nil {
		if err := s.verify(ctx, archivePath, latest); err != nil {
			return nil, err
		}
	}

	txn := transaction.New(s.snapshotDir, string(current), string(latest))
	txn.Digest = digest
	if err := txn.Save(s.dataDir); err != nil {
		return nil, fmt.Errorf("save sync journal: %w", err)
	}

	stats, err := s.extractor.Extract(ctx, archivePath, txn.StagingDir)
	if err != nil {
		s.abandon(txn)
		if IsSecurityViolation(err) {
			s.logger.Error("SECURITY: archive contains entries outside the snapshot directory; update aborted",
				"repo", s.locator.String(), "revision", latest.String(), "sha256", digest, "error", err)
		}
		return nil, fmt.Errorf("extract archive: %w", err)
	}
	s.logger.Debug("Extracted archive", "files", stats.Files, "bytes", stats.Bytes, "skipped", stats.Skipped)

	if err := s.swap(txn, current); err != nil {
		return nil, err
	}

	if err := s.markers.Write(latest); err != nil {
		return nil, fmt.Errorf("write revision marker: %w", err)
	}

	s.logger.Info("Snapshot updated", "revision", latest.String(), "files", stats.Files)

	return &SyncResult{
		Status:   StatusUpdated,
		Updated:  true,
		Previous: current,
		Current:  latest,
		Digest:   digest,
		Files:    stats.Files,
		Duration: time.Since(start),
	}, nil
}

func (s *Syncer) verify(ctx context.Context, archivePath string, rev RevisionID) error {
	sigPath, err := s.fetcher.DownloadSignature(ctx, s.verifier.SignatureURL(s.locator, rev))
	if err != nil {
		return fmt.Errorf("%w: download signature: %w", ErrVerifyFailed, err)
	}
	defer os.Remove(sigPath)

	if err := s.verifier.Verify(archivePath, sigPath); err != nil {
		s.logger.Error("Archive signature verification failed", "revision", rev.String(), "error", err)
		return err
	}

	s.logger.Debug("Archive signature verified", "revision", rev.String())
	return nil
}

// swap moves the staged tree into place. The marker is cleared first so it
// never names a revision the directory does not hold.
func (s *Syncer) swap(txn *transaction.SyncTxn, previous RevisionID) error {
	txn.Phase = transaction.PhaseSwapping
	if err := txn.Save(s.dataDir); err != nil {
		s.abandon(txn)
		return fmt.Errorf("save sync journal: %w", err)
	}

	if err := s.markers.Clear(); err != nil {
		s.abandon(txn)
		return fmt.Errorf("clear revision marker: %w", err)
	}

	hadSnapshot := dirExists(s.snapshotDir)
	if hadSnapshot {
		if err := os.Rename(s.snapshotDir, txn.BackupDir); err != nil {
			s.restoreMarker(previous)
			s.abandon(txn)
			return fmt.Errorf("%w: move old snapshot aside: %w", ErrExtractFailed, err)
		}
	} else if err := os.RemoveAll(s.snapshotDir); err != nil {
		// A stray file where the snapshot dir should be
		s.abandon(txn)
		return fmt.Errorf("%w: clear snapshot path: %w", ErrExtractFailed, err)
	}

	if err := os.Rename(txn.StagingDir, s.snapshotDir); err != nil {
		if hadSnapshot {
			if rerr := os.Rename(txn.BackupDir, s.snapshotDir); rerr != nil {
				s.logger.Error("Failed to restore previous snapshot", "backup", txn.BackupDir, "error", rerr)
				return fmt.Errorf("%w: install new snapshot: %w (restore failed: %v)", ErrExtractFailed, err, rerr)
			}
			s.restoreMarker(previous)
		}
		s.abandon(txn)
		return fmt.Errorf("%w: install new snapshot: %w", ErrExtractFailed, err)
	}

	txn.Phase = transaction.PhaseCompleted
	if err := txn.Save(s.dataDir); err != nil {
		s.logger.Warn("Could not record completed sync", "error", err)
	}

	if err := os.RemoveAll(txn.BackupDir); err != nil {
		s.logger.Warn("Could not remove previous snapshot", "path", txn.BackupDir, "error", err)
	}
	if err := transaction.Remove(s.dataDir); err != nil {
		s.logger.Warn("Could not remove sync journal", "error", err)
	}

	return nil
}

func (s *Syncer) restoreMarker(previous RevisionID) {
	if previous.IsZero() {
		return
	}
	if err := s.markers.Write(previous); err != nil {
		s.logger.Warn("Could not restore revision marker", "revision", previous.String(), "error", err)
	}
}

// abandon removes the staging directory and the journal of a failed sync.
func (s *Syncer) abandon(txn *transaction.SyncTxn) {
	if err := os.RemoveAll(txn.StagingDir); err != nil {
		s.logger.Warn("Could not remove staging directory", "path", txn.StagingDir, "error", err)
	}
	if err := transaction.Remove(s.dataDir); err != nil {
		s.logger.Warn("Could not remove sync journal", "error", err)
	}
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
