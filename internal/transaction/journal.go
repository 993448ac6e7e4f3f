// Package transaction provides locking and a crash-recovery journal for
// snapshot replacement.
//
// A sync replaces the live snapshot in phases: extract into a staging
// directory, move the live snapshot to a backup directory, move staging into
// place, delete the backup. The journal records which directories belong to
// the sync in flight so an interrupted run can be cleaned up (or rolled back)
// by the next one.
package transaction

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// JournalFileName is the journal file created inside the data directory.
const JournalFileName = "sync-txn.json"

const (
	stagingPrefix = ".staging-"
	backupPrefix  = ".backup-"
)

// Phase is the last phase a sync transaction reached.
type Phase string

const (
	PhaseStaging   Phase = "staging"
	PhaseSwapping  Phase = "swapping"
	PhaseCompleted Phase = "completed"
)

// SyncTxn records an in-flight snapshot replacement.
type SyncTxn struct {
	Version    int       `json:"version"` // Schema version for future evolution
	ID         string    `json:"id"`
	Timestamp  time.Time `json:"timestamp"`
	From       string    `json:"from,omitempty"`
	To         string    `json:"to"`
	Phase      Phase     `json:"phase"`
	Snapshot   string    `json:"snapshot"`
	StagingDir string    `json:"staging_dir"`
	BackupDir  string    `json:"backup_dir"`
	Digest     string    `json:"digest,omitempty"`
}

// New creates a transaction replacing snapshotDir with revision to.
// Staging and backup directories are siblings of snapshotDir so the final
// swap is a same-filesystem rename.
func New(snapshotDir, from, to string) *SyncTxn {
	id := uuid.New().String()
	parent := filepath.Dir(snapshotDir)

	return &SyncTxn{
		Version:    1,
		ID:         id,
		Timestamp:  time.Now().UTC(),
		From:       from,
		To:         to,
		Phase:      PhaseStaging,
		Snapshot:   snapshotDir,
		StagingDir: filepath.Join(parent, stagingPrefix+id),
		BackupDir:  filepath.Join(parent, backupPrefix+id),
	}
}

// Save writes the journal to dir atomically.
// Uses write-then-rename pattern for atomicity.
func (t *SyncTxn) Save(dir string) error {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("create journal directory: %w", err)
	}

	finalPath := filepath.Join(dir, JournalFileName)
	tmpPath := finalPath + ".tmp"

	data, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal journal: %w", err)
	}

	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return fmt.Errorf("write temporary journal file: %w", err)
	}

	if err := os.Rename(tmpPath, finalPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename journal file: %w", err)
	}

	// Sync directory for durability
	df, err := os.Open(dir)
	if err == nil {
		if syncErr := df.Sync(); syncErr != nil {
			df.Close()
			return fmt.Errorf("sync directory: %w", syncErr)
		}
		df.Close()
	}

	return nil
}

// Load reads the journal in dir. It returns (nil, nil) when there is none.
func Load(dir string) (*SyncTxn, error) {
	data, err := os.ReadFile(filepath.Join(dir, JournalFileName))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read journal file: %w", err)
	}

	var txn SyncTxn
	if err := json.Unmarshal(data, &txn); err != nil {
		return nil, fmt.Errorf("unmarshal journal: %w", err)
	}

	return &txn, nil
}

// Remove deletes the journal in dir.
func Remove(dir string) error {
	if err := os.Remove(filepath.Join(dir, JournalFileName)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove journal: %w", err)
	}
	return nil
}

// RecoveryAction describes what Recover did.
type RecoveryAction string

const (
	RecoveryNone       RecoveryAction = "none"
	RecoveryCleaned    RecoveryAction = "cleaned"
	RecoveryRolledBack RecoveryAction = "rolled-back"
	RecoveryDiscarded  RecoveryAction = "discarded"
)

// Recover repairs the data directory after an interrupted sync and removes
// the journal. If the swap was interrupted after the live snapshot was moved
// aside, the backup is moved back. Leftover staging and backup directories
// are deleted. A journal naming paths outside dir is discarded without
// touching anything else.
func Recover(dir string) (RecoveryAction, error) {
	txn, err := Load(dir)
	if err != nil {
		return RecoveryNone, err
	}
	if txn == nil {
		return RecoveryNone, nil
	}

	if !txn.ownedBy(dir) {
		if err := Remove(dir); err != nil {
			return RecoveryNone, err
		}
		return RecoveryDiscarded, nil
	}

	action := RecoveryCleaned

	if txn.Phase == PhaseSwapping && !exists(txn.Snapshot) && exists(txn.BackupDir) {
		if err := os.Rename(txn.BackupDir, txn.Snapshot); err != nil {
			return RecoveryNone, fmt.Errorf("restore backup: %w", err)
		}
		action = RecoveryRolledBack
	}

	for _, leftover := range []string{txn.StagingDir, txn.BackupDir} {
		if leftover == "" || leftover == txn.Snapshot {
			continue
		}
		if err := os.RemoveAll(leftover); err != nil {
			return action, fmt.Errorf("remove %s: %w", leftover, err)
		}
	}

	if err := Remove(dir); err != nil {
		return action, err
	}

	return action, nil
}

// ownedBy reports whether every directory the journal names sits directly
// in dir, with staging and backup carrying their prefixes.
func (t *SyncTxn) ownedBy(dir string) bool {
	dir = filepath.Clean(dir)

	inDir := func(p, prefix string) bool {
		if p == "" || !filepath.IsAbs(p) || filepath.Clean(p) != p || filepath.Dir(p) != dir {
			return false
		}
		base := filepath.Base(p)
		return strings.HasPrefix(base, prefix) && len(base) > len(prefix)
	}

	return inDir(t.Snapshot, "") &&
		!strings.HasPrefix(filepath.Base(t.Snapshot), ".") &&
		inDir(t.StagingDir, stagingPrefix) &&
		inDir(t.BackupDir, backupPrefix)
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
