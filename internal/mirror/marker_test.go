package mirror

import (
	"testing"

	"github.com/spf13/afero"
)

const (
	testSnapshotDir = "/data/snapshot"
	testMarkerPath  = "/data/snapshot.revision"
)

func TestMarkerStoreLoad(t *testing.T) {
	tests := []struct {
		name  string
		setup func(fs afero.Fs)
		want  RevisionID
	}{
		{
			name:  "nothing_on_disk",
			setup: func(fs afero.Fs) {},
			want:  "",
		},
		{
			name: "marker_without_snapshot_dir",
			setup: func(fs afero.Fs) {
				_ = afero.WriteFile(fs, testMarkerPath, []byte("abc123"), 0644)
			},
			want: "",
		},
		{
			name: "snapshot_dir_without_marker",
			setup: func(fs afero.Fs) {
				_ = fs.MkdirAll(testSnapshotDir, 0755)
				_ = afero.WriteFile(fs, testSnapshotDir+"/data.json", []byte("{}"), 0644)
			},
			want: "",
		},
		{
			name: "marker_and_snapshot",
			setup: func(fs afero.Fs) {
				_ = fs.MkdirAll(testSnapshotDir, 0755)
				_ = afero.WriteFile(fs, testMarkerPath, []byte("abc123\n"), 0644)
			},
			want: "abc123",
		},
		{
			name: "snapshot_path_is_a_file",
			setup: func(fs afero.Fs) {
				_ = afero.WriteFile(fs, testSnapshotDir, []byte("oops"), 0644)
				_ = afero.WriteFile(fs, testMarkerPath, []byte("abc123"), 0644)
			},
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := afero.NewMemMapFs()
			tt.setup(fs)

			store := NewMarkerStore(fs, testSnapshotDir, testMarkerPath, nil)

			if got := store.Current(); got != tt.want {
				t.Errorf("Current() after construction = %q, want %q", got, tt.want)
			}
			if got := store.Load(); got != tt.want {
				t.Errorf("Load() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestMarkerStoreWrite(t *testing.T) {
	fs := afero.NewMemMapFs()
	if err := fs.MkdirAll(testSnapshotDir, 0755); err != nil {
		t.Fatal(err)
	}

	store := NewMarkerStore(fs, testSnapshotDir, testMarkerPath, nil)

	if err := store.Write("def456"); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	if got := store.Current(); got != "def456" {
		t.Errorf("Current() = %q, want %q", got, "def456")
	}

	data, err := afero.ReadFile(fs, testMarkerPath)
	if err != nil {
		t.Fatalf("marker not written: %v", err)
	}
	if string(data) != "def456" {
		t.Errorf("marker content = %q, want exactly %q", string(data), "def456")
	}

	if exists, _ := afero.Exists(fs, testMarkerPath+".tmp"); exists {
		t.Error("temporary marker file left behind")
	}

	// A fresh store sees the persisted value
	if got := NewMarkerStore(fs, testSnapshotDir, testMarkerPath, nil).Current(); got != "def456" {
		t.Errorf("reloaded marker = %q, want %q", got, "def456")
	}
}

func TestMarkerStoreWriteRejectsEmpty(t *testing.T) {
	store := NewMarkerStore(afero.NewMemMapFs(), testSnapshotDir, testMarkerPath, nil)

	if err := store.Write(""); err == nil {
		t.Error("expected error writing empty revision")
	}
}

func TestMarkerStoreWriteFailureKeepsCache(t *testing.T) {
	base := afero.NewMemMapFs()
	_ = base.MkdirAll(testSnapshotDir, 0755)
	_ = afero.WriteFile(base, testMarkerPath, []byte("abc123"), 0644)

	store := NewMarkerStore(afero.NewReadOnlyFs(base), testSnapshotDir, testMarkerPath, nil)

	if err := store.Write("def456"); err == nil {
		t.Fatal("expected error on read-only filesystem")
	}

	if got := store.Current(); got != "abc123" {
		t.Errorf("Current() = %q after failed write, want %q", got, "abc123")
	}
}

func TestMarkerStoreCurrentDoesNotTouchDisk(t *testing.T) {
	fs := afero.NewMemMapFs()
	_ = fs.MkdirAll(testSnapshotDir, 0755)
	_ = afero.WriteFile(fs, testMarkerPath, []byte("abc123"), 0644)

	store := NewMarkerStore(fs, testSnapshotDir, testMarkerPath, nil)

	// Change the marker behind the store's back
	_ = afero.WriteFile(fs, testMarkerPath, []byte("zzz999"), 0644)

	if got := store.Current(); got != "abc123" {
		t.Errorf("Current() = %q, want cached %q", got, "abc123")
	}
	if got := store.Load(); got != "zzz999" {
		t.Errorf("Load() = %q, want %q", got, "zzz999")
	}
	if got := store.Current(); got != "zzz999" {
		t.Errorf("Current() after Load = %q, want %q", got, "zzz999")
	}
}

func TestMarkerStoreClear(t *testing.T) {
	fs := afero.NewMemMapFs()
	_ = fs.MkdirAll(testSnapshotDir, 0755)
	_ = afero.WriteFile(fs, testMarkerPath, []byte("abc123"), 0644)

	store := NewMarkerStore(fs, testSnapshotDir, testMarkerPath, nil)

	if err := store.Clear(); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	if got := store.Current(); got != "" {
		t.Errorf("Current() = %q after Clear, want empty", got)
	}
	if exists, _ := afero.Exists(fs, testMarkerPath); exists {
		t.Error("marker file still exists after Clear")
	}

	// Clearing twice is fine
	if err := store.Clear(); err != nil {
		t.Errorf("second Clear failed: %v", err)
	}
}
