package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ZebulonRouseFrantzich/repomirror/internal/platform"
	"github.com/ZebulonRouseFrantzich/repomirror/internal/testutil"
)

// mockDetector is a test implementation of platform.Detector.
type mockDetector struct {
	info *platform.Info
	err  error
}

func (m *mockDetector) Detect(ctx context.Context) (*platform.Info, error) {
	return m.info, m.err
}

func TestParser_ParseString_Minimal(t *testing.T) {
	env := testutil.SetupTestEnv(t)

	cfg, err := NewParser(nil).ParseString(context.Background(), `
		mirror = {
			repo = { owner = "acme", name = "data" },
		}
	`)
	if err != nil {
		t.Fatalf("ParseString() error = %v", err)
	}

	if cfg.Repo.Owner != "acme" || cfg.Repo.Name != "data" {
		t.Errorf("Repo = %+v", cfg.Repo)
	}
	if cfg.Repo.Branch != DefaultBranch {
		t.Errorf("Branch = %q, want default %q", cfg.Repo.Branch, DefaultBranch)
	}
	if cfg.Source != SourceGitHub {
		t.Errorf("Source = %q, want %q", cfg.Source, SourceGitHub)
	}
	if cfg.Interval != DefaultInterval {
		t.Errorf("Interval = %s, want %s", cfg.Interval, DefaultInterval)
	}
	if want := filepath.Join(env.DataHome, AppName); cfg.DataDir != want {
		t.Errorf("DataDir = %q, want %q", cfg.DataDir, want)
	}
	if cfg.Verify.Enabled() {
		t.Error("verification should be disabled by default")
	}
}

func TestParser_ParseString_Full(t *testing.T) {
	env := testutil.SetupTestEnv(t)

	cfg, err := NewParser(nil).ParseString(context.Background(), `
		mirror = {
			repo = { owner = "NotEnoughUpdates", name = "NotEnoughUpdates-REPO", branch = "release/v2" },
			source = "git",
			data_dir = "~/mirror",
			api_url = "https://ghe.example.com/api/v3",
			archive_url = "https://ghe.example.com",
			git_url = "https://ghe.example.com/{owner}/{repo}.git",
			exclude = { ".github/**", "**/*.md" },
			interval = "1h30m",
			verify = {
				keyring = "~/keys.asc",
				signature_url = "https://sigs.example.com/{owner}/{repo}/{revision}.zip.asc",
			},
		}
	`)
	if err != nil {
		t.Fatalf("ParseString() error = %v", err)
	}

	loc := cfg.Locator()
	if loc.Owner != "NotEnoughUpdates" || loc.Name != "NotEnoughUpdates-REPO" || loc.Branch != "release/v2" {
		t.Errorf("Locator() = %+v", loc)
	}
	if cfg.Source != SourceGit {
		t.Errorf("Source = %q", cfg.Source)
	}
	if want := filepath.Join(env.Home, "mirror"); cfg.DataDir != want {
		t.Errorf("DataDir = %q, want %q", cfg.DataDir, want)
	}
	if cfg.APIURL != "https://ghe.example.com/api/v3" || cfg.ArchiveURL != "https://ghe.example.com" {
		t.Errorf("URLs = %q, %q", cfg.APIURL, cfg.ArchiveURL)
	}
	if cfg.GitURL != "https://ghe.example.com/{owner}/{repo}.git" {
		t.Errorf("GitURL = %q", cfg.GitURL)
	}
	if len(cfg.Exclude) != 2 || cfg.Exclude[0] != ".github/**" || cfg.Exclude[1] != "**/*.md" {
		t.Errorf("Exclude = %v", cfg.Exclude)
	}
	if cfg.Interval != 90*time.Minute {
		t.Errorf("Interval = %s, want 1h30m", cfg.Interval)
	}
	if cfg.Verify.Keyring != filepath.Join(env.Home, "keys.asc") {
		t.Errorf("Verify.Keyring = %q", cfg.Verify.Keyring)
	}
	if !cfg.Verify.Enabled() {
		t.Error("verification should be enabled")
	}
}

func TestParser_ParseString_IntervalSeconds(t *testing.T) {
	testutil.SetupTestEnv(t)

	cfg, err := NewParser(nil).ParseString(context.Background(), `
		mirror = { repo = { owner = "acme", name = "data" }, interval = 90 }
	`)
	if err != nil {
		t.Fatalf("ParseString() error = %v", err)
	}
	if cfg.Interval != 90*time.Second {
		t.Errorf("Interval = %s, want 1m30s", cfg.Interval)
	}
}

func TestParser_ParseString_Platform(t *testing.T) {
	testutil.SetupTestEnv(t)

	code := `
		mirror = {
			repo = { owner = "acme", name = "data" },
			data_dir = platform.is_linux and "/srv/repomirror" or "/Users/Shared/repomirror",
			exclude = {
				".github/**",
				platform.when(platform.is_macos, "**/.DS_Store"),
			},
		}
	`

	tests := []struct {
		name        string
		info        *platform.Info
		wantDataDir string
		wantExclude int
	}{
		{"linux", &platform.Info{OS: "linux", Arch: "amd64"}, "/srv/repomirror", 1},
		{"macos", &platform.Info{OS: "darwin", Arch: "arm64"}, "/Users/Shared/repomirror", 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := NewParser(&mockDetector{info: tt.info}).ParseString(context.Background(), code)
			if err != nil {
				t.Fatalf("ParseString() error = %v", err)
			}
			if cfg.DataDir != tt.wantDataDir {
				t.Errorf("DataDir = %q, want %q", cfg.DataDir, tt.wantDataDir)
			}
			if len(cfg.Exclude) != tt.wantExclude {
				t.Errorf("Exclude = %v, want %d entries", cfg.Exclude, tt.wantExclude)
			}
		})
	}
}

func TestParser_ParseString_DetectorError(t *testing.T) {
	detector := &mockDetector{err: errors.New("boom")}

	_, err := NewParser(detector).ParseString(context.Background(), `mirror = {}`)
	if err == nil || !strings.Contains(err.Error(), "platform detection failed") {
		t.Errorf("expected platform detection error, got %v", err)
	}
}

func TestParser_ParseString_Errors(t *testing.T) {
	testutil.SetupTestEnv(t)

	tests := []struct {
		name    string
		code    string
		wantMsg string
	}{
		{"syntax error", `mirror = {`, "Lua syntax error"},
		{"runtime error", `error("nope")`, "Lua syntax error"},
		{"missing mirror table", `other = {}`, "missing or invalid 'mirror' table"},
		{"mirror not a table", `mirror = "acme/data"`, "missing or invalid 'mirror' table"},
		{"missing repo", `mirror = { source = "github" }`, "mirror.repo"},
		{"owner not a string", `mirror = { repo = { owner = 42, name = "data" } }`, "invalid 'owner' field"},
		{"missing owner", `mirror = { repo = { name = "data" } }`, "config validation failed"},
		{"unknown source", `mirror = { repo = { owner = "a", name = "b" }, source = "svn" }`, "unknown source"},
		{"bad interval", `mirror = { repo = { owner = "a", name = "b" }, interval = "soon" }`, "invalid 'interval' field"},
		{"interval too short", `mirror = { repo = { owner = "a", name = "b" }, interval = "1s" }`, "must be at least"},
		{"exclude not a list", `mirror = { repo = { owner = "a", name = "b" }, exclude = ".git" }`, "invalid 'exclude' field"},
		{"exclude entry not a string", `mirror = { repo = { owner = "a", name = "b" }, exclude = { 1 } }`, "invalid 'exclude' entry"},
		{"invalid glob", `mirror = { repo = { owner = "a", name = "b" }, exclude = { "[" } }`, "invalid glob pattern"},
		{"api url scheme", `mirror = { repo = { owner = "a", name = "b" }, api_url = "ftp://x" }`, "api_url"},
		{"verify half set", `mirror = { repo = { owner = "a", name = "b" }, verify = { keyring = "/k" } }`, "must be set together"},
		{"verify not a table", `mirror = { repo = { owner = "a", name = "b" }, verify = true }`, "invalid 'verify' field"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewParser(nil).ParseString(context.Background(), tt.code)
			if err == nil {
				t.Fatal("expected error")
			}

			var parseErr *ParseError
			if !errors.As(err, &parseErr) {
				t.Fatalf("expected *ParseError, got %T: %v", err, err)
			}
			if !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("error = %v, want it to contain %q", err, tt.wantMsg)
			}
		})
	}
}

func TestParser_ParseString_Timeout(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := NewParser(nil).ParseString(ctx, `while true do end`)
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if !strings.Contains(err.Error(), "timed out") {
		t.Errorf("error = %v, want timeout", err)
	}
}

func TestParser_ParseString_TooLarge(t *testing.T) {
	code := "-- " + strings.Repeat("x", MaxConfigSize)

	_, err := NewParser(nil).ParseString(context.Background(), code)
	if err == nil || !strings.Contains(err.Error(), "too large") {
		t.Errorf("expected size error, got %v", err)
	}
}

func TestParser_ParseFile(t *testing.T) {
	env := testutil.SetupTestEnv(t)

	t.Run("reads file", func(t *testing.T) {
		path := env.WriteConfig(t, `mirror = { repo = { owner = "acme", name = "data", branch = "main" } }`)

		cfg, err := NewParser(nil).ParseFile(context.Background(), path)
		if err != nil {
			t.Fatalf("ParseFile() error = %v", err)
		}
		if cfg.Locator().String() != "acme/data@main" {
			t.Errorf("Locator() = %s", cfg.Locator())
		}
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := NewParser(nil).ParseFile(context.Background(), filepath.Join(env.Root, "nope.lua"))
		if !errors.Is(err, ErrConfigNotFound) {
			t.Errorf("expected ErrConfigNotFound, got %v", err)
		}
	})

	t.Run("oversized file", func(t *testing.T) {
		path := filepath.Join(env.Root, "big.lua")
		f, err := os.Create(path)
		if err != nil {
			t.Fatal(err)
		}
		if err := f.Truncate(MaxConfigSize + 1); err != nil {
			t.Fatal(err)
		}
		f.Close()

		_, err = NewParser(nil).ParseFile(context.Background(), path)
		if err == nil || !strings.Contains(err.Error(), "too large") {
			t.Errorf("expected size error, got %v", err)
		}
	})
}

func TestFormatError(t *testing.T) {
	err := &ParseError{
		Message: "Lua syntax error",
		Detail:  "<string>:1: unexpected EOF\nstack traceback:\n\t[G]: ?",
	}

	short := FormatError(err, false)
	if strings.Contains(short, "stack traceback") {
		t.Errorf("non-verbose output should drop the traceback: %q", short)
	}
	if !strings.Contains(short, "unexpected EOF") {
		t.Errorf("non-verbose output should keep the error: %q", short)
	}

	if verbose := FormatError(err, true); !strings.Contains(verbose, "stack traceback") {
		t.Errorf("verbose output should keep the traceback: %q", verbose)
	}

	if got := FormatError(errors.New("plain"), false); got != "plain" {
		t.Errorf("FormatError(plain) = %q", got)
	}
}
