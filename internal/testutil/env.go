// Package testutil provides utilities for testing repomirror in isolation.
package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/adrg/xdg"
)

// Env describes the isolated directories created by SetupTestEnv.
type Env struct {
	Root       string
	Home       string
	ConfigHome string
	DataHome   string
	CacheHome  string
}

// ConfigPath is where config.DefaultPath resolves inside the test env.
func (e *Env) ConfigPath() string {
	return filepath.Join(e.ConfigHome, "repomirror", "config.lua")
}

// SetupTestEnv points HOME and the XDG base directories at a fresh temp
// directory and clears the variables repomirror reads, so tests never touch
// the user's real config or data.
//
// Directories are removed by t.TempDir and the environment is restored when
// the test ends.
func SetupTestEnv(t *testing.T) *Env {
	t.Helper()

	tmpDir := t.TempDir()
	env := &Env{
		Root:       tmpDir,
		Home:       filepath.Join(tmpDir, "home"),
		ConfigHome: filepath.Join(tmpDir, "config"),
		DataHome:   filepath.Join(tmpDir, "data"),
		CacheHome:  filepath.Join(tmpDir, "cache"),
	}

	// Registered before t.Setenv so it runs after the environment is restored
	t.Cleanup(xdg.Reload)

	t.Setenv("HOME", env.Home)
	t.Setenv("XDG_CONFIG_HOME", env.ConfigHome)
	t.Setenv("XDG_DATA_HOME", env.DataHome)
	t.Setenv("XDG_CACHE_HOME", env.CacheHome)
	t.Setenv("REPOMIRROR_CONFIG", "")
	t.Setenv("GITHUB_TOKEN", "")

	for _, dir := range []string{env.Home, env.ConfigHome, env.DataHome, env.CacheHome} {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			t.Fatalf("failed to create test directory %s: %v", dir, err)
		}
	}

	xdg.Reload()
	return env
}

// WriteConfig writes content to the env's default config path and returns it.
func (e *Env) WriteConfig(t *testing.T, content string) string {
	t.Helper()

	path := e.ConfigPath()
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		t.Fatalf("failed to create config directory: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}
