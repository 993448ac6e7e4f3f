package testutil_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/adrg/xdg"

	"github.com/ZebulonRouseFrantzich/repomirror/internal/testutil"
)

func TestSetupTestEnv(t *testing.T) {
	env := testutil.SetupTestEnv(t)

	vars := map[string]string{
		"HOME":            env.Home,
		"XDG_CONFIG_HOME": env.ConfigHome,
		"XDG_DATA_HOME":   env.DataHome,
		"XDG_CACHE_HOME":  env.CacheHome,
	}
	for name, want := range vars {
		if got := os.Getenv(name); got != want {
			t.Errorf("%s = %q, want %q", name, got, want)
		}
		if _, err := os.Stat(want); err != nil {
			t.Errorf("%s directory not created: %v", name, err)
		}
	}

	if os.Getenv("REPOMIRROR_CONFIG") != "" {
		t.Error("REPOMIRROR_CONFIG should be cleared")
	}

	if xdg.DataHome != env.DataHome {
		t.Errorf("xdg.DataHome = %q, want %q (not reloaded)", xdg.DataHome, env.DataHome)
	}

	if !strings.HasPrefix(env.ConfigPath(), env.ConfigHome) {
		t.Errorf("ConfigPath() = %q outside %q", env.ConfigPath(), env.ConfigHome)
	}
}

func TestWriteConfig(t *testing.T) {
	env := testutil.SetupTestEnv(t)

	path := env.WriteConfig(t, `mirror = {}`)
	if path != filepath.Join(env.ConfigHome, "repomirror", "config.lua") {
		t.Errorf("WriteConfig() path = %q", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read config: %v", err)
	}
	if string(data) != `mirror = {}` {
		t.Errorf("config content = %q", data)
	}
}

func TestSetupTestEnvIsolation(t *testing.T) {
	var first string
	t.Run("first", func(t *testing.T) {
		first = testutil.SetupTestEnv(t).Root
	})
	t.Run("second", func(t *testing.T) {
		if second := testutil.SetupTestEnv(t).Root; second == first {
			t.Error("each test should get its own directory")
		}
	})
}
