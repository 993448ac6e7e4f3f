package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/adrg/xdg"
)

// DefaultPath returns the config file location: $REPOMIRROR_CONFIG if set,
// otherwise $XDG_CONFIG_HOME/repomirror/config.lua.
func DefaultPath() string {
	if p := os.Getenv(EnvConfig); p != "" {
		return p
	}
	return filepath.Join(xdg.ConfigHome, AppName, "config.lua")
}

// DefaultDataDir returns $XDG_DATA_HOME/repomirror.
func DefaultDataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// expandHome replaces a leading "~/" with the user's home directory.
func expandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}
