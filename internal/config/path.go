// Package config loads and validates ledger configuration.
package config

import (
	"os"
	"path/filepath"
	"strings"
)

// ExpandPath expands a leading ~ and $VAR references in path.
func ExpandPath(path string) string {
	if path == "" {
		return path
	}

	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, strings.TrimPrefix(path[1:], "/"))
		}
	}

	return os.ExpandEnv(path)
}

// DefaultConfigDir is where the config file is searched for.
func DefaultConfigDir() string {
	return ExpandPath("~/.config/ledger")
}

// DefaultDatabasePath is the database used when database.path is unset.
func DefaultDatabasePath() string {
	return ExpandPath("~/.local/share/ledger/ledger.db")
}

// EnsureDir creates the parent directory of path.
func EnsureDir(path string) error {
	if path == "" || path == ":memory:" {
		return nil
	}
	return os.MkdirAll(filepath.Dir(path), 0o750)
}
