package config

import (
	"os"
	"path/filepath"
	"runtime"
)

// Platform identifiers.
const (
	platformLinux  = "linux"
	platformDarwin = "darwin"
)

// Application directory name used across all platforms.
const appName = "portal-go"

// File names inside the config and data directories.
const (
	configFileName     = "config.toml"
	credentialFileName = "credentials.json"
	credentialDBName   = "credentials.db"
)

// DefaultConfigDir returns the platform-specific directory for config files.
// On Linux, respects XDG_CONFIG_HOME (defaults to ~/.config/portal-go).
// On macOS, uses ~/Library/Application Support/portal-go.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	switch runtime.GOOS {
	case platformLinux:
		return xdgDir("XDG_CONFIG_HOME", filepath.Join(home, ".config"))
	case platformDarwin:
		return filepath.Join(home, "Library", "Application Support", appName)
	default:
		return filepath.Join(home, ".config", appName)
	}
}

// DefaultDataDir returns the platform-specific directory for application
// data (persisted credentials).
// On Linux, respects XDG_DATA_HOME (defaults to ~/.local/share/portal-go).
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	switch runtime.GOOS {
	case platformLinux:
		return xdgDir("XDG_DATA_HOME", filepath.Join(home, ".local", "share"))
	case platformDarwin:
		return filepath.Join(home, "Library", "Application Support", appName)
	default:
		return filepath.Join(home, ".local", "share", appName)
	}
}

// xdgDir returns $env/portal-go, or fallback/portal-go when env is unset.
func xdgDir(env, fallback string) string {
	if xdg := os.Getenv(env); xdg != "" {
		return filepath.Join(xdg, appName)
	}

	return filepath.Join(fallback, appName)
}

// DefaultConfigPath returns the full path to the default config file.
func DefaultConfigPath() string {
	dir := DefaultConfigDir()
	if dir == "" {
		return ""
	}

	return filepath.Join(dir, configFileName)
}

// DefaultStoragePath returns the default credential location for the given
// storage backend. Returns "" when the data directory cannot be determined.
func DefaultStoragePath(backend string) string {
	dir := DefaultDataDir()
	if dir == "" {
		return ""
	}

	if backend == StorageBackendSQLite {
		return filepath.Join(dir, credentialDBName)
	}

	return filepath.Join(dir, credentialFileName)
}
