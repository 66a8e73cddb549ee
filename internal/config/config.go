// Package config implements TOML configuration loading, validation, and
// platform-specific path resolution for portal-go. It supports a four-layer
// override chain (defaults -> config file -> environment -> CLI flags).
package config

import "time"

// Config is the top-level configuration structure parsed from a TOML file.
type Config struct {
	API     APIConfig     `toml:"api"`
	Storage StorageConfig `toml:"storage"`
	Upload  UploadConfig  `toml:"upload"`
	Logging LoggingConfig `toml:"logging"`
}

// APIConfig controls how the backend is reached.
type APIConfig struct {
	Host      string `toml:"host"`
	Timeout   string `toml:"timeout"`
	UserAgent string `toml:"user_agent"`
}

// StorageConfig selects where credentials are persisted between runs.
// Backend is "file" (single JSON file) or "sqlite" (key/value table).
// An empty Path resolves to a backend-specific file in the data directory.
type StorageConfig struct {
	Backend string `toml:"backend"`
	Path    string `toml:"path"`
}

// UploadConfig controls client-side upload checks.
type UploadConfig struct {
	MaxSize string `toml:"max_size"`
}

// LoggingConfig controls log output behavior.
type LoggingConfig struct {
	LogLevel string `toml:"log_level"`
}

// CLIOverrides holds values from CLI flags that override config file and
// environment settings. Empty strings mean "not specified".
type CLIOverrides struct {
	ConfigPath string // --config
	APIHost    string // --api-host
	Storage    string // --storage
}

// Resolved is the effective configuration after all four layers have been
// applied, with durations and sizes already parsed.
type Resolved struct {
	ConfigPath     string
	APIHost        string
	Timeout        time.Duration
	UserAgent      string
	StorageBackend string
	StoragePath    string
	MaxUploadSize  int64
	LogLevel       string
}
