package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

// Load reads and parses a TOML config file, validates it, and returns the
// resulting Config. Unknown keys are fatal errors with "did you mean?"
// suggestions.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}

	if err := checkUnknownKeys(&md); err != nil {
		return nil, err
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// LoadOrDefault reads a TOML config file if it exists, otherwise returns
// a Config populated with all default values. Users can start without
// creating a config file.
func LoadOrDefault(path string) (*Config, error) {
	if path == "" {
		return DefaultConfig(), nil
	}

	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return DefaultConfig(), nil
	}

	return Load(path)
}

// Resolve loads configuration and applies the four-layer override chain:
// defaults -> config file -> environment variables -> CLI flags.
func Resolve(env EnvOverrides, cli CLIOverrides) (*Resolved, error) {
	// 1. Resolve config path: CLI > env > default
	cfgPath := DefaultConfigPath()
	if env.ConfigPath != "" {
		cfgPath = env.ConfigPath
	}

	if cli.ConfigPath != "" {
		cfgPath = cli.ConfigPath
	}

	// 2. Load config file (returns defaults if no file exists)
	cfg, err := LoadOrDefault(cfgPath)
	if err != nil {
		return nil, err
	}

	// 3. Apply env overrides
	if env.APIHost != "" {
		cfg.API.Host = env.APIHost
	}

	if env.Storage != "" {
		cfg.Storage.Backend = env.Storage
	}

	// 4. Apply CLI overrides
	if cli.APIHost != "" {
		cfg.API.Host = cli.APIHost
	}

	if cli.Storage != "" {
		cfg.Storage.Backend = cli.Storage
	}

	// 5. Validate the merged result before parsing derived values.
	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return resolve(cfg, cfgPath)
}

// resolve converts a validated Config into its parsed, ready-to-use form.
func resolve(cfg *Config, cfgPath string) (*Resolved, error) {
	timeout, err := time.ParseDuration(cfg.API.Timeout)
	if err != nil {
		return nil, fmt.Errorf("api.timeout: %w", err)
	}

	maxSize, err := ParseSize(cfg.Upload.MaxSize)
	if err != nil {
		return nil, fmt.Errorf("upload.max_size: %w", err)
	}

	storagePath := cfg.Storage.Path
	if storagePath == "" {
		storagePath = DefaultStoragePath(cfg.Storage.Backend)
	}

	return &Resolved{
		ConfigPath:     cfgPath,
		APIHost:        trimHost(cfg.API.Host),
		Timeout:        timeout,
		UserAgent:      cfg.API.UserAgent,
		StorageBackend: cfg.Storage.Backend,
		StoragePath:    storagePath,
		MaxUploadSize:  maxSize,
		LogLevel:       cfg.Logging.LogLevel,
	}, nil
}
