package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Validation range constants.
const (
	minTimeout = 1 * time.Second
	minMaxSize = 1
)

var validLogLevels = map[string]bool{
	"debug": true, "info": true, "warn": true, "error": true,
}

var validStorageBackends = map[string]bool{
	StorageBackendFile: true, StorageBackendSQLite: true,
}

// Validate checks all configuration values and returns all errors found.
// It accumulates every error rather than stopping at the first, so users
// see a complete report and can fix all issues in one pass.
func Validate(cfg *Config) error {
	var errs []error

	errs = append(errs, validateAPI(&cfg.API)...)
	errs = append(errs, validateStorage(&cfg.Storage)...)
	errs = append(errs, validateUpload(&cfg.Upload)...)
	errs = append(errs, validateLogging(&cfg.Logging)...)

	return errors.Join(errs...)
}

func validateAPI(a *APIConfig) []error {
	var errs []error

	u, err := url.Parse(a.Host)

	switch {
	case err != nil:
		errs = append(errs, fmt.Errorf("api.host: %w", err))
	case u.Scheme != "http" && u.Scheme != "https":
		errs = append(errs, fmt.Errorf("api.host: scheme must be http or https, got %q", a.Host))
	case u.Host == "":
		errs = append(errs, fmt.Errorf("api.host: missing host in %q", a.Host))
	}

	d, err := time.ParseDuration(a.Timeout)
	if err != nil {
		errs = append(errs, fmt.Errorf("api.timeout: invalid duration %q", a.Timeout))
	} else if d < minTimeout {
		errs = append(errs, fmt.Errorf("api.timeout: must be at least %s, got %s", minTimeout, d))
	}

	if strings.TrimSpace(a.UserAgent) == "" {
		errs = append(errs, errors.New("api.user_agent: must not be empty"))
	}

	return errs
}

func validateStorage(s *StorageConfig) []error {
	if !validStorageBackends[s.Backend] {
		return []error{fmt.Errorf("storage.backend: must be %q or %q, got %q",
			StorageBackendFile, StorageBackendSQLite, s.Backend)}
	}

	return nil
}

func validateUpload(u *UploadConfig) []error {
	n, err := ParseSize(u.MaxSize)
	if err != nil {
		return []error{fmt.Errorf("upload.max_size: %w", err)}
	}

	if n < minMaxSize {
		return []error{fmt.Errorf("upload.max_size: must be positive, got %q", u.MaxSize)}
	}

	return nil
}

func validateLogging(l *LoggingConfig) []error {
	if !validLogLevels[l.LogLevel] {
		return []error{fmt.Errorf("logging.log_level: must be one of debug, info, warn, error; got %q", l.LogLevel)}
	}

	return nil
}

// trimHost drops trailing slashes so paths can be appended directly.
func trimHost(host string) string {
	return strings.TrimRight(host, "/")
}
