package config

// Default values for configuration options. These represent the "layer 0"
// of the four-layer override chain.
const (
	DefaultAPIHost        = "http://127.0.0.1:8000"
	defaultTimeout        = "5m"
	defaultUserAgent      = "portal-go/0.1"
	defaultStorageBackend = StorageBackendFile
	defaultMaxUploadSize  = "100MiB"
	defaultLogLevel       = "info"
)

// Storage backend names.
const (
	StorageBackendFile   = "file"
	StorageBackendSQLite = "sqlite"
)

// DefaultConfig returns a Config populated with all default values.
// This is used both as the starting point for TOML decoding (so unset
// fields retain defaults) and as the fallback when no config file exists.
func DefaultConfig() *Config {
	return &Config{
		API: APIConfig{
			Host:      DefaultAPIHost,
			Timeout:   defaultTimeout,
			UserAgent: defaultUserAgent,
		},
		Storage: StorageConfig{
			Backend: defaultStorageBackend,
		},
		Upload: UploadConfig{
			MaxSize: defaultMaxUploadSize,
		},
		Logging: LoggingConfig{
			LogLevel: defaultLogLevel,
		},
	}
}
