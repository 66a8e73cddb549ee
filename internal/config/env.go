package config

import (
	"errors"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
)

// Environment variable names for overrides.
const (
	EnvConfig  = "PORTAL_GO_CONFIG"
	EnvAPIHost = "PORTAL_GO_API_HOST"
	EnvStorage = "PORTAL_GO_STORAGE"
)

// dotEnvFile is read from the working directory before environment
// overrides are collected.
const dotEnvFile = ".env"

// EnvOverrides holds values derived from environment variables.
type EnvOverrides struct {
	ConfigPath string // PORTAL_GO_CONFIG: override config file path
	APIHost    string // PORTAL_GO_API_HOST: backend base URL
	Storage    string // PORTAL_GO_STORAGE: credential storage backend
}

// ReadEnvOverrides reads environment variables and returns any overrides found.
// This does not modify the Config; callers apply the relevant fields.
func ReadEnvOverrides() EnvOverrides {
	return EnvOverrides{
		ConfigPath: os.Getenv(EnvConfig),
		APIHost:    os.Getenv(EnvAPIHost),
		Storage:    os.Getenv(EnvStorage),
	}
}

// LoadDotEnv loads KEY=VALUE pairs from path into the process environment.
// Variables already set win over the file. A missing file is not an error.
func LoadDotEnv(path string) error {
	if path == "" {
		path = dotEnvFile
	}

	err := godotenv.Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}

	return err
}
