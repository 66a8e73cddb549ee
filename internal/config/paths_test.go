package config

import (
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultConfigDir_NonEmpty(t *testing.T) {
	dir := DefaultConfigDir()
	assert.NotEmpty(t, dir)
	assert.True(t, strings.Contains(dir, appName))
}

func TestDefaultConfigPath_EndsWithConfigToml(t *testing.T) {
	path := DefaultConfigPath()
	assert.NotEmpty(t, path)
	assert.True(t, strings.HasSuffix(path, "config.toml"))
}

func TestDefaultDataDir_XDG(t *testing.T) {
	if runtime.GOOS != platformLinux {
		t.Skip("XDG paths only apply on Linux")
	}

	t.Setenv("XDG_DATA_HOME", "/xdg/data")
	assert.Equal(t, filepath.Join("/xdg/data", appName), DefaultDataDir())
}

func TestDefaultStoragePath_PerBackend(t *testing.T) {
	assert.True(t, strings.HasSuffix(DefaultStoragePath(StorageBackendFile), credentialFileName))
	assert.True(t, strings.HasSuffix(DefaultStoragePath(StorageBackendSQLite), credentialDBName))
}
