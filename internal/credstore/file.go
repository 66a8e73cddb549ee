package credstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

// FilePerms restricts the credential file to owner-only read/write.
const FilePerms = 0o600

// DirPerms is used when creating the credential directory.
const DirPerms = 0o700

// FileStorage keeps every key in one JSON object on disk. Each mutation
// rewrites the file atomically (write-to-temp + rename), and every Get
// re-reads it, so writes from other processes are visible immediately.
type FileStorage struct {
	path   string
	logger *slog.Logger

	mu sync.Mutex
}

// NewFileStorage returns a FileStorage at path. The file is created lazily
// on the first Set.
func NewFileStorage(path string, logger *slog.Logger) *FileStorage {
	if logger == nil {
		logger = slog.Default()
	}

	return &FileStorage{path: path, logger: logger}
}

// Path returns the credential file location.
func (f *FileStorage) Path() string {
	return f.path
}

func (f *FileStorage) Get(key string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := f.read()
	if err != nil {
		return "", false, err
	}

	v, ok := data[key]

	return v, ok, nil
}

func (f *FileStorage) Set(key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, _ := f.readForUpdate()
	data[key] = value

	return f.write(data)
}

func (f *FileStorage) Remove(key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, corrupt := f.readForUpdate()
	if _, ok := data[key]; !ok && !corrupt {
		return nil
	}

	delete(data, key)

	return f.write(data)
}

// read decodes the file. A missing file is an empty map.
func (f *FileStorage) read() (map[string]string, error) {
	raw, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return map[string]string{}, nil
	}

	if err != nil {
		return nil, fmt.Errorf("credstore: reading %s: %w", f.path, err)
	}

	data := map[string]string{}
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("credstore: decoding %s: %w", f.path, err)
	}

	return data, nil
}

// readForUpdate is read for mutations: a corrupt file is replaced rather
// than blocking every future write (including logout).
func (f *FileStorage) readForUpdate() (map[string]string, bool) {
	data, err := f.read()
	if err != nil {
		f.logger.Warn("discarding unreadable credential file",
			slog.String("path", f.path),
			slog.String("error", err.Error()),
		)

		return map[string]string{}, true
	}

	return data, false
}

// write saves data atomically with 0600 permissions. Never logs values.
func (f *FileStorage) write(data map[string]string) error {
	encoded, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("credstore: encoding: %w", err)
	}

	dir := filepath.Dir(f.path)
	if mkErr := os.MkdirAll(dir, DirPerms); mkErr != nil {
		return fmt.Errorf("credstore: creating directory %s: %w", dir, mkErr)
	}

	// Same directory guarantees same filesystem for rename(2).
	tmp, err := os.CreateTemp(dir, ".credentials-*.tmp")
	if err != nil {
		return fmt.Errorf("credstore: creating temp file: %w", err)
	}

	tmpPath := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = os.Remove(tmpPath)
		}
	}()

	if err := os.Chmod(tmpPath, FilePerms); err != nil {
		tmp.Close()
		return fmt.Errorf("credstore: setting permissions: %w", err)
	}

	if _, err := tmp.Write(encoded); err != nil {
		tmp.Close()
		return fmt.Errorf("credstore: writing: %w", err)
	}

	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("credstore: syncing: %w", err)
	}

	if err := tmp.Close(); err != nil {
		return fmt.Errorf("credstore: closing: %w", err)
	}

	if err := os.Rename(tmpPath, f.path); err != nil {
		return fmt.Errorf("credstore: renaming: %w", err)
	}

	success = true

	return nil
}
