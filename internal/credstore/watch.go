package credstore

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watch blocks until ctx is canceled, calling onChange whenever the file at
// path is created, written, replaced, or removed. The parent directory is
// watched rather than the file itself because atomic saves replace the
// inode on every write.
func Watch(ctx context.Context, path string, onChange func(), logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("credstore: creating watcher: %w", err)
	}
	defer watcher.Close()

	target := filepath.Clean(path)
	dir := filepath.Dir(target)

	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("credstore: watching %s: %w", dir, err)
	}

	logger.Debug("watching credential file", slog.String("path", target))

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}

			if filepath.Clean(ev.Name) != target || !relevant(ev) {
				continue
			}

			logger.Debug("credential file changed",
				slog.String("path", target),
				slog.String("op", ev.Op.String()),
			)

			onChange()
		case werr, ok := <-watcher.Errors:
			if !ok {
				return nil
			}

			logger.Warn("credential watcher error", slog.String("error", werr.Error()))
		}
	}
}

// relevant ignores pure chmod events.
func relevant(ev fsnotify.Event) bool {
	return ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write) ||
		ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename)
}
