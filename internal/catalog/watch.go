package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

const watchDebounce = 500 * time.Millisecond

// Watch calls onChange after the catalog file at path is written, created
// or replaced, batching bursts of events. The parent directory is watched
// so editors that save by rename are seen too. Watch returns once the
// watcher is running; it stops when ctx is done.
func Watch(ctx context.Context, path string, onChange func()) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	target := filepath.Clean(path)

	go func() {
		defer watcher.Close()

		timer := time.NewTimer(watchDebounce)
		timer.Stop()

		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != target || !event.Has(fsnotify.Write|fsnotify.Create|fsnotify.Rename) {
					continue
				}
				timer.Reset(watchDebounce)

			case <-timer.C:
				slog.Info("Catalog file changed", "path", path)
				onChange()

			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				slog.Warn("Catalog watcher error", "path", path, "error", err)

			case <-ctx.Done():
				return
			}
		}
	}()
	return nil
}
