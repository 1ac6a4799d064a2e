package wakeup

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// WatchRegistry watches projectsFile's parent directory (fsnotify cannot
// watch a file that doesn't exist yet, and most editors replace rather
// than truncate a file on save) and invokes onChange whenever an event
// touching projectsFile itself is observed, until ctx is cancelled.
func WatchRegistry(ctx context.Context, projectsFile string, logger *slog.Logger, onChange func()) error {
	if logger == nil {
		logger = slog.Default()
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create project registry watcher: %w", err)
	}

	dir := filepath.Dir(projectsFile)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return fmt.Errorf("watch project registry directory %s: %w", dir, err)
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != filepath.Clean(projectsFile) {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				logger.Debug("project registry changed", slog.String("op", event.Op.String()))
				onChange()
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warn("project registry watcher error", slog.Any("error", err))
			}
		}
	}()

	return nil
}
