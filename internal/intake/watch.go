package intake

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/italolelis/file_poller/internal/logctx"
)

const wakeOps = fsnotify.Create | fsnotify.Write | fsnotify.Rename

// Watch calls wake whenever an accepted file appears or changes directly in
// dir. It only shortens the wait for the next cycle; the periodic scan stays
// authoritative, including for subdirectories fsnotify does not cover.
func Watch(ctx context.Context, dir string, filter FileFilter, wake func()) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	logger := logctx.LoggerFromContext(ctx)
	logger.Debug("watching source directory", "dir", dir)

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}

			if event.Op&wakeOps == 0 {
				continue
			}

			if filter != nil && !filter.Accept(FileRef{Path: event.Name, Name: filepath.Base(event.Name)}) {
				continue
			}

			wake()
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}

			logger.Warn("source directory watcher error", "dir", dir, "err", err)
		}
	}
}
