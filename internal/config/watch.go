package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/bep/debounce"
	"github.com/fsnotify/fsnotify"
)

// ReloadDelay coalesces bursts of writes (editor save, atomic rename) into one reload.
const ReloadDelay = 250 * time.Millisecond

// Watch reloads path whenever it changes and passes each valid result to
// onChange. A file that fails to parse is logged and skipped, so the caller
// keeps the previous config. Watch blocks until ctx is done.
//
// The parent directory is watched rather than the file, so editors that
// replace the file by rename are still observed.
func Watch(ctx context.Context, path string, logger *slog.Logger, onChange func(Loaded)) error {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create config watcher: %w", err)
	}
	defer watcher.Close()

	target := filepath.Clean(path)
	if err := watcher.Add(filepath.Dir(target)); err != nil {
		return fmt.Errorf("watch config dir %q: %w", filepath.Dir(target), err)
	}

	reload := func() {
		if ctx.Err() != nil {
			return
		}
		loaded, err := loadFile(target)
		if err != nil {
			logger.Warn("config reload rejected", "path", target, "error", err.Error())
			return
		}
		logger.Info("config reloaded", "path", target, "warnings", len(loaded.Warnings))
		onChange(loaded)
	}
	debounced := debounce.New(ReloadDelay)

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				debounced(reload)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Debug("config watcher error", "error", err.Error())
		}
	}
}
