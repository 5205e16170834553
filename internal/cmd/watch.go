package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
)

const envFileDebounce = 200 * time.Millisecond

// watchEnvFile calls onChange with the file's values after every change
// until ctx is done. The directory is watched so that editors replacing the
// file are noticed.
func watchEnvFile(ctx context.Context, path string, onChange func(map[string]string)) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve env file path: %w", err)
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(absPath)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(absPath), err)
	}

	var (
		timer   *time.Timer
		pending <-chan time.Time
	)
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != absPath || !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(envFileDebounce)
			} else {
				timer.Reset(envFileDebounce)
			}
			pending = timer.C
		case <-pending:
			pending = nil
			values, err := godotenv.Read(absPath)
			if err != nil {
				slog.Warn("failed to reload env file", "path", absPath, "err", err)
				continue
			}
			onChange(values)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Error("env file watcher error", "err", err)
		}
	}
}
