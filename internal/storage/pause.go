package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// PauseFileName is the marker whose presence stops writes.
const PauseFileName = ".paused"

// PausePath returns the pause marker path for dir.
func PausePath(dir string) string {
	return filepath.Join(dir, PauseFileName)
}

// IsPaused stats the marker. It is never cached: the CLI and dashboard
// toggle it from other processes.
func IsPaused(dir string) bool {
	_, err := os.Stat(PausePath(dir))
	return err == nil
}

// Pause creates the marker.
func Pause(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create log directory: %w", err)
	}
	f, err := os.OpenFile(PausePath(dir), os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("create pause marker: %w", err)
	}
	return f.Close()
}

// Resume removes the marker. Resuming when not paused is not an error.
func Resume(dir string) error {
	if err := os.Remove(PausePath(dir)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove pause marker: %w", err)
	}
	return nil
}

// WatchPause logs pause and resume transitions for dir until ctx is done.
// The write path does not depend on it; it only makes toggles visible in
// the daemon log as they happen. onChange may be nil.
func WatchPause(ctx context.Context, dir string, onChange func(paused bool)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	marker := PausePath(dir)
	paused := IsPaused(dir)
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != marker {
				continue
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
				continue
			}
			now := IsPaused(dir)
			if now == paused {
				continue
			}
			paused = now
			if paused {
				slog.Info("Capture paused", "marker", marker)
			} else {
				slog.Info("Capture resumed", "marker", marker)
			}
			if onChange != nil {
				onChange(paused)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Warn("Pause watcher error", "error", err)
		}
	}
}
