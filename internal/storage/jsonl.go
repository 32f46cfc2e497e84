package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/spm1001/skill-chrome-log/internal/types"
)

const (
	LogFileName = "requests.jsonl"

	DefaultMaxBytes   = 50 * 1024 * 1024
	DefaultMaxRotated = 3
)

// WriterOptions tunes a Writer. Zero values fall back to the defaults.
type WriterOptions struct {
	MaxBytes   int64
	MaxRotated int
	// OnWrite runs after a record is appended, outside the write lock.
	OnWrite func(rec *types.Record)
}

// Writer appends records to <dir>/requests.jsonl, one JSON object per line.
// Before each append it checks the pause marker and rotates the active file
// once it reaches MaxBytes, keeping at most MaxRotated generations
// (requests.jsonl.1 is the newest). It is the only writer of the log.
type Writer struct {
	dir        string
	path       string
	maxBytes   int64
	maxRotated int
	onWrite    func(rec *types.Record)

	mu sync.Mutex
}

// NewWriter creates dir if needed and returns a Writer for it.
func NewWriter(dir string, opts WriterOptions) (*Writer, error) {
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = DefaultMaxBytes
	}
	if opts.MaxRotated <= 0 {
		opts.MaxRotated = DefaultMaxRotated
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}
	return &Writer{
		dir:        dir,
		path:       filepath.Join(dir, LogFileName),
		maxBytes:   opts.MaxBytes,
		maxRotated: opts.MaxRotated,
		onWrite:    opts.OnWrite,
	}, nil
}

// Path returns the active log file.
func (w *Writer) Path() string { return w.path }

// Dir returns the log directory.
func (w *Writer) Dir() string { return w.dir }

// Write appends rec. While the pause marker exists the record is dropped and
// nil is returned. Filesystem errors are returned unchanged in meaning:
// durable logging is the daemon's only job, so callers treat them as fatal.
func (w *Writer) Write(rec *types.Record) error {
	if IsPaused(w.dir) {
		slog.Debug("Dropping record while paused", "request_id", rec.ID)
		return nil
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal record %s: %w", rec.ID, err)
	}

	w.mu.Lock()
	err = w.appendLine(append(data, '\n'))
	w.mu.Unlock()
	if err != nil {
		return err
	}

	if w.onWrite != nil {
		w.onWrite(rec)
	}
	return nil
}

func (w *Writer) appendLine(line []byte) error {
	if err := w.rotateIfNeeded(); err != nil {
		return err
	}

	f, err := os.OpenFile(w.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open %s: %w", w.path, err)
	}
	if _, err := f.Write(line); err != nil {
		f.Close()
		return fmt.Errorf("append %s: %w", w.path, err)
	}
	return f.Close()
}

func (w *Writer) rotateIfNeeded() error {
	info, err := os.Stat(w.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("stat %s: %w", w.path, err)
	}
	if info.Size() < w.maxBytes {
		return nil
	}
	return w.rotate(info.Size())
}

// rotate drops the oldest generation, shifts the rest up by one and moves
// the active file to generation 1.
func (w *Writer) rotate(size int64) error {
	slog.Info("Rotating log files", "file", w.path, "size", size)

	oldest := GenerationPath(w.dir, w.maxRotated)
	if err := os.Remove(oldest); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove %s: %w", oldest, err)
	}

	for i := w.maxRotated - 1; i >= 1; i-- {
		src := GenerationPath(w.dir, i)
		dst := GenerationPath(w.dir, i+1)
		if err := os.Rename(src, dst); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("rotate %s: %w", src, err)
		}
	}

	if err := os.Rename(w.path, GenerationPath(w.dir, 1)); err != nil {
		return fmt.Errorf("rotate %s: %w", w.path, err)
	}
	return nil
}

// GenerationPath names rotated generation n (1 is the newest).
func GenerationPath(dir string, n int) string {
	return filepath.Join(dir, LogFileName+"."+strconv.Itoa(n))
}
