package tuning

import (
	"context"
	"log/slog"
	"os"
	"time"
)

// FileWatcher polls file modification times and triggers a callback on change.
type FileWatcher struct {
	Paths     []string
	Interval  time.Duration
	onChange  func(string) // called with path that changed
	lastMTime map[string]time.Time
}

// NewFileWatcher creates a watcher for given paths and interval.
func NewFileWatcher(paths []string, interval time.Duration, onChange func(string)) *FileWatcher {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &FileWatcher{
		Paths:     paths,
		Interval:  interval,
		onChange:  onChange,
		lastMTime: make(map[string]time.Time),
	}
}

// Run polls until ctx is done.
func (w *FileWatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(w.Interval)
	defer ticker.Stop()
	w.scanAll(true)
	for {
		select {
		case <-ticker.C:
			w.scanAll(false)
		case <-ctx.Done():
			return
		}
	}
}

// scanAll checks mtimes and invokes onChange for files that changed since
// last scan. A file that appears after priming counts as a change.
func (w *FileWatcher) scanAll(prime bool) {
	for _, p := range w.Paths {
		fi, err := os.Stat(p)
		if err != nil {
			continue
		}
		mt := fi.ModTime()
		last, seen := w.lastMTime[p]
		if seen && !mt.After(last) {
			continue
		}
		w.lastMTime[p] = mt
		if !prime && w.onChange != nil {
			w.onChange(p)
		}
	}
}

// Watch hot-reloads the loader's file and hands every valid result to apply.
// Invalid edits are logged and the previous tuning stays in effect.
func Watch(ctx context.Context, l *Loader, interval time.Duration, apply func(Tuning), logger *slog.Logger) {
	if l.Path() == "" {
		return
	}
	if logger == nil {
		logger = slog.Default()
	}
	w := NewFileWatcher([]string{l.Path()}, interval, func(path string) {
		l.Invalidate()
		t, err := l.Load()
		if err != nil {
			logger.Warn("tuning reload rejected", "path", path, "err", err)
			return
		}
		logger.Info("tuning reloaded", "path", path, "version", t.Version)
		apply(t)
	})
	w.Run(ctx)
}
