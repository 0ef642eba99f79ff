// Package watch reports debounced changes to individual files.
package watch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce coalesces the burst of events an editor save produces.
const DefaultDebounce = 500 * time.Millisecond

// Watcher calls OnChange(key) after a file registered under key is written,
// created or renamed over. Directories are watched rather than files so
// that editors replacing the file atomically are still seen.
type Watcher struct {
	fw       *fsnotify.Watcher
	debounce time.Duration
	onChange func(key string)
	log      *slog.Logger

	mu     sync.Mutex
	files  map[string]string // abs file path -> key
	dirs   map[string]int    // watched dir -> number of files in it
	timers map[string]*time.Timer
	closed bool
}

// New creates a Watcher. A zero debounce uses DefaultDebounce.
func New(debounce time.Duration, onChange func(key string), log *slog.Logger) (*Watcher, error) {
	if onChange == nil {
		return nil, errors.New("watch: onChange is required")
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if log == nil {
		log = slog.Default()
	}
	return &Watcher{
		fw:       fw,
		debounce: debounce,
		onChange: onChange,
		log:      log,
		files:    make(map[string]string),
		dirs:     make(map[string]int),
		timers:   make(map[string]*time.Timer),
	}, nil
}

// Add starts watching path under key. Re-adding a key replaces its path.
func (w *Watcher) Add(key, path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return errors.New("watch: closed")
	}
	w.removeLocked(key)
	dir := filepath.Dir(abs)
	if w.dirs[dir] == 0 {
		if err := w.fw.Add(dir); err != nil {
			return fmt.Errorf("watch %s: %w", dir, err)
		}
	}
	w.dirs[dir]++
	w.files[abs] = key
	return nil
}

// Remove stops watching the file registered under key.
func (w *Watcher) Remove(key string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.removeLocked(key)
}

func (w *Watcher) removeLocked(key string) {
	for p, k := range w.files {
		if k != key {
			continue
		}
		delete(w.files, p)
		dir := filepath.Dir(p)
		w.dirs[dir]--
		if w.dirs[dir] <= 0 {
			delete(w.dirs, dir)
			_ = w.fw.Remove(dir)
		}
	}
	if t, ok := w.timers[key]; ok {
		t.Stop()
		delete(w.timers, key)
	}
}

// Run dispatches events until ctx is done or the watcher is closed.
func (w *Watcher) Run(ctx context.Context) {
	for {
		select {
		case ev, ok := <-w.fw.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				w.fire(ev.Name)
			}
		case err, ok := <-w.fw.Errors:
			if !ok {
				return
			}
			w.log.Error("watcher error", "error", err)
		case <-ctx.Done():
			return
		}
	}
}

func (w *Watcher) fire(name string) {
	abs, err := filepath.Abs(name)
	if err != nil {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	key, ok := w.files[abs]
	if !ok || w.closed {
		return
	}
	if t, ok := w.timers[key]; ok {
		t.Reset(w.debounce)
		return
	}
	w.timers[key] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.timers, key)
		closed := w.closed
		w.mu.Unlock()
		if !closed {
			w.log.Info("file change detected", "server", key, "file", abs)
			w.onChange(key)
		}
	})
}

// Close stops the watcher and pending callbacks.
func (w *Watcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	for k, t := range w.timers {
		t.Stop()
		delete(w.timers, k)
	}
	w.mu.Unlock()
	return w.fw.Close()
}
