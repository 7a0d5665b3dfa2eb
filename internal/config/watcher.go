package config

import (
	"crypto/sha256"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher monitors a config file and calls a callback when it changes to a
// new valid configuration. It listens for filesystem events and also polls,
// so changes are seen on filesystems where notifications do not work.
type Watcher struct {
	path     string
	interval time.Duration
	notify   bool
	onChange func(old, new *Config)

	mu       sync.Mutex
	current  *Config
	done     chan struct{}
	stopped  chan struct{}
	stopOnce sync.Once

	// last known file state for change detection
	lastMtime time.Time
	lastHash  [sha256.Size]byte
}

// WatcherOption configures a [Watcher].
type WatcherOption func(*Watcher)

// WithInterval sets the polling interval. The default is 5 seconds.
func WithInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

// WithPollingOnly disables filesystem notifications.
func WithPollingOnly() WatcherOption {
	return func(w *Watcher) { w.notify = false }
}

// NewWatcher creates a config file watcher. It loads the initial config
// immediately and watches in a background goroutine until [Watcher.Stop].
func NewWatcher(path string, onChange func(old, new *Config), opts ...WatcherOption) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("config: watcher: %w", err)
	}
	w := &Watcher{
		path:     abs,
		interval: 5 * time.Second,
		notify:   true,
		onChange: onChange,
		done:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}

	cfg, hash, mtime, err := w.loadAndHash()
	if err != nil {
		return nil, fmt.Errorf("config: watcher initial load: %w", err)
	}
	w.current = cfg
	w.lastHash = hash
	w.lastMtime = mtime

	var fw *fsnotify.Watcher
	if w.notify {
		fw = w.openNotify()
	}
	go w.run(fw)
	return w, nil
}

// Current returns the most recently loaded valid config.
func (w *Watcher) Current() *Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// Stop stops the watcher and waits for its goroutine to exit.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)
	})
	<-w.stopped
}

// openNotify watches the file's directory, so editors that replace the file
// by renaming are seen too. It returns nil when notifications are
// unavailable.
func (w *Watcher) openNotify() *fsnotify.Watcher {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		slog.Warn("config watcher: fsnotify unavailable, polling only", "err", err)
		return nil
	}
	if err := fw.Add(filepath.Dir(w.path)); err != nil {
		slog.Warn("config watcher: cannot watch directory, polling only", "path", w.path, "err", err)
		fw.Close()
		return nil
	}
	return fw
}

func (w *Watcher) run(fw *fsnotify.Watcher) {
	defer close(w.stopped)

	var (
		events <-chan fsnotify.Event
		errs   <-chan error
	)
	if fw != nil {
		defer fw.Close()
		events, errs = fw.Events, fw.Errors
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.done:
			return

		case ev, ok := <-events:
			if !ok {
				slog.Warn("config watcher: fsnotify closed, polling only")
				events, errs = nil, nil
				continue
			}
			if filepath.Clean(ev.Name) != w.path {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				w.check(true)
			}

		case err, ok := <-errs:
			if !ok {
				events, errs = nil, nil
				continue
			}
			slog.Warn("config watcher: fsnotify error", "err", err)

		case <-ticker.C:
			w.check(false)
		}
	}
}

// check reads the config file and, if its content changed and is valid,
// calls onChange and updates the current config. Polling skips files whose
// mtime did not change; notifications always read.
func (w *Watcher) check(force bool) {
	info, err := os.Stat(w.path)
	if err != nil {
		// Editors briefly remove the file while saving.
		slog.Debug("config watcher: cannot stat file", "path", w.path, "err", err)
		return
	}

	w.mu.Lock()
	mtime := w.lastMtime
	w.mu.Unlock()

	if !force && info.ModTime().Equal(mtime) {
		return
	}

	cfg, hash, newMtime, err := w.loadAndHash()
	if err != nil {
		slog.Warn("config watcher: failed to load config, keeping previous", "path", w.path, "err", err)
		return
	}

	w.mu.Lock()
	if hash == w.lastHash {
		w.lastMtime = newMtime
		w.mu.Unlock()
		return
	}
	old := w.current
	w.current = cfg
	w.lastHash = hash
	w.lastMtime = newMtime
	w.mu.Unlock()

	slog.Info("config watcher: configuration reloaded", "path", w.path)

	// Outside the lock so the callback can call Current.
	if w.onChange != nil {
		w.onChange(old, cfg)
	}
}

// loadAndHash reads, parses and validates the config file and returns it
// with the file's SHA-256 hash and modification time.
func (w *Watcher) loadAndHash() (*Config, [sha256.Size]byte, time.Time, error) {
	var zeroHash [sha256.Size]byte

	info, err := os.Stat(w.path)
	if err != nil {
		return nil, zeroHash, time.Time{}, err
	}
	data, err := os.ReadFile(w.path)
	if err != nil {
		return nil, zeroHash, time.Time{}, err
	}

	cfg, err := loadBytes(data)
	if err != nil {
		return nil, zeroHash, time.Time{}, err
	}
	return cfg, sha256.Sum256(data), info.ModTime(), nil
}
