// Package watcher notices writes to the options database made by other
// processes and reports them, debounced, so the store can rescan.
package watcher

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"pinmark/internal/utils"
)

// DefaultDebounceDuration is the default debounce window for batching rapid changes.
const DefaultDebounceDuration = 250 * time.Millisecond

// Config holds file watcher configuration.
type Config struct {
	Files            []string      // Files to watch; sidecar files sharing the name prefix count too
	DebounceDuration time.Duration // Debounce window to batch rapid changes
	OnChange         func()        // Called once per debounced burst
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig(onChange func(), files ...string) *Config {
	return &Config{
		Files:            files,
		DebounceDuration: DefaultDebounceDuration,
		OnChange:         onChange,
	}
}

// Watcher monitors file system changes.
type Watcher struct {
	cfg     *Config
	fsw     *fsnotify.Watcher
	names   map[string]bool // base names of watched files
	stopCh  chan struct{}
	doneCh  chan struct{}
	stopped bool
	mu      sync.Mutex
}

// New creates a new Watcher instance.
func New(cfg *Config) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	if cfg.DebounceDuration <= 0 {
		cfg.DebounceDuration = DefaultDebounceDuration
	}

	return &Watcher{
		cfg:    cfg,
		fsw:    fsw,
		names:  make(map[string]bool),
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}, nil
}

// Start begins watching. Parent directories are watched so that files
// replaced or created after Start are still seen.
func (w *Watcher) Start() error {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return fmt.Errorf("watcher has been stopped and cannot be restarted")
	}
	w.mu.Unlock()

	dirs := make(map[string]bool)
	for _, file := range w.cfg.Files {
		abs, err := filepath.Abs(file)
		if err != nil {
			return fmt.Errorf("failed to resolve %q: %w", file, err)
		}
		w.names[filepath.Base(abs)] = true
		dirs[filepath.Dir(abs)] = true
	}

	for dir := range dirs {
		if _, err := os.Stat(dir); os.IsNotExist(err) {
			continue
		}
		if err := w.fsw.Add(dir); err != nil {
			return fmt.Errorf("failed to watch directory %q: %w", dir, err)
		}
	}

	go w.eventLoop()
	return nil
}

// Stop stops the watcher and waits for the event loop to exit.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return
	}
	w.stopped = true
	close(w.stopCh)
	_ = w.fsw.Close()
	w.mu.Unlock()

	<-w.doneCh
}

// matches reports whether path is a watched file or one of its sidecars
// (e.g. "options.db-wal").
func (w *Watcher) matches(path string) bool {
	base := filepath.Base(path)
	for name := range w.names {
		if base == name || strings.HasPrefix(base, name+"-") {
			return true
		}
	}
	return false
}

func (w *Watcher) eventLoop() {
	defer close(w.doneCh)

	var debounceTimer *time.Timer
	debounceCh := make(chan struct{}, 1)

	for {
		select {
		case <-w.stopCh:
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			return

		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			if !w.matches(event.Name) {
				continue
			}
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.AfterFunc(w.cfg.DebounceDuration, func() {
				select {
				case debounceCh <- struct{}{}:
				default:
				}
			})

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			utils.Warnf("file watcher error: %v", err)

		case <-debounceCh:
			if w.cfg.OnChange != nil {
				w.cfg.OnChange()
			}
		}
	}
}
