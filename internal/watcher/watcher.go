// Package watcher provides file system watching with debouncing for
// linux-tkg's customization.cfg, so edits made in an external editor
// refresh the config view.
package watcher

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"kforge/internal/log"
)

// Watcher monitors a config file for changes and sends notifications.
type Watcher struct {
	fsWatcher *fsnotify.Watcher
	cfgPath   string
	debounce  time.Duration
	onChange  chan struct{}
	done      chan struct{}
}

// Config holds watcher configuration options.
type Config struct {
	CfgPath     string
	DebounceDur time.Duration
}

// DefaultConfig returns sensible defaults for watching a config file.
func DefaultConfig(cfgPath string) Config {
	return Config{
		CfgPath:     cfgPath,
		DebounceDur: 500 * time.Millisecond,
	}
}

// New creates a new config file watcher.
func New(cfg Config) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating fsnotify watcher: %w", err)
	}

	return &Watcher{
		fsWatcher: fsw,
		cfgPath:   cfg.CfgPath,
		debounce:  cfg.DebounceDur,
		onChange:  make(chan struct{}, 1),
		done:      make(chan struct{}),
	}, nil
}

// Start begins watching the directory containing the config file.
// Returns a channel that receives a signal when the file changes.
func (w *Watcher) Start() (<-chan struct{}, error) {
	// Watch the directory; editors often replace the file wholesale.
	dir := filepath.Dir(w.cfgPath)
	if err := w.fsWatcher.Add(dir); err != nil {
		return nil, fmt.Errorf("watching directory %s: %w", dir, err)
	}

	go w.loop()

	return w.onChange, nil
}

// Stop terminates the watcher and releases resources.
func (w *Watcher) Stop() error {
	close(w.done)
	return w.fsWatcher.Close()
}

// loop processes file system events with debouncing.
func (w *Watcher) loop() {
	var (
		timer   *time.Timer
		pending bool
	)

	for {
		select {
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}

			if !w.isRelevantEvent(event) {
				continue
			}

			// Reset or start debounce timer
			if timer == nil {
				timer = time.NewTimer(w.debounce)
				pending = true
			} else {
				if !timer.Stop() {
					// Drain the timer channel if it already fired
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(w.debounce)
				pending = true
			}

		case <-func() <-chan time.Time {
			if timer != nil {
				return timer.C
			}
			return nil
		}():
			if pending {
				// Non-blocking send - drop if channel full
				select {
				case w.onChange <- struct{}{}:
				default:
				}
				pending = false
			}

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			log.Debug(log.CatWatcher, "fsnotify error", "error", err)

		case <-w.done:
			if timer != nil {
				timer.Stop()
			}
			return
		}
	}
}

// isRelevantEvent checks if the event should trigger a refresh.
func (w *Watcher) isRelevantEvent(event fsnotify.Event) bool {
	// Writes, creates and renames all show up when editors save.
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
		return false
	}
	return filepath.Base(event.Name) == filepath.Base(w.cfgPath)
}
