package config

import (
	"context"
	"log"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher reloads a config file when it changes on disk and hands the
// result to a callback. Rapid successive writes are debounced.
type Watcher struct {
	mu       sync.Mutex
	path     string
	debounce time.Duration
	onChange func(*Config)
	watcher  *fsnotify.Watcher
	stopCh   chan struct{}
	doneCh   chan struct{}
	running  bool
}

// NewWatcher creates a watcher for path. onChange receives every successfully
// parsed reload; parse failures are logged and the previous config stays in effect.
func NewWatcher(path string, debounce time.Duration, onChange func(*Config)) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if debounce <= 0 {
		debounce = 500 * time.Millisecond
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		fw.Close()
		return nil, err
	}
	return &Watcher{
		path:     abs,
		debounce: debounce,
		onChange: onChange,
		watcher:  fw,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}, nil
}

// Start begins watching. Non-blocking.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	// Editors often replace the file, so watch the directory.
	if err := w.watcher.Add(filepath.Dir(w.path)); err != nil {
		return err
	}
	log.Printf("[Config] Watching %s for changes", w.path)

	go w.run(ctx)
	return nil
}

// Stop stops the watcher and waits for its goroutine.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopCh)
	<-w.doneCh
	if err := w.watcher.Close(); err != nil {
		log.Printf("[Config] Error closing watcher: %v", err)
	}
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.doneCh)

	var timer *time.Timer
	var fire <-chan time.Time
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("[Config] Watcher error: %v", err)
		case <-fire:
			fire = nil
			w.reload()
		}
	}
}

func (w *Watcher) reload() {
	cfg, err := LoadConfigFromFile(w.path)
	if err != nil {
		log.Printf("[Config] Reload failed, keeping previous configuration: %v", err)
		return
	}
	if err := cfg.Validate(); err != nil {
		log.Printf("[Config] Reloaded configuration is invalid, ignoring: %v", err)
		return
	}
	log.Printf("[Config] Reloaded %s", w.path)
	if w.onChange != nil {
		w.onChange(cfg)
	}
}
