package config

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"taskhive/internal/logging"

	"github.com/fsnotify/fsnotify"
)

// Watcher watches the config file for changes and reloads it, so logging
// and scheduler tunables can be adjusted without restarting the process.
type Watcher struct {
	mu         sync.RWMutex
	watcher    *fsnotify.Watcher
	configPath string
	onReload   func(*Config)
	lastEvent  time.Time
	debounce   time.Duration
	stopCh     chan struct{}
	doneCh     chan struct{}
	running    bool
	closeOnce  sync.Once
}

// NewWatcher creates a watcher for the given config file path. onReload is
// invoked with the freshly loaded config after every change.
func NewWatcher(configPath string, onReload func(*Config)) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	return &Watcher{
		watcher:    fw,
		configPath: configPath,
		onReload:   onReload,
		debounce:   500 * time.Millisecond, // Debounce rapid saves
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),
	}, nil
}

// Start begins watching the config file's directory.
// Non-blocking; the watcher runs in a goroutine.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	// Watch the directory rather than the file: editors replace files on
	// save, which drops a direct file watch.
	dir := filepath.Dir(w.configPath)
	if err := w.watcher.Add(dir); err != nil {
		logging.Get(logging.CategoryBoot).Warn("config watcher: watch failed for %s: %v", dir, err)
	} else {
		logging.Boot("config watcher: watching %s", dir)
	}

	go w.run(ctx)
	return nil
}

// Stop stops the watcher and waits for cleanup. Safe to call whether or
// not Start ran; the underlying fsnotify watcher is closed either way.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		w.closeWatcher()
		return
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopCh)
	<-w.doneCh
	w.closeWatcher()
}

func (w *Watcher) closeWatcher() {
	w.closeOnce.Do(func() {
		if err := w.watcher.Close(); err != nil {
			logging.Get(logging.CategoryBoot).Error("config watcher: close error: %v", err)
		}
	})
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.doneCh)

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
			w.handleEvent(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logging.Get(logging.CategoryBoot).Error("config watcher: %v", err)
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if !strings.HasSuffix(event.Name, filepath.Base(w.configPath)) {
		return
	}
	if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
		return
	}

	w.mu.Lock()
	if time.Since(w.lastEvent) < w.debounce {
		w.mu.Unlock()
		return
	}
	w.lastEvent = time.Now()
	w.mu.Unlock()

	cfg, err := Load(w.configPath)
	if err != nil {
		logging.Get(logging.CategoryBoot).Warn("config watcher: reload failed: %v", err)
		return
	}
	if err := logging.ReloadConfig(); err != nil {
		logging.Get(logging.CategoryBoot).Warn("config watcher: logging reload failed: %v", err)
	}
	logging.Boot("config watcher: reloaded %s", w.configPath)

	if w.onReload != nil {
		w.onReload(cfg)
	}
}
