package config

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const debounceDelay = 500 * time.Millisecond

// Watcher re-applies the YAML config file on top of the running
// configuration when it changes and hands the result to the registered
// callbacks.
type Watcher struct {
	mu        sync.RWMutex
	config    *Config
	callbacks []func(*Config)
	logger    *zap.Logger
	watcher   *fsnotify.Watcher
	stopCh    chan struct{}
	stopOnce  sync.Once
}

// NewWatcher starts watching cfg.File. The directory is watched rather
// than the file so editors that replace the file on save are seen.
func NewWatcher(cfg *Config, logger *zap.Logger) (*Watcher, error) {
	if cfg.File == "" {
		return nil, fmt.Errorf("no config file to watch")
	}

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	if err := fsWatcher.Add(filepath.Dir(cfg.File)); err != nil {
		fsWatcher.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", cfg.File, err)
	}

	w := &Watcher{
		config:  cfg,
		logger:  logger,
		watcher: fsWatcher,
		stopCh:  make(chan struct{}),
	}
	go w.watchLoop()

	logger.Info("Configuration hot reloading enabled", zap.String("file", cfg.File))
	return w, nil
}

// OnChange registers a callback to be called when configuration changes
func (w *Watcher) OnChange(fn func(*Config)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.callbacks = append(w.callbacks, fn)
}

// Current returns the latest loaded configuration
func (w *Watcher) Current() *Config {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.config
}

// Stop stops watching
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() { close(w.stopCh) })
}

func (w *Watcher) watchLoop() {
	defer w.watcher.Close()

	target := filepath.Clean(w.config.File)
	var debounce *time.Timer

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != target || !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(debounceDelay, w.reload)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("File watcher error", zap.Error(err))

		case <-w.stopCh:
			if debounce != nil {
				debounce.Stop()
			}
			return
		}
	}
}

func (w *Watcher) reload() {
	w.mu.RLock()
	next := *w.config
	w.mu.RUnlock()

	if err := next.overlayFile(next.File); err != nil {
		w.logger.Error("Failed to reload configuration", zap.Error(err))
		return
	}
	if err := next.Validate(); err != nil {
		w.logger.Error("Invalid configuration after reload", zap.Error(err))
		return
	}

	w.mu.Lock()
	w.config = &next
	callbacks := append([]func(*Config){}, w.callbacks...)
	w.mu.Unlock()

	for _, fn := range callbacks {
		fn(&next)
	}
	w.logger.Info("Configuration reloaded", zap.String("logLevel", next.LogLevel))
}

// LogLevelUpdater returns a callback applying the reloaded log level
func LogLevelUpdater(level zap.AtomicLevel) func(*Config) {
	return func(cfg *Config) {
		level.SetLevel(parseLevel(cfg.LogLevel))
	}
}
