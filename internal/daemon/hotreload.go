package daemon

import (
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/Pa3u3u/volume-monitor/internal/config"
)

// ConfigWatcher watches the config file and reloads it on change.
// Only daemon-level knobs (currently the log level) take effect at
// runtime; engine behavior is fixed. Invalid config files are logged
// and ignored, keeping the last valid configuration active.
type ConfigWatcher struct {
	watcher    *fsnotify.Watcher
	configPath string
	logger     *slog.Logger

	mu       sync.Mutex
	onReload func(*config.Config)
	running  bool
	done     chan struct{}
}

// NewConfigWatcher creates a ConfigWatcher for the given config path.
func NewConfigWatcher(configPath string, logger *slog.Logger) (*ConfigWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &ConfigWatcher{
		watcher:    watcher,
		configPath: configPath,
		logger:     logger,
		done:       make(chan struct{}),
	}, nil
}

// SetReloadCallback sets the callback invoked with each valid reloaded
// config.
func (w *ConfigWatcher) SetReloadCallback(callback func(*config.Config)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onReload = callback
}

// Start begins watching. The containing directory is watched rather
// than the file itself, which survives editors that replace the file
// on save.
func (w *ConfigWatcher) Start() error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	dir := filepath.Dir(w.configPath)
	if err := w.watcher.Add(dir); err != nil {
		return err
	}

	go w.watch()

	w.logger.Debug("config watcher started", "path", w.configPath)
	return nil
}

// Stop stops watching.
func (w *ConfigWatcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.mu.Unlock()

	_ = w.watcher.Close()
	<-w.done
	w.logger.Debug("config watcher stopped")
}

// watch is the main watch loop.
func (w *ConfigWatcher) watch() {
	defer close(w.done)

	filename := filepath.Base(w.configPath)
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != filename {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			w.reload()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("config watcher error", "error", err)
		}
	}
}

// reload re-parses the config file and invokes the callback when it is
// valid.
func (w *ConfigWatcher) reload() {
	cfg, err := config.LoadConfig(w.configPath)
	if err != nil {
		w.logger.Warn("config file changed but failed to load", "path", w.configPath, "error", err)
		return
	}

	w.mu.Lock()
	callback := w.onReload
	w.mu.Unlock()

	w.logger.Info("config reloaded", "path", w.configPath)
	if callback != nil {
		callback(cfg)
	}
}
