package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"git.home.luguber.info/inful/pagesmith/internal/config"
	"git.home.luguber.info/inful/pagesmith/internal/logfields"
)

// reloadDebounce absorbs the write bursts editors produce when saving.
const reloadDebounce = 2 * time.Second

// ConfigWatcher reloads the configuration file when it changes on disk and
// hands validated configs to the apply callback. A file that no longer
// loads or validates is ignored; the daemon keeps running on the old config.
type ConfigWatcher struct {
	configPath string
	apply      func(*config.Config)
	watcher    *fsnotify.Watcher
	stopChan   chan struct{}

	mu      sync.Mutex
	pending *time.Timer
}

// NewConfigWatcher creates a watcher for configPath.
func NewConfigWatcher(configPath string, apply func(*config.Config)) (*ConfigWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	absPath, err := filepath.Abs(configPath)
	if err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to resolve config path: %w", err)
	}

	return &ConfigWatcher{
		configPath: absPath,
		apply:      apply,
		watcher:    watcher,
		stopChan:   make(chan struct{}),
	}, nil
}

// Start begins monitoring. The parent directory is watched rather than the
// file itself so atomic save-and-rename editors keep triggering events.
func (cw *ConfigWatcher) Start(ctx context.Context) error {
	configDir := filepath.Dir(cw.configPath)
	if err := cw.watcher.Add(configDir); err != nil {
		return fmt.Errorf("failed to watch config directory %s: %w", configDir, err)
	}

	slog.Info("Watching configuration file", logfields.Path(cw.configPath))
	go cw.watchLoop(ctx)
	return nil
}

// Stop ends monitoring and cancels any pending reload.
func (cw *ConfigWatcher) Stop() {
	select {
	case <-cw.stopChan:
	default:
		close(cw.stopChan)
	}

	cw.mu.Lock()
	if cw.pending != nil {
		cw.pending.Stop()
	}
	cw.mu.Unlock()

	if err := cw.watcher.Close(); err != nil {
		slog.Warn("Error closing config watcher", logfields.Error(err))
	}
}

func (cw *ConfigWatcher) watchLoop(ctx context.Context) {
	configFile := filepath.Base(cw.configPath)

	for {
		select {
		case <-ctx.Done():
			return
		case <-cw.stopChan:
			return
		case event, ok := <-cw.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != configFile {
				continue
			}
			switch {
			case event.Op.Has(fsnotify.Write), event.Op.Has(fsnotify.Create):
				cw.scheduleReload()
			case event.Op.Has(fsnotify.Remove):
				slog.Warn("Configuration file removed", logfields.Path(cw.configPath))
			}
		case err, ok := <-cw.watcher.Errors:
			if !ok {
				return
			}
			slog.Warn("Config watcher error", logfields.Error(err))
		}
	}
}

// scheduleReload (re)arms the debounce timer.
func (cw *ConfigWatcher) scheduleReload() {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	if cw.pending != nil {
		cw.pending.Reset(reloadDebounce)
		return
	}
	cw.pending = time.AfterFunc(reloadDebounce, cw.reload)
}

func (cw *ConfigWatcher) reload() {
	cw.mu.Lock()
	cw.pending = nil
	cw.mu.Unlock()

	select {
	case <-cw.stopChan:
		return
	default:
	}

	cfg, err := config.Load(cw.configPath)
	if err != nil {
		slog.Error("Reloaded configuration rejected; keeping current configuration",
			logfields.Path(cw.configPath),
			logfields.Error(err))
		return
	}

	cw.apply(cfg)
}
