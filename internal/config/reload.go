package config

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/metrofleet/induction/internal/log"
)

// Holder holds configuration with atomic, hot-reloadable access: Get
// returns the current snapshot and registered listeners receive each
// reloaded config. Components handed an AppConfig value instead (as
// cmd/inductiond does for the status loop, optimizer and bus) keep that
// value until restart.
type Holder struct {
	reloadOpMu sync.Mutex
	current    atomic.Pointer[AppConfig]
	loader     *Loader
	configPath string
	configDir  string
	configFile string
	watcher    *fsnotify.Watcher

	listenersMu sync.RWMutex
	listeners   []chan<- AppConfig
}

// NewHolder creates a Holder pre-populated with initial.
func NewHolder(initial AppConfig, loader *Loader, configPath string) *Holder {
	h := &Holder{loader: loader, configPath: configPath}
	h.current.Store(&initial)
	return h
}

// Get returns the current configuration (thread-safe read).
func (h *Holder) Get() AppConfig {
	if cfg := h.current.Load(); cfg != nil {
		return *cfg
	}
	return Defaults()
}

// Reload loads configuration from disk and environment again. On
// validation failure the previous configuration is kept untouched.
func (h *Holder) Reload(_ context.Context) error {
	h.reloadOpMu.Lock()
	defer h.reloadOpMu.Unlock()

	logger := log.WithComponent("config")

	newCfg, err := h.loader.Load()
	if err != nil {
		logger.Error().Err(err).Msg("config reload failed")
		return fmt.Errorf("load config: %w", err)
	}

	h.current.Store(&newCfg)
	h.notifyListeners(newCfg)
	logger.Info().Msg("config reloaded")
	return nil
}

// StartWatcher watches the config file for changes and debounces
// rapid writes into a single Reload, matching editors that write via
// temp-file-then-rename.
func (h *Holder) StartWatcher(ctx context.Context) error {
	if h.configPath == "" {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	h.watcher = watcher
	h.configDir = filepath.Dir(h.configPath)
	h.configFile = filepath.Base(h.configPath)

	if err := watcher.Add(h.configDir); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("watch config dir: %w", err)
	}

	go h.watchLoop(ctx)
	return nil
}

func (h *Holder) watchLoop(ctx context.Context) {
	logger := log.WithComponent("config")
	var debounce *time.Timer
	const debounceWindow = 500 * time.Millisecond

	for {
		select {
		case <-ctx.Done():
			_ = h.watcher.Close()
			return
		case ev, ok := <-h.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(ev.Name) != h.configFile {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(debounceWindow, func() {
				if err := h.Reload(ctx); err != nil {
					logger.Error().Err(err).Msg("automatic config reload failed")
				}
			})
		case err, ok := <-h.watcher.Errors:
			if !ok {
				return
			}
			logger.Error().Err(err).Msg("config watcher error")
		}
	}
}

// Stop stops the file watcher, if running.
func (h *Holder) Stop() {
	if h.watcher != nil {
		_ = h.watcher.Close()
	}
}

// RegisterListener registers a channel to receive the new config after
// every successful reload. Sends are non-blocking; a full channel
// drops the notification rather than stalling the reload.
func (h *Holder) RegisterListener(ch chan<- AppConfig) {
	h.listenersMu.Lock()
	defer h.listenersMu.Unlock()
	h.listeners = append(h.listeners, ch)
}

func (h *Holder) notifyListeners(cfg AppConfig) {
	h.listenersMu.RLock()
	defer h.listenersMu.RUnlock()
	logger := log.WithComponent("config")
	for _, ch := range h.listeners {
		select {
		case ch <- cfg:
		default:
			logger.Warn().Msg("skipped notifying config listener (channel full)")
		}
	}
}
