package config

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Holder provides thread-safe access to a mutable *Config and an
// immutable config file path. Every consumer reads through a shared
// Holder, so a reload updates config in exactly one place.
type Holder struct {
	mu   sync.RWMutex
	cfg  *Config
	path string // immutable after construction

	onReload func(*Config)
}

// NewHolder creates a Holder with the initial config and config file
// path.
func NewHolder(cfg *Config, path string) *Holder {
	return &Holder{cfg: cfg, path: path}
}

// Config returns the current config snapshot.
func (h *Holder) Config() *Config {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return h.cfg
}

// Path returns the config file path.
func (h *Holder) Path() string {
	return h.path
}

// Update replaces the config for all consumers.
func (h *Holder) Update(cfg *Config) {
	h.mu.Lock()
	h.cfg = cfg
	hook := h.onReload
	h.mu.Unlock()

	if hook != nil {
		hook(cfg)
	}
}

// OnReload registers a hook invoked after every Update with the new
// config, so consumers holding derived state (log level, timeouts) can
// re-apply it.
func (h *Holder) OnReload(fn func(*Config)) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.onReload = fn
}

// reloadDebounce coalesces the burst of filesystem events an editor
// save produces into one reload.
const reloadDebounce = 250 * time.Millisecond

// Watch reloads the config whenever the file changes on disk, until
// ctx is canceled. A file that fails to parse leaves the previous
// config in place. The parent directory is watched because editors
// typically replace the file rather than write it in place.
func (h *Holder) Watch(ctx context.Context, logger *slog.Logger) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	if err := watcher.Add(filepath.Dir(h.path)); err != nil {
		watcher.Close()
		return err
	}

	go func() {
		defer watcher.Close()

		var debounce *time.Timer

		reload := func() {
			cfg, err := Load(h.path)
			if err != nil {
				logger.Warn("config reload failed, keeping previous config",
					slog.String("path", h.path),
					slog.String("error", err.Error()),
				)

				return
			}

			h.Update(cfg)
			logger.Info("config reloaded", slog.String("path", h.path))
		}

		for {
			select {
			case <-ctx.Done():
				if debounce != nil {
					debounce.Stop()
				}

				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}

				if filepath.Clean(event.Name) != filepath.Clean(h.path) {
					continue
				}

				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
					continue
				}

				if debounce != nil {
					debounce.Stop()
				}

				debounce = time.AfterFunc(reloadDebounce, reload)
			case watchErr, ok := <-watcher.Errors:
				if !ok {
					return
				}

				logger.Warn("config watcher error", slog.String("error", watchErr.Error()))
			}
		}
	}()

	return nil
}
