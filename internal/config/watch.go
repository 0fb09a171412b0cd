package config

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// debounceWindow coalesces the burst of write events most editors and
// os.Rename-based atomic writers generate for a single save.
const debounceWindow = 150 * time.Millisecond

// Watch reloads path on every write/create/rename event in its directory.
// onEdge fires only when the reloaded escalation.mode crosses the
// off<->non-off boundary (see Config.SetEscalationMode); onReload fires
// on every successful, changed reload regardless, so callers can sync
// state (e.g. the escalation orchestrator's in-memory mode) that isn't
// edge-gated. Either callback may be nil. Returns when ctx is done. A
// reload that produces identical bytes (compared via Config.Hash) is a
// no-op.
func Watch(ctx context.Context, path string, current *Config, onEdge EscalationModeSetterFunc, onReload func(*Config), logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		return err
	}

	var debounce *time.Timer
	reload := func() {
		next, err := Load(path)
		if err != nil {
			logger.Warn("config: reload failed, keeping previous config", "path", path, "error", err)
			return
		}
		if next.Hash() == current.Hash() {
			return
		}
		current.SetEscalationMode(next.Escalation.Mode, next.Escalation.CooldownMS, onEdge)
		current.ReplaceFrom(next)
		if onReload != nil {
			onReload(current)
		}
		logger.Info("config: reloaded", "path", path)
	}

	for {
		select {
		case <-ctx.Done():
			if debounce != nil {
				debounce.Stop()
			}
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != filepath.Clean(path) {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(debounceWindow, reload)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("config: watch error", "error", err)
		}
	}
}
