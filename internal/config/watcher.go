package config

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watcher reloads the config file when it changes and hands the fresh
// Config to a callback. fsnotify is the primary mechanism; a slow polling
// loop on the file mtime runs as a safety net for editors and mounts that
// replace the file without emitting events.
type Watcher struct {
	path     string
	onChange func(Config)
	logger   *zap.Logger

	mu        sync.Mutex
	lastMtime time.Time
}

func NewWatcher(path string, logger *zap.Logger, onChange func(Config)) *Watcher {
	return &Watcher{path: path, onChange: onChange, logger: logger}
}

// Start launches the watch loops. They exit when ctx is cancelled.
func (w *Watcher) Start(ctx context.Context) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		w.logger.Warn("config watcher: fsnotify unavailable, polling only", zap.Error(err))
	} else if err := fw.Add(w.path); err != nil {
		w.logger.Warn("config watcher: cannot watch file, polling only",
			zap.String("path", w.path), zap.Error(err))
		fw.Close()
		fw = nil
	}

	if fw != nil {
		go func() {
			defer fw.Close()
			for {
				select {
				case <-ctx.Done():
					return
				case ev, ok := <-fw.Events:
					if !ok {
						return
					}
					if ev.Op.Has(fsnotify.Write) || ev.Op.Has(fsnotify.Create) {
						// Editors often emit a burst of writes; let it settle.
						time.Sleep(100 * time.Millisecond)
						w.reload()
					}
				case err, ok := <-fw.Errors:
					if !ok {
						return
					}
					w.logger.Warn("config watcher error", zap.Error(err))
				}
			}
		}()
	}

	go func() {
		ticker := time.NewTicker(60 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				w.reloadIfChanged()
			}
		}
	}()
}

func (w *Watcher) reload() {
	cfg, err := Load(w.path)
	if err != nil {
		w.logger.Error("config reload failed", zap.String("path", w.path), zap.Error(err))
		return
	}
	w.logger.Info("config reloaded", zap.String("path", w.path))
	w.onChange(cfg)
}

func (w *Watcher) reloadIfChanged() {
	info, err := os.Stat(w.path)
	if err != nil {
		return
	}
	w.mu.Lock()
	changed := info.ModTime().After(w.lastMtime)
	w.lastMtime = info.ModTime()
	w.mu.Unlock()
	if changed {
		w.reload()
	}
}
