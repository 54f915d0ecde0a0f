// Package watcher triggers registry refreshes when the document tree changes.
package watcher

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/docreg/internal/models"
	"github.com/starford/docreg/internal/storage"
)

// DefaultDebounce is used when Config.Debounce is not positive.
const DefaultDebounce = 250 * time.Millisecond

// RefreshFunc rebuilds the registry. It is called from the watcher goroutine.
type RefreshFunc func(ctx context.Context) error

// Config controls what is watched and how changes are coalesced. Ignore holds
// doublestar patterns relative to Root: matching directories are not watched
// and changes under them never schedule a refresh.
type Config struct {
	Root       string
	Extensions models.Extensions
	Ignore     []string
	Debounce   time.Duration
}

// Watch starts an fsnotify watcher on the document root and calls refresh
// once a burst of changes has been quiet for the debounce interval. It
// returns when ctx is cancelled.
//
// New directories created at runtime are automatically added to the watch
// list. Removals and renames always schedule a refresh since the removed
// path can no longer be inspected.
func Watch(ctx context.Context, cfg Config, logger *slog.Logger, refresh RefreshFunc) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	root, err := filepath.Abs(cfg.Root)
	if err != nil {
		return err
	}
	ignored := func(path string) bool {
		rel, err := filepath.Rel(root, path)
		if err != nil || rel == "." {
			return false
		}
		return storage.Ignored(cfg.Ignore, filepath.ToSlash(rel))
	}

	if err := addDirsRecursive(w, root, ignored); err != nil {
		return err
	}

	exts := cfg.Extensions
	if len(exts) == 0 {
		exts = models.DefaultExtensions
	}
	debounce := cfg.Debounce
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	logger.Info("watcher: started", slog.String("root", root), slog.Duration("debounce", debounce))

	var timer *time.Timer
	var fire <-chan time.Time
	schedule := func() {
		if timer == nil {
			timer = time.NewTimer(debounce)
			fire = timer.C
		} else {
			timer.Reset(debounce)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			logger.Info("watcher: stopped")
			return nil

		case <-fire:
			if err := refresh(ctx); err != nil {
				logger.Warn("watcher: refresh failed, keeping previous snapshot", slog.String("error", err.Error()))
				continue
			}
			logger.Debug("watcher: refreshed")

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if ignored(ev.Name) {
				continue
			}

			if ev.Op&fsnotify.Create != 0 {
				if info, statErr := os.Stat(ev.Name); statErr == nil && info.IsDir() {
					if addErr := addDirsRecursive(w, ev.Name, ignored); addErr != nil {
						logger.Warn("watcher: add new dir failed",
							slog.String("path", ev.Name),
							slog.String("error", addErr.Error()))
					} else {
						logger.Debug("watcher: watching new dir", slog.String("path", ev.Name))
					}
					// The directory may already hold documents.
					schedule()
					continue
				}
			}

			switch {
			case ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
				schedule()
			case ev.Op&(fsnotify.Create|fsnotify.Write) != 0:
				if _, ok := exts.Match(ev.Name); ok {
					logger.Debug("watcher: change", slog.String("path", ev.Name), slog.String("op", ev.Op.String()))
					schedule()
				}
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

// addDirsRecursive adds dir and all its subdirectories to the watcher,
// skipping ignored ones.
func addDirsRecursive(w *fsnotify.Watcher, dir string, ignored func(string) bool) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if ignored(path) {
			return filepath.SkipDir
		}
		return w.Add(path)
	})
}
