// Package watch re-runs exports when notes in the vault change.
package watch

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/feta/internal/apperr"
	"github.com/starford/feta/internal/vault"
)

// EventCallback is called for every note change the watcher sees.
// kind is one of "created", "updated", "deleted".
type EventCallback func(kind string, path string)

// Trigger runs one export. It is called at most once per quiet period.
type Trigger func(ctx context.Context) error

// Watch watches every non-hidden directory under vaultRoot and calls
// trigger once note changes have been quiet for debounce. It returns when
// ctx is cancelled.
//
// New directories created at runtime are added to the watch list. A
// trigger failing with apperr.ErrBusy is retried after another debounce.
func Watch(ctx context.Context, vaultRoot string, debounce time.Duration, logger *slog.Logger, cb EventCallback, trigger Trigger) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := addDirsRecursive(w, vaultRoot); err != nil {
		return err
	}

	logger.Info("watcher: started",
		slog.String("root", vaultRoot),
		slog.Duration("debounce", debounce))

	var timer *time.Timer
	var fire <-chan time.Time

	schedule := func() {
		if timer == nil {
			timer = time.NewTimer(debounce)
			fire = timer.C
			return
		}
		timer.Reset(debounce)
	}

	notify := func(kind, rel string) {
		logger.Debug("watcher: note changed", slog.String("path", rel), slog.String("op", kind))
		if cb != nil {
			cb(kind, rel)
		}
		schedule()
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
			if err := trigger(ctx); err != nil {
				if errors.Is(err, apperr.ErrBusy) {
					logger.Debug("watcher: export busy, retrying")
					schedule()
					continue
				}
				if ctx.Err() == nil {
					logger.Warn("watcher: export failed", slog.String("error", err.Error()))
				}
			}

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}

			rel, relErr := filepath.Rel(vaultRoot, ev.Name)
			if relErr != nil || hiddenPath(rel) {
				continue
			}
			rel = filepath.ToSlash(rel)

			if ev.Op&fsnotify.Create != 0 {
				if info, statErr := os.Stat(ev.Name); statErr == nil && info.IsDir() {
					if addErr := addDirsRecursive(w, ev.Name); addErr != nil {
						logger.Warn("watcher: add new dir failed",
							slog.String("path", rel),
							slog.String("error", addErr.Error()))
					}
					// Notes may land before the directory is watched.
					for _, n := range notesUnder(vaultRoot, ev.Name) {
						notify("created", n)
					}
					continue
				}
			}

			if !isNote(ev.Name) {
				continue
			}

			switch {
			case ev.Op&fsnotify.Create != 0:
				notify("created", rel)
			case ev.Op&fsnotify.Write != 0:
				notify("updated", rel)
			case ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
				// Rename fires on the old path; the new one arrives as Create.
				notify("deleted", rel)
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

func isNote(name string) bool {
	return strings.EqualFold(strings.TrimPrefix(filepath.Ext(name), "."), vault.NoteExtension)
}

// hiddenPath reports whether any element of the relative path is hidden.
func hiddenPath(rel string) bool {
	for _, part := range strings.Split(filepath.ToSlash(rel), "/") {
		if part != "." && part != ".." && vault.IsHidden(part) {
			return true
		}
	}
	return false
}

// notesUnder lists the vault paths of notes inside dir.
func notesUnder(vaultRoot, dir string) []string {
	var out []string
	_ = filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if p != dir && vault.IsHidden(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if !isNote(p) {
			return nil
		}
		if rel, relErr := filepath.Rel(vaultRoot, p); relErr == nil {
			out = append(out, filepath.ToSlash(rel))
		}
		return nil
	})
	return out
}

// addDirsRecursive adds root and its non-hidden subdirectories to the watcher.
func addDirsRecursive(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if p != root && vault.IsHidden(d.Name()) {
			return filepath.SkipDir
		}
		return w.Add(p)
	})
}
