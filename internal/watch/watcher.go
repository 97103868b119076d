// Package watch reloads the catalog when person folders change on disk outside
// of this process.
package watch

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"

	"github.com/your-org/ema/internal/catalog"
	"github.com/your-org/ema/internal/storage"
	"github.com/your-org/ema/pkg/dto"
)

// Refresher reloads the repository and reports whether anything visible changed.
type Refresher interface {
	Refresh(ctx context.Context) (bool, error)
}

// Watcher watches the repository root and every person folder (fsnotify is not
// recursive) and triggers a debounced refresh.
type Watcher struct {
	root      string
	refresher Refresher
	notifier  catalog.Notifier
	debounce  time.Duration

	fsw     *fsnotify.Watcher
	watched map[string]bool
}

func New(root string, refresher Refresher, notifier catalog.Notifier, debounce time.Duration) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if debounce <= 0 {
		debounce = 500 * time.Millisecond
	}
	w := &Watcher{
		root:      root,
		refresher: refresher,
		notifier:  notifier,
		debounce:  debounce,
		fsw:       fsw,
		watched:   make(map[string]bool),
	}
	if err := w.sync(); err != nil {
		fsw.Close()
		return nil, err
	}
	return w, nil
}

// sync adds watches for the root and any person folder not watched yet, and
// forgets folders that no longer exist.
func (w *Watcher) sync() error {
	if !w.watched[w.root] {
		if err := w.fsw.Add(w.root); err != nil {
			return fmt.Errorf("watch %s: %w", w.root, err)
		}
		w.watched[w.root] = true
	}

	entries, err := os.ReadDir(w.root)
	if err != nil {
		return fmt.Errorf("read %s: %w", w.root, err)
	}
	present := map[string]bool{w.root: true}
	for _, e := range entries {
		if !e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		dir := filepath.Join(w.root, e.Name())
		present[dir] = true
		if w.watched[dir] {
			continue
		}
		if err := w.fsw.Add(dir); err != nil {
			slog.Warn("watch person folder", "path", dir, "error", err)
			continue
		}
		w.watched[dir] = true
	}
	for dir := range w.watched {
		if !present[dir] {
			_ = w.fsw.Remove(dir)
			delete(w.watched, dir)
		}
	}
	return nil
}

// relevant reports whether an event can change the listed persons: a person
// folder appearing or vanishing, or a metadata file changing.
func (w *Watcher) relevant(ev fsnotify.Event) bool {
	if ev.Op == fsnotify.Chmod {
		return false
	}
	rel, err := filepath.Rel(w.root, ev.Name)
	if err != nil {
		return false
	}
	parts := strings.Split(filepath.ToSlash(rel), "/")
	if strings.HasPrefix(parts[0], ".") {
		return false
	}
	switch len(parts) {
	case 1:
		return true
	case 2:
		return parts[1] == storage.MetadataFile
	default:
		return false
	}
}

// Run processes events until ctx is done, then closes the watcher.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.fsw.Close()

	timer := time.NewTimer(w.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	slog.Info("watching repository", "root", w.root, "debounce", w.debounce)
	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			if w.relevant(ev) {
				slog.Debug("repository change", "path", ev.Name, "op", ev.Op.String())
				timer.Reset(w.debounce)
			}

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			slog.Error("repository watcher", "error", err)

		case <-timer.C:
			w.refresh(ctx)
		}
	}
}

func (w *Watcher) refresh(ctx context.Context) {
	if err := w.sync(); err != nil {
		slog.Warn("resync repository watches", "error", err)
	}
	changed, err := w.refresher.Refresh(ctx)
	if err != nil {
		slog.Error("reload repository after external change", "error", err)
		return
	}
	if changed && w.notifier != nil {
		w.notifier.Notify(dto.NewEvent(dto.EventRepositoryChanged, uuid.Nil, nil))
	}
}
