package localfs

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/Adithya-Monish-Kumar-K/vfs-search/internal/vfs"
	"github.com/fsnotify/fsnotify"
)

// Watcher turns fsnotify events below an FS root into vfs.Change
// notifications. fsnotify is not recursive, so every folder gets its own
// watch; the set of watched folders also answers Change.Folder for removals,
// when the node can no longer be inspected.
type Watcher struct {
	fs      *FS
	watcher *fsnotify.Watcher
	mu      sync.Mutex
	folders map[string]struct{}
	logger  *slog.Logger
}

func NewWatcher(root *FS) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating fsnotify watcher: %w", err)
	}
	w := &Watcher{
		fs:      root,
		watcher: fw,
		folders: make(map[string]struct{}),
		logger:  slog.Default().With("component", "fs-watcher", "root", root.Dir()),
	}
	if _, err := w.addTree(root.Dir()); err != nil {
		fw.Close()
		return nil, err
	}
	return w, nil
}

// addTree watches dir and every folder below it. It returns the virtual
// paths of the folders it added.
func (w *Watcher) addTree(dir string) ([]string, error) {
	var added []string
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			w.logger.Warn("skipping unreadable path", "path", p, "error", err)
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if err := w.watcher.Add(p); err != nil {
			return fmt.Errorf("watching %s: %w", p, err)
		}
		vp, err := w.fs.VirtualPath(p)
		if err != nil {
			return err
		}
		w.mu.Lock()
		w.folders[vp] = struct{}{}
		w.mu.Unlock()
		added = append(added, vp)
		return nil
	})
	return added, err
}

// Run delivers changes to handle until ctx is cancelled or the watcher is
// closed. handle runs on the watcher goroutine.
func (w *Watcher) Run(ctx context.Context, handle func(vfs.Change)) error {
	w.logger.Info("watcher started")
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("watcher stopping", "reason", ctx.Err())
			return nil
		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if change, ok := w.translate(event); ok {
				handle(change)
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("watcher error", "error", err)
		}
	}
}

func (w *Watcher) translate(event fsnotify.Event) (vfs.Change, bool) {
	vp, err := w.fs.VirtualPath(event.Name)
	if err != nil {
		return vfs.Change{}, false
	}
	switch {
	case event.Has(fsnotify.Create):
		info, err := os.Stat(event.Name)
		if err == nil && info.IsDir() {
			if _, err := w.addTree(event.Name); err != nil {
				w.logger.Error("watching new folder failed", "path", vp, "error", err)
			}
			return vfs.Change{Path: vp, Kind: vfs.ChangeCreated, Folder: true}, true
		}
		return vfs.Change{Path: vp, Kind: vfs.ChangeCreated}, true
	case event.Has(fsnotify.Write):
		return vfs.Change{Path: vp, Kind: vfs.ChangeModified}, true
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		return vfs.Change{Path: vp, Kind: vfs.ChangeRemoved, Folder: w.forget(vp)}, true
	}
	return vfs.Change{}, false
}

// forget drops vp and its descendants from the folder set and reports
// whether vp was a folder.
func (w *Watcher) forget(vp string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, wasFolder := w.folders[vp]
	if !wasFolder {
		return false
	}
	prefix := vp + "/"
	for p := range w.folders {
		if p == vp || strings.HasPrefix(p, prefix) {
			delete(w.folders, p)
		}
	}
	return true
}

func (w *Watcher) Close() error {
	return w.watcher.Close()
}
