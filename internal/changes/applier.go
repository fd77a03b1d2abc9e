// Package changes keeps the index in step with the file tree. Change
// notifications arrive from the local fsnotify watcher or from a Kafka topic
// and are applied as single-file updates; finished tree walks are published
// back to Kafka.
package changes

import (
	"fmt"
	"log/slog"

	"github.com/Adithya-Monish-Kumar-K/vfs-search/internal/vfs"
)

// Index is the write side of the searcher.
type Index interface {
	IndexFile(f vfs.File) error
	RemoveFile(path string, isFolder bool) error
}

// Applier turns change notifications into index updates.
type Applier struct {
	index  Index
	fs     vfs.FileSystem
	logger *slog.Logger
}

func NewApplier(index Index, fs vfs.FileSystem) *Applier {
	return &Applier{
		index:  index,
		fs:     fs,
		logger: slog.Default().With("component", "change-applier"),
	}
}

// Apply indexes a created or modified node, walking it when it is a folder,
// and drops a removed one. A created node that is already gone by the time
// it is looked up is removed instead.
func (a *Applier) Apply(ch vfs.Change) error {
	p := vfs.Clean(ch.Path)
	switch ch.Kind {
	case vfs.ChangeCreated, vfs.ChangeModified:
		f, err := a.fs.Lookup(p)
		if err != nil {
			return fmt.Errorf("looking up %s: %w", p, err)
		}
		if !f.Exists() {
			a.logger.Debug("changed file vanished", "path", p)
			return a.index.RemoveFile(p, ch.Folder)
		}
		a.logger.Debug("applying change", "path", p, "kind", ch.Kind, "folder", f.IsFolder())
		return a.index.IndexFile(f)
	case vfs.ChangeRemoved:
		a.logger.Debug("applying change", "path", p, "kind", ch.Kind, "folder", ch.Folder)
		return a.index.RemoveFile(p, ch.Folder)
	default:
		return fmt.Errorf("unknown change kind %q for %s", ch.Kind, p)
	}
}

// Handle is Apply for callbacks that cannot return an error, such as the
// fsnotify watcher loop.
func (a *Applier) Handle(ch vfs.Change) {
	if err := a.Apply(ch); err != nil {
		a.logger.Error("failed to apply change", "path", ch.Path, "kind", ch.Kind, "error", err)
	}
}
