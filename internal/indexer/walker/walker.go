// Package walker feeds a virtual file tree into the index store.
package walker

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/vfs-search/internal/indexer/filter"
	"github.com/Adithya-Monish-Kumar-K/vfs-search/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/vfs-search/internal/vfs"
)

// Store is the write side of the index the walker feeds.
type Store interface {
	Upsert(doc index.Document) error
	Delete(path string, recursive bool) (int, error)
}

type Options struct {
	// MaxContentBytes caps how much of a file body is tokenized. Zero means
	// no cap.
	MaxContentBytes int64
}

// Stats summarises one tree walk. Folders are traversed, never indexed.
type Stats struct {
	Files        int           `json:"files"`
	Folders      int           `json:"folders"`
	WithContent  int           `json:"with_content"`
	MetadataOnly int           `json:"metadata_only"`
	Denied       int           `json:"denied"`
	ContentBytes int64         `json:"content_bytes"`
	Duration     time.Duration `json:"duration"`
}

type Walker struct {
	store   Store
	filters *filter.Set
	opts    Options
	logger  *slog.Logger
}

func New(store Store, filters *filter.Set, opts Options) *Walker {
	if filters == nil {
		filters = filter.Default()
	}
	return &Walker{
		store:   store,
		filters: filters,
		opts:    opts,
		logger:  slog.Default().With("component", "tree-walker"),
	}
}

// ShouldIndexContent reports whether every registered filter accepts f.
func (w *Walker) ShouldIndexContent(f vfs.File) bool {
	return w.filters.Accept(f)
}

// IndexTree walks root breadth first and upserts every file below it. A
// root that does not exist is a no-op. A file whose content may not be read
// is indexed by path and name only and the walk continues; any other error
// stops the walk and is returned with the stats gathered so far.
func (w *Walker) IndexTree(root vfs.File) (Stats, error) {
	start := time.Now()
	var stats Stats
	if !root.Exists() {
		w.logger.Debug("tree root missing, nothing to index", "root", root.Path())
		return stats, nil
	}
	if !root.IsFolder() {
		err := w.indexFile(root, &stats)
		stats.Duration = time.Since(start)
		return stats, err
	}

	queue := []vfs.File{root}
	for len(queue) > 0 {
		folder := queue[0]
		queue = queue[1:]
		if !folder.Exists() {
			continue
		}
		stats.Folders++
		children, err := folder.Children()
		if err != nil {
			if !folder.Exists() {
				continue
			}
			if errors.Is(err, vfs.ErrAccessDenied) {
				w.logger.Warn("folder not readable, skipped", "path", folder.Path(), "error", err)
				stats.Denied++
				continue
			}
			stats.Duration = time.Since(start)
			return stats, fmt.Errorf("listing %s: %w", folder.Path(), err)
		}
		for _, child := range children {
			if child.IsFolder() {
				queue = append(queue, child)
				continue
			}
			if err := w.indexFile(child, &stats); err != nil {
				stats.Duration = time.Since(start)
				w.logger.Error("tree walk aborted",
					"root", root.Path(),
					"path", child.Path(),
					"files", stats.Files,
					"error", err,
				)
				return stats, err
			}
		}
	}
	stats.Duration = time.Since(start)
	w.logger.Info("tree indexed",
		"root", root.Path(),
		"files", stats.Files,
		"folders", stats.Folders,
		"metadata_only", stats.MetadataOnly,
		"denied", stats.Denied,
		"duration", stats.Duration,
	)
	return stats, nil
}

// IndexFile updates the index for one changed file. A file that no longer
// exists is ignored; a folder is walked as a tree.
func (w *Walker) IndexFile(f vfs.File) error {
	if !f.Exists() {
		w.logger.Debug("file vanished before indexing", "path", f.Path())
		return nil
	}
	if f.IsFolder() {
		_, err := w.IndexTree(f)
		return err
	}
	var stats Stats
	return w.indexFile(f, &stats)
}

// RemoveFile deletes path from the index, and everything below it when
// isFolder is set.
func (w *Walker) RemoveFile(path string, isFolder bool) error {
	n, err := w.store.Delete(path, isFolder)
	if err != nil {
		return err
	}
	w.logger.Debug("removed from index", "path", path, "folder", isFolder, "documents", n)
	return nil
}

func (w *Walker) indexFile(f vfs.File, stats *Stats) error {
	if !f.Exists() {
		return nil
	}
	doc := index.Document{Path: f.Path(), Name: f.Name()}
	if w.ShouldIndexContent(f) {
		text, err := w.readContent(f)
		switch {
		case err == nil:
			doc.Text = text
			stats.WithContent++
			stats.ContentBytes += int64(len(text))
		case errors.Is(err, vfs.ErrAccessDenied):
			w.logger.Warn("content not readable, indexing metadata only", "path", f.Path(), "error", err)
			stats.Denied++
			stats.MetadataOnly++
		case !f.Exists():
			return nil
		default:
			return fmt.Errorf("reading content of %s: %w", f.Path(), err)
		}
	} else {
		stats.MetadataOnly++
	}
	if err := w.store.Upsert(doc); err != nil {
		return err
	}
	stats.Files++
	return nil
}

func (w *Walker) readContent(f vfs.File) (string, error) {
	rc, err := f.Content()
	if err != nil {
		return "", err
	}
	defer rc.Close()
	var r io.Reader = rc
	if w.opts.MaxContentBytes > 0 {
		r = io.LimitReader(rc, w.opts.MaxContentBytes)
	}
	var sb strings.Builder
	if _, err := io.Copy(&sb, r); err != nil {
		return "", err
	}
	return sb.String(), nil
}
