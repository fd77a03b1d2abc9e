// Package memfs is an in-memory vfs.FileSystem. It backs tests and embedders
// that keep their tree in memory.
package memfs

import (
	"bytes"
	"fmt"
	"io"
	"path"
	"sort"
	"sync"

	"github.com/Adithya-Monish-Kumar-K/vfs-search/internal/vfs"
)

type node struct {
	folder    bool
	data      []byte
	mediaType string
	denied    bool
	readErr   error
	children  map[string]struct{}
}

// FS is safe for concurrent use. File handles resolve their state on every
// call, so a handle observes later writes and removals.
type FS struct {
	mu    sync.RWMutex
	nodes map[string]*node
}

func New() *FS {
	return &FS{
		nodes: map[string]*node{
			"/": {folder: true, children: make(map[string]struct{})},
		},
	}
}

func (fs *FS) Root() vfs.File {
	return &file{fs: fs, path: "/"}
}

func (fs *FS) Lookup(p string) (vfs.File, error) {
	return &file{fs: fs, path: vfs.Clean(p)}, nil
}

// MkdirAll creates p and any missing parents.
func (fs *FS) MkdirAll(p string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	_, err := fs.mkdirLocked(vfs.Clean(p))
	return err
}

func (fs *FS) mkdirLocked(p string) (*node, error) {
	if n, ok := fs.nodes[p]; ok {
		if !n.folder {
			return nil, fmt.Errorf("memfs: %s is a file", p)
		}
		return n, nil
	}
	parent, err := fs.mkdirLocked(path.Dir(p))
	if err != nil {
		return nil, err
	}
	n := &node{folder: true, children: make(map[string]struct{})}
	fs.nodes[p] = n
	parent.children[path.Base(p)] = struct{}{}
	return n, nil
}

// WriteFile creates or replaces the file at p, creating parent folders.
func (fs *FS) WriteFile(p string, data []byte) error {
	p = vfs.Clean(p)
	fs.mu.Lock()
	defer fs.mu.Unlock()
	parent, err := fs.mkdirLocked(path.Dir(p))
	if err != nil {
		return err
	}
	if n, ok := fs.nodes[p]; ok {
		if n.folder {
			return fmt.Errorf("memfs: %s is a folder", p)
		}
		n.data = append([]byte(nil), data...)
		return nil
	}
	fs.nodes[p] = &node{data: append([]byte(nil), data...)}
	parent.children[path.Base(p)] = struct{}{}
	return nil
}

// SetMediaType overrides the detected media type of a file.
func (fs *FS) SetMediaType(p, mediaType string) {
	fs.update(p, func(n *node) { n.mediaType = mediaType })
}

// Deny makes Content fail with vfs.ErrAccessDenied for p.
func (fs *FS) Deny(p string) {
	fs.update(p, func(n *node) { n.denied = true })
}

// FailReads makes Content fail with err for p.
func (fs *FS) FailReads(p string, err error) {
	fs.update(p, func(n *node) { n.readErr = err })
}

func (fs *FS) update(p string, fn func(*node)) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if n, ok := fs.nodes[vfs.Clean(p)]; ok {
		fn(n)
	}
}

// Remove deletes p and, for folders, everything below it.
func (fs *FS) Remove(p string) {
	p = vfs.Clean(p)
	if p == "/" {
		return
	}
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.removeLocked(p)
	if parent, ok := fs.nodes[path.Dir(p)]; ok {
		delete(parent.children, path.Base(p))
	}
}

func (fs *FS) removeLocked(p string) {
	n, ok := fs.nodes[p]
	if !ok {
		return
	}
	for name := range n.children {
		fs.removeLocked(vfs.Join(p, name))
	}
	delete(fs.nodes, p)
}

type file struct {
	fs   *FS
	path string
}

func (f *file) get() (*node, bool) {
	f.fs.mu.RLock()
	defer f.fs.mu.RUnlock()
	n, ok := f.fs.nodes[f.path]
	return n, ok
}

func (f *file) Path() string { return f.path }

func (f *file) Name() string {
	if f.path == "/" {
		return ""
	}
	return path.Base(f.path)
}

func (f *file) Exists() bool {
	_, ok := f.get()
	return ok
}

func (f *file) IsFolder() bool {
	n, ok := f.get()
	return ok && n.folder
}

func (f *file) Children() ([]vfs.File, error) {
	f.fs.mu.RLock()
	defer f.fs.mu.RUnlock()
	n, ok := f.fs.nodes[f.path]
	if !ok {
		return nil, fmt.Errorf("memfs: %s: not found", f.path)
	}
	if !n.folder {
		return nil, fmt.Errorf("memfs: %s: not a folder", f.path)
	}
	names := make([]string, 0, len(n.children))
	for name := range n.children {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([]vfs.File, 0, len(names))
	for _, name := range names {
		out = append(out, &file{fs: f.fs, path: vfs.Join(f.path, name)})
	}
	return out, nil
}

func (f *file) Content() (io.ReadCloser, error) {
	n, ok := f.get()
	switch {
	case !ok:
		return nil, fmt.Errorf("memfs: %s: not found", f.path)
	case n.folder:
		return nil, fmt.Errorf("memfs: %s: is a folder", f.path)
	case n.denied:
		return nil, fmt.Errorf("memfs: %s: %w", f.path, vfs.ErrAccessDenied)
	case n.readErr != nil:
		return nil, n.readErr
	}
	f.fs.mu.RLock()
	data := n.data
	f.fs.mu.RUnlock()
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (f *file) MediaType() string {
	n, ok := f.get()
	if !ok || n.folder {
		return ""
	}
	f.fs.mu.RLock()
	defer f.fs.mu.RUnlock()
	if n.mediaType != "" {
		return n.mediaType
	}
	head := n.data
	if len(head) > 512 {
		head = head[:512]
	}
	return vfs.DetectMediaType(path.Base(f.path), head)
}
