// Package localfs exposes an OS directory as a vfs.FileSystem and watches it
// for changes with fsnotify.
package localfs

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"

	"github.com/Adithya-Monish-Kumar-K/vfs-search/internal/vfs"
)

// FS roots a virtual tree at an OS directory. Virtual path "/" maps to the
// root directory itself.
type FS struct {
	root string
}

func New(root string) (*FS, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving root %s: %w", root, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("stat root %s: %w", abs, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("root %s is not a directory", abs)
	}
	return &FS{root: abs}, nil
}

// Dir returns the absolute OS directory backing the tree.
func (f *FS) Dir() string { return f.root }

func (f *FS) Root() vfs.File {
	return &file{fs: f, path: "/"}
}

func (f *FS) Lookup(p string) (vfs.File, error) {
	return &file{fs: f, path: vfs.Clean(p)}, nil
}

// VirtualPath converts an OS path below the root into its virtual path.
func (f *FS) VirtualPath(osPath string) (string, error) {
	rel, err := filepath.Rel(f.root, osPath)
	if err != nil {
		return "", err
	}
	if rel == ".." || len(rel) > 2 && rel[:3] == ".."+string(filepath.Separator) {
		return "", fmt.Errorf("%s is outside %s", osPath, f.root)
	}
	return vfs.Clean(filepath.ToSlash(rel)), nil
}

func (f *FS) osPath(p string) string {
	return filepath.Join(f.root, filepath.FromSlash(p))
}

type file struct {
	fs   *FS
	path string
}

func (f *file) Path() string { return f.path }

func (f *file) Name() string {
	if f.path == "/" {
		return ""
	}
	return path.Base(f.path)
}

func (f *file) stat() (os.FileInfo, error) {
	return os.Stat(f.fs.osPath(f.path))
}

func (f *file) Exists() bool {
	_, err := f.stat()
	return err == nil
}

func (f *file) IsFolder() bool {
	info, err := f.stat()
	return err == nil && info.IsDir()
}

func (f *file) Children() ([]vfs.File, error) {
	entries, err := os.ReadDir(f.fs.osPath(f.path))
	if err != nil {
		return nil, mapErr(err)
	}
	out := make([]vfs.File, 0, len(entries))
	for _, e := range entries {
		out = append(out, &file{fs: f.fs, path: vfs.Join(f.path, e.Name())})
	}
	return out, nil
}

func (f *file) Content() (io.ReadCloser, error) {
	r, err := os.Open(f.fs.osPath(f.path))
	if err != nil {
		return nil, mapErr(err)
	}
	return r, nil
}

func (f *file) MediaType() string {
	r, err := os.Open(f.fs.osPath(f.path))
	if err != nil {
		return vfs.DetectMediaType(f.Name(), nil)
	}
	defer r.Close()
	head := make([]byte, 512)
	n, _ := io.ReadFull(r, head)
	return vfs.DetectMediaType(f.Name(), head[:n])
}

func mapErr(err error) error {
	if errors.Is(err, fs.ErrPermission) {
		return fmt.Errorf("%w: %v", vfs.ErrAccessDenied, err)
	}
	return err
}
