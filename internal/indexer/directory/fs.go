package directory

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// FS keeps every index file as a regular file under one OS directory.
type FS struct {
	dir string
}

func NewFS(dir string) (*FS, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating index data directory: %w", exhausted(err))
	}
	return &FS{dir: dir}, nil
}

func (d *FS) List() ([]string, error) {
	entries, err := os.ReadDir(d.dir)
	if err != nil {
		return nil, fmt.Errorf("reading data directory: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || strings.HasSuffix(entry.Name(), ".tmp") {
			continue
		}
		names = append(names, entry.Name())
	}
	return names, nil
}

func (d *FS) Read(name string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(d.dir, name))
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", name, err)
	}
	return data, nil
}

// Write writes to a .tmp file first, syncs it and renames it into place.
func (d *FS) Write(name string, data []byte) error {
	finalPath := filepath.Join(d.dir, name)
	tmpPath := finalPath + ".tmp"

	f, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("creating temp file for %s: %w", name, exhausted(err))
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("writing %s: %w", name, exhausted(err))
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("syncing %s: %w", name, exhausted(err))
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("closing %s: %w", name, exhausted(err))
	}
	if err := os.Rename(tmpPath, finalPath); err != nil {
		return fmt.Errorf("renaming %s: %w", name, err)
	}
	return nil
}

func (d *FS) Delete(name string) error {
	if err := os.Remove(filepath.Join(d.dir, name)); err != nil {
		return fmt.Errorf("deleting %s: %w", name, err)
	}
	return nil
}

func (d *FS) Close() error {
	return nil
}
