package directory

import (
	"fmt"
	"sort"
	"sync"

	apperrors "github.com/Adithya-Monish-Kumar-K/vfs-search/pkg/errors"
)

// Memory keeps index files in process memory. A positive limit caps the total
// number of bytes held; a write past it fails with ErrResourceExhausted.
type Memory struct {
	mu     sync.RWMutex
	files  map[string][]byte
	used   int64
	limit  int64
	closed bool
}

func NewMemory(limit int64) *Memory {
	return &Memory{
		files: make(map[string][]byte),
		limit: limit,
	}
}

func (d *Memory) List() ([]string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return nil, fmt.Errorf("memory directory closed")
	}
	names := make([]string, 0, len(d.files))
	for name := range d.files {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (d *Memory) Read(name string) ([]byte, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	data, ok := d.files[name]
	if !ok {
		return nil, fmt.Errorf("reading %s: %w", name, ErrNotFound)
	}
	return append([]byte(nil), data...), nil
}

func (d *Memory) Write(name string, data []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return fmt.Errorf("writing %s: memory directory closed", name)
	}
	used := d.used - int64(len(d.files[name])) + int64(len(data))
	if d.limit > 0 && used > d.limit {
		return fmt.Errorf("writing %s: %w: %d of %d bytes in use", name, apperrors.ErrResourceExhausted, d.used, d.limit)
	}
	d.files[name] = append([]byte(nil), data...)
	d.used = used
	return nil
}

func (d *Memory) Delete(name string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	data, ok := d.files[name]
	if !ok {
		return fmt.Errorf("deleting %s: %w", name, ErrNotFound)
	}
	delete(d.files, name)
	d.used -= int64(len(data))
	return nil
}

// Used reports the bytes currently held.
func (d *Memory) Used() int64 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.used
}

func (d *Memory) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}
