// Package directory abstracts where index files physically live. The store
// only ever reads, writes and deletes whole named blobs, so the same index can
// sit on a local disk, in memory, or in a SQL database.
package directory

import (
	"errors"
	"fmt"
	"io/fs"
	"syscall"

	apperrors "github.com/Adithya-Monish-Kumar-K/vfs-search/pkg/errors"
)

// ErrNotFound is returned by Read and Delete for unknown names.
var ErrNotFound = fs.ErrNotExist

// Directory is a flat namespace of index files. Write replaces a file
// atomically: readers see the old or the new content, never a mix.
type Directory interface {
	List() ([]string, error)
	Read(name string) ([]byte, error)
	Write(name string, data []byte) error
	Delete(name string) error
	Close() error
}

// exhausted maps out-of-space and out-of-memory conditions onto
// ErrResourceExhausted so the store can fail fast on them.
func exhausted(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, syscall.ENOSPC) || errors.Is(err, syscall.EDQUOT) || errors.Is(err, syscall.ENOMEM) {
		return fmt.Errorf("%w: %w", apperrors.ErrResourceExhausted, err)
	}
	return err
}
