// Package vfs is the contract between the search index and the virtual file
// tree it indexes. The tree is owned elsewhere; the index only walks it,
// reads file content and reacts to change notifications.
package vfs

import (
	"io"
	"mime"
	"net/http"
	"path"
	"strings"

	apperrors "github.com/Adithya-Monish-Kumar-K/vfs-search/pkg/errors"
)

// ErrAccessDenied is returned by File.Content when the caller may not read
// the file body.
var ErrAccessDenied = apperrors.ErrAccessDenied

// File is one node of a virtual file tree. Paths are absolute and slash
// separated, "/" being the root.
type File interface {
	Path() string
	Name() string
	Exists() bool
	IsFolder() bool
	// Children lists the direct children of a folder.
	Children() ([]File, error)
	// Content opens the body of a file. It may fail with ErrAccessDenied.
	Content() (io.ReadCloser, error)
	MediaType() string
}

// FileSystem exposes the root of a tree and lookup by path.
type FileSystem interface {
	Root() File
	// Lookup returns the file at p. A file that does not exist is returned
	// with Exists() == false rather than as an error.
	Lookup(p string) (File, error)
}

// Join appends name to a folder path.
func Join(parent, name string) string {
	if parent == "/" || parent == "" {
		return "/" + name
	}
	return parent + "/" + name
}

// Clean normalises p into the absolute slash form used as index key.
func Clean(p string) string {
	if p == "" {
		return "/"
	}
	return path.Clean("/" + strings.TrimPrefix(p, "/"))
}

// DetectMediaType resolves a media type from the file name, falling back to
// sniffing head when the extension is unknown.
func DetectMediaType(name string, head []byte) string {
	if ext := path.Ext(name); ext != "" {
		if mt := mime.TypeByExtension(ext); mt != "" {
			return stripParams(mt)
		}
	}
	if len(head) == 0 {
		return "text/plain"
	}
	return stripParams(http.DetectContentType(head))
}

func stripParams(mt string) string {
	if i := strings.IndexByte(mt, ';'); i >= 0 {
		mt = mt[:i]
	}
	return strings.TrimSpace(strings.ToLower(mt))
}

// ChangeKind classifies a change notification.
type ChangeKind string

const (
	ChangeCreated  ChangeKind = "created"
	ChangeModified ChangeKind = "modified"
	ChangeRemoved  ChangeKind = "removed"
)

// Change is a notification that the node at Path was created, modified or
// removed. Folder tells whether the node is (or was) a folder.
type Change struct {
	Path   string     `json:"path"`
	Kind   ChangeKind `json:"kind"`
	Folder bool       `json:"folder"`
}
