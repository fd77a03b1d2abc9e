package localfs

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/vfs-search/internal/vfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, rel, content string) {
	t.Helper()
	p := filepath.Join(dir, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
}

func TestTreeNavigation(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a/b/notes.txt", "hello world")
	writeFile(t, dir, "readme.md", "# title")

	fsys, err := New(dir)
	require.NoError(t, err)

	root := fsys.Root()
	assert.True(t, root.IsFolder())
	children, err := root.Children()
	require.NoError(t, err)
	paths := make([]string, 0, len(children))
	for _, c := range children {
		paths = append(paths, c.Path())
	}
	assert.ElementsMatch(t, []string{"/a", "/readme.md"}, paths)

	f, err := fsys.Lookup("a/b/notes.txt")
	require.NoError(t, err)
	assert.Equal(t, "/a/b/notes.txt", f.Path())
	assert.Equal(t, "notes.txt", f.Name())
	assert.True(t, f.Exists())
	assert.False(t, f.IsFolder())
	assert.Equal(t, "text/plain", f.MediaType())

	r, err := f.Content()
	require.NoError(t, err)
	defer r.Close()
	data, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(data))

	missing, err := fsys.Lookup("/nope")
	require.NoError(t, err)
	assert.False(t, missing.Exists())
}

func TestVirtualPathOutsideRoot(t *testing.T) {
	dir := t.TempDir()
	fsys, err := New(dir)
	require.NoError(t, err)
	_, err = fsys.VirtualPath(filepath.Dir(dir))
	assert.Error(t, err)

	vp, err := fsys.VirtualPath(filepath.Join(dir, "x", "y"))
	require.NoError(t, err)
	assert.Equal(t, "/x/y", vp)
}

func TestWatcherReportsChanges(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "sub/old.txt", "old")
	fsys, err := New(dir)
	require.NoError(t, err)
	w, err := NewWatcher(fsys)
	require.NoError(t, err)

	changes := make(chan vfs.Change, 64)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = w.Run(ctx, func(c vfs.Change) { changes <- c })
	}()
	t.Cleanup(func() {
		cancel()
		<-done
		w.Close()
	})

	writeFile(t, dir, "sub/new.txt", "new")
	require.NoError(t, os.RemoveAll(filepath.Join(dir, "sub")))

	var sawCreate, sawFolderRemove bool
	deadline := time.After(5 * time.Second)
	for !(sawCreate && sawFolderRemove) {
		select {
		case c := <-changes:
			if c.Path == "/sub/new.txt" && c.Kind == vfs.ChangeCreated {
				sawCreate = true
			}
			if c.Path == "/sub" && c.Kind == vfs.ChangeRemoved && c.Folder {
				sawFolderRemove = true
			}
		case <-deadline:
			t.Fatalf("timed out: create=%v folderRemove=%v", sawCreate, sawFolderRemove)
		}
	}
}
