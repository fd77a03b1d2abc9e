package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/vfs-search/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/vfs-search/pkg/config"
)

func writeTree(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for rel, content := range files {
		p := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0644))
	}
	return root
}

func TestIndexThenSearchFromPersistedIndex(t *testing.T) {
	root := writeTree(t, map[string]string{
		"docs/readme.md": "hello persisted world",
		"src/main.go":    "package main",
	})
	dataDir := filepath.Join(t.TempDir(), "index")

	require.NoError(t, newApp().Run([]string{"vfsindex", "--data-dir", dataDir, "index", "--root", root}))
	require.NoError(t, newApp().Run([]string{"vfsindex", "--data-dir", dataDir, "search", "--name", "*.go"}))

	cfg := config.Default()
	cfg.Index.DataDir = dataDir
	s, cleanup, err := newSearcher(context.Background(), cfg, searcherDeps{})
	require.NoError(t, err)
	defer cleanup()
	defer s.Close()
	require.NoError(t, s.Open())

	res, err := s.Search(context.Background(), executor.Expression{Text: "persisted"})
	require.NoError(t, err)
	assert.Equal(t, []string{"/docs/readme.md"}, res.Paths)
}

func TestSearchRequiresAClause(t *testing.T) {
	dataDir := filepath.Join(t.TempDir(), "index")
	err := newApp().Run([]string{"vfsindex", "--data-dir", dataDir, "search"})
	assert.ErrorContains(t, err, "usage")
}

func TestDirectoryFactoryBackends(t *testing.T) {
	for _, backend := range []string{config.BackendDisk, config.BackendMemory, config.BackendSQLite} {
		t.Run(backend, func(t *testing.T) {
			cfg := config.Default()
			cfg.Index.Backend = backend
			cfg.Index.DataDir = filepath.Join(t.TempDir(), "index")
			cfg.Index.SQLitePath = filepath.Join(t.TempDir(), "index.db")
			factory, cleanup, err := directoryFactory(context.Background(), cfg, nil)
			require.NoError(t, err)
			defer cleanup()
			dir, err := factory()
			require.NoError(t, err)
			require.NoError(t, dir.Write("probe", []byte("x")))
			require.NoError(t, dir.Close())
		})
	}

	cfg := config.Default()
	cfg.Index.Backend = "tape"
	_, _, err := directoryFactory(context.Background(), cfg, nil)
	assert.Error(t, err)
}

func TestContentFilters(t *testing.T) {
	cfg := config.Default()
	set, err := contentFilters(cfg)
	require.NoError(t, err)
	assert.Equal(t, 1, set.Len())

	cfg.Index.ExcludeContent = []string{"**/*.min.js"}
	set, err = contentFilters(cfg)
	require.NoError(t, err)
	assert.Equal(t, 2, set.Len())

	cfg.Index.ExcludeContent = []string{"[unclosed"}
	_, err = contentFilters(cfg)
	assert.Error(t, err)
}

func TestLoadtestAgainstHandler(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.URL.Query().Get("path") == "/cmd" {
			w.WriteHeader(http.StatusRequestEntityTooLarge)
			return
		}
		_, _ = w.Write([]byte(`{"paths":[]}`))
	}))
	defer srv.Close()

	err := newApp().Run([]string{"vfsindex", "--backend", "memory", "loadtest",
		"--url", srv.URL, "--concurrency", "2", "--duration", "100ms"})
	require.NoError(t, err)
	assert.Positive(t, hits.Load())
}

func TestPercentile(t *testing.T) {
	lat := []time.Duration{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	assert.Equal(t, time.Duration(5), percentile(lat, 50))
	assert.Equal(t, time.Duration(10), percentile(lat, 99))
	assert.Equal(t, time.Duration(1), percentile(lat, 0))
}
