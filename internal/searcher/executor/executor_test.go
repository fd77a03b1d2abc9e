package executor

import (
	"context"
	"fmt"
	"path"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/vfs-search/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/vfs-search/internal/indexer/directory"
	"github.com/Adithya-Monish-Kumar-K/vfs-search/internal/indexer/index"
	apperrors "github.com/Adithya-Monish-Kumar-K/vfs-search/pkg/errors"
)

type fixture struct {
	store     *indexer.Store
	snapshots *indexer.SnapshotManager
	exec      *Executor
}

func newFixture(t *testing.T, limit int, docs map[string]string) *fixture {
	t.Helper()
	store := indexer.NewStore(indexer.Options{
		Directory: func() (directory.Directory, error) { return directory.NewMemory(0), nil },
	})
	require.NoError(t, store.Open())
	for p, text := range docs {
		require.NoError(t, store.Upsert(index.Document{Path: p, Name: path.Base(p), Text: text}))
	}
	snapshots := indexer.NewSnapshotManager(store)
	t.Cleanup(func() {
		snapshots.Close()
		store.Close()
	})
	return &fixture{store: store, snapshots: snapshots, exec: New(snapshots, limit)}
}

func (f *fixture) search(t *testing.T, expr Expression) []string {
	t.Helper()
	_, err := f.snapshots.MaybeRefresh()
	require.NoError(t, err)
	res, err := f.exec.Search(context.Background(), expr)
	require.NoError(t, err)
	return res.Paths
}

var corpus = map[string]string{
	"/proj/README.md":         "Hello world from the project",
	"/proj/src/main.go":       "package main func main hello",
	"/proj/src/util.go":       "package util quick brown fox",
	"/proj/src/util_test.go":  "package util brown quick fox",
	"/proj/docs/guide.txt":    "configuration guide configure the world",
	"/projects/other/a.txt":   "unrelated",
	"/proj/src/[weird]{1}.go": "odd name",
}

func TestPathPrefix(t *testing.T) {
	f := newFixture(t, 0, corpus)
	assert.ElementsMatch(t,
		[]string{"/proj/src/main.go", "/proj/src/util.go", "/proj/src/util_test.go", "/proj/src/[weird]{1}.go"},
		f.search(t, Expression{Path: "/proj/src/"}))
	assert.Equal(t, []string{"/proj/README.md"}, f.search(t, Expression{Path: "/proj/README.md"}))
	assert.Len(t, f.search(t, Expression{Path: "/proj"}), 7)
}

func TestNameWildcard(t *testing.T) {
	f := newFixture(t, 0, corpus)
	assert.ElementsMatch(t,
		[]string{"/proj/src/main.go", "/proj/src/util.go", "/proj/src/util_test.go", "/proj/src/[weird]{1}.go"},
		f.search(t, Expression{Name: "*.go"}))
	assert.Equal(t, []string{"/proj/src/util.go"}, f.search(t, Expression{Name: "u?il.go"}))
	assert.Equal(t, []string{"/proj/src/[weird]{1}.go"}, f.search(t, Expression{Name: "[weird]{1}.go"}))
	assert.Equal(t, []string{"/proj/src/[weird]{1}.go"}, f.search(t, Expression{Name: "[weird]*"}))
	// names are matched exactly, case included
	assert.Empty(t, f.search(t, Expression{Name: "readme.md"}))
}

func TestFreeText(t *testing.T) {
	f := newFixture(t, 0, corpus)
	assert.ElementsMatch(t,
		[]string{"/proj/README.md", "/proj/src/main.go"},
		f.search(t, Expression{Text: "HELLO"}))
	assert.Equal(t, []string{"/proj/src/util.go"}, f.search(t, Expression{Text: `"quick brown"`}))
	assert.ElementsMatch(t,
		[]string{"/proj/src/util.go", "/proj/src/util_test.go"},
		f.search(t, Expression{Text: "quick AND fox"}))
	assert.Equal(t, []string{"/proj/src/main.go"}, f.search(t, Expression{Text: "hello -world"}))
	assert.Equal(t, []string{"/proj/docs/guide.txt"}, f.search(t, Expression{Text: "config*"}))
	assert.Empty(t, f.search(t, Expression{Text: "-hello"}))
}

func TestClausesAreAnded(t *testing.T) {
	f := newFixture(t, 0, corpus)
	assert.Equal(t, []string{"/proj/src/util_test.go"},
		f.search(t, Expression{Path: "/proj/src", Name: "*_test.go", Text: "fox"}))
	assert.Empty(t, f.search(t, Expression{Path: "/projects", Text: "fox"}))
}

func TestRankingPrefersDenserMatches(t *testing.T) {
	f := newFixture(t, 0, map[string]string{
		"/a.txt": "apple banana cherry date elderberry fig grape apple",
		"/b.txt": "apple apple apple",
		"/c.txt": "banana",
	})
	res := f.search(t, Expression{Text: "apple"})
	assert.Equal(t, []string{"/b.txt", "/a.txt"}, res)
}

func TestResultCap(t *testing.T) {
	docs := make(map[string]string)
	for i := 0; i < 12; i++ {
		docs[fmt.Sprintf("/d/%02d.txt", i)] = "needle"
	}
	f := newFixture(t, 10, docs)
	_, err := f.snapshots.MaybeRefresh()
	require.NoError(t, err)

	_, err = f.exec.Search(context.Background(), Expression{Text: "needle"})
	require.Error(t, err)
	var tooLarge *apperrors.ResultSetTooLargeError
	require.ErrorAs(t, err, &tooLarge)
	assert.Equal(t, 12, tooLarge.Total)
	assert.Equal(t, 10, tooLarge.Limit)
	assert.ErrorIs(t, err, apperrors.ErrResultSetTooLarge)
	// the snapshot was released on the error path
	assert.Equal(t, 1, f.snapshots.Live())

	assert.Len(t, f.search(t, Expression{Path: "/d/0"}), 10)
}

func TestCompileErrors(t *testing.T) {
	_, err := Compile(Expression{})
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

	_, err = Compile(Expression{Text: `"unterminated`})
	assert.ErrorIs(t, err, apperrors.ErrQuerySyntax)

	a, err := Compile(Expression{Text: "Foo   bar"})
	require.NoError(t, err)
	b, err := Compile(Expression{Text: "foo bar"})
	require.NoError(t, err)
	assert.Equal(t, a.Key(), b.Key())
}

func TestDeletedDocumentsDisappear(t *testing.T) {
	f := newFixture(t, 0, corpus)
	assert.NotEmpty(t, f.search(t, Expression{Path: "/proj/src/main.go"}))
	_, err := f.store.Delete("/proj/src/main.go", false)
	require.NoError(t, err)
	assert.Empty(t, f.search(t, Expression{Path: "/proj/src/main.go"}))
	assert.Equal(t, []string{"/proj/README.md"}, f.search(t, Expression{Text: "hello"}))
}
