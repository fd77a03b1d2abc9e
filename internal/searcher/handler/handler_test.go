package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/vfs-search/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/vfs-search/internal/vfsindex"
	apperrors "github.com/Adithya-Monish-Kumar-K/vfs-search/pkg/errors"
)

type fakeSearcher struct {
	result    *executor.Result
	err       error
	commitErr error
	last      executor.Expression
}

func (f *fakeSearcher) Search(_ context.Context, expr executor.Expression) (*executor.Result, error) {
	f.last = expr
	return f.result, f.err
}

func (f *fakeSearcher) Commit() error { return f.commitErr }

func (f *fakeSearcher) Stats() vfsindex.Stats {
	return vfsindex.Stats{State: "open", Filters: 1}
}

func serve(t *testing.T, h *Handler, method, target string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	mux := http.NewServeMux()
	h.Routes(mux)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return rec, body
}

func TestSearchReturnsPaths(t *testing.T) {
	fs := &fakeSearcher{result: &executor.Result{Paths: []string{"/a/x.txt"}, TotalHits: 1}}
	rec, body := serve(t, New(fs, nil), http.MethodGet, "/api/v1/search?path=/a&name=*.txt&text=hello")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, executor.Expression{Path: "/a", Name: "*.txt", Text: "hello"}, fs.last)
	assert.Equal(t, []any{"/a/x.txt"}, body["paths"])
	assert.EqualValues(t, 1, body["total_hits"])
}

func TestSearchEmptyResultIsArray(t *testing.T) {
	fs := &fakeSearcher{result: &executor.Result{}}
	rec, body := serve(t, New(fs, nil), http.MethodGet, "/api/v1/search?text=nothing")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []any{}, body["paths"])
}

func TestSearchErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		target string
		err    error
		status int
	}{
		{"no clauses", "/api/v1/search", nil, http.StatusBadRequest},
		{"syntax", "/api/v1/search?text=%22open", &apperrors.QuerySyntaxError{Query: `"open`, Pos: 0, Msg: "unterminated phrase"}, http.StatusBadRequest},
		{"closed", "/api/v1/search?text=a", apperrors.ErrClosed, http.StatusServiceUnavailable},
		{"storage", "/api/v1/search?text=a", apperrors.Storage("read", errors.New("disk gone")), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := &fakeSearcher{err: tt.err}
			rec, body := serve(t, New(fs, nil), http.MethodGet, tt.target)
			assert.Equal(t, tt.status, rec.Code)
			assert.NotEmpty(t, body["error"])
		})
	}
}

func TestSearchTooLargeCarriesCounts(t *testing.T) {
	fs := &fakeSearcher{err: &apperrors.ResultSetTooLargeError{Total: 1500, Limit: 1000}}
	rec, body := serve(t, New(fs, nil), http.MethodGet, "/api/v1/search?path=/")

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.EqualValues(t, 1500, body["total"])
	assert.EqualValues(t, 1000, body["limit"])
	assert.Contains(t, body["error"], "too many (1500)")
}

func TestCommitAndStats(t *testing.T) {
	fs := &fakeSearcher{}
	rec, body := serve(t, New(fs, nil), http.MethodPost, "/api/v1/commit")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "committed", body["status"])

	fs.commitErr = apperrors.ErrNotOpen
	rec, _ = serve(t, New(fs, nil), http.MethodPost, "/api/v1/commit")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec, body = serve(t, New(fs, nil), http.MethodGet, "/api/v1/stats")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "open", body["state"])
}

func TestCacheEndpointsWhenDisabled(t *testing.T) {
	h := New(&fakeSearcher{}, nil)
	rec, body := serve(t, h, http.MethodGet, "/api/v1/cache/stats")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "disabled", body["status"])

	rec, _ = serve(t, h, http.MethodDelete, "/api/v1/cache")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
