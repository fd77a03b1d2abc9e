package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/Adithya-Monish-Kumar-K/vfs-search/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/vfs-search/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/vfs-search/internal/vfsindex"
	apperrors "github.com/Adithya-Monish-Kumar-K/vfs-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/vfs-search/pkg/logger"
)

type Searcher interface {
	Search(ctx context.Context, expr executor.Expression) (*executor.Result, error)
	Commit() error
	Stats() vfsindex.Stats
}

type Handler struct {
	searcher Searcher
	cache    *cache.QueryCache
	logger   *slog.Logger
}

func New(searcher Searcher, queryCache *cache.QueryCache) *Handler {
	return &Handler{
		searcher: searcher,
		cache:    queryCache,
		logger:   slog.Default().With("component", "search-handler"),
	}
}

// Routes registers the search API on mux.
func (h *Handler) Routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/search", h.Search)
	mux.HandleFunc("GET /api/v1/stats", h.Stats)
	mux.HandleFunc("POST /api/v1/commit", h.Commit)
	mux.HandleFunc("GET /api/v1/cache/stats", h.CacheStats)
	mux.HandleFunc("DELETE /api/v1/cache", h.CacheInvalidate)
}

type searchResponse struct {
	Query     executor.Expression `json:"query"`
	Paths     []string            `json:"paths"`
	TotalHits int                 `json:"total_hits"`
	LatencyMs int64               `json:"latency_ms"`
}

func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	log := logger.FromContext(ctx)

	q := r.URL.Query()
	expr := executor.Expression{
		Path: q.Get("path"),
		Name: q.Get("name"),
		Text: q.Get("text"),
	}
	if expr.IsEmpty() {
		h.writeError(w, http.StatusBadRequest, "at least one of 'path', 'name' or 'text' is required")
		return
	}

	result, err := h.searcher.Search(ctx, expr)
	if err != nil {
		h.searchFailed(w, log, expr, err)
		return
	}

	latencyMs := time.Since(start).Milliseconds()
	log.Info("search completed",
		"query", expr.String(),
		"total_hits", result.TotalHits,
		"latency_ms", latencyMs,
	)
	paths := result.Paths
	if paths == nil {
		paths = []string{}
	}
	h.writeJSON(w, http.StatusOK, searchResponse{
		Query:     expr,
		Paths:     paths,
		TotalHits: result.TotalHits,
		LatencyMs: latencyMs,
	})
}

func (h *Handler) searchFailed(w http.ResponseWriter, log *slog.Logger, expr executor.Expression, err error) {
	status := apperrors.HTTPStatusCode(err)
	var tooLarge *apperrors.ResultSetTooLargeError
	if errors.As(err, &tooLarge) {
		log.Warn("search result set too large", "query", expr.String(), "total", tooLarge.Total, "limit", tooLarge.Limit)
		h.writeJSON(w, status, map[string]any{
			"error": tooLarge.Error(),
			"total": tooLarge.Total,
			"limit": tooLarge.Limit,
		})
		return
	}
	if status >= http.StatusInternalServerError {
		log.Error("search execution failed", "query", expr.String(), "error", err)
	}
	h.writeError(w, status, err.Error())
}

func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.searcher.Stats())
}

func (h *Handler) Commit(w http.ResponseWriter, r *http.Request) {
	if err := h.searcher.Commit(); err != nil {
		logger.FromContext(r.Context()).Error("commit failed", "error", err)
		h.writeError(w, apperrors.HTTPStatusCode(err), err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "committed"})
}

func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "disabled"})
		return
	}

	hits, misses := h.cache.Stats()
	total := hits + misses
	var hitRate float64
	if total > 0 {
		hitRate = float64(hits) / float64(total) * 100
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"hits":     hits,
		"misses":   misses,
		"total":    total,
		"hit_rate": fmt.Sprintf("%.1f%%", hitRate),
	})
}

func (h *Handler) CacheInvalidate(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeError(w, http.StatusServiceUnavailable, "caching is disabled")
		return
	}

	if err := h.cache.Invalidate(r.Context()); err != nil {
		h.logger.Error("cache invalidation failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, "cache invalidation failed")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]string{"status": "invalidated"})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
