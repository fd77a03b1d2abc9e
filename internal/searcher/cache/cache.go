// Package cache keeps query results keyed by the compiled query and the
// store epoch and generation of the snapshot they were computed on, so a
// cached answer is only ever served for the exact index state that produced it.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/sync/singleflight"

	"github.com/Adithya-Monish-Kumar-K/vfs-search/internal/searcher/executor"
)

const keyPrefix = "vfs-search:"

// Backend stores serialized results. pkg/redis.Client implements it.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	DeleteByPattern(ctx context.Context, pattern string) (int64, error)
}

type QueryCache struct {
	backend Backend
	ttl     time.Duration
	group   singleflight.Group
	logger  *slog.Logger
	hits    atomic.Int64
	misses  atomic.Int64
}

func New(backend Backend, ttl time.Duration) *QueryCache {
	return &QueryCache{
		backend: backend,
		ttl:     ttl,
		logger:  slog.Default().With("component", "query-cache"),
	}
}

// Key derives the cache key of c run with limit on the snapshot at
// generation gen of store opening epoch. Generations restart with every
// opening, so gen alone does not identify an index state.
func Key(epoch string, gen uint64, c *executor.Compiled, limit int) string {
	h := xxhash.New()
	h.WriteString(c.Key())
	h.WriteString("\x00")
	h.WriteString(strconv.Itoa(limit))
	return fmt.Sprintf("%s%s:%d:%016x", keyPrefix, epoch, gen, h.Sum64())
}

func (c *QueryCache) get(ctx context.Context, key string) (*executor.Result, bool) {
	data, found, err := c.backend.Get(ctx, key)
	if err != nil {
		c.logger.Error("cache get failed", "key", key, "error", err)
		return nil, false
	}
	if !found {
		return nil, false
	}
	var result executor.Result
	if err := json.Unmarshal(data, &result); err != nil {
		c.logger.Error("cache unmarshal failed", "key", key, "error", err)
		return nil, false
	}
	return &result, true
}

func (c *QueryCache) set(ctx context.Context, key string, result *executor.Result) {
	data, err := json.Marshal(result)
	if err != nil {
		c.logger.Error("cache marshal failed", "key", key, "error", err)
		return
	}
	if err := c.backend.Set(ctx, key, data, c.ttl); err != nil {
		c.logger.Error("cache set failed", "key", key, "error", err)
	}
}

// GetOrCompute serves key from the backend or runs compute once for all
// concurrent callers asking for the same key. Errors are returned to every
// waiting caller and never stored. The bool reports a cache hit.
func (c *QueryCache) GetOrCompute(
	ctx context.Context,
	key string,
	compute func() (*executor.Result, error),
) (*executor.Result, bool, error) {
	if result, ok := c.get(ctx, key); ok {
		c.hits.Add(1)
		c.logger.Debug("cache hit", "key", key)
		return result, true, nil
	}
	c.misses.Add(1)
	val, err, _ := c.group.Do(key, func() (interface{}, error) {
		result, err := compute()
		if err != nil {
			return nil, err
		}
		c.set(ctx, key, result)
		return result, nil
	})
	if err != nil {
		return nil, false, err
	}
	return val.(*executor.Result), false, nil
}

// Invalidate drops every cached result.
func (c *QueryCache) Invalidate(ctx context.Context) error {
	deleted, err := c.backend.DeleteByPattern(ctx, keyPrefix+"*")
	if err != nil {
		return fmt.Errorf("invalidating cache: %w", err)
	}
	c.logger.Info("cache invalidated", "keys_deleted", deleted)
	return nil
}

func (c *QueryCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}
