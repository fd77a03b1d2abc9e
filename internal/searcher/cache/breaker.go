package cache

import (
	"context"
	"time"

	"github.com/Adithya-Monish-Kumar-K/vfs-search/pkg/resilience"
)

// breakerBackend stops calling a backend that keeps failing. While the
// circuit is open every Get misses and every Set is skipped, so queries run
// against the index at full speed instead of waiting on a dead cache.
type breakerBackend struct {
	backend Backend
	breaker *resilience.CircuitBreaker
}

// WithBreaker guards backend with cb.
func WithBreaker(backend Backend, cb *resilience.CircuitBreaker) Backend {
	return &breakerBackend{backend: backend, breaker: cb}
}

func (b *breakerBackend) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var (
		data  []byte
		found bool
	)
	err := b.breaker.Execute(func() error {
		var err error
		data, found, err = b.backend.Get(ctx, key)
		return err
	})
	return data, found, err
}

func (b *breakerBackend) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return b.breaker.Execute(func() error {
		return b.backend.Set(ctx, key, value, ttl)
	})
}

// DeleteByPattern bypasses the breaker: an explicit invalidation should
// reach the backend or report why it could not.
func (b *breakerBackend) DeleteByPattern(ctx context.Context, pattern string) (int64, error) {
	return b.backend.DeleteByPattern(ctx, pattern)
}
