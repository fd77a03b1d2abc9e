package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Adithya-Monish-Kumar-K/vfs-search/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/vfs-search/internal/indexer/directory"
	"github.com/Adithya-Monish-Kumar-K/vfs-search/internal/indexer/filter"
	"github.com/Adithya-Monish-Kumar-K/vfs-search/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/vfs-search/internal/vfsindex"
	"github.com/Adithya-Monish-Kumar-K/vfs-search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/vfs-search/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/vfs-search/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/vfs-search/pkg/postgres"
	"github.com/Adithya-Monish-Kumar-K/vfs-search/pkg/resilience"
)

var connectBackoff = resilience.Backoff{
	MaxAttempts:    5,
	InitialDelay:   500 * time.Millisecond,
	MaxDelay:       5 * time.Second,
	JitterFraction: 0.1,
}

// directoryFactory picks the backing store named by cfg.Index.Backend. The
// returned cleanup releases resources the directory does not own. A
// non-nil checker gets a probe for network backends.
func directoryFactory(ctx context.Context, cfg *config.Config, checker *health.Checker) (indexer.DirectoryFactory, func(), error) {
	noop := func() {}
	switch cfg.Index.Backend {
	case config.BackendDisk:
		return func() (directory.Directory, error) { return directory.NewFS(cfg.Index.DataDir) }, noop, nil
	case config.BackendMemory:
		return func() (directory.Directory, error) { return directory.NewMemory(0), nil }, noop, nil
	case config.BackendSQLite:
		return func() (directory.Directory, error) {
			return directory.OpenSQLite(cfg.Index.SQLitePath)
		}, noop, nil
	case config.BackendPostgres:
		var pg *postgres.Client
		err := resilience.Retry(ctx, "postgres connect", connectBackoff, func(ctx context.Context) error {
			var err error
			pg, err = postgres.New(ctx, cfg.Postgres)
			return err
		})
		if err != nil {
			return nil, nil, err
		}
		if checker != nil {
			checker.Register("postgres", health.Ping(pg.Ping, health.StatusDown))
		}
		factory := func() (directory.Directory, error) {
			return directory.NewSQL(pg.DB, directory.Postgres)
		}
		return factory, func() { pg.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown index backend %q", cfg.Index.Backend)
	}
}

func contentFilters(cfg *config.Config) (*filter.Set, error) {
	set := filter.Default()
	if len(cfg.Index.ExcludeContent) > 0 {
		g, err := filter.NewGlob(cfg.Index.ExcludeContent...)
		if err != nil {
			return nil, fmt.Errorf("index.excludeContent: %w", err)
		}
		set.Add(g)
	}
	return set, nil
}

type searcherDeps struct {
	cache   *cache.QueryCache
	metrics *metrics.Metrics
	checker *health.Checker
	onClose func()
}

// newSearcher builds an unopened searcher from cfg. Close the searcher
// before calling cleanup.
func newSearcher(ctx context.Context, cfg *config.Config, deps searcherDeps) (*vfsindex.Searcher, func(), error) {
	dir, cleanup, err := directoryFactory(ctx, cfg, deps.checker)
	if err != nil {
		return nil, nil, err
	}
	filters, err := contentFilters(cfg)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	if deps.metrics == nil {
		deps.metrics = metrics.New(prometheus.NewRegistry())
	}
	s := vfsindex.New(vfsindex.Options{
		Directory:              dir,
		RAMBufferBytes:         cfg.Index.RAMBufferBytes,
		MemoryLimitBytes:       cfg.Index.MemoryLimitBytes,
		MaxSegmentsBeforeMerge: cfg.Index.MaxSegmentsBeforeMerge,
		ResultLimit:            cfg.Index.ResultLimit,
		MaxContentBytes:        cfg.Index.MaxContentBytes,
		Filters:                filters,
		Cache:                  deps.cache,
		Metrics:                deps.metrics,
		OnClose:                deps.onClose,
	})
	slog.Info("searcher configured",
		"backend", cfg.Index.Backend,
		"result_limit", cfg.Index.ResultLimit,
		"filters", filters.Len(),
	)
	return s, cleanup, nil
}
