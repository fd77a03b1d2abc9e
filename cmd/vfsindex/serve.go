package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/vfs-search/internal/changes"
	"github.com/Adithya-Monish-Kumar-K/vfs-search/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/vfs-search/internal/searcher/handler"
	"github.com/Adithya-Monish-Kumar-K/vfs-search/internal/vfs/localfs"
	"github.com/Adithya-Monish-Kumar-K/vfs-search/internal/vfsindex"
	"github.com/Adithya-Monish-Kumar-K/vfs-search/internal/worker"
	apperrors "github.com/Adithya-Monish-Kumar-K/vfs-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/vfs-search/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/vfs-search/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/vfs-search/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/vfs-search/pkg/middleware"
	pkgredis "github.com/Adithya-Monish-Kumar-K/vfs-search/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/vfs-search/pkg/resilience"
)

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Index a directory in the background, follow its changes and answer queries over HTTP",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "root",
				Aliases:  []string{"r"},
				Usage:    "Directory to index",
				Required: true,
			},
			&cli.IntFlag{
				Name:  "port",
				Usage: "HTTP port (overrides config)",
			},
		},
		Action: runServe,
	}
}

func runServe(c *cli.Context) error {
	cfg := configFrom(c)
	if c.IsSet("port") {
		cfg.Server.Port = c.Int("port")
	}
	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	fs, err := localfs.New(c.String("root"))
	if err != nil {
		return err
	}
	slog.Info("starting vfs search service", "root", fs.Dir(), "port", cfg.Server.Port, "backend", cfg.Index.Backend)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)
	checker := health.NewChecker()

	var queryCache *cache.QueryCache
	if cfg.Redis.Enabled {
		var redisClient *pkgredis.Client
		err := resilience.Retry(ctx, "redis connect", connectBackoff, func(ctx context.Context) error {
			var err error
			redisClient, err = pkgredis.NewClient(ctx, cfg.Redis)
			return err
		})
		if err != nil {
			slog.Warn("redis unavailable, search caching disabled", "error", err)
		} else {
			defer redisClient.Close()
			breaker := resilience.NewCircuitBreaker("redis", resilience.BreakerConfig{})
			queryCache = cache.New(cache.WithBreaker(redisClient, breaker), cfg.Redis.CacheTTL)
			checker.Register("redis", health.Ping(redisClient.Ping, health.StatusDegraded))
			slog.Info("search cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.CacheTTL)
		}
	}

	s, cleanup, err := newSearcher(ctx, cfg, searcherDeps{
		cache:   queryCache,
		metrics: m,
		checker: checker,
		onClose: func() {
			slog.Error("index closed, shutting down")
			stop()
		},
	})
	if err != nil {
		return err
	}
	defer cleanup()

	pool := worker.NewPool(cfg.Index.Workers, cfg.Index.Workers*4)
	defer pool.Shutdown()
	defer s.Close()

	s.OnIndexed(func(res vfsindex.IndexResult) {
		if res.Err != nil {
			slog.Error("tree walk failed", "root", res.Root, "files", res.Stats.Files, "error", res.Err)
		}
	})

	var publisher *changes.Publisher
	if len(cfg.Kafka.Brokers) > 0 {
		producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.IndexComplete)
		defer producer.Close()
		publisher = changes.NewPublisher(producer, 100, 5*time.Second)
		publisher.Start(ctx)
		s.OnIndexed(publisher.Track)
		slog.Info("index completion events enabled", "topic", cfg.Kafka.Topics.IndexComplete)
	}

	task, err := s.InitAsync(pool, fs)
	if err != nil {
		return err
	}
	checker.Register("index", health.Ping(func(context.Context) error {
		if s.IsClosed() {
			return apperrors.ErrClosed
		}
		return nil
	}, health.StatusDown))
	checker.Register("initial_walk", func(context.Context) health.ComponentHealth {
		if !task.Accepted() {
			return health.ComponentHealth{Status: health.StatusDegraded, Message: "deferred"}
		}
		select {
		case <-task.Done():
			return health.ComponentHealth{Status: health.StatusUp}
		default:
			return health.ComponentHealth{Status: health.StatusDegraded, Message: "in progress"}
		}
	})

	applier := changes.NewApplier(s, fs)
	g, gctx := errgroup.WithContext(ctx)

	if cfg.Watch.Enabled {
		watcher, err := localfs.NewWatcher(fs)
		if err != nil {
			return fmt.Errorf("starting watcher: %w", err)
		}
		defer watcher.Close()
		g.Go(func() error { return watcher.Run(gctx, applier.Handle) })
	}
	if len(cfg.Kafka.Brokers) > 0 {
		consumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.FileChanges, changes.HandleMessage(applier))
		source := changes.NewKafkaSource(consumer)
		g.Go(func() error { return source.Run(gctx) })
		slog.Info("consuming file changes", "topic", cfg.Kafka.Topics.FileChanges, "group", cfg.Kafka.ConsumerGroup)
	}
	commitDone := s.StartCommitLoop(gctx, cfg.Index.CommitInterval)

	mux := http.NewServeMux()
	handler.New(s, queryCache).Routes(mux)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())
	if cfg.Metrics.Enabled {
		if cfg.Metrics.Port == 0 {
			mux.Handle("GET /metrics", metrics.HandlerFor(reg))
		} else {
			shutdownMetrics := metrics.StartServer(cfg.Metrics.Port, reg)
			defer shutdownMetrics(context.Background())
		}
	}

	var chain http.Handler = mux
	chain = middleware.Timeout(cfg.Server.WriteTimeout)(chain)
	chain = middleware.Metrics(m)(chain)
	chain = middleware.RequestID(chain)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      chain,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	g.Go(func() error {
		slog.Info("search service listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	stop()
	<-commitDone
	if publisher != nil {
		publisher.Close()
	}
	slog.Info("search service stopped")
	return err
}
