// Package vfsindex is the entry point of the search index: it opens and
// closes the index, walks a virtual file tree into it, applies incremental
// changes and answers queries.
package vfsindex

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/vfs-search/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/vfs-search/internal/indexer/filter"
	"github.com/Adithya-Monish-Kumar-K/vfs-search/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/vfs-search/internal/indexer/walker"
	"github.com/Adithya-Monish-Kumar-K/vfs-search/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/vfs-search/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/vfs-search/internal/vfs"
	apperrors "github.com/Adithya-Monish-Kumar-K/vfs-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/vfs-search/pkg/metrics"
)

type State int32

const (
	StateUninitialized State = iota
	StateOpen
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateOpen:
		return "open"
	default:
		return "closed"
	}
}

type Options struct {
	Directory              indexer.DirectoryFactory
	RAMBufferBytes         int64
	MemoryLimitBytes       int64
	MaxSegmentsBeforeMerge int
	ResultLimit            int
	MaxContentBytes        int64
	// Filters decide content indexing; nil means the default media type
	// filter.
	Filters *filter.Set
	Cache   *cache.QueryCache
	Metrics *metrics.Metrics
	// OnClose runs once when the index closes, including a close forced by
	// resource exhaustion.
	OnClose func()
}

// IndexResult reports a finished tree walk to OnIndexed listeners.
type IndexResult struct {
	Root  string       `json:"root"`
	Stats walker.Stats `json:"stats"`
	Err   error        `json:"-"`
}

// Stats describes the searcher and its index.
type Stats struct {
	State         string        `json:"state"`
	Index         indexer.Stats `json:"index"`
	LiveSnapshots int           `json:"live_snapshots"`
	Filters       int           `json:"filters"`
}

// Searcher moves through Uninitialized, Open and Closed; Closed is final.
// Transitions are serialised on mu. Operations hold mu for reading, so a
// close waits for in-flight queries and single-file updates, but never for
// a background tree walk: the walk's next write fails once the store is
// closed.
type Searcher struct {
	mu        sync.RWMutex
	state     atomic.Int32
	released  bool
	opts      Options
	store     *indexer.Store
	snapshots *indexer.SnapshotManager
	walker    *walker.Walker
	exec      *executor.Executor
	filters   *filter.Set

	listenersMu sync.Mutex
	listeners   []func(IndexResult)

	logger *slog.Logger
}

func New(opts Options) *Searcher {
	s := &Searcher{
		opts:    opts,
		filters: opts.Filters,
		logger:  slog.Default().With("component", "vfs-searcher"),
	}
	if s.filters == nil {
		s.filters = filter.Default()
	}
	s.store = indexer.NewStore(indexer.Options{
		Directory:              opts.Directory,
		RAMBufferBytes:         opts.RAMBufferBytes,
		MemoryLimitBytes:       opts.MemoryLimitBytes,
		MaxSegmentsBeforeMerge: opts.MaxSegmentsBeforeMerge,
		OnClose:                s.storeClosed,
		OnCommit:               s.committed,
	})
	s.snapshots = indexer.NewSnapshotManager(s.store)
	s.walker = walker.New(&meteredStore{store: s.store, metrics: opts.Metrics}, s.filters, walker.Options{
		MaxContentBytes: opts.MaxContentBytes,
	})
	s.exec = executor.New(s.snapshots, opts.ResultLimit)
	return s
}

// storeClosed runs on the goroutine that closed the store, possibly while an
// operation holds mu for reading, so it must not take mu.
func (s *Searcher) storeClosed() {
	if State(s.state.Swap(int32(StateClosed))) != StateClosed {
		s.logger.Warn("index closed underneath the searcher")
	}
	if s.opts.OnClose != nil {
		s.opts.OnClose()
	}
}

func (s *Searcher) State() State {
	return State(s.state.Load())
}

// IsClosed lets callers skip queries against a closed index.
func (s *Searcher) IsClosed() bool {
	return s.State() == StateClosed
}

func (s *Searcher) checkOpen() error {
	switch s.State() {
	case StateOpen:
		return nil
	case StateClosed:
		return apperrors.ErrClosed
	default:
		return apperrors.ErrNotOpen
	}
}

// Open moves the searcher to Open without walking a tree, for an index that
// is already populated. Opening an open searcher is a no-op.
func (s *Searcher) Open() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.openLocked()
}

func (s *Searcher) openLocked() error {
	switch s.State() {
	case StateOpen:
		return nil
	case StateClosed:
		return apperrors.ErrClosed
	}
	if err := s.store.Open(); err != nil {
		return err
	}
	if !s.state.CompareAndSwap(int32(StateUninitialized), int32(StateOpen)) {
		return apperrors.ErrClosed
	}
	s.logger.Info("searcher opened")
	s.updateGauges()
	return nil
}

// Init opens the index and walks fs from its root before returning.
func (s *Searcher) Init(fs vfs.FileSystem) (walker.Stats, error) {
	if err := s.Open(); err != nil {
		return walker.Stats{}, err
	}
	return s.indexTree(fs.Root())
}

// Executor accepts background work or rejects it with errors.ErrRejected.
type Executor interface {
	Submit(task func()) error
}

// InitAsync opens the index synchronously, so queries work right away, and
// hands the tree walk to exec. If exec is shutting down the walk is skipped:
// the returned task reports Accepted() == false and the index stays empty
// until something else fills it.
func (s *Searcher) InitAsync(exec Executor, fs vfs.FileSystem) (*IndexTask, error) {
	if err := s.Open(); err != nil {
		return nil, err
	}
	task := newIndexTask()
	root := fs.Root()
	err := exec.Submit(func() {
		stats, err := s.indexTree(root)
		task.finish(stats, err)
	})
	if err != nil {
		task.reject()
		if errors.Is(err, apperrors.ErrRejected) {
			s.logger.Warn("executor shut down, full indexing deferred", "root", root.Path())
			return task, nil
		}
		return task, err
	}
	s.logger.Info("tree indexing submitted", "root", root.Path())
	return task, nil
}

func (s *Searcher) indexTree(root vfs.File) (walker.Stats, error) {
	if err := s.checkOpen(); err != nil {
		return walker.Stats{}, err
	}
	stats, err := s.walker.IndexTree(root)
	if m := s.opts.Metrics; m != nil {
		status := "ok"
		if err != nil {
			status = "error"
		}
		m.TreeWalksTotal.WithLabelValues(status).Inc()
		m.TreeWalkDuration.Observe(stats.Duration.Seconds())
	}
	if err != nil && errors.Is(err, apperrors.ErrClosed) {
		s.logger.Info("tree walk stopped, index closed", "root", root.Path(), "files", stats.Files)
	}
	s.notify(IndexResult{Root: root.Path(), Stats: stats, Err: err})
	return stats, err
}

// OnIndexed registers fn to run after every tree walk, successful or not.
func (s *Searcher) OnIndexed(fn func(IndexResult)) {
	s.listenersMu.Lock()
	defer s.listenersMu.Unlock()
	s.listeners = append(s.listeners, fn)
}

func (s *Searcher) notify(res IndexResult) {
	s.listenersMu.Lock()
	listeners := make([]func(IndexResult), len(s.listeners))
	copy(listeners, s.listeners)
	s.listenersMu.Unlock()
	for _, fn := range listeners {
		fn(res)
	}
}

func (s *Searcher) AddFilter(f filter.Filter) {
	s.filters.Add(f)
}

func (s *Searcher) RemoveFilter(f filter.Filter) bool {
	return s.filters.Remove(f)
}

// IndexFile indexes a created or modified file, or walks it when it is a
// folder. A file that no longer exists is ignored.
func (s *Searcher) IndexFile(f vfs.File) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkOpen(); err != nil {
		return err
	}
	return s.walker.IndexFile(f)
}

// RemoveFile drops path, or everything below it when isFolder is set.
func (s *Searcher) RemoveFile(path string, isFolder bool) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkOpen(); err != nil {
		return err
	}
	return s.walker.RemoveFile(path, isFolder)
}

// Search answers expr from a snapshot that reflects every write completed
// before the call.
func (s *Searcher) Search(ctx context.Context, expr executor.Expression) (*executor.Result, error) {
	start := time.Now()
	res, err := s.search(ctx, expr)
	if m := s.opts.Metrics; m != nil {
		m.SearchLatency.Observe(time.Since(start).Seconds())
		m.SearchQueriesTotal.WithLabelValues(resultLabel(err)).Inc()
		if err == nil {
			m.SearchResultsCount.Observe(float64(len(res.Paths)))
		}
	}
	return res, err
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return metrics.ResultOK
	case errors.Is(err, apperrors.ErrResultSetTooLarge):
		return metrics.ResultTooLarge
	case errors.Is(err, apperrors.ErrQuerySyntax):
		return metrics.ResultSyntaxError
	default:
		return metrics.ResultError
	}
}

func (s *Searcher) search(ctx context.Context, expr executor.Expression) (*executor.Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	compiled, err := executor.Compile(expr)
	if err != nil {
		return nil, err
	}
	if _, err := s.snapshots.MaybeRefresh(); err != nil {
		return nil, err
	}
	snap, err := s.snapshots.Acquire()
	if err != nil {
		return nil, err
	}
	defer s.snapshots.Release(snap)

	if s.opts.Cache == nil {
		return s.exec.Execute(ctx, snap, compiled)
	}
	key := cache.Key(snap.Epoch(), snap.Generation(), compiled, s.exec.Limit())
	res, hit, err := s.opts.Cache.GetOrCompute(ctx, key, func() (*executor.Result, error) {
		return s.exec.Execute(ctx, snap, compiled)
	})
	if m := s.opts.Metrics; m != nil && err == nil {
		if hit {
			m.CacheHitsTotal.Inc()
		} else {
			m.CacheMissesTotal.Inc()
		}
	}
	return res, err
}

// Commit makes all writes so far durable.
func (s *Searcher) Commit() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkOpen(); err != nil {
		return err
	}
	return s.store.Commit()
}

func (s *Searcher) committed(err error) {
	if m := s.opts.Metrics; m != nil {
		status := "ok"
		if err != nil {
			status = "error"
		}
		m.IndexCommitsTotal.WithLabelValues(status).Inc()
	}
	s.updateGauges()
}

// StartCommitLoop commits every interval until ctx ends or the index
// closes. The channel is closed once the loop has stopped.
func (s *Searcher) StartCommitLoop(ctx context.Context, interval time.Duration) <-chan struct{} {
	return s.store.StartCommitLoop(ctx, interval)
}

func (s *Searcher) Stats() Stats {
	return Stats{
		State:         s.State().String(),
		Index:         s.store.Stats(),
		LiveSnapshots: s.snapshots.Live(),
		Filters:       s.filters.Len(),
	}
}

func (s *Searcher) updateGauges() {
	m := s.opts.Metrics
	if m == nil {
		return
	}
	st := s.store.Stats()
	m.IndexedDocuments.Set(float64(st.Docs))
	m.LiveSnapshots.Set(float64(s.snapshots.Live()))
}

// Close commits and releases the index. Closing twice, or closing an index
// that already closed itself, is a no-op.
func (s *Searcher) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		return nil
	}
	s.released = true
	s.state.Store(int32(StateClosed))
	s.snapshots.Close()
	err := s.store.Close()
	s.updateGauges()
	s.logger.Info("searcher closed")
	return err
}

// meteredStore counts writes flowing from the walker into the store.
type meteredStore struct {
	store   *indexer.Store
	metrics *metrics.Metrics
}

func (m *meteredStore) Upsert(doc index.Document) error {
	err := m.store.Upsert(doc)
	if err == nil && m.metrics != nil {
		m.metrics.DocsIndexedTotal.Inc()
	}
	return err
}

func (m *meteredStore) Delete(path string, recursive bool) (int, error) {
	n, err := m.store.Delete(path, recursive)
	if m.metrics != nil {
		m.metrics.DocsDeletedTotal.Add(float64(n))
	}
	return n, err
}
