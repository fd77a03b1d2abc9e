package indexer

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/Adithya-Monish-Kumar-K/vfs-search/internal/indexer/index"
	apperrors "github.com/Adithya-Monish-Kumar-K/vfs-search/pkg/errors"
)

// SegmentView is one segment as a snapshot sees it. Deleted is frozen for
// the snapshot's lifetime; the store copies it before marking more deletes.
type SegmentView struct {
	Segment *index.Segment
	Deleted *index.Bits
}

func (v SegmentView) Live(ord int32) bool {
	return !v.Deleted.Test(int(ord))
}

// Snapshot is an immutable point-in-time view of the index. Holders must
// Release it through the manager that handed it out.
type Snapshot struct {
	epoch       string
	generation  uint64
	segments    []SegmentView
	numDocs     int
	totalLength int64
	refs        atomic.Int32
}

func newSnapshot(epoch string, gen uint64, views []SegmentView) *Snapshot {
	s := &Snapshot{epoch: epoch, generation: gen, segments: views}
	for _, v := range views {
		deleted := v.Deleted.Count()
		s.numDocs += v.Segment.Len() - deleted
		if deleted == 0 {
			s.totalLength += v.Segment.TotalLength()
			continue
		}
		for ord, d := range v.Segment.Docs() {
			if !v.Deleted.Test(ord) {
				s.totalLength += int64(d.Length)
			}
		}
	}
	return s
}

// Generation is the store write generation the snapshot reflects. It only
// orders snapshots of one Epoch.
func (s *Snapshot) Generation() uint64 { return s.generation }

// Epoch identifies the store opening the snapshot was cut from.
func (s *Snapshot) Epoch() string { return s.epoch }

func (s *Snapshot) Segments() []SegmentView { return s.segments }

// NumDocs counts live documents.
func (s *Snapshot) NumDocs() int { return s.numDocs }

func (s *Snapshot) AvgDocLength() float64 {
	if s.numDocs == 0 {
		return 0
	}
	return float64(s.totalLength) / float64(s.numDocs)
}

// DocFreq counts live documents containing term.
func (s *Snapshot) DocFreq(term string) int {
	n := 0
	for _, v := range s.segments {
		for _, p := range v.Segment.Postings(term) {
			if v.Live(p.Doc) {
				n++
			}
		}
	}
	return n
}

// SnapshotManager hands out the current snapshot and replaces it after
// writes. The manager holds one reference on the current snapshot; a
// replaced snapshot is reclaimed once its last holder releases it.
type SnapshotManager struct {
	store     *Store
	refreshMu sync.Mutex
	mu        sync.Mutex
	current   *Snapshot
	live      atomic.Int64
	logger    *slog.Logger
}

func NewSnapshotManager(store *Store) *SnapshotManager {
	return &SnapshotManager{
		store:  store,
		logger: slog.Default().With("component", "snapshot-manager"),
	}
}

// Acquire returns the current snapshot with one reference taken. The first
// call after open cuts the snapshot synchronously.
func (m *SnapshotManager) Acquire() (*Snapshot, error) {
	if m.store.IsClosed() {
		return nil, apperrors.ErrClosed
	}
	if snap := m.tryAcquire(); snap != nil {
		return snap, nil
	}
	if _, err := m.MaybeRefresh(); err != nil {
		return nil, err
	}
	if snap := m.tryAcquire(); snap != nil {
		return snap, nil
	}
	return nil, apperrors.ErrClosed
}

func (m *SnapshotManager) tryAcquire() *Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return nil
	}
	m.current.refs.Add(1)
	return m.current
}

// MaybeRefresh replaces the current snapshot when the store has changed
// since it was cut. Concurrent callers are serialised; it reports whether a
// new snapshot was installed.
func (m *SnapshotManager) MaybeRefresh() (bool, error) {
	m.refreshMu.Lock()
	defer m.refreshMu.Unlock()

	m.mu.Lock()
	cur := m.current
	m.mu.Unlock()

	var since uint64
	if cur != nil {
		since = cur.generation
	}
	snap, err := m.store.snapshot(cur != nil, since)
	if err != nil || snap == nil {
		return false, err
	}
	snap.refs.Store(1)
	m.live.Add(1)

	m.mu.Lock()
	old := m.current
	m.current = snap
	m.mu.Unlock()
	if old != nil {
		m.Release(old)
	}
	m.logger.Debug("snapshot refreshed", "generation", snap.generation, "docs", snap.numDocs)
	return true, nil
}

// Release drops one reference. Releasing more often than acquiring panics.
func (m *SnapshotManager) Release(s *Snapshot) {
	switch n := s.refs.Add(-1); {
	case n == 0:
		s.segments = nil
		m.live.Add(-1)
	case n < 0:
		panic("indexer: snapshot released more often than acquired")
	}
}

// Live counts snapshots not yet reclaimed, the current one included.
func (m *SnapshotManager) Live() int {
	return int(m.live.Load())
}

// Close drops the manager's reference on the current snapshot. Snapshots
// still held stay valid until released.
func (m *SnapshotManager) Close() {
	m.refreshMu.Lock()
	defer m.refreshMu.Unlock()
	m.mu.Lock()
	old := m.current
	m.current = nil
	m.mu.Unlock()
	if old != nil {
		m.Release(old)
	}
}
