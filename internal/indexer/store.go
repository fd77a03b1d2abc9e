// Package indexer owns the persistent inverted index: the single-writer Store
// and the reference-counted snapshots queries run against.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/Adithya-Monish-Kumar-K/vfs-search/internal/indexer/directory"
	"github.com/Adithya-Monish-Kumar-K/vfs-search/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/vfs-search/internal/indexer/segment"
	apperrors "github.com/Adithya-Monish-Kumar-K/vfs-search/pkg/errors"
)

type storeState int32

const (
	stateUninitialized storeState = iota
	stateOpen
	stateClosed
)

func (s storeState) String() string {
	switch s {
	case stateUninitialized:
		return "uninitialized"
	case stateOpen:
		return "open"
	default:
		return "closed"
	}
}

// DirectoryFactory allocates the backing directory when the store opens.
type DirectoryFactory func() (directory.Directory, error)

type Options struct {
	Directory DirectoryFactory
	// RAMBufferBytes bounds the write buffer; a full buffer is frozen and
	// flushed to the directory.
	RAMBufferBytes int64
	// MemoryLimitBytes bounds the whole in-memory index. Crossing it is
	// treated as memory exhaustion. Zero disables the check.
	MemoryLimitBytes       int64
	MaxSegmentsBeforeMerge int
	// OnClose runs exactly once, after the store released its resources.
	OnClose func()
	// OnCommit observes the outcome of every Commit call.
	OnCommit func(err error)
}

type segmentState struct {
	seg       *index.Segment
	deleted   *index.Bits
	shared    bool
	persisted bool
	delFile   string
	delDirty  bool
}

func (st *segmentState) markDeleted(ord int32) {
	if st.shared {
		st.deleted = st.deleted.Clone()
		st.shared = false
	}
	if st.deleted.Set(int(ord)) {
		st.delDirty = true
	}
}

// location of the live document for a path; seg is nil while buffered.
type location struct {
	seg *segmentState
	ord int32
}

// Stats describes the writer-side state of the index.
type Stats struct {
	State       string `json:"state"`
	Docs        int    `json:"docs"`
	Buffered    int    `json:"buffered"`
	Segments    int    `json:"segments"`
	Deleted     int    `json:"deleted"`
	Generation  uint64 `json:"generation"`
	Commits     uint64 `json:"commits"`
	MemoryBytes int64  `json:"memory_bytes"`
}

// Store is the single writer of the index. Every mutation, commit, open and
// close is serialised under one mutex; readers never take it except to cut
// a new snapshot.
type Store struct {
	mu           sync.Mutex
	state        storeState
	closed       atomic.Bool
	epoch        string
	changeGen    atomic.Uint64
	opts         Options
	dir          directory.Directory
	buffer       *index.MemoryIndex
	bufDeleted   *index.Bits
	segments     []*segmentState
	docs         map[string]location
	commitGen    uint64
	committedGen uint64
	nextSeg      uint64
	closeOnce    sync.Once
	logger       *slog.Logger
}

func NewStore(opts Options) *Store {
	if opts.RAMBufferBytes <= 0 {
		opts.RAMBufferBytes = 16 << 20
	}
	if opts.MaxSegmentsBeforeMerge <= 0 {
		opts.MaxSegmentsBeforeMerge = 10
	}
	return &Store{
		opts:   opts,
		logger: slog.Default().With("component", "index-store"),
	}
}

func stateErr(st storeState) error {
	if st == stateClosed {
		return apperrors.ErrClosed
	}
	return apperrors.ErrNotOpen
}

// Open allocates the directory and loads the last commit, if any. Opening
// an open store is a no-op; a closed store cannot be reopened.
func (s *Store) Open() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case stateOpen:
		return nil
	case stateClosed:
		return apperrors.ErrClosed
	}
	if s.opts.Directory == nil {
		return apperrors.Storage("open", errors.New("no directory configured"))
	}
	dir, err := s.opts.Directory()
	if err != nil {
		return apperrors.Storage("open directory", err)
	}
	s.dir = dir
	s.buffer = index.NewMemoryIndex()
	s.bufDeleted = &index.Bits{}
	s.docs = make(map[string]location)
	if err := s.loadLocked(); err != nil {
		dir.Close()
		s.dir = nil
		return apperrors.Storage("load index", err)
	}
	// generations restart at zero on every open
	s.epoch = uuid.NewString()
	s.state = stateOpen
	s.logger.Info("index opened",
		"epoch", s.epoch,
		"segments", len(s.segments),
		"docs", len(s.docs),
		"generation", s.commitGen,
	)
	return nil
}

func (s *Store) loadLocked() error {
	data, err := s.dir.Read(segment.ManifestName)
	if errors.Is(err, directory.ErrNotFound) {
		s.removeUnreferencedLocked(&segment.Manifest{})
		return nil
	}
	if err != nil {
		return err
	}
	m, err := segment.DecodeManifest(data)
	if err != nil {
		return err
	}
	for _, entry := range m.Segments {
		raw, err := s.dir.Read(entry.Name)
		if err != nil {
			return err
		}
		seg, err := segment.Decode(entry.Name, raw)
		if err != nil {
			return err
		}
		st := &segmentState{seg: seg, deleted: &index.Bits{}, persisted: true, delFile: entry.Deletes}
		if entry.Deletes != "" {
			rawDel, err := s.dir.Read(entry.Deletes)
			if err != nil {
				return err
			}
			if st.deleted, err = segment.DecodeDeletes(rawDel); err != nil {
				return fmt.Errorf("%s: %w", entry.Deletes, err)
			}
		}
		s.segments = append(s.segments, st)
		for ord, d := range seg.Docs() {
			if !st.deleted.Test(ord) {
				s.docs[d.Path] = location{seg: st, ord: int32(ord)}
			}
		}
	}
	s.commitGen = m.Generation
	s.nextSeg = m.NextSegment
	s.removeUnreferencedLocked(m)
	return nil
}

// write runs fn under the writer lock. A resource-exhaustion failure closes
// the store before the error is returned.
func (s *Store) write(op string, fn func() error) error {
	s.mu.Lock()
	if s.state != stateOpen {
		st := s.state
		s.mu.Unlock()
		return stateErr(st)
	}
	err := fn()
	fatal := apperrors.IsFatal(err)
	if fatal {
		s.closeLocked()
	}
	s.mu.Unlock()
	if fatal {
		s.logger.Error("resource exhausted, index closed", "op", op, "error", err)
		s.notifyClosed()
	}
	return err
}

// Upsert replaces whatever is indexed under doc.Path with doc.
func (s *Store) Upsert(doc index.Document) error {
	return s.write("upsert", func() error {
		s.deleteExactLocked(doc.Path)
		ord := s.buffer.AddDocument(doc)
		s.docs[doc.Path] = location{ord: ord}
		s.changeGen.Add(1)
		s.logger.Debug("document buffered", "path", doc.Path, "buffered", s.buffer.DocCount())

		if limit := s.opts.MemoryLimitBytes; limit > 0 {
			if used := s.memoryLocked(); used > limit {
				return fmt.Errorf("indexing %s: %w: index holds %d bytes, limit %d",
					doc.Path, apperrors.ErrResourceExhausted, used, limit)
			}
		}
		if s.buffer.Size() >= s.opts.RAMBufferBytes {
			s.logger.Info("write buffer full, flushing",
				"size", s.buffer.Size(),
				"threshold", s.opts.RAMBufferBytes,
			)
			return s.flushLocked()
		}
		return nil
	})
}

// Delete removes the document at path. With recursive set it instead removes
// every document below the folder path, that is whose path starts with
// path + "/". It returns the number of documents removed.
func (s *Store) Delete(path string, recursive bool) (int, error) {
	removed := 0
	err := s.write("delete", func() error {
		if recursive {
			prefix := strings.TrimSuffix(path, "/") + "/"
			for p := range s.docs {
				if strings.HasPrefix(p, prefix) && s.deleteExactLocked(p) {
					removed++
				}
			}
		} else if s.deleteExactLocked(path) {
			removed = 1
		}
		if removed > 0 {
			s.changeGen.Add(1)
		}
		return nil
	})
	return removed, err
}

func (s *Store) deleteExactLocked(path string) bool {
	loc, ok := s.docs[path]
	if !ok {
		return false
	}
	if loc.seg == nil {
		s.bufDeleted.Set(int(loc.ord))
	} else {
		loc.seg.markDeleted(loc.ord)
	}
	delete(s.docs, path)
	return true
}

func (s *Store) memoryLocked() int64 {
	total := s.buffer.Size()
	for _, st := range s.segments {
		total += st.seg.Size()
	}
	return total
}

// freezeLocked turns the write buffer into an in-memory segment.
func (s *Store) freezeLocked() *segmentState {
	if s.buffer.DocCount() == 0 {
		return nil
	}
	seg := s.buffer.Freeze(segment.SegmentName(s.nextSeg))
	s.nextSeg++
	st := &segmentState{seg: seg, deleted: s.bufDeleted, delDirty: s.bufDeleted.Count() > 0}
	s.bufDeleted = &index.Bits{}
	s.segments = append(s.segments, st)
	for ord, d := range seg.Docs() {
		if !st.deleted.Test(ord) {
			s.docs[d.Path] = location{seg: st, ord: int32(ord)}
		}
	}
	return st
}

// flushLocked freezes the buffer and writes the resulting segment file. The
// segment only becomes durable with the next manifest.
func (s *Store) flushLocked() error {
	st := s.freezeLocked()
	if st == nil {
		return nil
	}
	return s.persistLocked(st)
}

func (s *Store) persistLocked(st *segmentState) error {
	data, err := segment.Encode(st.seg)
	if err != nil {
		return apperrors.Storage("encode segment", err)
	}
	if err := s.dir.Write(st.seg.Name(), data); err != nil {
		return apperrors.Storage("write segment", err)
	}
	st.persisted = true
	s.logger.Debug("segment written", "segment", st.seg.Name(), "docs", st.seg.Len(), "bytes", len(data))
	return nil
}

func (s *Store) maybeMergeLocked() {
	if len(s.segments) <= s.opts.MaxSegmentsBeforeMerge {
		return
	}
	start := time.Now()
	segs := make([]*index.Segment, len(s.segments))
	dels := make([]*index.Bits, len(s.segments))
	for i, st := range s.segments {
		segs[i] = st.seg
		dels[i] = st.deleted
	}
	merged := index.Merge(segment.SegmentName(s.nextSeg), segs, dels)
	s.nextSeg++
	if merged.Len() == 0 {
		s.segments = nil
	} else {
		st := &segmentState{seg: merged, deleted: &index.Bits{}}
		s.segments = []*segmentState{st}
		for ord, d := range merged.Docs() {
			s.docs[d.Path] = location{seg: st, ord: int32(ord)}
		}
	}
	s.logger.Info("segments merged",
		"merged", len(segs),
		"docs", merged.Len(),
		"duration", time.Since(start),
	)
}

// Commit makes every write so far durable: unwritten segments and changed
// deletion sets are written, then the manifest that names them.
func (s *Store) Commit() error {
	err := s.write("commit", s.commitLocked)
	if s.opts.OnCommit != nil {
		s.opts.OnCommit(err)
	}
	return err
}

func (s *Store) commitLocked() error {
	gen := s.changeGen.Load()
	if gen == s.committedGen && s.commitGen > 0 {
		return nil
	}
	s.freezeLocked()
	s.maybeMergeLocked()

	commitGen := s.commitGen + 1
	m := &segment.Manifest{Generation: commitGen, NextSegment: s.nextSeg}
	for _, st := range s.segments {
		if !st.persisted {
			if err := s.persistLocked(st); err != nil {
				return err
			}
		}
		if st.delDirty {
			st.delFile = ""
			if st.deleted.Count() > 0 {
				data, err := segment.EncodeDeletes(st.deleted)
				if err != nil {
					return apperrors.Storage("encode deletions", err)
				}
				name := segment.DeletesName(st.seg.Name(), commitGen)
				if err := s.dir.Write(name, data); err != nil {
					return apperrors.Storage("write deletions", err)
				}
				st.delFile = name
			}
			st.delDirty = false
		}
		m.Segments = append(m.Segments, segment.ManifestEntry{
			Name:    st.seg.Name(),
			Deletes: st.delFile,
			Docs:    st.seg.Len() - st.deleted.Count(),
		})
	}
	data, err := segment.EncodeManifest(m)
	if err != nil {
		return apperrors.Storage("encode manifest", err)
	}
	if err := s.dir.Write(segment.ManifestName, data); err != nil {
		return apperrors.Storage("write manifest", err)
	}
	s.commitGen = commitGen
	s.committedGen = gen
	s.removeUnreferencedLocked(m)
	s.logger.Info("index committed",
		"generation", commitGen,
		"segments", len(m.Segments),
		"docs", len(s.docs),
	)
	return nil
}

// removeUnreferencedLocked deletes index files the manifest no longer names.
// Failures only leave garbage behind, so they are logged, not returned.
func (s *Store) removeUnreferencedLocked(m *segment.Manifest) {
	names, err := s.dir.List()
	if err != nil {
		s.logger.Warn("listing index files failed", "error", err)
		return
	}
	keep := m.Files()
	for _, name := range names {
		if _, ok := keep[name]; ok || !segment.IsIndexFile(name) {
			continue
		}
		if name == segment.ManifestName {
			continue
		}
		if err := s.dir.Delete(name); err != nil {
			s.logger.Warn("removing stale index file failed", "file", name, "error", err)
		}
	}
}

// snapshot cuts a view of everything written so far. It returns nil when
// have is set and nothing changed since generation since. Only the write
// buffer is frozen here.
func (s *Store) snapshot(have bool, since uint64) (*Snapshot, error) {
	if have && since == s.changeGen.Load() && !s.closed.Load() {
		return nil, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != stateOpen {
		return nil, stateErr(s.state)
	}
	gen := s.changeGen.Load()
	if have && since == gen {
		return nil, nil
	}
	// merging is left to Commit so readers never hold the writer lock for it
	s.freezeLocked()
	views := make([]SegmentView, 0, len(s.segments))
	for _, st := range s.segments {
		st.shared = true
		views = append(views, SegmentView{Segment: st.seg, Deleted: st.deleted})
	}
	return newSnapshot(s.epoch, gen, views), nil
}

// Close commits, releases the directory and runs the close hook. Further
// calls are no-ops.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.state == stateClosed {
		s.mu.Unlock()
		return nil
	}
	var err error
	if s.state == stateOpen {
		if err = s.commitLocked(); err != nil {
			s.logger.Error("final commit on close failed", "error", err)
		}
	}
	s.closeLocked()
	s.mu.Unlock()
	s.notifyClosed()
	return err
}

func (s *Store) closeLocked() {
	if s.dir != nil {
		if err := s.dir.Close(); err != nil {
			s.logger.Error("closing index directory", "error", err)
		}
		s.dir = nil
	}
	s.buffer = nil
	s.docs = nil
	s.segments = nil
	s.state = stateClosed
	s.closed.Store(true)
	s.logger.Info("index closed")
}

func (s *Store) notifyClosed() {
	s.closeOnce.Do(func() {
		if s.opts.OnClose != nil {
			s.opts.OnClose()
		}
	})
}

// IsClosed never blocks on the writer lock.
func (s *Store) IsClosed() bool {
	return s.closed.Load()
}

// Generation counts the writes applied so far.
func (s *Store) Generation() uint64 {
	return s.changeGen.Load()
}

func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Stats{
		State:      s.state.String(),
		Generation: s.changeGen.Load(),
		Commits:    s.commitGen,
	}
	if s.state != stateOpen {
		return st
	}
	st.Docs = len(s.docs)
	st.Buffered = s.buffer.DocCount() - s.bufDeleted.Count()
	st.Segments = len(s.segments)
	st.MemoryBytes = s.memoryLocked()
	for _, seg := range s.segments {
		st.Deleted += seg.deleted.Count()
	}
	return st
}

// StartCommitLoop commits every interval until ctx is done or the store
// closes. The returned channel is closed when the loop has exited.
func (s *Store) StartCommitLoop(ctx context.Context, interval time.Duration) <-chan struct{} {
	done := make(chan struct{})
	ticker := time.NewTicker(interval)
	go func() {
		defer close(done)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				s.logger.Info("commit loop stopping")
				return
			case <-ticker.C:
				if s.IsClosed() {
					return
				}
				if err := s.Commit(); err != nil && !errors.Is(err, apperrors.ErrClosed) {
					s.logger.Error("periodic commit failed", "error", err)
				}
			}
		}
	}()
	return done
}
