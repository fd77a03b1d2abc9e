package vfsindex

import (
	"context"

	"github.com/Adithya-Monish-Kumar-K/vfs-search/internal/indexer/walker"
	apperrors "github.com/Adithya-Monish-Kumar-K/vfs-search/pkg/errors"
)

// IndexTask is the handle of a background tree walk.
type IndexTask struct {
	accepted bool
	done     chan struct{}
	stats    walker.Stats
	err      error
}

func newIndexTask() *IndexTask {
	return &IndexTask{accepted: true, done: make(chan struct{})}
}

func (t *IndexTask) reject() {
	t.accepted = false
	t.err = apperrors.ErrRejected
	close(t.done)
}

func (t *IndexTask) finish(stats walker.Stats, err error) {
	t.stats = stats
	t.err = err
	close(t.done)
}

// Accepted is false when the executor refused the walk; the index then was
// opened but not populated.
func (t *IndexTask) Accepted() bool {
	return t.accepted
}

// Done is closed once the walk finished or was rejected.
func (t *IndexTask) Done() <-chan struct{} {
	return t.done
}

// Wait blocks until the walk finishes or ctx ends. A rejected task returns
// errors.ErrRejected at once.
func (t *IndexTask) Wait(ctx context.Context) (walker.Stats, error) {
	select {
	case <-t.done:
		return t.stats, t.err
	case <-ctx.Done():
		return walker.Stats{}, ctx.Err()
	}
}
