// Package worker runs background tasks on a fixed set of goroutines. A
// submission is either accepted or rejected with errors.ErrRejected once the
// pool is shutting down; it never panics or silently drops the task.
package worker

import (
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	apperrors "github.com/Adithya-Monish-Kumar-K/vfs-search/pkg/errors"
)

type Pool struct {
	mu      sync.RWMutex
	closed  bool
	quit    chan struct{}
	pending sync.WaitGroup // Submit calls past the closed check
	tasks   chan func()
	group   errgroup.Group
	logger  *slog.Logger
}

// NewPool starts size workers sharing a queue of queueSize pending tasks.
func NewPool(size, queueSize int) *Pool {
	if size <= 0 {
		size = 1
	}
	if queueSize < 0 {
		queueSize = 0
	}
	p := &Pool{
		quit:   make(chan struct{}),
		tasks:  make(chan func(), queueSize),
		logger: slog.Default().With("component", "worker-pool"),
	}
	for i := 0; i < size; i++ {
		p.group.Go(p.run)
	}
	p.logger.Debug("worker pool started", "workers", size, "queue", queueSize)
	return p
}

func (p *Pool) run() error {
	for task := range p.tasks {
		p.execute(task)
	}
	return nil
}

func (p *Pool) execute(task func()) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("task panicked", "panic", fmt.Sprint(r))
		}
	}()
	task()
}

// Submit queues task, blocking while the queue is full. It returns
// ErrRejected after Shutdown, including to callers still waiting for room.
func (p *Pool) Submit(task func()) error {
	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		return apperrors.ErrRejected
	}
	p.pending.Add(1)
	p.mu.RUnlock()
	defer p.pending.Done()

	select {
	case p.tasks <- task:
		return nil
	case <-p.quit:
		return apperrors.ErrRejected
	}
}

func (p *Pool) IsShutdown() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.closed
}

// Shutdown stops accepting tasks and waits for queued and running ones to
// finish. Calling it again only waits.
func (p *Pool) Shutdown() {
	p.mu.Lock()
	first := !p.closed
	p.closed = true
	p.mu.Unlock()
	if first {
		p.logger.Debug("worker pool shutting down")
		close(p.quit)
		p.pending.Wait()
		close(p.tasks)
	}
	_ = p.group.Wait()
}
