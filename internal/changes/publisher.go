package changes

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/vfs-search/internal/vfsindex"
	"github.com/Adithya-Monish-Kumar-K/vfs-search/pkg/kafka"
)

// IndexComplete is the event published when a tree walk finishes.
type IndexComplete struct {
	Root         string    `json:"root"`
	Files        int       `json:"files"`
	Folders      int       `json:"folders"`
	WithContent  int       `json:"with_content"`
	MetadataOnly int       `json:"metadata_only"`
	Denied       int       `json:"denied"`
	DurationMs   int64     `json:"duration_ms"`
	Error        string    `json:"error,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

func newIndexComplete(res vfsindex.IndexResult, now time.Time) IndexComplete {
	ev := IndexComplete{
		Root:         res.Root,
		Files:        res.Stats.Files,
		Folders:      res.Stats.Folders,
		WithContent:  res.Stats.WithContent,
		MetadataOnly: res.Stats.MetadataOnly,
		Denied:       res.Stats.Denied,
		DurationMs:   res.Stats.Duration.Milliseconds(),
		Timestamp:    now.UTC(),
	}
	if res.Err != nil {
		ev.Error = res.Err.Error()
	}
	return ev
}

// BatchPublisher is the part of *kafka.Producer the publisher uses.
type BatchPublisher interface {
	PublishBatch(ctx context.Context, events []kafka.Event) error
}

// Publisher buffers completion events and flushes them to Kafka when the
// buffer reaches batchSize or every flushInterval. Events that fail to
// publish are re-queued up to three batches' worth; older ones are dropped.
type Publisher struct {
	producer      BatchPublisher
	mu            sync.Mutex
	buffer        []kafka.Event
	batchSize     int
	flushInterval time.Duration
	flushMu       sync.Mutex
	logger        *slog.Logger
	done          chan struct{}
}

func NewPublisher(producer BatchPublisher, batchSize int, flushInterval time.Duration) *Publisher {
	if batchSize <= 0 {
		batchSize = 100
	}
	if flushInterval <= 0 {
		flushInterval = 5 * time.Second
	}
	return &Publisher{
		producer:      producer,
		buffer:        make([]kafka.Event, 0, batchSize),
		batchSize:     batchSize,
		flushInterval: flushInterval,
		logger:        slog.Default().With("component", "index-publisher"),
		done:          make(chan struct{}),
	}
}

// Start launches the flush loop. A final flush runs when ctx is cancelled.
func (p *Publisher) Start(ctx context.Context) {
	go func() {
		defer close(p.done)
		ticker := time.NewTicker(p.flushInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				p.flush(ctx)
			case <-ctx.Done():
				flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				p.flush(flushCtx)
				cancel()
				return
			}
		}
	}()
	p.logger.Info("index publisher started",
		"batch_size", p.batchSize,
		"flush_interval", p.flushInterval,
	)
}

// Track queues the result of a finished walk. It has the shape of a
// Searcher.OnIndexed listener.
func (p *Publisher) Track(res vfsindex.IndexResult) {
	p.mu.Lock()
	p.buffer = append(p.buffer, kafka.Event{Key: res.Root, Value: newIndexComplete(res, time.Now())})
	full := len(p.buffer) >= p.batchSize
	p.mu.Unlock()
	if full {
		p.flush(context.Background())
	}
}

// Close waits for the flush loop started by Start to finish.
func (p *Publisher) Close() {
	<-p.done
}

func (p *Publisher) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.buffer)
}

func (p *Publisher) flush(ctx context.Context) {
	p.flushMu.Lock()
	defer p.flushMu.Unlock()

	p.mu.Lock()
	if len(p.buffer) == 0 {
		p.mu.Unlock()
		return
	}
	batch := p.buffer
	p.buffer = make([]kafka.Event, 0, p.batchSize)
	p.mu.Unlock()

	if err := p.producer.PublishBatch(ctx, batch); err != nil {
		p.logger.Error("batch flush failed", "batch_size", len(batch), "error", err)
		p.mu.Lock()
		p.buffer = append(batch, p.buffer...)
		if limit := p.batchSize * 3; len(p.buffer) > limit {
			dropped := len(p.buffer) - limit
			p.buffer = p.buffer[dropped:]
			p.logger.Warn("buffer overflow, events dropped", "dropped", dropped)
		}
		p.mu.Unlock()
		return
	}
	p.logger.Debug("batch flushed", "count", len(batch))
}
