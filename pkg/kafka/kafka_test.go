package kafka

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeReader struct {
	mu        sync.Mutex
	msgs      []kafka.Message
	committed []int64
	closed    bool
	drained   chan struct{}
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if len(r.msgs) > 0 {
		msg := r.msgs[0]
		r.msgs = r.msgs[1:]
		r.mu.Unlock()
		return msg, nil
	}
	r.mu.Unlock()
	select {
	case <-r.drained:
	default:
		close(r.drained)
	}
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

func TestConsumerCommitsHandledMessages(t *testing.T) {
	reader := &fakeReader{
		msgs: []kafka.Message{
			{Offset: 1, Value: []byte(`{"n":1}`)},
			{Offset: 2, Value: []byte(`bad`)},
			{Offset: 3, Value: []byte(`{"n":3}`)},
		},
		drained: make(chan struct{}),
	}
	var seen []int
	c := NewConsumerWithReader(reader, "test", func(_ context.Context, _, value []byte) error {
		v, err := DecodeJSON[struct{ N int }](value)
		if err != nil {
			return err
		}
		seen = append(seen, v.N)
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error)
	go func() { done <- c.Start(ctx) }()
	<-reader.drained
	cancel()
	require.NoError(t, <-done)

	assert.Equal(t, []int{1, 3}, seen)
	assert.Equal(t, []int64{1, 3}, reader.committed)
	assert.True(t, reader.closed)
}

type fakeWriter struct {
	msgs []kafka.Message
	err  error
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

func TestProducerEncodesJSON(t *testing.T) {
	w := &fakeWriter{}
	p := NewProducerWithWriter(w, "test")
	require.NoError(t, p.Publish(context.Background(), Event{Key: "/a", Value: map[string]int{"files": 2}}))
	require.Len(t, w.msgs, 1)
	assert.Equal(t, "/a", string(w.msgs[0].Key))
	assert.JSONEq(t, `{"files":2}`, string(w.msgs[0].Value))

	w.err = errors.New("broker down")
	assert.Error(t, p.Publish(context.Background(), Event{Key: "/b", Value: 1}))
}
