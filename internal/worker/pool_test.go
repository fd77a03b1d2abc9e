package worker

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	apperrors "github.com/Adithya-Monish-Kumar-K/vfs-search/pkg/errors"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestRunsEveryAcceptedTask(t *testing.T) {
	p := NewPool(4, 8)
	var ran atomic.Int32
	for i := 0; i < 100; i++ {
		require.NoError(t, p.Submit(func() { ran.Add(1) }))
	}
	p.Shutdown()
	assert.Equal(t, int32(100), ran.Load())
}

func TestRejectsAfterShutdown(t *testing.T) {
	p := NewPool(1, 0)
	p.Shutdown()
	assert.True(t, p.IsShutdown())
	err := p.Submit(func() { t.Fatal("rejected task ran") })
	assert.ErrorIs(t, err, apperrors.ErrRejected)
	p.Shutdown()
}

func TestPanicDoesNotKillWorker(t *testing.T) {
	p := NewPool(1, 2)
	done := make(chan struct{})
	require.NoError(t, p.Submit(func() { panic("boom") }))
	require.NoError(t, p.Submit(func() { close(done) }))
	<-done
	p.Shutdown()
}

func TestSubmitFromTaskDoesNotBlockShutdown(t *testing.T) {
	p := NewPool(1, 0)
	started := make(chan struct{})
	inner := make(chan error, 1)
	require.NoError(t, p.Submit(func() {
		close(started)
		// the only worker is busy here, so this waits for room
		inner <- p.Submit(func() { t.Error("task queued after shutdown ran") })
	}))
	<-started

	done := make(chan struct{})
	go func() {
		p.Shutdown()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("shutdown blocked behind a waiting submit")
	}
	assert.ErrorIs(t, <-inner, apperrors.ErrRejected)
}
