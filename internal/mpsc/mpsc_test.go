package mpsc

import (
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/reactorforge/evloop/internal/errs"
)

func TestQueue_SingleProducerRoundTrip(t *testing.T) {
	q, err := New(16)
	require.NoError(t, err)
	defer q.Close()

	var got int
	require.NoError(t, q.Push(func() { got = 42 }))

	s := q.Peek()
	require.NotNil(t, s)
	s.Task()()
	q.Consume(s)

	require.Equal(t, 42, got)
	require.Nil(t, q.Peek())
}

func TestQueue_ReserveFullReturnsError(t *testing.T) {
	q, err := New(12) // 4KiB / 64B slots = 64 slots
	require.NoError(t, err)
	defer q.Close()

	for {
		if err := q.Push(func() {}); err != nil {
			require.ErrorIs(t, err, errs.ErrQueueFull)
			return
		}
	}
}

func TestQueue_MPSC(t *testing.T) {
	q, err := New(20)
	require.NoError(t, err)
	defer q.Close()

	const producers = 8
	const perProducer = 2000
	total := int64(producers * perProducer)

	var wg sync.WaitGroup
	var sent int64
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				for q.Push(func() { atomic.AddInt64(&sent, 1) }) != nil {
					runtime.Gosched()
				}
			}
		}()
	}

	var consumed int64
	done := make(chan struct{})
	go func() {
		for atomic.LoadInt64(&consumed) < total {
			if s := q.Peek(); s != nil {
				s.Task()()
				q.Consume(s)
				atomic.AddInt64(&consumed, 1)
			} else {
				runtime.Gosched()
			}
		}
		close(done)
	}()

	wg.Wait()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out draining queue: consumed %d/%d", atomic.LoadInt64(&consumed), total)
	}
	require.Equal(t, total, sent)
}
