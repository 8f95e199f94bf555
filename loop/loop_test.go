package loop

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestEventLoop_RunInLoopFromLoopThreadIsSynchronous(t *testing.T) {
	el, err := New()
	require.NoError(t, err)
	defer el.Close()

	var ran atomic.Bool
	el.RunAfter(0, func() {
		// inside a timer callback we are dispatching on the loop thread
		require.True(t, el.IsInLoopThread())
		el.RunInLoop(func() { ran.Store(true) })
		el.Quit()
	})

	done := make(chan struct{})
	go func() { el.Loop(); close(done) }()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("loop never quit")
	}
	require.True(t, ran.Load())
}

func TestEventLoop_QueueInLoopFromOffThreadWakesLoop(t *testing.T) {
	el, err := New()
	require.NoError(t, err)
	defer el.Close()

	var wg sync.WaitGroup
	wg.Add(1)
	var ran atomic.Bool

	done := make(chan struct{})
	go func() { el.Loop(); close(done) }()

	go func() {
		defer wg.Done()
		time.Sleep(10 * time.Millisecond)
		el.QueueInLoop(func() {
			ran.Store(true)
			el.Quit()
		})
	}()

	wg.Wait()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("loop never processed off-thread queueInLoop task")
	}
	require.True(t, ran.Load())
}

func TestEventLoop_RunEveryRepeats(t *testing.T) {
	el, err := New()
	require.NoError(t, err)
	defer el.Close()

	var count atomic.Int32
	var id = el.RunEvery(5*time.Millisecond, func() {
		if count.Add(1) >= 3 {
			el.Quit()
		}
	})
	_ = id

	done := make(chan struct{})
	go func() { el.Loop(); close(done) }()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("loop never quit")
	}
	require.GreaterOrEqual(t, count.Load(), int32(3))
}
