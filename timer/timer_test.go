package timer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/reactorforge/evloop/channel"
	"github.com/reactorforge/evloop/internal/clock"
)

// fakeLoop runs RunInLoop synchronously and satisfies timer.Loop without
// a real EventLoop's poller/pending-queue machinery.
type fakeLoop struct{}

func (fakeLoop) UpdateChannel(c *channel.Channel) {}
func (fakeLoop) RemoveChannel(c *channel.Channel) {}
func (fakeLoop) RunInLoop(f func())               { f() }
func (fakeLoop) AssertInLoopThread()              {}

func TestQueue_AddTimerFiresAndReports(t *testing.T) {
	q, err := New(fakeLoop{}, nil)
	require.NoError(t, err)
	defer q.Close()

	var fired bool
	q.AddTimer(func() { fired = true }, clock.Refresh().Add(5*time.Millisecond), 0)

	time.Sleep(20 * time.Millisecond)
	q.handleRead() // no real EventLoop is driving the timerfd's channel in this test
	require.True(t, fired)
}

func TestMinHeap_OrdersByWhenThenSeq(t *testing.T) {
	now := clock.Now()
	h := minHeap{
		{when: now.Add(2 * time.Second), seq: 1},
		{when: now.Add(1 * time.Second), seq: 2},
		{when: now.Add(1 * time.Second), seq: 1},
	}
	require.True(t, h.Less(2, 1)) // same `when`, lower seq sorts first
	require.True(t, h.Less(1, 0)) // earlier `when` sorts first regardless of seq
}

func TestCancel_StaleHandleIsIgnored(t *testing.T) {
	q, err := New(fakeLoop{}, nil)
	require.NoError(t, err)
	defer q.Close()

	id := q.AddTimer(func() {}, clock.Refresh().Add(time.Hour), 0)
	q.Cancel(id)
	require.NotPanics(t, func() { q.Cancel(id) })
}
