// Package timer implements spec.md's Timer, TimerId, and TimerQueue: an
// ordered set of pending timers projected onto a single kernel timerfd.
//
// Grounded on original_source/src/TimerQueue.cpp (howMuchTimeFromNow's
// 100us floor, the getExpired/reset/insert three-set algorithm) and
// include/hvnetpp/{Timer,TimerId,TimerQueue}.h.
package timer

import (
	"container/heap"
	"sync/atomic"
	"time"

	"golang.org/x/sys/unix"

	"github.com/reactorforge/evloop/channel"
	"github.com/reactorforge/evloop/internal/clock"
	"github.com/reactorforge/evloop/internal/errs"
	"github.com/reactorforge/evloop/internal/logx"
)

// Callback is a timer's expiration handler.
type Callback func()

// Timer is a single pending or firing timer (spec.md §3).
type Timer struct {
	callback Callback
	when     time.Time
	interval time.Duration // zero means one-shot
	seq      uint64
	heapIdx  int
}

func (t *Timer) repeating() bool { return t.interval > 0 }

func (t *Timer) restart(now time.Time) {
	t.when = now.Add(t.interval)
}

var seqCounter atomic.Uint64

func nextSeq() uint64 { return seqCounter.Add(1) }

// ID is an opaque handle (timer-identity, sequence); the sequence makes
// stale handles (e.g. cancelling an already-fired one-shot) detectable.
type ID struct {
	timer *Timer
	seq   uint64
}

// Loop is the subset of *loop.EventLoop the TimerQueue depends on,
// expressed as an interface here to avoid an import cycle between
// package timer and package loop.
type Loop interface {
	channel.Owner
	RunInLoop(func())
	AssertInLoopThread()
}

// minHeap orders Timers by (expiration, sequence) for earliest-first
// extraction (spec.md §4.5's tie-break: ties broken by stable identity,
// here the monotonically increasing construction sequence).
type minHeap []*Timer

func (h minHeap) Len() int { return len(h) }
func (h minHeap) Less(i, j int) bool {
	if h[i].when.Equal(h[j].when) {
		return h[i].seq < h[j].seq
	}
	return h[i].when.Before(h[j].when)
}
func (h minHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].heapIdx = i
	h[j].heapIdx = j
}
func (h *minHeap) Push(x any) {
	t := x.(*Timer)
	t.heapIdx = len(*h)
	*h = append(*h, t)
}
func (h *minHeap) Pop() any {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	t.heapIdx = -1
	*h = old[:n-1]
	return t
}

// Queue is the TimerQueue: a heap of pending timers ("timers" in
// spec.md §3), an identity index ("activeTimers") for O(1) cancellation,
// and a "cancelingTimers" set suppressing rearm of timers cancelled from
// within their own callback.
type Queue struct {
	loop Loop
	fd   int
	ch   *channel.Channel

	timers        minHeap
	activeTimers  map[*Timer]uint64
	cancelingTimers map[*Timer]struct{}

	callingExpired bool

	log *logx.Logger
}

// New creates a TimerQueue registered for read-readiness on loop.
func New(loop Loop, log *logx.Logger) (*Queue, error) {
	if log == nil {
		log = logx.Default
	}
	fd, err := unix.TimerfdCreate(unix.CLOCK_MONOTONIC, unix.TFD_NONBLOCK|unix.TFD_CLOEXEC)
	if err != nil {
		return nil, errs.Wrap(errs.CodeRegistrationFailed, "timerfd_create failed", err)
	}
	q := &Queue{
		loop:            loop,
		fd:              fd,
		activeTimers:    make(map[*Timer]uint64),
		cancelingTimers: make(map[*Timer]struct{}),
		log:             log,
	}
	q.ch = channel.New(loop, fd)
	q.ch.SetReadCallback(q.handleRead)
	q.ch.EnableReading()
	return q, nil
}

// Close tears down the timerfd channel and descriptor.
func (q *Queue) Close() error {
	q.ch.DisableAll()
	q.ch.Remove()
	return unix.Close(q.fd)
}

// AddTimer schedules cb to run at when, repeating every interval if
// interval > 0. Returns the TimerId immediately; the actual insertion
// happens via RunInLoop (spec.md §4.5).
func (q *Queue) AddTimer(cb Callback, when time.Time, interval time.Duration) ID {
	t := &Timer{callback: cb, when: when, interval: interval, seq: nextSeq()}
	id := ID{timer: t, seq: t.seq}
	q.loop.RunInLoop(func() { q.addTimerInLoop(t) })
	return id
}

func (q *Queue) addTimerInLoop(t *Timer) {
	q.loop.AssertInLoopThread()
	earliestChanged := q.insert(t)
	if earliestChanged {
		q.resetTimerfd(t.when)
	}
}

func (q *Queue) insert(t *Timer) (earliestChanged bool) {
	if len(q.timers) == 0 || t.when.Before(q.timers[0].when) {
		earliestChanged = true
	}
	heap.Push(&q.timers, t)
	q.activeTimers[t] = t.seq
	return earliestChanged
}

// Cancel cancels a previously scheduled timer. A stale handle (already
// fired one-shot) is silently ignored (spec.md §7).
func (q *Queue) Cancel(id ID) {
	q.loop.RunInLoop(func() { q.cancelInLoop(id) })
}

func (q *Queue) cancelInLoop(id ID) {
	q.loop.AssertInLoopThread()
	if seq, ok := q.activeTimers[id.timer]; ok && seq == id.seq {
		delete(q.activeTimers, id.timer)
		q.removeFromHeap(id.timer)
		return
	}
	if q.callingExpired {
		q.cancelingTimers[id.timer] = struct{}{}
	}
}

func (q *Queue) removeFromHeap(t *Timer) {
	if t.heapIdx < 0 || t.heapIdx >= len(q.timers) || q.timers[t.heapIdx] != t {
		return
	}
	heap.Remove(&q.timers, t.heapIdx)
}

func (q *Queue) handleRead() {
	q.loop.AssertInLoopThread()
	now := clock.Refresh()
	q.readTimerfd()

	expired := q.getExpired(now)

	q.callingExpired = true
	q.cancelingTimers = make(map[*Timer]struct{})
	for _, t := range expired {
		func() {
			defer func() {
				if r := recover(); r != nil {
					q.log.Errorf("timer callback panic: %v", r)
				}
			}()
			t.callback()
		}()
	}
	q.callingExpired = false

	q.reset(expired, now)
}

func (q *Queue) readTimerfd() {
	var buf [8]byte
	_, err := unix.Read(q.fd, buf[:])
	if err != nil && err != unix.EAGAIN {
		q.log.Errorf("timerfd read error: %v", err)
	}
}

func (q *Queue) getExpired(now time.Time) []*Timer {
	var expired []*Timer
	for len(q.timers) > 0 && !q.timers[0].when.After(now) {
		t := heap.Pop(&q.timers).(*Timer)
		delete(q.activeTimers, t)
		expired = append(expired, t)
	}
	return expired
}

func (q *Queue) reset(expired []*Timer, now time.Time) {
	for _, t := range expired {
		if _, canceling := q.cancelingTimers[t]; t.repeating() && !canceling {
			t.restart(now)
			q.insert(t)
		}
	}
	if len(q.timers) > 0 {
		q.resetTimerfd(q.timers[0].when)
	}
}

func (q *Queue) resetTimerfd(when time.Time) {
	micros := when.Sub(clock.Now()).Microseconds()
	if micros < 100 {
		micros = 100
	}
	spec := unix.ItimerSpec{
		Value: unix.NsecToTimespec(micros * 1000),
	}
	if err := unix.TimerfdSettime(q.fd, 0, &spec, nil); err != nil {
		q.log.Errorf("timerfd_settime failed: %v", err)
	}
}
