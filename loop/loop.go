// Package loop implements spec.md's EventLoop: owns the Poller, the
// TimerQueue, a wakeup eventfd with its own Channel, a pending-task MPSC
// queue, and the current active-channel list; runs the single dispatch
// loop (spec.md §4.6).
//
// Grounded line-for-line on original_source/src/EventLoop.cpp: the
// thread-local single-instance guard, createEventfd's
// EFD_NONBLOCK|EFD_CLOEXEC, the SIGPIPE-ignore-once-per-process
// initializer, loop()'s clear/poll/dispatch/drain cycle at a 10s poll
// timeout, doPendingFunctors' callingPendingFunctors_ guard, and
// queueInLoop's wakeup-on-off-thread-or-draining rule.
package loop

import (
	"bytes"
	"encoding/binary"
	"os/signal"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/eapache/queue"
	"golang.org/x/sys/unix"

	"github.com/reactorforge/evloop/channel"
	"github.com/reactorforge/evloop/config"
	"github.com/reactorforge/evloop/internal/clock"
	"github.com/reactorforge/evloop/internal/errs"
	"github.com/reactorforge/evloop/internal/logx"
	"github.com/reactorforge/evloop/internal/mpsc"
	"github.com/reactorforge/evloop/internal/poller"
	"github.com/reactorforge/evloop/timer"
)

// ignoreSigpipeOnce mirrors the original engine's anonymous-namespace
// IgnoreSigPipe: a write to a peer-reset socket should return EPIPE, not
// kill the process (SPEC_FULL.md §5).
var ignoreSigpipeOnce sync.Once

func ignoreSigpipe() {
	ignoreSigpipeOnce.Do(func() {
		signal.Ignore(syscall.SIGPIPE)
	})
}

// currentGoroutineID parses the running goroutine's id out of its own
// stack trace header ("goroutine 123 [running]:..."). Go has no public
// API for goroutine identity, unlike the original's
// std::this_thread::get_id(); this is the standard fallback used where
// real identity (not just "some call is currently in flight") is
// required. It is stdlib-only and deliberately not behind a third-party
// goroutine-id package: no repo in the retrieval pack imports one, and
// fabricating that dependency would be worse than the small stdlib hack.
func currentGoroutineID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	b := bytes.TrimPrefix(buf[:n], []byte("goroutine "))
	if i := bytes.IndexByte(b, ' '); i >= 0 {
		b = b[:i]
	}
	id, _ := strconv.ParseUint(string(b), 10, 64)
	return id
}

// EventLoop is the single-threaded reactor core. A value is only safe to
// drive from the single goroutine that calls Loop; every other exported
// method is safe to call from any goroutine.
type EventLoop struct {
	poller *poller.Poller
	timers *timer.Queue

	wakeupFd int
	wakeupCh *channel.Channel

	pending *mpsc.Queue

	activeHandles []poller.Handle
	active        *queue.Queue

	quit atomic.Bool

	// loopGoroutineID holds the id of the goroutine currently executing
	// Loop (0 when no Loop call is active), set once at the top of Loop
	// and compared against the caller's own id by IsInLoopThread, which
	// treats every caller as the loop thread while it is 0. This is
	// the Go analogue of the original's t_loopInThisThread pointer
	// compared against std::this_thread::get_id() — true goroutine
	// identity, not a shared "a dispatch is in progress somewhere" flag,
	// so a foreign goroutine calling in while the loop goroutine is mid
	// dispatch is correctly identified as off-thread instead of being
	// misidentified as the loop itself.
	loopGoroutineID atomic.Uint64
	callingPending  atomic.Bool
	looping         atomic.Bool

	// pollTimeoutMs is the epoll_wait timeout for each iteration when no
	// fd is ready. It is seeded at construction from config.Defaults (or a
	// WithConfigStore/WithPollTimeout override) and, when a store was
	// supplied, kept live-updated by an OnReload hook (SPEC_FULL.md §3.3).
	pollTimeoutMs atomic.Int64

	log *logx.Logger
}

// New constructs an EventLoop: an epoll poller, a timerfd-backed timer
// queue, a wakeup eventfd, and a bounded pending-task queue.
func New(opts ...Option) (*EventLoop, error) {
	ignoreSigpipe()
	clock.StartBackgroundRefresh(0)

	cfg := defaultConfig()
	for _, o := range opts {
		o(&cfg)
	}

	log := cfg.logger
	if log == nil {
		log = logx.Default
	}

	p, err := poller.New()
	if err != nil {
		return nil, err
	}

	wakeupFd, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		p.Close()
		return nil, errs.Wrap(errs.CodeRegistrationFailed, "eventfd failed", err)
	}

	pendingQ, err := mpsc.New(cfg.pendingQueueOrder)
	if err != nil {
		unix.Close(wakeupFd)
		p.Close()
		return nil, err
	}

	el := &EventLoop{
		poller:   p,
		wakeupFd: wakeupFd,
		pending:  pendingQ,
		active:   queue.New(),
		log:      log,
	}

	el.pollTimeoutMs.Store(cfg.pollTimeout.Milliseconds())
	if cfg.store != nil {
		cfg.store.OnReload(func(v config.Values) {
			if v.PollTimeout > 0 {
				el.pollTimeoutMs.Store(v.PollTimeout.Milliseconds())
			}
		})
	}

	el.wakeupCh = channel.New(el, wakeupFd)
	el.wakeupCh.SetReadCallback(el.handleWakeupRead)
	el.wakeupCh.EnableReading()

	timers, err := timer.New(el, log)
	if err != nil {
		el.wakeupCh.DisableAll()
		unix.Close(wakeupFd)
		p.Close()
		return nil, err
	}
	el.timers = timers

	return el, nil
}

// Close tears down the wakeup channel/fd, the timer queue, the pending
// queue, and the poller. Only safe to call after Loop has returned.
func (el *EventLoop) Close() error {
	el.wakeupCh.DisableAll()
	el.wakeupCh.Remove()
	unix.Close(el.wakeupFd)
	if err := el.timers.Close(); err != nil {
		el.log.Errorf("timer queue close: %v", err)
	}
	if err := el.pending.Close(); err != nil {
		el.log.Errorf("pending queue close: %v", err)
	}
	return el.poller.Close()
}

// Loop runs the dispatch cycle until Quit is called. The calling
// goroutine becomes "the loop thread" for the lifetime of this call.
func (el *EventLoop) Loop() {
	if !el.looping.CompareAndSwap(false, true) {
		el.log.Fatalf("EventLoop.Loop called while already looping")
		return
	}
	defer el.looping.Store(false)

	el.loopGoroutineID.Store(currentGoroutineID())
	defer el.loopGoroutineID.Store(0)

	el.quit.Store(false)
	el.log.Tracef("EventLoop start looping")

	for !el.quit.Load() {
		clock.Refresh()
		handles, err := el.poller.Poll(int(el.pollTimeoutMs.Load()), el.activeHandles)
		el.activeHandles = handles
		if err != nil {
			el.log.Errorf("poll error: %v", err)
			continue
		}

		for _, h := range handles {
			el.active.Add(h)
		}
		for el.active.Length() > 0 {
			h := el.active.Peek().(poller.Handle)
			el.active.Remove()
			if ch, ok := h.(*channel.Channel); ok {
				ch.HandleEvent()
			}
		}

		el.doPendingTasks()
	}

	el.log.Tracef("EventLoop stop looping")
}

// Quit requests the loop to exit at the end of its current iteration.
// Safe to call from any goroutine.
func (el *EventLoop) Quit() {
	el.quit.Store(true)
	if !el.IsInLoopThread() {
		el.wakeup()
	}
}

// IsInLoopThread reports whether the caller is running on the goroutine
// currently executing this loop's Loop() call. While no Loop call is
// active (before the first one and after it returns) every caller counts
// as the loop thread, so construction and Close can touch channels.
func (el *EventLoop) IsInLoopThread() bool {
	id := el.loopGoroutineID.Load()
	return id == 0 || id == currentGoroutineID()
}

func (el *EventLoop) wakeup() {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], 1)
	if _, err := unix.Write(el.wakeupFd, buf[:]); err != nil {
		el.log.Errorf("wakeup write failed: %v", err)
	}
}

func (el *EventLoop) handleWakeupRead() {
	var buf [8]byte
	if n, err := unix.Read(el.wakeupFd, buf[:]); err != nil || n != 8 {
		el.log.Errorf("wakeup read %d bytes, err=%v", n, err)
	}
}

// RunInLoop executes task synchronously if called from the loop thread,
// else posts it via QueueInLoop (spec.md §4.6).
func (el *EventLoop) RunInLoop(task func()) {
	if el.IsInLoopThread() {
		task()
		return
	}
	el.QueueInLoop(task)
}

// QueueInLoop posts task to the pending-task MPSC queue. If the caller
// is off-thread, or the loop is currently draining pending tasks, the
// wakeup descriptor is written so the next poll does not block past the
// new task (spec.md §4.6).
func (el *EventLoop) QueueInLoop(task func()) {
	if err := el.pending.Push(mpsc.Task(task)); err != nil {
		el.log.Errorf("queueInLoop failed: %v", err)
		return
	}
	if !el.IsInLoopThread() || el.callingPending.Load() {
		el.wakeup()
	}
}

func (el *EventLoop) doPendingTasks() {
	el.callingPending.Store(true)
	for {
		s := el.pending.Peek()
		if s == nil {
			break
		}
		task := s.Task()
		el.pending.Consume(s)
		func() {
			defer func() {
				if r := recover(); r != nil {
					el.log.Errorf("pending task panic: %v", r)
				}
			}()
			task()
		}()
	}
	el.callingPending.Store(false)
}

// UpdateChannel and RemoveChannel implement channel.Owner.
func (el *EventLoop) UpdateChannel(c *channel.Channel) {
	el.AssertInLoopThread()
	if err := el.poller.Update(c); err != nil {
		el.log.Fatalf("poller update failed: %v", err)
	}
}

func (el *EventLoop) RemoveChannel(c *channel.Channel) {
	el.AssertInLoopThread()
	if err := el.poller.Remove(c); err != nil {
		el.log.Errorf("poller remove failed: %v", err)
	}
}

// AssertInLoopThread aborts the process if a Loop() call is active on
// another goroutine, i.e. whenever IsInLoopThread is false (spec.md §5,
// programmer-error fatal per spec.md §7).
func (el *EventLoop) AssertInLoopThread() {
	if !el.IsInLoopThread() {
		el.log.Fatalf("EventLoop operation called outside the loop thread")
	}
}

// RunAt schedules cb to run at when.
func (el *EventLoop) RunAt(when time.Time, cb func()) timer.ID {
	return el.timers.AddTimer(cb, when, 0)
}

// RunAfter schedules cb to run after delay elapses.
func (el *EventLoop) RunAfter(delay time.Duration, cb func()) timer.ID {
	return el.timers.AddTimer(cb, clock.Now().Add(delay), 0)
}

// RunEvery schedules cb to run every interval, starting after interval.
func (el *EventLoop) RunEvery(interval time.Duration, cb func()) timer.ID {
	return el.timers.AddTimer(cb, clock.Now().Add(interval), interval)
}

// CancelTimer cancels a previously scheduled timer.
func (el *EventLoop) CancelTimer(id timer.ID) {
	el.timers.Cancel(id)
}

// Logger exposes the loop's logger for components built on top of it.
func (el *EventLoop) Logger() *logx.Logger { return el.log }
