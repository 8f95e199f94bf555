package loop

import (
	"time"

	"github.com/reactorforge/evloop/config"
	"github.com/reactorforge/evloop/internal/logx"
)

// defaultPendingQueueOrder sizes the pending-task MPSC ring at 1<<16
// bytes (1024 64-byte slots), matching internal/mpsc's minimum
// practical order for a queue meant to hold bursts of cross-thread
// runInLoop/queueInLoop calls without frequent ErrQueueFull.
const defaultPendingQueueOrder = 16

type loopConfig struct {
	logger            *logx.Logger
	pendingQueueOrder uint
	pollTimeout       time.Duration
	store             *config.Store
}

func defaultConfig() loopConfig {
	d := config.Defaults()
	return loopConfig{pendingQueueOrder: defaultPendingQueueOrder, pollTimeout: d.PollTimeout}
}

// Option configures an EventLoop at construction time.
type Option func(*loopConfig)

// WithLogger overrides the default package logger.
func WithLogger(l *logx.Logger) Option {
	return func(c *loopConfig) { c.logger = l }
}

// WithPendingQueueOrder sets the pending-task ring's size as a power of
// two byte count (must satisfy internal/ringbuf's New order bounds).
func WithPendingQueueOrder(order uint) Option {
	return func(c *loopConfig) { c.pendingQueueOrder = order }
}

// WithPollTimeout overrides the epoll_wait timeout used when no fd is
// ready (spec.md §4.6's "wake at least every pollTimeout" bound).
func WithPollTimeout(d time.Duration) Option {
	return func(c *loopConfig) { c.pollTimeout = d }
}

// WithConfigStore seeds the pending-queue order and poll timeout from a
// config.Store snapshot, and keeps the poll timeout live-updated on every
// reload (spec.md §6, SPEC_FULL.md §3.3). The pending-queue order is only
// honored once, at construction: internal/mpsc's ring is a fixed-capacity
// mmap region sized by New, so it cannot be resized by a later reload
// without tearing down and replacing the queue outright.
func WithConfigStore(store *config.Store) Option {
	return func(c *loopConfig) {
		v := store.Snapshot()
		if v.PendingQueueOrder > 0 {
			c.pendingQueueOrder = v.PendingQueueOrder
		}
		if v.PollTimeout > 0 {
			c.pollTimeout = v.PollTimeout
		}
		c.store = store
	}
}
