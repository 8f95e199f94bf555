// Package clock provides a cached clock, amortizing repeated time.Now()
// calls off the dispatch hot path the way agilira/go-timecache does for a
// logging/rotation hot path. The cache holds wall-clock nanoseconds
// (time.Now().UnixNano()); the time.Time values Now returns carry no
// monotonic reading, so comparisons between them follow wall-clock
// adjustments. Unlike a per-instance clock, this cache is process-wide:
// EventLoop.Loop refreshes it once per iteration, and a background ticker,
// started by the first loop.New, keeps it fresh for callers (such as
// logging from foreign goroutines) that run outside any loop iteration.
package clock

import (
	"sync"
	"sync/atomic"
	"time"
)

var (
	cachedNanos atomic.Int64
	startOnce   sync.Once
)

func init() {
	cachedNanos.Store(time.Now().UnixNano())
}

// Now returns the cached wall-clock time. Precision is "at most one
// background-ticker period stale" unless Refresh was called more recently.
func Now() time.Time {
	return time.Unix(0, cachedNanos.Load())
}

// Refresh stores a fresh sample. EventLoop.Loop calls this once per
// dispatch iteration so TimerQueue comparisons never read a stale value
// across a blocking poll.
func Refresh() time.Time {
	now := time.Now()
	cachedNanos.Store(now.UnixNano())
	return now
}

// StartBackgroundRefresh lazily starts a ticker that refreshes the cache
// for callers that never run inside a loop iteration (e.g. logging from
// a foreign goroutine). Safe to call repeatedly; only the first call
// starts the ticker.
func StartBackgroundRefresh(period time.Duration) {
	startOnce.Do(func() {
		if period <= 0 {
			period = 5 * time.Millisecond
		}
		t := time.NewTicker(period)
		go func() {
			for range t.C {
				Refresh()
			}
		}()
	})
}
