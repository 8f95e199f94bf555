package netio

import (
	"sync/atomic"

	"github.com/reactorforge/evloop/config"
)

type serverConfig struct {
	reserveFDPath string
	highWaterMark int
	store         *config.Store
}

func defaultServerConfig() serverConfig {
	d := config.Defaults()
	return serverConfig{reserveFDPath: d.AcceptorReserveFD, highWaterMark: d.TCPHighWaterMark}
}

// ServerOption configures a TcpServer at construction time.
type ServerOption func(*serverConfig)

// WithServerReserveFDPath overrides the Acceptor's EMFILE reserve-fd path.
func WithServerReserveFDPath(path string) ServerOption {
	return func(c *serverConfig) { c.reserveFDPath = path }
}

// WithServerHighWaterMark overrides the default per-connection output
// buffer high-water mark (spec.md §6).
func WithServerHighWaterMark(n int) ServerOption {
	return func(c *serverConfig) { c.highWaterMark = n }
}

// WithConfigStore seeds the Acceptor's reserve-fd path and the
// per-connection high-water mark from a config.Store snapshot, and keeps
// the high-water mark live-updated for every connection accepted after a
// reload. The reserve-fd path is read once at construction, matching the
// Acceptor's own one-shot EMFILE guard (spec.md §6) — a later reload of
// that value only takes effect for acceptors created afterward.
func WithConfigStore(store *config.Store) ServerOption {
	return func(c *serverConfig) {
		v := store.Snapshot()
		if v.AcceptorReserveFD != "" {
			c.reserveFDPath = v.AcceptorReserveFD
		}
		if v.TCPHighWaterMark > 0 {
			c.highWaterMark = v.TCPHighWaterMark
		}
		c.store = store
	}
}

// liveHighWaterMark is the atomic.Int64-backed value TcpServer.newConnection
// reads for each freshly accepted connection; it starts at cfg.highWaterMark
// and, when WithConfigStore was used, is kept current by an OnReload hook.
type liveHighWaterMark struct {
	v atomic.Int64
}

func newLiveHighWaterMark(initial int) *liveHighWaterMark {
	h := &liveHighWaterMark{}
	h.v.Store(int64(initial))
	return h
}

func (h *liveHighWaterMark) get() int { return int(h.v.Load()) }

func (h *liveHighWaterMark) set(n int) { h.v.Store(int64(n)) }
