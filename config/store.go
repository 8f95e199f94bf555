// Package config holds the engine's live-tunable settings: poll
// timeout, MPSC ring order, TCP high-water mark, and the Acceptor's
// EMFILE reserve-fd path. Grounded on
// momentics-hioload-ws/control/config.go (the RWMutex'd snapshot map
// with reload listeners) and control/hotreload.go (the reload-hook
// registry), generalized from map[string]any to a typed Values struct
// and wired to github.com/agilira/argus for on-disk hot reload instead
// of the teacher's manual SetConfig call.
package config

import (
	"encoding/json"
	"os"
	"sync"
	"time"
)

// Values is the set of tunables an EventLoop and its netio components
// read at construction. Of these, only PollTimeout and TCPHighWaterMark
// are applied again on a reload.
type Values struct {
	PollTimeout        time.Duration `json:"poll_timeout_ms"`
	PendingQueueOrder  uint          `json:"pending_queue_order"`
	TCPHighWaterMark   int           `json:"tcp_high_water_mark"`
	AcceptorReserveFD  string        `json:"acceptor_reserve_fd"`
}

// Defaults returns the values an EventLoop uses absent any config file.
func Defaults() Values {
	return Values{
		PollTimeout:       10 * time.Second,
		PendingQueueOrder: 16,
		TCPHighWaterMark:  64 * 1024 * 1024,
		AcceptorReserveFD: "/dev/null",
	}
}

// Store is a thread-safe snapshot of Values with reload listener hooks,
// the generalized shape of the teacher's ConfigStore.
type Store struct {
	mu        sync.RWMutex
	values    Values
	listeners []func(Values)

	watcher *fileWatcher
}

// New creates a Store seeded with initial.
func New(initial Values) *Store {
	return &Store{values: initial}
}

// Snapshot returns the current values.
func (s *Store) Snapshot() Values {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.values
}

// SetValues replaces the current values and notifies every listener
// (teacher's ConfigStore.SetConfig, generalized from a map merge to a
// whole-struct replace since Values has a fixed, known shape).
func (s *Store) SetValues(v Values) {
	s.mu.Lock()
	s.values = v
	listeners := make([]func(Values), len(s.listeners))
	copy(listeners, s.listeners)
	s.mu.Unlock()
	for _, fn := range listeners {
		go fn(v)
	}
}

// OnReload registers a listener invoked (on its own goroutine) whenever
// SetValues runs, matching the teacher's ConfigStore.OnReload +
// dispatchReload's go-fn-per-listener fan-out.
func (s *Store) OnReload(fn func(Values)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// Close stops any active file watcher.
func (s *Store) Close() error {
	s.mu.Lock()
	w := s.watcher
	s.watcher = nil
	s.mu.Unlock()
	if w != nil {
		return w.Stop()
	}
	return nil
}

func loadFile(path string) (Values, error) {
	v := Defaults()
	data, err := os.ReadFile(path)
	if err != nil {
		return v, err
	}
	if err := json.Unmarshal(data, &v); err != nil {
		return v, err
	}
	// poll_timeout_ms is written in milliseconds; encoding/json would
	// decode it into the time.Duration field as nanoseconds.
	var ms struct {
		PollTimeoutMs *int64 `json:"poll_timeout_ms"`
	}
	if err := json.Unmarshal(data, &ms); err != nil {
		return v, err
	}
	if ms.PollTimeoutMs != nil {
		v.PollTimeout = time.Duration(*ms.PollTimeoutMs) * time.Millisecond
	}
	return v, nil
}
