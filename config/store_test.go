package config

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestStore_SetValuesNotifiesListeners(t *testing.T) {
	s := New(Defaults())

	var got atomic.Value
	done := make(chan struct{})
	s.OnReload(func(v Values) {
		got.Store(v)
		close(done)
	})

	next := Defaults()
	next.TCPHighWaterMark = 1024
	s.SetValues(next)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("listener was never notified")
	}
	require.Equal(t, 1024, got.Load().(Values).TCPHighWaterMark)
	require.Equal(t, 1024, s.Snapshot().TCPHighWaterMark)
}

func TestStore_SnapshotIsACopyNotSharedState(t *testing.T) {
	s := New(Defaults())
	a := s.Snapshot()
	a.TCPHighWaterMark = 99
	require.NotEqual(t, 99, s.Snapshot().TCPHighWaterMark)
}
