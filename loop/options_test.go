package loop

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/reactorforge/evloop/config"
)

func TestEventLoop_WithConfigStoreSeedsPollTimeout(t *testing.T) {
	store := config.New(config.Values{PollTimeout: 3 * time.Second, PendingQueueOrder: 16})

	el, err := New(WithConfigStore(store))
	require.NoError(t, err)
	defer el.Close()

	require.Equal(t, int64(3000), el.pollTimeoutMs.Load())
}

func TestEventLoop_WithConfigStoreLiveUpdatesPollTimeout(t *testing.T) {
	store := config.New(config.Values{PollTimeout: 3 * time.Second, PendingQueueOrder: 16})

	el, err := New(WithConfigStore(store))
	require.NoError(t, err)
	defer el.Close()

	store.SetValues(config.Values{PollTimeout: 250 * time.Millisecond, PendingQueueOrder: 16})
	require.Eventually(t, func() bool {
		return el.pollTimeoutMs.Load() == 250
	}, time.Second, 5*time.Millisecond)
}

func TestEventLoop_WithPollTimeoutOverridesDefault(t *testing.T) {
	el, err := New(WithPollTimeout(500 * time.Millisecond))
	require.NoError(t, err)
	defer el.Close()

	require.Equal(t, int64(500), el.pollTimeoutMs.Load())
}
