package channel

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/reactorforge/evloop/internal/poller"
)

// fakeOwner records every UpdateChannel/RemoveChannel call so tests can
// assert the Channel <-> owner wiring without a real EventLoop.
type fakeOwner struct {
	updates int
	removes int
}

func (o *fakeOwner) UpdateChannel(c *Channel) { o.updates++ }
func (o *fakeOwner) RemoveChannel(c *Channel) { o.removes++ }

func TestChannel_EnableDisablePropagatesToOwner(t *testing.T) {
	owner := &fakeOwner{}
	c := New(owner, 7)

	c.EnableReading()
	require.True(t, c.IsReading())
	require.Equal(t, 1, owner.updates)

	c.EnableWriting()
	require.True(t, c.IsWriting())
	require.Equal(t, 2, owner.updates)

	c.DisableAll()
	require.True(t, c.IsNoneEvent())
	require.Equal(t, 3, owner.updates)
}

func TestChannel_HandleEventDispatchOrder(t *testing.T) {
	owner := &fakeOwner{}
	c := New(owner, 7)

	var order []string
	c.SetCloseCallback(func() { order = append(order, "close") })
	c.SetErrorCallback(func() { order = append(order, "error") })
	c.SetReadCallback(func() { order = append(order, "read") })
	c.SetWriteCallback(func() { order = append(order, "write") })

	c.SetRevents(poller.EventErr | poller.EventRead | poller.EventWrite)
	c.HandleEvent()

	require.Equal(t, []string{"error", "read", "write"}, order)
}

func TestChannel_RemoveDeferredWhileHandling(t *testing.T) {
	owner := &fakeOwner{}
	c := New(owner, 7)

	c.SetReadCallback(func() { c.Remove() })
	c.SetRevents(poller.EventRead)
	c.HandleEvent()

	require.Equal(t, 1, owner.removes)
}
