package netio

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/reactorforge/evloop/loop"
)

func TestUdpSocket_SendToAndReceive(t *testing.T) {
	el, err := loop.New()
	require.NoError(t, err)
	defer el.Close()

	srv, err := NewUdpSocket(el, "udptest-server", false, nil)
	require.NoError(t, err)
	defer srv.Close()

	received := make(chan string, 1)
	srv.SetReadCallback(func(peer Address, data []byte) {
		received <- string(data)
	})

	var serverPort uint16
	bound := make(chan struct{})
	el.RunInLoop(func() {
		require.NoError(t, srv.Bind(NewAddress(0, true, false)))
		sa, err := unix.Getsockname(srv.FD())
		require.NoError(t, err)
		serverPort = addressFromSockaddr(sa).Port()
		close(bound)
	})

	done := make(chan struct{})
	go func() { el.Loop(); close(done) }()
	defer func() {
		el.Quit()
		<-done
	}()

	<-bound

	client, err := NewUdpSocket(el, "udptest-client", false, nil)
	require.NoError(t, err)
	defer func() {
		// The loop is still running here, so the channel teardown in
		// Close must happen on the loop goroutine.
		closed := make(chan struct{})
		el.RunInLoop(func() {
			client.Close()
			close(closed)
		})
		<-closed
	}()

	dest, err := NewAddressFromIPPort("127.0.0.1", serverPort, false)
	require.NoError(t, err)

	el.RunInLoop(func() {
		_, err := client.SendTo([]byte("hello"), dest)
		require.NoError(t, err)
	})

	select {
	case msg := <-received:
		require.Equal(t, "hello", msg)
	case <-time.After(2 * time.Second):
		t.Fatal("server never received the datagram")
	}
}
