package netio

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/reactorforge/evloop/loop"
)

func TestTcpServer_EchoesReceivedBytes(t *testing.T) {
	el, err := loop.New()
	require.NoError(t, err)
	defer el.Close()

	addr := NewAddress(0, true, false)
	srv, err := NewTcpServer(el, addr, "echotest", nil)
	require.NoError(t, err)

	srv.SetMessageCallback(func(c *TcpConnection, buf *Buffer) {
		data := buf.RetrieveAllAsBytes()
		require.NoError(t, c.Send(data))
	})
	srv.Start()

	done := make(chan struct{})
	go func() { el.Loop(); close(done) }()
	defer func() {
		el.Quit()
		<-done
	}()

	// The acceptor's listening port is only known after Listen() runs on
	// the loop thread; give it a moment before dialing with a raw conn.
	var listenPort uint16
	portReady := make(chan struct{})
	el.RunInLoop(func() {
		listenPort = srv.acceptor.localPort()
		close(portReady)
	})
	<-portReady

	conn, err := net.Dial("tcp", net.JoinHostPort("127.0.0.1", itoa(listenPort)))
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte("ping"))
	require.NoError(t, err)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 4)
	_, err = conn.Read(buf)
	require.NoError(t, err)
	require.Equal(t, "ping", string(buf))
}
