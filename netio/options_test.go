package netio

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/reactorforge/evloop/config"
	"github.com/reactorforge/evloop/loop"
)

func TestTcpServer_WithServerHighWaterMarkAppliesToAcceptedConnections(t *testing.T) {
	el, err := loop.New()
	require.NoError(t, err)
	defer el.Close()

	addr := NewAddress(0, true, false)
	srv, err := NewTcpServer(el, addr, "hwmtest", nil, WithServerHighWaterMark(1234))
	require.NoError(t, err)
	srv.Start()

	done := make(chan struct{})
	go func() { el.Loop(); close(done) }()
	defer func() {
		el.Quit()
		<-done
	}()

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
	_, err = conn.Write([]byte("x"))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		result := make(chan bool, 1)
		el.RunInLoop(func() {
			found := false
			for _, c := range srv.connections {
				if c.highWaterMark == 1234 {
					found = true
				}
			}
			result <- found
		})
		return <-result
	}, 2*time.Second, 10*time.Millisecond)
}

func TestTcpServer_WithConfigStoreSeedsAndLiveUpdatesHighWaterMark(t *testing.T) {
	store := config.New(config.Values{TCPHighWaterMark: 4096, AcceptorReserveFD: "/dev/null"})

	el, err := loop.New()
	require.NoError(t, err)
	defer el.Close()

	addr := NewAddress(0, true, false)
	srv, err := NewTcpServer(el, addr, "storetest", nil, WithConfigStore(store))
	require.NoError(t, err)
	require.Equal(t, 4096, srv.highWaterMark.get())

	store.SetValues(config.Values{TCPHighWaterMark: 9999, AcceptorReserveFD: "/dev/null"})
	require.Eventually(t, func() bool {
		return srv.highWaterMark.get() == 9999
	}, time.Second, 5*time.Millisecond)
}

func TestTcpServer_ConnNameIncludesPeerAddress(t *testing.T) {
	el, err := loop.New()
	require.NoError(t, err)
	defer el.Close()

	addr := NewAddress(0, true, false)
	srv, err := NewTcpServer(el, addr, "nametest", nil)
	require.NoError(t, err)
	srv.Start()

	done := make(chan struct{})
	go func() { el.Loop(); close(done) }()
	defer func() {
		el.Quit()
		<-done
	}()

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
	local := conn.LocalAddr().String()

	require.Eventually(t, func() bool {
		result := make(chan bool, 1)
		el.RunInLoop(func() {
			found := false
			for name := range srv.connections {
				if name == "nametest-"+local+"#1" {
					found = true
				}
			}
			result <- found
		})
		return <-result
	}, 2*time.Second, 10*time.Millisecond)
}
