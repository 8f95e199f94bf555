package netio

import (
	"golang.org/x/sys/unix"

	"github.com/reactorforge/evloop/channel"
	"github.com/reactorforge/evloop/internal/logx"
)

// NewConnectionCallback receives an accepted connection's fd and the
// peer's address; the callee owns fd from this point on.
type NewConnectionCallback func(fd int, peer Address)

// Acceptor wraps a non-blocking listening socket, registered for
// read-readiness on loop. Grounded on original_source's internal
// Acceptor class in src/TcpServer.cpp, including the EMFILE
// reserve-fd trick to avoid a busy-loop accept livelock when the
// process hits its open-file limit.
type Acceptor struct {
	loop     Loop
	listenFd int
	ch       *channel.Channel
	listening bool
	idleFd    int
	reserveFDPath string
	newConnCB NewConnectionCallback
	log       *logx.Logger
}

// AcceptorOption configures an Acceptor at construction time.
type AcceptorOption func(*acceptorConfig)

type acceptorConfig struct {
	reserveFDPath string
}

func defaultAcceptorConfig() acceptorConfig {
	return acceptorConfig{reserveFDPath: "/dev/null"}
}

// WithReserveFDPath overrides the path opened as the EMFILE reserve
// descriptor (spec.md §6; config.Values.AcceptorReserveFD), used instead
// of "/dev/null" by every place the acceptor opens or reopens it.
func WithReserveFDPath(path string) AcceptorOption {
	return func(c *acceptorConfig) { c.reserveFDPath = path }
}

// NewAcceptor creates and binds a listening socket for listenAddr.
func NewAcceptor(loop Loop, listenAddr Address, reusePort bool, log *logx.Logger, opts ...AcceptorOption) (*Acceptor, error) {
	if log == nil {
		log = logx.Default
	}
	cfg := defaultAcceptorConfig()
	for _, o := range opts {
		o(&cfg)
	}

	fd, err := createNonblockingSocket(listenAddr.Family())
	if err != nil {
		return nil, err
	}
	idleFd, err := unix.Open(cfg.reserveFDPath, unix.O_RDONLY|unix.O_CLOEXEC, 0)
	if err != nil {
		unix.Close(fd)
		return nil, err
	}

	setReuseAddr(fd, true)
	setReusePort(fd, reusePort)
	if err := bindOrDie(fd, listenAddr); err != nil {
		unix.Close(idleFd)
		unix.Close(fd)
		return nil, err
	}

	a := &Acceptor{loop: loop, listenFd: fd, idleFd: idleFd, reserveFDPath: cfg.reserveFDPath, log: log}
	a.ch = channel.New(loop, fd)
	a.ch.SetReadCallback(a.handleRead)
	return a, nil
}

// Close deregisters the acceptor and closes both its sockets.
func (a *Acceptor) Close() error {
	a.ch.DisableAll()
	a.ch.Remove()
	unix.Close(a.idleFd)
	return unix.Close(a.listenFd)
}

// SetNewConnectionCallback sets the callback invoked for every accepted
// connection.
func (a *Acceptor) SetNewConnectionCallback(cb NewConnectionCallback) {
	a.newConnCB = cb
}

// localPort reports the port the listening socket is bound to, useful
// when the caller requested an ephemeral port (port 0).
func (a *Acceptor) localPort() uint16 {
	sa, err := unix.Getsockname(a.listenFd)
	if err != nil {
		return 0
	}
	return addressFromSockaddr(sa).Port()
}

// Listen starts accepting connections. Must run on the loop thread.
func (a *Acceptor) Listen() {
	a.loop.AssertInLoopThread()
	a.listening = true
	if err := listenOrDie(a.listenFd); err != nil {
		a.log.Fatalf("listen failed: %v", err)
		return
	}
	a.ch.EnableReading()
}

func (a *Acceptor) handleRead() {
	a.loop.AssertInLoopThread()
	connFd, sa, err := acceptNonblocking(a.listenFd)
	if err == nil {
		peer := addressFromSockaddr(sa)
		if a.newConnCB != nil {
			a.newConnCB(connFd, peer)
		} else {
			unix.Close(connFd)
		}
		return
	}

	if err == unix.EMFILE {
		unix.Close(a.idleFd)
		a.idleFd, _, _ = unix.Accept(a.listenFd)
		unix.Close(a.idleFd)
		a.idleFd, _ = unix.Open(a.reserveFDPath, unix.O_RDONLY|unix.O_CLOEXEC, 0)
		return
	}
	if !isExpectedAcceptError(err) {
		a.log.Errorf("accept4 unexpected error: %v", err)
	}
}
