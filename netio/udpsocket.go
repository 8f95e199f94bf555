package netio

import (
	"golang.org/x/sys/unix"

	"github.com/reactorforge/evloop/channel"
	"github.com/reactorforge/evloop/internal/logx"
)

const udpReadBufSize = 65536

// UdpReadCallback receives a datagram's source address and payload. The
// payload slice is only valid for the duration of the call.
type UdpReadCallback func(peer Address, data []byte)

// UdpSocket is a single-fd, connectionless datagram socket. Grounded on
// original_source/src/UdpSocket.cpp.
type UdpSocket struct {
	loop    Loop
	name    string
	fd      int
	ch      *channel.Channel
	readCB  UdpReadCallback
	readBuf []byte
	log     *logx.Logger
}

// NewUdpSocket creates a non-blocking UDP socket in the given family.
func NewUdpSocket(loop Loop, name string, ipv6 bool, log *logx.Logger) (*UdpSocket, error) {
	if log == nil {
		log = logx.Default
	}
	family := unix.AF_INET
	if ipv6 {
		family = unix.AF_INET6
	}
	fd, err := unix.Socket(family, unix.SOCK_DGRAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return nil, err
	}
	setReuseAddr(fd, true)
	setReusePort(fd, true)

	u := &UdpSocket{loop: loop, name: name, fd: fd, readBuf: make([]byte, udpReadBufSize), log: log}
	u.ch = channel.New(loop, fd)
	u.ch.SetReadCallback(u.handleRead)
	return u, nil
}

// SetReadCallback sets the callback invoked for every received datagram.
func (u *UdpSocket) SetReadCallback(cb UdpReadCallback) { u.readCB = cb }

// FD returns the underlying file descriptor.
func (u *UdpSocket) FD() int { return u.fd }

// Bind binds the socket to addr and enables reading.
func (u *UdpSocket) Bind(addr Address) error {
	if err := bindOrDie(u.fd, addr); err != nil {
		return err
	}
	u.ch.EnableReading()
	return nil
}

// Close deregisters and closes the socket.
func (u *UdpSocket) Close() error {
	u.ch.DisableAll()
	u.ch.Remove()
	return unix.Close(u.fd)
}

// SendTo sends data to dest synchronously; UDP sendto on a non-blocking
// socket either completes or drops, so no output buffering is needed
// (unlike TcpConnection.sendInLoop).
func (u *UdpSocket) SendTo(data []byte, dest Address) (int, error) {
	sa := dest.sockaddr()
	if err := unix.Sendto(u.fd, data, 0, sa); err != nil {
		return 0, err
	}
	return len(data), nil
}

func (u *UdpSocket) handleRead() {
	u.loop.AssertInLoopThread()
	n, from, err := unix.Recvfrom(u.fd, u.readBuf, 0)
	if err != nil {
		if err != unix.EAGAIN {
			u.log.Errorf("udp %s recvfrom error: %v", u.name, err)
		}
		return
	}
	if u.readCB != nil {
		peer := addressFromSockaddr(from)
		u.readCB(peer, u.readBuf[:n])
	}
}
