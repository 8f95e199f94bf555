package netio

import (
	"golang.org/x/sys/unix"

	"github.com/reactorforge/evloop/internal/errs"
)

// createNonblockingSocket opens a non-blocking, close-on-exec TCP
// socket in the given family (original_source's
// sockets::createNonblockingOrDie).
func createNonblockingSocket(family int) (int, error) {
	fd, err := unix.Socket(family, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, unix.IPPROTO_TCP)
	if err != nil {
		return -1, errs.Wrap(errs.CodeRegistrationFailed, "socket() failed", err)
	}
	return fd, nil
}

func setReuseAddr(fd int, on bool) {
	_ = unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, boolToInt(on))
}

func setReusePort(fd int, on bool) {
	_ = unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEPORT, boolToInt(on))
}

func setTCPNoDelay(fd int, on bool) {
	_ = unix.SetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_NODELAY, boolToInt(on))
}

func setKeepAlive(fd int, on bool) {
	_ = unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_KEEPALIVE, boolToInt(on))
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func bindOrDie(fd int, addr Address) error {
	if err := unix.Bind(fd, addr.sockaddr()); err != nil {
		return errs.Wrap(errs.CodeRegistrationFailed, "bind() failed", err).WithContext("addr", addr.String())
	}
	return nil
}

func listenOrDie(fd int) error {
	if err := unix.Listen(fd, unix.SOMAXCONN); err != nil {
		return errs.Wrap(errs.CodeRegistrationFailed, "listen() failed", err)
	}
	return nil
}

// acceptNonblocking mirrors original_source's sockets::accept: a
// non-blocking, close-on-exec accept4 whose "expected" errnos (EAGAIN,
// ECONNABORTED, EINTR, EPROTO, EPERM, EMFILE) are returned to the
// caller to retry or ignore, rather than treated as fatal.
func acceptNonblocking(listenFd int) (int, unix.Sockaddr, error) {
	connFd, sa, err := unix.Accept4(listenFd, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
	if err != nil {
		return -1, nil, err
	}
	return connFd, sa, nil
}

func isExpectedAcceptError(err error) bool {
	switch err {
	case unix.EAGAIN, unix.ECONNABORTED, unix.EINTR, unix.EPROTO, unix.EPERM, unix.EMFILE:
		return true
	default:
		return false
	}
}
