package netio

import (
	"golang.org/x/sys/unix"

	"github.com/reactorforge/evloop/channel"
	"github.com/reactorforge/evloop/internal/errs"
	"github.com/reactorforge/evloop/internal/logx"
)

type connState int

const (
	stateConnecting connState = iota
	stateConnected
	stateDisconnecting
	stateDisconnected
)

// ConnectionCallback fires when a connection is established or torn down.
type ConnectionCallback func(*TcpConnection)

// MessageCallback fires when bytes have been read into the connection's
// input buffer.
type MessageCallback func(*TcpConnection, *Buffer)

// WriteCompleteCallback fires once the output buffer has fully drained.
type WriteCompleteCallback func(*TcpConnection)

// HighWaterMarkCallback fires when the output buffer crosses the
// configured high-water mark.
type HighWaterMarkCallback func(*TcpConnection, int)

// CloseCallback fires once the connection has fully transitioned to
// disconnected; TcpServer uses this to drop it from its registry.
type CloseCallback func(*TcpConnection)

// TcpConnection is a single established TCP connection's state machine
// (Connecting -> Connected -> [Disconnecting] -> Disconnected), grounded
// on original_source/src/TcpConnection.cpp. A self-reference is held for
// the duration of handleClose so the connection cannot be destroyed
// mid-callback — Go's GC makes the original's shared_from_this ref-count
// trick unnecessary, but the same guardThis local is kept here because
// it documents the invariant and protects against the owner dropping its
// last reference from within connectionCallback_ itself.
type TcpConnection struct {
	loop Loop
	name string
	fd   int
	ch   *channel.Channel

	local Address
	peer  Address

	state connState

	input  *Buffer
	output *Buffer

	connectionCB      ConnectionCallback
	messageCB         MessageCallback
	writeCompleteCB   WriteCompleteCallback
	highWaterMarkCB   HighWaterMarkCallback
	highWaterMark     int
	aboveHighWaterMark bool
	closeCB           CloseCallback

	log *logx.Logger
}

// NewTcpConnection wraps an already-accepted, non-blocking fd.
func NewTcpConnection(loop Loop, name string, fd int, local, peer Address, log *logx.Logger) *TcpConnection {
	if log == nil {
		log = logx.Default
	}
	c := &TcpConnection{
		loop: loop, name: name, fd: fd,
		local: local, peer: peer,
		state:         stateConnecting,
		input:         NewBuffer(),
		output:        NewBuffer(),
		highWaterMark: 64 * 1024 * 1024,
		log:           log,
	}
	c.ch = channel.New(loop, fd)
	c.ch.SetReadCallback(c.handleRead)
	c.ch.SetWriteCallback(c.handleWrite)
	c.ch.SetCloseCallback(c.handleClose)
	c.ch.SetErrorCallback(c.handleError)
	return c
}

func (c *TcpConnection) Name() string       { return c.name }
func (c *TcpConnection) LocalAddress() Address { return c.local }
func (c *TcpConnection) PeerAddress() Address  { return c.peer }
func (c *TcpConnection) Connected() bool    { return c.state == stateConnected }
func (c *TcpConnection) FD() int            { return c.fd }

func (c *TcpConnection) SetConnectionCallback(cb ConnectionCallback)         { c.connectionCB = cb }
func (c *TcpConnection) SetMessageCallback(cb MessageCallback)               { c.messageCB = cb }
func (c *TcpConnection) SetWriteCompleteCallback(cb WriteCompleteCallback)   { c.writeCompleteCB = cb }
func (c *TcpConnection) SetCloseCallback(cb CloseCallback)                  { c.closeCB = cb }
func (c *TcpConnection) SetHighWaterMarkCallback(cb HighWaterMarkCallback, mark int) {
	c.highWaterMarkCB = cb
	c.highWaterMark = mark
}

// SetHighWaterMark overrides the output-buffer byte threshold that
// triggers highWaterMarkCB, independent of registering the callback
// itself (TcpServer uses this to apply a config.Store-derived value to
// every newly accepted connection).
func (c *TcpConnection) SetHighWaterMark(n int) { c.highWaterMark = n }

// ConnectEstablished transitions Connecting -> Connected and enables
// reading. Must be scheduled via loop.RunInLoop by the owner (TcpServer).
func (c *TcpConnection) ConnectEstablished() {
	c.loop.AssertInLoopThread()
	c.state = stateConnected
	c.ch.EnableReading()
	if c.connectionCB != nil {
		c.connectionCB(c)
	}
}

// ConnectDestroyed finalizes teardown; called after the close callback
// has removed the connection from its owner's registry.
func (c *TcpConnection) ConnectDestroyed() {
	c.loop.AssertInLoopThread()
	if c.state == stateConnected {
		c.state = stateDisconnected
		c.ch.DisableAll()
		if c.connectionCB != nil {
			c.connectionCB(c)
		}
	}
	c.ch.Remove()
	unix.Close(c.fd)
}

func (c *TcpConnection) handleRead() {
	c.loop.AssertInLoopThread()
	scratch := acquireScratch(65536)
	n, err := unix.Read(c.fd, scratch)
	switch {
	case n > 0:
		c.input.Append(scratch[:n])
		if c.messageCB != nil {
			c.messageCB(c, c.input)
		}
	case n == 0:
		c.handleClose()
	default:
		if err != unix.EAGAIN {
			c.handleError()
		}
	}
	releaseScratch(scratch)
}

func (c *TcpConnection) handleWrite() {
	c.loop.AssertInLoopThread()
	if !c.ch.IsWriting() {
		return
	}
	n, err := unix.Write(c.fd, c.output.Peek())
	if n > 0 {
		c.output.Retrieve(n)
		if c.output.ReadableBytes() == 0 {
			c.ch.DisableWriting()
			c.aboveHighWaterMark = false
			if c.writeCompleteCB != nil {
				cb := c.writeCompleteCB
				c.loop.QueueInLoop(func() { cb(c) })
			}
			if c.state == stateDisconnecting {
				c.shutdownInLoop()
			}
		}
	} else if err != nil && err != unix.EAGAIN {
		if err == unix.EPIPE || err == unix.ECONNRESET {
			c.log.Errorf("write error on %s: %v", c.name, err)
		} else {
			c.log.Warnf("write error on %s: %v", c.name, err)
		}
	}
}

func (c *TcpConnection) handleClose() {
	c.loop.AssertInLoopThread()
	if c.state != stateConnected && c.state != stateDisconnecting {
		return
	}
	c.state = stateDisconnected
	c.ch.DisableAll()

	guard := c
	if c.connectionCB != nil {
		c.connectionCB(guard)
	}
	if c.closeCB != nil {
		c.closeCB(guard)
	}
}

func (c *TcpConnection) handleError() {
	errno := getSocketError(c.fd)
	c.log.Errorf("connection %s socket error: %v", c.name, errno)
}

// Send queues message for write, writing synchronously to the socket if
// the loop thread is the caller and nothing is already buffered. Off the
// loop thread, data is copied before handing it to RunInLoop, matching
// original_source's send(const std::string&) overload, which always
// copies for the off-thread path (spec.md §8(b)).
func (c *TcpConnection) Send(data []byte) error {
	if c.state != stateConnected {
		return errs.ErrClosed
	}
	if c.loop.IsInLoopThread() {
		c.sendInLoop(data)
		return nil
	}
	cp := append([]byte(nil), data...)
	c.loop.RunInLoop(func() { c.sendInLoop(cp) })
	return nil
}

func (c *TcpConnection) sendInLoop(data []byte) {
	c.loop.AssertInLoopThread()
	if c.state == stateDisconnected {
		return
	}

	var nwrote int
	remaining := len(data)
	faultError := false

	if !c.ch.IsWriting() && c.output.ReadableBytes() == 0 {
		n, err := unix.Write(c.fd, data)
		if err == nil {
			nwrote = n
			remaining = len(data) - n
			if remaining == 0 && c.writeCompleteCB != nil {
				cb := c.writeCompleteCB
				c.loop.QueueInLoop(func() { cb(c) })
			}
		} else if err != unix.EAGAIN {
			if err == unix.EPIPE || err == unix.ECONNRESET {
				faultError = true
			}
		}
	}

	if !faultError && remaining > 0 {
		c.output.Append(data[nwrote:])
		if !c.ch.IsWriting() {
			c.ch.EnableWriting()
		}
		if !c.aboveHighWaterMark && c.output.ReadableBytes() >= c.highWaterMark {
			c.aboveHighWaterMark = true
			if c.highWaterMarkCB != nil {
				c.highWaterMarkCB(c, c.output.ReadableBytes())
			}
		}
	}
}

// Shutdown half-closes the write side once any buffered output drains.
func (c *TcpConnection) Shutdown() {
	if c.state != stateConnected {
		return
	}
	c.state = stateDisconnecting
	c.loop.RunInLoop(c.shutdownInLoop)
}

func (c *TcpConnection) shutdownInLoop() {
	c.loop.AssertInLoopThread()
	if !c.ch.IsWriting() {
		unix.Shutdown(c.fd, unix.SHUT_WR)
	}
}

// SetTCPNoDelay toggles Nagle's algorithm on the underlying socket.
func (c *TcpConnection) SetTCPNoDelay(on bool) {
	setTCPNoDelay(c.fd, on)
}

// SetKeepAlive toggles SO_KEEPALIVE on the underlying socket (spec.md
// §6), so a peer that vanishes without a FIN/RST is still eventually
// detected and torn down via handleError/handleClose.
func (c *TcpConnection) SetKeepAlive(on bool) {
	setKeepAlive(c.fd, on)
}

func getSocketError(fd int) error {
	errno, err := unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_ERROR)
	if err != nil {
		return err
	}
	if errno == 0 {
		return nil
	}
	return unix.Errno(errno)
}
