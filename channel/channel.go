// Package channel implements spec.md's Channel: a per-fd dispatcher
// holding an interest mask, the last observed revent mask, its
// membership tag with the Poller, and up to four callbacks.
//
// Grounded on original_source/include/hvnetpp/Channel.h and
// src/Channel.cpp: kReadEvent = EPOLLIN|EPOLLPRI, kWriteEvent = EPOLLOUT,
// and handleEvent's close -> error -> read -> write dispatch order.
package channel

import (
	"github.com/reactorforge/evloop/internal/poller"
)

// Owner is the subset of *loop.EventLoop a Channel needs, kept as an
// interface here to avoid an import cycle between channel and loop.
type Owner interface {
	UpdateChannel(*Channel)
	RemoveChannel(*Channel)
}

// Channel is the per-fd event dispatcher (spec.md §3, §4.4).
type Channel struct {
	owner Owner
	fd    int

	interest poller.Events
	revents  poller.Events
	tag      poller.Tag

	handling     bool
	removePended bool

	readFn  func()
	writeFn func()
	closeFn func()
	errorFn func()
}

// New creates a Channel for fd, owned by loop owner. The Channel starts
// with an empty interest set and Tag == New.
func New(owner Owner, fd int) *Channel {
	return &Channel{owner: owner, fd: fd, tag: poller.New}
}

func (c *Channel) FD() int                      { return c.fd }
func (c *Channel) Interest() poller.Events       { return c.interest }
func (c *Channel) SetRevents(e poller.Events)    { c.revents = e }
func (c *Channel) Tag() poller.Tag               { return c.tag }
func (c *Channel) SetTag(t poller.Tag)           { c.tag = t }
func (c *Channel) IsNoneEvent() bool             { return c.interest == 0 }
func (c *Channel) IsWriting() bool               { return c.interest&poller.EventWrite != 0 }
func (c *Channel) IsReading() bool               { return c.interest&poller.EventRead != 0 }

func (c *Channel) SetReadCallback(fn func())  { c.readFn = fn }
func (c *Channel) SetWriteCallback(fn func()) { c.writeFn = fn }
func (c *Channel) SetCloseCallback(fn func()) { c.closeFn = fn }
func (c *Channel) SetErrorCallback(fn func()) { c.errorFn = fn }

// EnableReading/DisableReading/EnableWriting/DisableWriting/DisableAll all
// propagate to the poller synchronously via the owning loop (spec.md §3
// invariant c).
func (c *Channel) EnableReading() {
	c.interest |= poller.EventRead
	c.update()
}

func (c *Channel) DisableReading() {
	c.interest &^= poller.EventRead
	c.update()
}

func (c *Channel) EnableWriting() {
	c.interest |= poller.EventWrite
	c.update()
}

func (c *Channel) DisableWriting() {
	c.interest &^= poller.EventWrite
	c.update()
}

func (c *Channel) DisableAll() {
	c.interest = 0
	c.update()
}

func (c *Channel) update() {
	c.owner.UpdateChannel(c)
}

// Remove asks the owning loop to deregister this Channel from the
// poller. Precondition: interest is empty.
func (c *Channel) Remove() {
	if c.handling {
		c.removePended = true
		return
	}
	c.owner.RemoveChannel(c)
}

// HandleEvent consults the observed revents and invokes callbacks in
// close -> error -> read -> write order (spec.md §4.4). A `handling`
// guard delays Remove until after this call returns.
func (c *Channel) HandleEvent() {
	c.handling = true
	if (c.revents&poller.EventHup != 0) && (c.revents&poller.EventRead == 0) {
		if c.closeFn != nil {
			c.closeFn()
		}
	}
	if c.revents&poller.EventErr != 0 {
		if c.errorFn != nil {
			c.errorFn()
		}
	}
	if c.revents&(poller.EventRead|poller.EventRdHup) != 0 {
		if c.readFn != nil {
			c.readFn()
		}
	}
	if c.revents&poller.EventWrite != 0 {
		if c.writeFn != nil {
			c.writeFn()
		}
	}
	c.handling = false
	if c.removePended {
		c.removePended = false
		c.owner.RemoveChannel(c)
	}
}
