// Package poller wraps Linux epoll, tracking fd -> handle registration
// state the way the original engine's Poller tracks fd -> Channel*.
//
// Grounded on momentics-hioload-ws/reactor/epoll_reactor.go and
// reactor/reactor_linux.go (epoll_create1/epoll_ctl/epoll_wait via
// golang.org/x/sys/unix), cross-checked against original_source's
// Poller.cpp for the exact tri-state membership tag and the
// doubling-event-buffer-on-full behavior.
package poller

import (
	"golang.org/x/sys/unix"

	"github.com/reactorforge/evloop/internal/errs"
)

// Tag is a Channel's membership state with the poller (spec.md §3).
type Tag int

const (
	New Tag = iota
	Added
	Deleted
)

// Events is the interest/revent bitmask, expressed in raw EPOLL* bits.
// channel.Channel stores and tests these bits directly, so this package
// never needs to import channel (which would cycle).
type Events uint32

const (
	EventRead  Events = unix.EPOLLIN | unix.EPOLLPRI
	EventWrite Events = unix.EPOLLOUT
	EventErr   Events = unix.EPOLLERR
	EventHup   Events = unix.EPOLLHUP
	EventRdHup Events = unix.EPOLLRDHUP
)

// Handle is anything the poller can register: an fd plus the interest
// mask it currently wants, and a place to stash observed revents and the
// membership tag. channel.Channel implements this.
type Handle interface {
	FD() int
	Interest() Events
	SetRevents(Events)
	Tag() Tag
	SetTag(Tag)
}

const initialEventListSize = 16

// Poller is the epoll(7) wrapper.
type Poller struct {
	epfd     int
	channels map[int]Handle
	events   []unix.EpollEvent
}

// New creates an epoll instance.
func New() (*Poller, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, errs.Wrap(errs.CodeRegistrationFailed, "epoll_create1 failed", err)
	}
	return &Poller{
		epfd:     epfd,
		channels: make(map[int]Handle),
		events:   make([]unix.EpollEvent, initialEventListSize),
	}, nil
}

// Update registers, modifies, or deregisters h against epoll depending on
// its current Tag and interest mask (spec.md §4.3).
func (p *Poller) Update(h Handle) error {
	switch h.Tag() {
	case New, Deleted:
		var ev unix.EpollEvent
		ev.Events = uint32(h.Interest())
		ev.Fd = int32(h.FD())
		if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_ADD, h.FD(), &ev); err != nil {
			return errs.Wrap(errs.CodeRegistrationFailed, "epoll_ctl add failed", err).WithContext("fd", h.FD())
		}
		h.SetTag(Added)
		p.channels[h.FD()] = h
	default:
		if h.Interest() == 0 {
			if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, h.FD(), nil); err != nil {
				return errs.Wrap(errs.CodeInternal, "epoll_ctl del failed", err).WithContext("fd", h.FD())
			}
			h.SetTag(Deleted)
		} else {
			var ev unix.EpollEvent
			ev.Events = uint32(h.Interest())
			ev.Fd = int32(h.FD())
			if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_MOD, h.FD(), &ev); err != nil {
				return errs.Wrap(errs.CodeRegistrationFailed, "epoll_ctl mod failed", err).WithContext("fd", h.FD())
			}
		}
	}
	return nil
}

// Remove deregisters h entirely. Precondition: h.Interest() == 0 and
// h.Tag() in {Added, Deleted} (spec.md §4.3).
func (p *Poller) Remove(h Handle) error {
	delete(p.channels, h.FD())
	if h.Tag() == Added {
		if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, h.FD(), nil); err != nil {
			return errs.Wrap(errs.CodeInternal, "epoll_ctl del failed", err).WithContext("fd", h.FD())
		}
	}
	h.SetTag(New)
	return nil
}

// Poll blocks up to timeoutMs and appends every ready Handle to active.
// On EINTR it returns an empty list without error (spec.md §4.3).
func (p *Poller) Poll(timeoutMs int, active []Handle) ([]Handle, error) {
	active = active[:0]
	n, err := unix.EpollWait(p.epfd, p.events, timeoutMs)
	if err != nil {
		if err == unix.EINTR {
			return active, nil
		}
		return active, errs.Wrap(errs.CodeInternal, "epoll_wait failed", err)
	}
	for i := 0; i < n; i++ {
		fd := int(p.events[i].Fd)
		h, ok := p.channels[fd]
		if !ok {
			continue
		}
		h.SetRevents(Events(p.events[i].Events))
		active = append(active, h)
	}
	if n == len(p.events) {
		p.events = make([]unix.EpollEvent, len(p.events)*2)
	}
	return active, nil
}

// Close releases the epoll fd.
func (p *Poller) Close() error {
	return unix.Close(p.epfd)
}
