package poller

import (
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

// fakeHandle is a minimal Handle for exercising the Poller without a
// real Channel.
type fakeHandle struct {
	fd       int
	interest Events
	revents  Events
	tag      Tag
}

func (h *fakeHandle) FD() int                   { return h.fd }
func (h *fakeHandle) Interest() Events           { return h.interest }
func (h *fakeHandle) SetRevents(e Events)        { h.revents = e }
func (h *fakeHandle) Tag() Tag                   { return h.tag }
func (h *fakeHandle) SetTag(t Tag)               { h.tag = t }

func TestPoller_RegisterAndPollEventfd(t *testing.T) {
	p, err := New()
	require.NoError(t, err)
	defer p.Close()

	efd, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	require.NoError(t, err)
	defer unix.Close(efd)

	h := &fakeHandle{fd: efd, interest: EventRead}
	require.NoError(t, p.Update(h))
	require.Equal(t, Added, h.Tag())

	var one [8]byte
	one[0] = 1
	_, err = unix.Write(efd, one[:])
	require.NoError(t, err)

	active, err := p.Poll(1000, nil)
	require.NoError(t, err)
	require.Len(t, active, 1)
	require.Equal(t, efd, active[0].FD())

	h.interest = 0
	require.NoError(t, p.Remove(h))
	require.Equal(t, New, h.Tag())
}

func TestPoller_GrowsEventBufferWhenFull(t *testing.T) {
	p, err := New()
	require.NoError(t, err)
	defer p.Close()
	require.Equal(t, initialEventListSize, len(p.events))

	// Fill every slot of the event buffer with a ready eventfd.
	for i := 0; i < initialEventListSize; i++ {
		efd, err := unix.Eventfd(1, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
		require.NoError(t, err)
		defer unix.Close(efd)
		require.NoError(t, p.Update(&fakeHandle{fd: efd, interest: EventRead}))
	}

	active, err := p.Poll(1000, nil)
	require.NoError(t, err)
	require.Len(t, active, initialEventListSize)
	require.Equal(t, 2*initialEventListSize, len(p.events))
}
