package ringbuf

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRing_WrapIsContiguous(t *testing.T) {
	r, err := New(16) // 64KiB
	require.NoError(t, err)
	defer r.Close()

	size := r.Size()
	msg := []byte("the quick brown fox jumps over the lazy dog")

	// Place the write so it straddles the wrap point; a mirrored mapping
	// must still hand back a single contiguous slice.
	off := size - uintptr(len(msg)/2)
	b := r.At(off, len(msg))
	copy(b, msg)

	got := r.At(off, len(msg))
	require.Equal(t, msg, got)
}

func TestRing_MaskWraps(t *testing.T) {
	r, err := New(12) // 4KiB
	require.NoError(t, err)
	defer r.Close()

	require.Equal(t, r.Size()-1, r.Mask())
}

func TestNew_RejectsOutOfRangeOrder(t *testing.T) {
	_, err := New(4)
	require.Error(t, err)
	_, err = New(40)
	require.Error(t, err)
}
