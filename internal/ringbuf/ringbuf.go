// Package ringbuf implements spec.md's MirroredRingBuffer: a power-of-two
// byte ring mapped twice back-to-back in virtual memory so that any
// record up to size bytes long appears contiguous even when it straddles
// the wrap point at size.
//
// The double-map dance (reserve 2*size with PROT_NONE, then MAP_FIXED two
// views of the same pages into the first and second half) is the same
// technique pault.ag/go/go-diskring uses for its disk-backed ring, ported
// here onto an anonymous memfd instead of a caller-supplied file. The
// mappings are made with golang.org/x/sys/unix's raw Syscall6(SYS_MMAP)
// and Syscall(SYS_MUNMAP), since they need caller-chosen fixed addresses.
package ringbuf

import (
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/reactorforge/evloop/internal/errs"
)

// Ring is a mirrored ring buffer of a fixed power-of-two size.
type Ring struct {
	fd   int
	size uintptr // bytes, power of two

	base uintptr // address of the 2*size reservation
	buf  []byte  // 2*size bytes aliasing [base, base+2*size)
}

// New allocates a mirrored ring of 1<<order bytes.
func New(order uint) (*Ring, error) {
	if order < 12 || order > 30 {
		return nil, errs.New(errs.CodeInvalidArgument, "ring order out of range").WithContext("order", order)
	}
	size := uintptr(1) << order

	fd, err := unix.MemfdCreate("evloop-ring", 0)
	if err != nil {
		return nil, errs.Wrap(errs.CodeResourceExhausted, "memfd_create failed", err)
	}
	if err := unix.Ftruncate(fd, int64(size)); err != nil {
		unix.Close(fd)
		return nil, errs.Wrap(errs.CodeResourceExhausted, "ftruncate failed", err)
	}

	// Reserve 2*size contiguous bytes of address space with no backing,
	// so the two real mappings below are guaranteed adjacent.
	base, _, errno := unix.Syscall6(unix.SYS_MMAP, 0, uintptr(size*2),
		unix.PROT_NONE, unix.MAP_ANON|unix.MAP_PRIVATE, ^uintptr(0), 0)
	if errno != 0 {
		unix.Close(fd)
		return nil, errs.Wrap(errs.CodeResourceExhausted, "reservation mmap failed", errno)
	}

	one, _, errno := unix.Syscall6(unix.SYS_MMAP, base, size,
		unix.PROT_READ|unix.PROT_WRITE, unix.MAP_FIXED|unix.MAP_SHARED, uintptr(fd), 0)
	if errno != 0 {
		munmapRaw(base, size*2)
		unix.Close(fd)
		return nil, errs.Wrap(errs.CodeResourceExhausted, "first half mmap failed", errno)
	}
	if one != base {
		munmapRaw(base, size*2)
		unix.Close(fd)
		return nil, errs.New(errs.CodeInternal, "mmap did not honor MAP_FIXED for first half")
	}

	two, _, errno := unix.Syscall6(unix.SYS_MMAP, base+size, size,
		unix.PROT_READ|unix.PROT_WRITE, unix.MAP_FIXED|unix.MAP_SHARED, uintptr(fd), 0)
	if errno != 0 {
		munmapRaw(base, size*2)
		unix.Close(fd)
		return nil, errs.Wrap(errs.CodeResourceExhausted, "second half mmap failed", errno)
	}
	if two != base+size {
		munmapRaw(base, size*2)
		unix.Close(fd)
		return nil, errs.New(errs.CodeInternal, "mmap did not honor MAP_FIXED for mirror half")
	}

	return &Ring{
		fd:   fd,
		size: size,
		base: base,
		buf:  unsafe.Slice((*byte)(unsafe.Pointer(base)), int(size*2)),
	}, nil
}

// Size returns the ring's single-copy capacity in bytes.
func (r *Ring) Size() uintptr { return r.size }

// Mask returns size-1, useful for callers computing offsets themselves.
func (r *Ring) Mask() uintptr { return r.size - 1 }

// At returns a contiguous view of length bytes starting at the logical
// offset off (mod size); this always succeeds for length <= size because
// of the mirrored mapping.
func (r *Ring) At(off uintptr, length int) []byte {
	o := off & (r.size - 1)
	return r.buf[o : o+uintptr(length)]
}

// Close unmaps both views, the reservation, and closes the backing memfd.
func (r *Ring) Close() error {
	if r.base == 0 {
		return nil
	}
	munmapRaw(r.base, r.size*2)
	r.base = 0
	r.buf = nil
	return unix.Close(r.fd)
}

func munmapRaw(addr, length uintptr) {
	unix.Syscall(unix.SYS_MUNMAP, addr, length, 0)
}
