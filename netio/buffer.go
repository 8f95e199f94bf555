package netio

import "sync"

// sizeClasses mirrors the teacher's pool.BufferPoolManager size-class
// table (core/buffer/bufferpool.go), trimmed to the range a TcpConnection
// or UdpSocket actually needs and stripped of its NUMA-node dimension —
// this engine is single-threaded, so one sync.Pool per class is enough.
var sizeClasses = [...]int{
	4 * 1024,
	16 * 1024,
	64 * 1024,
	256 * 1024,
}

func sizeClassUpperBound(size int) int {
	for _, c := range sizeClasses {
		if size <= c {
			return c
		}
	}
	return sizeClasses[len(sizeClasses)-1]
}

var classPools = func() map[int]*sync.Pool {
	m := make(map[int]*sync.Pool, len(sizeClasses))
	for _, c := range sizeClasses {
		class := c
		m[class] = &sync.Pool{New: func() any {
			b := make([]byte, class)
			return &b
		}}
	}
	return m
}()

func acquireScratch(minSize int) []byte {
	class := sizeClassUpperBound(minSize)
	pool, ok := classPools[class]
	if !ok {
		return make([]byte, minSize)
	}
	b := pool.Get().(*[]byte)
	return (*b)[:class]
}

func releaseScratch(b []byte) {
	class := cap(b)
	if pool, ok := classPools[class]; ok {
		full := b[:class]
		pool.Put(&full)
	}
}

// Buffer is spec.md's growable byte accumulator for TcpConnection's
// input/output sides: a read index and a write-extent over a backing
// slice, growing geometrically rather than per-byte (original_source's
// Buffer.h, ported as a plain Go slice-with-offsets instead of a
// readable/writable-prepend ring, since Go has no placement-new
// equivalent to reuse the teacher's exact layout).
type Buffer struct {
	buf        []byte
	readerIdx  int
	writerIdx  int
}

const bufferInitialSize = 1024

// NewBuffer returns an empty Buffer with a small initial capacity.
func NewBuffer() *Buffer {
	return &Buffer{buf: make([]byte, bufferInitialSize)}
}

// ReadableBytes returns the number of unread bytes.
func (b *Buffer) ReadableBytes() int { return b.writerIdx - b.readerIdx }

// Peek returns the unread bytes without consuming them.
func (b *Buffer) Peek() []byte { return b.buf[b.readerIdx:b.writerIdx] }

// Retrieve consumes n bytes from the front.
func (b *Buffer) Retrieve(n int) {
	if n < b.ReadableBytes() {
		b.readerIdx += n
		return
	}
	b.RetrieveAll()
}

// RetrieveAll consumes the entire buffer, resetting both indices.
func (b *Buffer) RetrieveAll() {
	b.readerIdx = 0
	b.writerIdx = 0
}

// RetrieveAllAsBytes consumes and returns a copy of the unread bytes.
func (b *Buffer) RetrieveAllAsBytes() []byte {
	out := append([]byte(nil), b.Peek()...)
	b.RetrieveAll()
	return out
}

// Append copies data onto the writable end, growing as needed.
func (b *Buffer) Append(data []byte) {
	b.ensureWritable(len(data))
	b.writerIdx += copy(b.buf[b.writerIdx:], data)
}

func (b *Buffer) writableBytes() int { return len(b.buf) - b.writerIdx }

func (b *Buffer) ensureWritable(n int) {
	if b.writableBytes() >= n {
		return
	}
	readable := b.ReadableBytes()
	if b.readerIdx+b.writableBytes() >= n {
		copy(b.buf, b.buf[b.readerIdx:b.writerIdx])
		b.readerIdx = 0
		b.writerIdx = readable
		return
	}
	newCap := len(b.buf) * 2
	for newCap < readable+n {
		newCap *= 2
	}
	grown := make([]byte, newCap)
	copy(grown, b.buf[b.readerIdx:b.writerIdx])
	b.buf = grown
	b.readerIdx = 0
	b.writerIdx = readable
}
