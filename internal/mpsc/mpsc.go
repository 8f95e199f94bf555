// Package mpsc implements spec.md's MpscTaskQueue: a lock-free
// multi-producer/single-consumer queue of fixed 64-byte slots layered
// over a ringbuf.Ring, ported from the original engine's MpscQueue<T>
// (reserve/commit/peek/consume over a mirrored CircularBuffer).
package mpsc

import (
	"sync/atomic"
	"unsafe"

	"github.com/reactorforge/evloop/internal/errs"
	"github.com/reactorforge/evloop/internal/ringbuf"
)

const slotSize = 64

// rawSlot is the mmap-backed record: only the commit tag lives in the
// ring's raw memory, padded to a 64-byte cache line. The ring's backing
// store is anonymous mmap'd memory never allocated by the Go runtime, so
// the garbage collector does not scan it for pointers — a *Task stored
// only here would be invisible to the GC root set and could be collected
// out from under a pending Consume. The task payload itself therefore
// lives in Queue.tasks, an ordinary Go-heap slice the GC does scan; the
// ring only ever carries the commit flag used to detect when a producer
// has finished publishing into that side table.
type rawSlot struct {
	committed atomic.Uint32
	_         [64 - 4]byte
}

// Task is the payload type posted through the queue.
type Task func()

// Queue is the bounded MPSC ring of Tasks.
type Queue struct {
	ring  *ringbuf.Ring
	head  atomic.Uint64
	tail  atomic.Uint64
	tasks []atomic.Pointer[Task] // GC-visible side table, one entry per slot
}

// New creates a queue whose ring has 1<<order bytes of slot storage
// (order must be large enough to hold at least one slot; capacity in
// slots is (1<<order)/64).
func New(order uint) (*Queue, error) {
	r, err := ringbuf.New(order)
	if err != nil {
		return nil, err
	}
	capacity := uint64(r.Size()) / slotSize
	return &Queue{ring: r, tasks: make([]atomic.Pointer[Task], capacity)}, nil
}

// Close releases the backing ring.
func (q *Queue) Close() error { return q.ring.Close() }

func (q *Queue) rawSlotAt(off uint64) *rawSlot {
	b := q.ring.At(uintptr(off), slotSize)
	return (*rawSlot)(unsafe.Pointer(&b[0]))
}

func (q *Queue) taskIndex(off uint64) uint64 {
	return (off / slotSize) % uint64(len(q.tasks))
}

// slot identifies one claimed ring position. It is an ordinary Go-heap
// value (not backed by the mmap region), returned by Reserve/Peek and
// consumed by Commit/Consume/Task.
type slot struct {
	q   *Queue
	off uint64
}

// Reserve atomically claims a slot for a producer. Returns errs.ErrQueueFull
// when the ring is full (spec.md §4.2, §7: Queue full → task dropped).
func (q *Queue) Reserve() (*slot, error) {
	size := uint64(q.ring.Size())
	for {
		head := q.head.Load()
		tail := q.tail.Load()
		if tail-head > size-slotSize {
			return nil, errs.ErrQueueFull
		}
		if q.tail.CompareAndSwap(tail, tail+slotSize) {
			return &slot{q: q, off: tail}, nil
		}
	}
}

// Commit publishes a slot's task with release ordering and a non-zero tag.
// The task is stored in the Go-heap side table first so it is reachable
// for the GC before the mmap'd commit flag (the only thing a consumer on
// another goroutine actually synchronizes on) goes up.
func (q *Queue) Commit(s *slot, task Task) {
	boxed := task
	q.tasks[q.taskIndex(s.off)].Store(&boxed)
	q.rawSlotAt(s.off).committed.Store(1)
}

// Peek returns the slot at head if the producer has finished committing
// it, else nil (spec.md §4.2: zero tag means producer not finished).
func (q *Queue) Peek() *slot {
	head := q.head.Load()
	tail := q.tail.Load()
	if head == tail {
		return nil
	}
	if q.rawSlotAt(head).committed.Load() == 0 {
		return nil
	}
	return &slot{q: q, off: head}
}

// Task returns the payload stored in a slot returned by Peek.
func (s *slot) Task() Task {
	return *s.q.tasks[s.q.taskIndex(s.off)].Load()
}

// Consume zeros and advances past a slot previously returned by Peek.
func (q *Queue) Consume(s *slot) {
	q.tasks[q.taskIndex(s.off)].Store(nil)
	q.rawSlotAt(s.off).committed.Store(0)
	q.head.Add(slotSize)
}

// Reserve+Commit convenience used by callers that only need fire-and-forget.
func (q *Queue) Push(task Task) error {
	s, err := q.Reserve()
	if err != nil {
		return err
	}
	q.Commit(s, task)
	return nil
}
