// Package timing implements the emulator's virtual clock: a monotonically
// increasing tick counter driven by the CPU engine's advance signals, plus
// a scheduled-event min-heap (spec.md §4.3).
package timing

import (
	"container/heap"

	"github.com/jacobsa/syncutil"
)

// Tick is a count of virtual clock ticks since the emulator booted.
type Tick uint64

// IdleQuantum is the number of ticks Idle advances by when no event is
// pending.
const IdleQuantum Tick = 1000

// Event is invoked when its scheduled deadline has been reached.
type Event func()

type entry struct {
	deadline Tick
	seq      uint64 // insertion order, for deadline ties
	fn       Event
}

type eventHeap []*entry

func (h eventHeap) Len() int { return len(h) }
func (h eventHeap) Less(i, j int) bool {
	if h[i].deadline != h[j].deadline {
		return h[i].deadline < h[j].deadline
	}
	return h[i].seq < h[j].seq
}
func (h eventHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *eventHeap) Push(x any)   { *h = append(*h, x.(*entry)) }
func (h *eventHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	*h = old[:n-1]
	return e
}

// Clock is the kernel's virtual clock: ticks only advance when Advance or
// Idle is called by the scheduler, never on a wall-clock timer.
type Clock struct {
	mu      syncutil.InvariantMutex
	now     Tick // GUARDED_BY(mu)
	heap    eventHeap
	nextSeq uint64
}

// New creates a clock starting at tick 0 with an empty event heap.
func New() *Clock {
	c := &Clock{}
	c.mu = syncutil.NewInvariantMutex(c.checkInvariants)
	return c
}

func (c *Clock) checkInvariants() {
	for i := 1; i < len(c.heap); i++ {
		// heap.Init/Push/Pop maintain heap order; nothing stronger to assert.
	}
}

// Now returns the current virtual time.
func (c *Clock) Now() Tick {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Schedule places fn in the event heap, to fire once Now() >= the deadline
// c.now+delay at the time of scheduling.
func (c *Clock) Schedule(delay Tick, fn Event) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e := &entry{deadline: c.now + delay, seq: c.nextSeq, fn: fn}
	c.nextSeq++
	heap.Push(&c.heap, e)
}

// Advance moves now forward by delta ticks and fires every event whose
// deadline has been reached, in deadline order (ties broken by insertion
// order).
func (c *Clock) Advance(delta Tick) {
	c.mu.Lock()
	c.now += delta
	var due []*entry
	for len(c.heap) > 0 && c.heap[0].deadline <= c.now {
		due = append(due, heap.Pop(&c.heap).(*entry))
	}
	c.mu.Unlock()

	for _, e := range due {
		e.fn()
	}
}

// Idle advances now to the next scheduled deadline, or by IdleQuantum if
// the heap is empty, then fires whatever is now due.
func (c *Clock) Idle() {
	c.mu.Lock()
	var delta Tick
	if len(c.heap) > 0 {
		delta = c.heap[0].deadline - c.now
		if delta == 0 {
			delta = 1
		}
	} else {
		delta = IdleQuantum
	}
	c.mu.Unlock()

	c.Advance(delta)
}

// Pending reports whether any event is still scheduled.
func (c *Clock) Pending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.heap) > 0
}
