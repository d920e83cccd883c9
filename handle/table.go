// Package handle implements the generic slotted handle table shared by the
// kernel's object table and the file server's FS-node table (spec.md §3,
// §4.2): a fixed-capacity array of owner-attributed slots addressed by
// small, 1-based integer handles.
package handle

import "github.com/jacobsa/syncutil"

// OwnerKind names the category of kernel object that holds a handle.
type OwnerKind int

const (
	OwnerNone OwnerKind = iota
	OwnerKernel
	OwnerProcess
	OwnerThread
)

type slot struct {
	free     bool
	owner    OwnerKind
	ownerID  int
}

// Table is a fixed-capacity array of handle slots. Handle 0 is always
// invalid; live handles are 1-based indices into the array.
//
// INVARIANT: a live handle's slot has free == false
// INVARIANT: original-index (the handle value) never changes for the
// lifetime of the slot it names
type Table struct {
	mu       syncutil.InvariantMutex
	slots    []slot // GUARDED_BY(mu)
	capacity int
}

// New creates a handle table with the given fixed capacity.
func New(capacity int) *Table {
	t := &Table{capacity: capacity}
	t.mu = syncutil.NewInvariantMutex(t.checkInvariants)
	return t
}

func (t *Table) checkInvariants() {
	if len(t.slots) > t.capacity {
		panic("handle: slot count exceeds capacity")
	}
}

// NewHandle allocates the first free slot (scanning left-to-right) and
// attributes it to the given owner. It returns -1 if the table is full.
func (t *Table) NewHandle(owner OwnerKind, ownerID int) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	for i := range t.slots {
		if t.slots[i].free {
			t.slots[i] = slot{owner: owner, ownerID: ownerID}
			return i + 1
		}
	}

	if len(t.slots) >= t.capacity {
		return -1
	}

	t.slots = append(t.slots, slot{owner: owner, ownerID: ownerID})
	return len(t.slots)
}

// FreeHandle marks h's slot free. It returns false, performing no mutation,
// if h is out of range or already free.
func (t *Table) FreeHandle(h int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if h <= 0 || h > len(t.slots) {
		return false
	}
	s := &t.slots[h-1]
	if s.free {
		return false
	}
	*s = slot{free: true}
	return true
}

// OwnerOf returns the owner kind and ID for a live handle. For a free or
// out-of-range handle it returns (OwnerNone, 0).
func (t *Table) OwnerOf(h int) (OwnerKind, int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if h <= 0 || h > len(t.slots) {
		return OwnerNone, 0
	}
	s := t.slots[h-1]
	if s.free {
		return OwnerNone, 0
	}
	return s.owner, s.ownerID
}

// FreeAllByOwner marks every non-free slot belonging to ownerID (within the
// given kind) as free, in a single pass.
func (t *Table) FreeAllByOwner(owner OwnerKind, ownerID int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for i := range t.slots {
		s := &t.slots[i]
		if !s.free && s.owner == owner && s.ownerID == ownerID {
			*s = slot{free: true}
		}
	}
}
