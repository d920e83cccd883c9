// Package mem models the guest address space: a set of named, attributed
// Chunks mapping guest virtual addresses onto host-backed storage, plus the
// typed read/write and descriptor-marshalling primitives every other
// component builds requests on top of.
package mem

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sort"

	"github.com/jacobsa/syncutil"
)

// ErrBadAddress is returned by any access that touches an unmapped page or
// violates the chunk's access attributes.
var ErrBadAddress = errors.New("mem: bad address")

// ErrOverflow is returned by WriteDescriptor when the caller-supplied
// maximum length would be exceeded.
var ErrOverflow = errors.New("mem: descriptor overflow")

// Layout distinguishes the pre-v6 and v6+ guest memory layouts, a one-time
// initialisation parameter per spec.md §4.1.
type Layout int

const (
	// LayoutLegacy is used by guest images older than v6, which split RAM
	// and shared data differently from later versions.
	LayoutLegacy Layout = iota
	LayoutModern
)

// AddressSpace owns every Chunk mapped for one guest (there is one per
// kernel, shared by all processes; per-process local data chunks are simply
// chunks owned by that process).
type AddressSpace struct {
	mu syncutil.InvariantMutex

	layout  Layout
	nextID  ChunkID
	chunks  []*Chunk // GUARDED_BY(mu), sorted by Base
	byID    map[ChunkID]*Chunk
}

// NewAddressSpace creates an empty address space for the given guest
// memory layout.
func NewAddressSpace(layout Layout) *AddressSpace {
	as := &AddressSpace{
		layout: layout,
		byID:   make(map[ChunkID]*Chunk),
	}
	as.mu = syncutil.NewInvariantMutex(as.checkInvariants)
	return as
}

func (as *AddressSpace) checkInvariants() {
	for i := 1; i < len(as.chunks); i++ {
		if as.chunks[i-1].end() > as.chunks[i].Base {
			panic(fmt.Sprintf("overlapping chunks: %v and %v", as.chunks[i-1], as.chunks[i]))
		}
	}
}

// insert places c into the sorted chunk list, failing if it overlaps an
// existing mapping (chunk overlap is forbidden, per spec.md §3).
//
// LOCKS_REQUIRED(as.mu)
func (as *AddressSpace) insert(c *Chunk) error {
	idx := sort.Search(len(as.chunks), func(i int) bool { return as.chunks[i].Base >= c.Base })
	if idx > 0 && as.chunks[idx-1].end() > c.Base {
		return fmt.Errorf("mem: chunk %q overlaps %q", c.Name, as.chunks[idx-1].Name)
	}
	if idx < len(as.chunks) && c.end() > as.chunks[idx].Base {
		return fmt.Errorf("mem: chunk %q overlaps %q", c.Name, as.chunks[idx].Name)
	}

	as.chunks = append(as.chunks, nil)
	copy(as.chunks[idx+1:], as.chunks[idx:])
	as.chunks[idx] = c
	as.byID[c.ID] = c
	return nil
}

// MapROM maps an immutable, read+execute chunk named "rom" at base,
// backed by the supplied ROM image bytes. The ROM chunk is never freed
// early and never written to.
func (as *AddressSpace) MapROM(base Address, image []byte) (ChunkID, error) {
	as.mu.Lock()
	defer as.mu.Unlock()

	id := as.nextID
	as.nextID++

	c := newChunk(id, "rom", base, uint32(len(image)), Attr{Read: true, Execute: true})
	c.ROM = true
	copy(c.data, image)

	if err := as.insert(c); err != nil {
		return 0, err
	}
	return id, nil
}

// AllocChunk reserves a new chunk of the given size and attributes at the
// first address after the highest existing mapping, 4KiB-aligned.
func (as *AddressSpace) AllocChunk(name string, size uint32, attr Attr) (ChunkID, Address, error) {
	as.mu.Lock()
	defer as.mu.Unlock()

	const pageSize = 4096
	var base Address
	if n := len(as.chunks); n > 0 {
		last := as.chunks[n-1]
		base = last.end()
	} else {
		base = pageSize
	}
	if rem := uint32(base) % pageSize; rem != 0 {
		base += Address(pageSize - rem)
	}

	id := as.nextID
	as.nextID++

	c := newChunk(id, name, base, size, attr)
	if err := as.insert(c); err != nil {
		return 0, 0, err
	}

	return id, base, nil
}

// FreeChunk drops a reference on the chunk; once the refcount reaches zero
// the chunk is unmapped. Freeing a ROM chunk is always a no-op error.
func (as *AddressSpace) FreeChunk(id ChunkID) error {
	as.mu.Lock()
	defer as.mu.Unlock()

	c, ok := as.byID[id]
	if !ok {
		return fmt.Errorf("mem: unknown chunk %d", id)
	}
	if c.ROM {
		return fmt.Errorf("mem: cannot free the ROM chunk")
	}

	c.RefCount--
	if c.RefCount > 0 {
		return nil
	}

	delete(as.byID, id)
	for i, x := range as.chunks {
		if x.ID == id {
			as.chunks = append(as.chunks[:i], as.chunks[i+1:]...)
			break
		}
	}
	return nil
}

// chunkFor returns the chunk covering [addr, addr+n), or nil.
//
// LOCKS_REQUIRED(as.mu)
func (as *AddressSpace) chunkFor(addr Address, n uint32) *Chunk {
	idx := sort.Search(len(as.chunks), func(i int) bool { return as.chunks[i].end() > addr })
	if idx == len(as.chunks) {
		return nil
	}
	c := as.chunks[idx]
	if !c.contains(addr, n) {
		return nil
	}
	return c
}

// ReadBytes copies n bytes starting at addr out of the address space.
func (as *AddressSpace) ReadBytes(addr Address, n uint32) ([]byte, error) {
	as.mu.Lock()
	defer as.mu.Unlock()

	c := as.chunkFor(addr, n)
	if c == nil || !c.Attr.Read {
		return nil, ErrBadAddress
	}
	off := uint32(addr - c.Base)
	out := make([]byte, n)
	copy(out, c.data[off:off+n])
	return out, nil
}

// WriteBytes copies src into the address space starting at addr.
func (as *AddressSpace) WriteBytes(addr Address, src []byte) error {
	as.mu.Lock()
	defer as.mu.Unlock()

	c := as.chunkFor(addr, uint32(len(src)))
	if c == nil || !c.Attr.Write {
		return ErrBadAddress
	}
	off := uint32(addr - c.Base)
	copy(c.data[off:off+uint32(len(src))], src)
	return nil
}

// Read32 reads a little-endian uint32 at addr.
func (as *AddressSpace) Read32(addr Address) (uint32, error) {
	b, err := as.ReadBytes(addr, 4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

// Write32 writes a little-endian uint32 at addr.
func (as *AddressSpace) Write32(addr Address, v uint32) error {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	return as.WriteBytes(addr, b[:])
}

// Read64 reads a little-endian uint64 at addr.
func (as *AddressSpace) Read64(addr Address) (uint64, error) {
	b, err := as.ReadBytes(addr, 8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

// Write64 writes a little-endian uint64 at addr.
func (as *AddressSpace) Write64(addr Address, v uint64) error {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	return as.WriteBytes(addr, b[:])
}
