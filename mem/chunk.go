package mem

import "fmt"

// Address is a guest virtual address. The guest CPU is 32-bit, so addresses
// never exceed the uint32 range even though we carry them as a wider type
// for arithmetic convenience.
type Address uint32

// Attr describes the access rights and population policy of a Chunk.
type Attr struct {
	Read           bool
	Write          bool
	Execute        bool
	CommitOnDemand bool
}

// ChunkID identifies a live Chunk within an AddressSpace.
type ChunkID int

// Chunk is a named, reference-counted region of guest address space. Once
// mapped, its base and size never change; only its refcount and (for
// commit-on-demand chunks) its committed pages do.
//
// INVARIANT: Size > 0
// INVARIANT: ROM chunks have Attr.Write == false and are never freed early
type Chunk struct {
	ID       ChunkID
	Name     string
	Base     Address
	Size     uint32
	Attr     Attr
	RefCount int
	ROM      bool

	data []byte
}

func newChunk(id ChunkID, name string, base Address, size uint32, attr Attr) *Chunk {
	return &Chunk{
		ID:       id,
		Name:     name,
		Base:     base,
		Size:     size,
		Attr:     attr,
		RefCount: 1,
		data:     make([]byte, size),
	}
}

func (c *Chunk) end() Address {
	return c.Base + Address(c.Size)
}

func (c *Chunk) contains(addr Address, n uint32) bool {
	if addr < c.Base {
		return false
	}
	end := uint64(addr) + uint64(n)
	return end <= uint64(c.end())
}

func (c *Chunk) String() string {
	return fmt.Sprintf("chunk %q [0x%08x, 0x%08x) attr=%+v", c.Name, c.Base, c.end(), c.Attr)
}
