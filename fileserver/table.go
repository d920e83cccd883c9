package fileserver

import (
	"github.com/jacobsa/syncutil"

	"github.com/mobcore/emu/handle"
	"github.com/mobcore/emu/kernel"
	"github.com/mobcore/emu/vfs"
)

// NodeCapacity is the file server's FS-node table size, kept separate from
// the kernel-wide generic handle table (spec.md §4.8: "256 slots").
const NodeCapacity = 256

// NodeTable is the file server's FS handle table: handle.Table supplies
// allocation/ownership bookkeeping, nodes carries the FS-specific payload
// per slot.
type NodeTable struct {
	mu     syncutil.InvariantMutex
	ids    *handle.Table
	nodes  map[int]*Node // handle -> node, GUARDED_BY(mu)
}

// NewNodeTable creates an empty 256-slot FS-node table.
func NewNodeTable() *NodeTable {
	t := &NodeTable{ids: handle.New(NodeCapacity), nodes: make(map[int]*Node)}
	t.mu = syncutil.NewInvariantMutex(func() {})
	return t
}

// findByPath returns the handle and node presently open at path, if any
// (spec.md §4.8: "at most one active entry per {path, sharing discipline}").
func (t *NodeTable) findByPath(path vfs.Path) (int, *Node, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for h, n := range t.nodes {
		if n.Active && vfs.EqualFold(n.Path, path) {
			return h, n, true
		}
	}
	return 0, nil, false
}

// Alloc allocates a new handle for n, owned by owner.
func (t *NodeTable) Alloc(owner kernel.ProcessID, n *Node) int {
	h := t.ids.NewHandle(handle.OwnerProcess, int(owner))
	if h < 0 {
		return -1
	}
	t.mu.Lock()
	t.nodes[h] = n
	t.mu.Unlock()
	return h
}

// Get returns the node for handle h.
func (t *NodeTable) Get(h int) (*Node, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	n, ok := t.nodes[h]
	return n, ok
}

// Free releases handle h's slot.
func (t *NodeTable) Free(h int) {
	t.ids.FreeHandle(h)
	t.mu.Lock()
	delete(t.nodes, h)
	t.mu.Unlock()
}
