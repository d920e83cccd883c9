package vfs

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jacobsa/syncutil"
	"github.com/jacobsa/timeutil"
)

// romNode is one file or directory baked into a ROM image (spec.md §4.7,
// "Environment": drive Z is reserved for the ROM image). Every romNode is
// immutable after Boot lays the image out; its mutex, mirrored from the
// teacher's per-inode invariant mutex, is taken by romFile.ReadAt around
// reads of contents even though ROM content itself never changes.
type romNode struct {
	mu syncutil.InvariantMutex

	name     string // base name only
	dir      bool
	contents []byte
	children map[string]*romNode // lower-cased key -> node, dir only
	modTime  time.Time
}

func (n *romNode) checkInvariants() {
	if n.dir && n.contents != nil {
		panic("vfs: ROM directory node has contents")
	}
	if !n.dir && n.children != nil {
		panic("vfs: ROM file node has children")
	}
}

// ROMProvider is a read-only Provider backed by an in-memory file tree,
// typically populated once at Boot from the guest ROM image (spec.md §4.7).
type ROMProvider struct {
	clock timeutil.Clock
	root  *romNode
}

// NewROMProvider creates an empty ROM tree. Use AddFile to populate it
// before mounting; intermediate directories are created as needed.
func NewROMProvider(clock timeutil.Clock) *ROMProvider {
	root := &romNode{name: "", dir: true, children: map[string]*romNode{}, modTime: clock.Now()}
	root.mu = syncutil.NewInvariantMutex(root.checkInvariants)
	return &ROMProvider{clock: clock, root: root}
}

func (p *ROMProvider) walk(rest string, create bool) (*romNode, error) {
	n := p.root
	if rest == "" {
		return n, nil
	}
	for _, part := range strings.Split(rest, "\\") {
		if part == "" {
			continue
		}
		key := strings.ToLower(part)
		child, ok := n.children[key]
		if !ok {
			if !create {
				return nil, errNotFound
			}
			child = &romNode{name: part, dir: true, children: map[string]*romNode{}, modTime: p.clock.Now()}
			child.mu = syncutil.NewInvariantMutex(child.checkInvariants)
			n.children[key] = child
		}
		n = child
	}
	return n, nil
}

// AddFile bakes a file at rest (backslash-separated, relative to the drive
// root) into the image, creating intermediate directories as needed.
func (p *ROMProvider) AddFile(rest string, contents []byte) error {
	dir, name := splitDir(rest)
	parent, err := p.walk(dir, true)
	if err != nil {
		return err
	}
	node := &romNode{name: name, contents: contents, modTime: p.clock.Now()}
	node.mu = syncutil.NewInvariantMutex(node.checkInvariants)
	parent.children[strings.ToLower(name)] = node
	return nil
}

func (p *ROMProvider) Open(path string, mode OpenMode) (File, error) {
	if mode&(ModeWrite|ModeAppend|ModeCreate) != 0 {
		return nil, errReadOnly
	}
	n, err := p.walk(path, false)
	if err != nil {
		return nil, err
	}
	if n.dir {
		return nil, fmt.Errorf("vfs: %q is a directory", path)
	}
	return &romFile{node: n}, nil
}

func (p *ROMProvider) Exist(path string) bool {
	_, err := p.walk(path, false)
	return err == nil
}

func (p *ROMProvider) Delete(path string) error           { return errReadOnly }
func (p *ROMProvider) Rename(src, dst string, _ bool) error { return errReadOnly }
func (p *ROMProvider) Mkdir(path string) error             { return errReadOnly }
func (p *ROMProvider) MkdirAll(path string) error          { return errReadOnly }

func (p *ROMProvider) Stat(path string) (EntryInfo, error) {
	n, err := p.walk(path, false)
	if err != nil {
		return EntryInfo{}, err
	}
	info := EntryInfo{LastWrite: n.modTime, Attrs: AttrWriteProtected}
	if n.dir {
		info.Type = EntryDirectory
	} else {
		info.Size = int64(len(n.contents))
	}
	return info, nil
}

func (p *ROMProvider) OpenDir(path, filter string) (Dir, error) {
	n, err := p.walk(path, false)
	if err != nil {
		return nil, err
	}
	if !n.dir {
		return nil, fmt.Errorf("vfs: %q is not a directory", path)
	}
	names := make([]string, 0, len(n.children))
	for _, c := range n.children {
		if matchFilter(c.name, filter) {
			names = append(names, c.name)
		}
	}
	sort.Strings(names)
	return &sliceDir{names: names}, nil
}

type romFile struct {
	node *romNode
	mu   sync.Mutex
}

func (f *romFile) ReadAt(buf []byte, pos int64) (int, error) {
	f.node.mu.Lock()
	defer f.node.mu.Unlock()
	if pos >= int64(len(f.node.contents)) {
		return 0, nil
	}
	return copy(buf, f.node.contents[pos:]), nil
}

func (f *romFile) WriteAt(buf []byte, pos int64) (int, error) { return 0, errReadOnly }
func (f *romFile) SetSize(n int64) error                      { return errReadOnly }
func (f *romFile) Size() (int64, error) {
	return int64(len(f.node.contents)), nil
}
func (f *romFile) Close() error { return nil }

type sliceDir struct {
	names []string
	i     int
}

func (d *sliceDir) Next() (string, bool, error) {
	if d.i >= len(d.names) {
		return "", false, nil
	}
	name := d.names[d.i]
	d.i++
	return name, true, nil
}

func (d *sliceDir) Close() error { return nil }
