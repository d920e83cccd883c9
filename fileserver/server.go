package fileserver

import (
	"fmt"

	"github.com/mobcore/emu/ipc"
	"github.com/mobcore/emu/kernel"
	"github.com/mobcore/emu/status"
	"github.com/mobcore/emu/vfs"
)

// writeHandle writes h as a little-endian 4-byte package into slot i, the
// ABI the file server uses to return a new FS-node handle.
func writeHandle(c *ipc.Context, i, h int) {
	buf := make([]byte, 4)
	ipc.PutUint32LE(buf, uint32(h))
	_ = c.WritePackage(i, buf)
}

// Opcode numbering for the file server's dispatch table (spec.md §4.8).
const (
	OpFileOpen kernel.Opcode = iota + 1
	OpFileCreate
	OpFileReplace
	OpFileTemp
	OpFileRead
	OpFileWrite
	OpFileSetSize
	OpFileSeek
	OpFileClose
	OpRename
	OpReplace
	OpDelete
	OpExist
	OpMkDir
	OpMkDirAll
	OpReadDir

	// OpNotifyChange and OpNotifyChangeEx set the opcode high bit
	// (spec.md §4.6 "Async opcodes"): their handlers register a notify
	// rather than completing inline.
	OpNotifyChange   = kernel.Opcode(0x8000) | 16
	OpNotifyChangeEx = kernel.Opcode(0x8000) | 17
)

// CurrentOffset is the sentinel position argument meaning "use the node's
// current offset" (spec.md §4.8 FileRead/FileWrite).
const CurrentOffset = 0x80000000

// maxFileSize rejects FileSetSize requests at or above this size with
// status.TooBig (spec.md §4.8).
const maxFileSize = 1 << 30

// sessionState is the file server's per-session extension of kernel.Session
// (spec.md §4.8: "Per session: a working directory").
type sessionState struct {
	wd vfs.Path
}

// Server is the file server: a VFS, a 256-slot FS-node table, and the
// notify registry (spec.md §4.8).
type Server struct {
	K     *kernel.Kernel
	VFS   *vfs.VFS
	Nodes *NodeTable

	notify *notifyRegistry
	tmpSeq int
}

// New creates a file server bound to vfs and k.
func New(k *kernel.Kernel, v *vfs.VFS) *Server {
	return &Server{K: k, VFS: v, Nodes: NewNodeTable(), notify: newNotifyRegistry()}
}

// KernelServer builds the kernel.Server this file server registers as
// "!FileServer" (spec.md §4.4 naming convention for system servers).
func (s *Server) KernelServer() *kernel.Server {
	srv := kernel.NewServer("!FileServer", s.onConnect, s)
	srv.Handlers[OpFileOpen] = s.handleOpen
	srv.Handlers[OpFileCreate] = s.handleCreate
	srv.Handlers[OpFileReplace] = s.handleReplace
	srv.Handlers[OpFileTemp] = s.handleTemp
	srv.Handlers[OpFileRead] = s.handleRead
	srv.Handlers[OpFileWrite] = s.handleWrite
	srv.Handlers[OpFileSetSize] = s.handleSetSize
	srv.Handlers[OpFileSeek] = s.handleSeek
	srv.Handlers[OpFileClose] = s.handleClose
	srv.Handlers[OpRename] = s.handleRename
	srv.Handlers[OpReplace] = s.handleReplaceEntry
	srv.Handlers[OpDelete] = s.handleDelete
	srv.Handlers[OpExist] = s.handleExist
	srv.Handlers[OpMkDir] = s.handleMkDir
	srv.Handlers[OpMkDirAll] = s.handleMkDirAll
	srv.Handlers[OpReadDir] = s.handleReadDir
	srv.Handlers[OpNotifyChange] = s.handleNotify(ChangeAll)
	srv.Handlers[OpNotifyChangeEx] = s.handleNotifyEx
	return srv
}

func (s *Server) onConnect(k *kernel.Kernel, sess *kernel.Session) status.Code {
	sess.State = &sessionState{wd: "C:\\"}
	return status.None
}

func sessState(sess *kernel.Session) *sessionState {
	st, _ := sess.State.(*sessionState)
	if st == nil {
		st = &sessionState{wd: "C:\\"}
	}
	return st
}

// resolve turns slot i's descriptor into an absolute path against the
// session's working directory (spec.md §4.7 absolute_path).
func (s *Server) resolve(c *ipc.Context, i int) (vfs.Path, error) {
	raw, err := c.GetDescriptor(i)
	if err != nil {
		return "", err
	}
	wd := sessState(c.Session()).wd
	return vfs.AbsolutePath(string(raw), wd), nil
}

// handleOpen implements FileOpen (spec.md §4.8): resolve, consult the
// handle table for an existing node at the same path, compose share modes
// on a hit, or open fresh from the VFS.
func (s *Server) handleOpen(k *kernel.Kernel, msg *kernel.Message) {
	c := ipc.New(k, msg)
	path, err := s.resolve(c, 0)
	if err != nil {
		c.Complete(status.Argument)
		return
	}
	mode := vfs.OpenMode(c.Int(1))
	share := ShareMode(c.Int(2))

	h, code := s.openOrCompose(c.Session().Process.ID, path, mode, share, false, false)
	if code != status.None {
		c.Complete(code)
		return
	}
	writeHandle(c, 3, h)
	c.Complete(status.None)
}

func (s *Server) openOrCompose(owner kernel.ProcessID, path vfs.Path, mode vfs.OpenMode, share ShareMode, create, exclusive bool) (int, status.Code) {
	if h, existing, ok := s.Nodes.findByPath(path); ok {
		composed, ok := composeShare(share, existing.Share, existing.Owner == owner, existing.HasWriter)
		if !ok {
			return 0, status.AccessDenied
		}
		existing.Share = composed
		existing.RefCount++
		if mode&vfs.ModeWrite != 0 {
			existing.HasWriter = true
		}

		// Identical mode reuses the existing handle; otherwise a new handle
		// is allocated sharing the same underlying Node, so each opener
		// can close independently without disturbing the other (spec.md
		// §4.8: "return the existing handle if modes are identical,
		// otherwise allocate a new handle sharing the underlying vfs
		// file").
		if mode == existing.Mode {
			return h, status.None
		}
		newH := s.Nodes.Alloc(owner, existing)
		if newH < 0 {
			existing.RefCount--
			return 0, status.General
		}
		return newH, status.None
	}

	if create && exclusive && s.VFS.Exist(path) {
		return 0, status.AlreadyExists
	}

	openMode := mode
	if create {
		openMode |= vfs.ModeCreate
	}
	f, err := s.VFS.OpenFile(path, openMode)
	if err != nil {
		return 0, status.NotFound
	}

	n := &Node{Active: true, Path: path, File: f, Mode: mode, Share: share, Owner: owner, HasWriter: mode&vfs.ModeWrite != 0, RefCount: 1}
	h := s.Nodes.Alloc(owner, n)
	if h < 0 {
		f.Close()
		return 0, status.General
	}
	return h, status.None
}

// handleCreate implements FileCreate: fails AlreadyExists if path exists
// (spec.md §4.8).
func (s *Server) handleCreate(k *kernel.Kernel, msg *kernel.Message) {
	c := ipc.New(k, msg)
	path, err := s.resolve(c, 0)
	if err != nil {
		c.Complete(status.Argument)
		return
	}
	mode := vfs.OpenMode(c.Int(1))
	share := ShareMode(c.Int(2))

	h, code := s.openOrCompose(c.Session().Process.ID, path, mode, share, true, true)
	if code != status.None {
		c.Complete(code)
		return
	}
	writeHandle(c, 3, h)
	c.Complete(status.None)
}

// handleReplace implements FileReplace: opens, truncating any existing
// file, never failing on an existing path (spec.md §4.8).
func (s *Server) handleReplace(k *kernel.Kernel, msg *kernel.Message) {
	c := ipc.New(k, msg)
	path, err := s.resolve(c, 0)
	if err != nil {
		c.Complete(status.Argument)
		return
	}
	mode := vfs.OpenMode(c.Int(1)) | vfs.ModeTruncate
	share := ShareMode(c.Int(2))

	f, ferr := s.VFS.OpenFile(path, mode|vfs.ModeCreate)
	if ferr != nil {
		c.Complete(status.NotFound)
		return
	}
	n := &Node{Active: true, Path: path, File: f, Mode: mode, Share: share, Owner: c.Session().Process.ID, HasWriter: true, RefCount: 1}
	h := s.Nodes.Alloc(c.Session().Process.ID, n)
	if h < 0 {
		f.Close()
		c.Complete(status.General)
		return
	}
	writeHandle(c, 3, h)
	c.Complete(status.None)
}

// handleTemp implements FileTemp: generates a unique name within the
// supplied directory and marks the node temporary (spec.md §4.8).
func (s *Server) handleTemp(k *kernel.Kernel, msg *kernel.Message) {
	c := ipc.New(k, msg)
	dir, err := s.resolve(c, 0)
	if err != nil {
		c.Complete(status.Argument)
		return
	}

	var path vfs.Path
	for {
		s.tmpSeq++
		path = vfs.Path(fmt.Sprintf("%s\\tmp%04d.tmp", string(dir), s.tmpSeq))
		if !s.VFS.Exist(path) {
			break
		}
	}

	mode := vfs.OpenMode(c.Int(1))
	f, ferr := s.VFS.OpenFile(path, mode|vfs.ModeCreate|vfs.ModeExclusiveCreate)
	if ferr != nil {
		c.Complete(status.General)
		return
	}
	n := &Node{Active: true, Path: path, File: f, Mode: mode, Share: ShareReadersOrWriters, Owner: c.Session().Process.ID, Temporary: true, HasWriter: true, RefCount: 1}
	h := s.Nodes.Alloc(c.Session().Process.ID, n)
	if h < 0 {
		f.Close()
		c.Complete(status.General)
		return
	}

	_ = c.WriteDescriptor(2, []byte(path))
	writeHandle(c, 3, h)
	c.Complete(status.None)
}
