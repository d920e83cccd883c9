package fileserver

import (
	"github.com/mobcore/emu/ipc"
	"github.com/mobcore/emu/kernel"
	"github.com/mobcore/emu/status"
	"github.com/mobcore/emu/vfs"
)

func nodeForHandle(s *Server, c *ipc.Context, slot int) (int, *Node, status.Code) {
	h := int(c.Int(slot))
	n, ok := s.Nodes.Get(h)
	if !ok || !n.Active {
		return 0, nil, status.BadHandle
	}
	return h, n, status.None
}

// handleRead implements FileRead: clamps length to size-pos, honors
// CurrentOffset (spec.md §4.8).
func (s *Server) handleRead(k *kernel.Kernel, msg *kernel.Message) {
	c := ipc.New(k, msg)
	_, n, code := nodeForHandle(s, c, 0)
	if code != status.None {
		c.Complete(code)
		return
	}
	if n.Mode&vfs.ModeRead == 0 {
		c.Complete(status.AccessDenied)
		return
	}

	pos := int64(c.Int(1))
	if c.Int(1) == CurrentOffset {
		pos = n.offset
	}
	length := int64(c.Int(2))

	size, err := n.File.Size()
	if err != nil {
		c.Complete(status.FromError(err))
		return
	}
	if pos > size {
		pos = size
	}
	if remaining := size - pos; length > remaining {
		length = remaining
	}

	buf := make([]byte, length)
	if length > 0 {
		if _, err := n.File.ReadAt(buf, pos); err != nil {
			c.Complete(status.FromError(err))
			return
		}
	}
	n.offset = pos + length

	code2 := c.WriteDescriptor(3, buf)
	c.Complete(code2)
}

// handleWrite implements FileWrite: writes beyond EOF first seek to the
// current offset, never past it (spec.md §4.8).
func (s *Server) handleWrite(k *kernel.Kernel, msg *kernel.Message) {
	c := ipc.New(k, msg)
	_, n, code := nodeForHandle(s, c, 0)
	if code != status.None {
		c.Complete(code)
		return
	}
	if n.Mode&(vfs.ModeWrite|vfs.ModeAppend) == 0 {
		c.Complete(status.AccessDenied)
		return
	}

	pos := int64(c.Int(1))
	if c.Int(1) == CurrentOffset {
		pos = n.offset
	}
	if pos > n.offset {
		pos = n.offset
	}

	data, err := c.GetDescriptor(2)
	if err != nil {
		c.Complete(status.Argument)
		return
	}

	if _, err := n.File.WriteAt(data, pos); err != nil {
		c.Complete(status.FromError(err))
		return
	}
	n.offset = pos + int64(len(data))
	c.Complete(status.None)
}

// handleSetSize implements FileSetSize: requires write/append access,
// rejects sizes >= 1GiB, clamps the offset on truncation (spec.md §4.8).
func (s *Server) handleSetSize(k *kernel.Kernel, msg *kernel.Message) {
	c := ipc.New(k, msg)
	_, n, code := nodeForHandle(s, c, 0)
	if code != status.None {
		c.Complete(code)
		return
	}
	if n.Mode&(vfs.ModeWrite|vfs.ModeAppend) == 0 {
		c.Complete(status.AccessDenied)
		return
	}
	newSize := int64(c.Int(1))
	if newSize >= maxFileSize {
		c.Complete(status.TooBig)
		return
	}
	if err := n.File.SetSize(newSize); err != nil {
		c.Complete(status.FromError(err))
		return
	}
	if n.offset > newSize {
		n.offset = newSize
	}
	c.Complete(status.None)
}

// Seek mode constants (spec.md §4.8 FileSeek).
const (
	SeekAddress = 0 // ROM-image only
	SeekBegin   = 1
	SeekCurrent = 2
	SeekEnd     = 3
)

// handleSeek implements FileSeek (spec.md §4.8). Mode 0 ("address") seeks
// like SeekBegin but is only valid against a ROM-backed node.
func (s *Server) handleSeek(k *kernel.Kernel, msg *kernel.Message) {
	c := ipc.New(k, msg)
	_, n, code := nodeForHandle(s, c, 0)
	if code != status.None {
		c.Complete(code)
		return
	}
	mode := c.Int(1)
	offset := int64(int32(c.Int(2)))

	size, err := n.File.Size()
	if err != nil {
		c.Complete(status.FromError(err))
		return
	}

	var newPos int64
	switch mode {
	case SeekAddress:
		letter, ok := n.Path.Drive()
		if !ok || s.VFS.Drive(letter).Media != vfs.MediaROM {
			c.Complete(status.NotSupported)
			return
		}
		newPos = offset
	case SeekBegin:
		newPos = offset
	case SeekCurrent:
		newPos = n.offset + offset
	case SeekEnd:
		newPos = size + offset
	default:
		c.Complete(status.NotSupported)
		return
	}
	if newPos < 0 || newPos > size {
		c.Complete(status.Argument)
		return
	}
	n.offset = newPos

	buf := make([]byte, 8)
	ipc.PutUint64LE(buf, uint64(newPos))
	_ = c.WritePackage(3, buf)
	c.Complete(status.None)
}

// handleClose implements the implicit close path: decrements the node's
// refcount, and on reaching zero closes the VFS file and deletes the path
// if the node was temporary (spec.md §4.8 "closed deletes the backing path
// if temporary?").
func (s *Server) handleClose(k *kernel.Kernel, msg *kernel.Message) {
	c := ipc.New(k, msg)
	h, n, code := nodeForHandle(s, c, 0)
	if code != status.None {
		c.Complete(code)
		return
	}

	n.RefCount--
	if n.RefCount > 0 {
		s.Nodes.Free(h)
		c.Complete(status.None)
		return
	}

	n.Active = false
	_ = n.File.Close()
	if n.Temporary {
		s.VFS.DeleteEntry(n.Path)
	}
	s.Nodes.Free(h)
	s.notify.fire(k, n.Path, ChangeFile)
	c.Complete(status.None)
}

// handleRename implements Rename: fails AlreadyExists if the destination
// exists (spec.md §4.8).
func (s *Server) handleRename(k *kernel.Kernel, msg *kernel.Message) {
	c := ipc.New(k, msg)
	src, err := s.resolve(c, 0)
	if err != nil {
		c.Complete(status.Argument)
		return
	}
	dst, err := s.resolve(c, 1)
	if err != nil {
		c.Complete(status.Argument)
		return
	}
	if s.VFS.Exist(dst) {
		c.Complete(status.AlreadyExists)
		return
	}
	if !s.VFS.Rename(src, dst) {
		c.Complete(status.General)
		return
	}
	s.notify.fire(k, src, ChangeFile)
	s.notify.fire(k, dst, ChangeFile)
	c.Complete(status.None)
}

// handleReplaceEntry implements Replace: overwrites any destination
// (spec.md §4.8).
func (s *Server) handleReplaceEntry(k *kernel.Kernel, msg *kernel.Message) {
	c := ipc.New(k, msg)
	src, err := s.resolve(c, 0)
	if err != nil {
		c.Complete(status.Argument)
		return
	}
	dst, err := s.resolve(c, 1)
	if err != nil {
		c.Complete(status.Argument)
		return
	}
	if !s.VFS.Replace(src, dst) {
		c.Complete(status.General)
		return
	}
	s.notify.fire(k, src, ChangeFile)
	s.notify.fire(k, dst, ChangeFile)
	c.Complete(status.None)
}

// handleDelete implements Delete.
func (s *Server) handleDelete(k *kernel.Kernel, msg *kernel.Message) {
	c := ipc.New(k, msg)
	path, err := s.resolve(c, 0)
	if err != nil {
		c.Complete(status.Argument)
		return
	}
	if !s.VFS.DeleteEntry(path) {
		c.Complete(status.NotFound)
		return
	}
	s.notify.fire(k, path, ChangeFile)
	c.Complete(status.None)
}

func (s *Server) handleExist(k *kernel.Kernel, msg *kernel.Message) {
	c := ipc.New(k, msg)
	path, err := s.resolve(c, 0)
	if err != nil {
		c.Complete(status.Argument)
		return
	}
	if !s.VFS.Exist(path) {
		c.Complete(status.NotFound)
		return
	}
	c.Complete(status.None)
}

func (s *Server) handleMkDir(k *kernel.Kernel, msg *kernel.Message) {
	c := ipc.New(k, msg)
	path, err := s.resolve(c, 0)
	if err != nil {
		c.Complete(status.Argument)
		return
	}
	c.Complete(status.FromError(s.VFS.CreateDirectory(path)))
}

func (s *Server) handleMkDirAll(k *kernel.Kernel, msg *kernel.Message) {
	c := ipc.New(k, msg)
	path, err := s.resolve(c, 0)
	if err != nil {
		c.Complete(status.Argument)
		return
	}
	c.Complete(status.FromError(s.VFS.CreateDirectories(path)))
}

// handleReadDir implements ReadDir (spec.md §9 Open Question: "read_dir
// writes the entry into a local variable but never back to the guest
// buffer"; resolved here the way read_dir_packed does it). Slot 0 is the
// directory path, slot 1 an optional wildcard filter, slot 2 the
// descriptor-out buffer entries are packed into as a sequence of
// <uint32 name length><name bytes> records.
func (s *Server) handleReadDir(k *kernel.Kernel, msg *kernel.Message) {
	c := ipc.New(k, msg)
	path, err := s.resolve(c, 0)
	if err != nil {
		c.Complete(status.Argument)
		return
	}
	filterBytes, err := c.GetDescriptor(1)
	if err != nil {
		c.Complete(status.Argument)
		return
	}
	filter := string(filterBytes)
	if filter == "" {
		filter = "*"
	}

	dir, derr := s.VFS.OpenDir(path, filter)
	if derr != nil {
		c.Complete(status.NotFound)
		return
	}
	defer dir.Close()

	var packed []byte
	for {
		name, ok, nerr := dir.Next()
		if nerr != nil {
			c.Complete(status.General)
			return
		}
		if !ok {
			break
		}
		lenBuf := make([]byte, 4)
		ipc.PutUint32LE(lenBuf, uint32(len(name)))
		packed = append(packed, lenBuf...)
		packed = append(packed, []byte(name)...)
	}

	c.Complete(c.WriteDescriptor(2, packed))
}

// handleNotify implements NotifyChange: every mutation kind matches
// (spec.md §4.8).
func (s *Server) handleNotify(kinds ChangeKind) kernel.Handler {
	return func(k *kernel.Kernel, msg *kernel.Message) {
		c := ipc.New(k, msg)
		pattern, err := c.GetDescriptor(0)
		if err != nil {
			c.Complete(status.Argument)
			return
		}
		pr := c.RegisterNotify()
		s.notify.register(string(pattern), kinds, pr)
	}
}

// handleNotifyEx implements NotifyChangeEx: the caller supplies an explicit
// kinds mask in slot 1 (spec.md §4.8).
func (s *Server) handleNotifyEx(k *kernel.Kernel, msg *kernel.Message) {
	c := ipc.New(k, msg)
	pattern, err := c.GetDescriptor(0)
	if err != nil {
		c.Complete(status.Argument)
		return
	}
	kinds := ChangeKind(c.Int(1))
	pr := c.RegisterNotify()
	s.notify.register(string(pattern), kinds, pr)
}
