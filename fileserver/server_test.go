package fileserver_test

import (
	"testing"

	"github.com/jacobsa/timeutil"
	"github.com/stretchr/testify/require"

	"github.com/mobcore/emu/fileserver"
	"github.com/mobcore/emu/kernel"
	"github.com/mobcore/emu/mem"
	"github.com/mobcore/emu/status"
	"github.com/mobcore/emu/vfs"
)

// harness wires a Kernel + file server together and gives each test a ready
// process/thread/session to drive opcodes through.
type harness struct {
	t       *testing.T
	as      *mem.AddressSpace
	k       *kernel.Kernel
	fs      *fileserver.Server
	vfs     *vfs.VFS
	rom     *vfs.ROMProvider
	nextPID kernel.ProcessID
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	as := mem.NewAddressSpace(mem.LayoutModern)
	k := kernel.New(as, nil, nil, nil, nil)
	v := vfs.New()
	rom := vfs.NewROMProvider(timeutil.RealClock())
	v.AddFilesystem('Z', vfs.MediaROM, vfs.AttrWriteProtected, rom)
	v.AddFilesystem('C', vfs.MediaPhysical, vfs.AttrInternal, vfs.NewPhysicalProvider(t.TempDir()))

	fsrv := fileserver.New(k, v)
	require.Equal(t, status.None, k.RegisterServer(fsrv.KernelServer()))

	return &harness{t: t, as: as, k: k, fs: fsrv, vfs: v, rom: rom}
}

func (h *harness) newProcessSession(t *testing.T) (*kernel.Process, *kernel.Thread, *kernel.Session) {
	h.nextPID++
	p := &kernel.Process{ID: h.nextPID, Sessions: make(map[kernel.SessionID]*kernel.Session)}
	sess, code := h.k.CreateSession(p, "!FileServer")
	require.Equal(t, status.None, code)

	_, statusAddr, err := h.as.AllocChunk("status", 4, mem.Attr{Read: true, Write: true})
	require.NoError(t, err)
	th := &kernel.Thread{ID: 1, Process: p, RequestStatusAddr: statusAddr, State: kernel.ThreadReady}
	p.Threads = append(p.Threads, th)

	return p, th, sess
}

func (h *harness) readStatus(addr mem.Address) status.Code {
	v, err := h.as.Read32(addr)
	require.NoError(h.t, err)
	return status.Code(int32(v))
}

func (h *harness) writeDescriptor(t *testing.T, s string) mem.Address {
	_, dataAddr, err := h.as.AllocChunk("d", uint32(len(s))+1, mem.Attr{Read: true, Write: true})
	require.NoError(t, err)
	require.NoError(t, h.as.WriteBytes(dataAddr, []byte(s)))
	_, hdrAddr, err := h.as.AllocChunk("h", 8, mem.Attr{Read: true, Write: true})
	require.NoError(t, err)
	require.NoError(t, h.as.NewDescriptorHeader(hdrAddr, dataAddr, false, false, uint32(len(s)), 0))
	return hdrAddr
}

// outHandleSlot allocates a modifiable 4-byte package slot for an opcode to
// write a new FS-node handle back into.
func (h *harness) outHandleSlot(t *testing.T) mem.Address {
	_, addr, err := h.as.AllocChunk("outh", 4, mem.Attr{Read: true, Write: true})
	require.NoError(t, err)
	return addr
}

func (h *harness) readHandle(t *testing.T, addr mem.Address) int {
	v, err := h.as.Read32(addr)
	require.NoError(t, err)
	return int(v)
}

func (h *harness) open(t *testing.T, th *kernel.Thread, sess *kernel.Session, op kernel.Opcode, path string, mode vfs.OpenMode, share fileserver.ShareMode) (int, status.Code) {
	pathAddr := h.writeDescriptor(t, path)
	outAddr := h.outHandleSlot(t)

	msg := &kernel.Message{
		Opcode: op,
		Args: [4]kernel.Arg{
			{Kind: kernel.ArgDescriptorIn, Value: uint32(pathAddr)},
			{Kind: kernel.ArgImmediate, Value: uint32(mode)},
			{Kind: kernel.ArgImmediate, Value: uint32(share)},
			{Kind: kernel.ArgPackage, Value: uint32(outAddr)},
		},
	}
	h.k.Send(th, sess, msg)

	code := h.readStatus(th.RequestStatusAddr)
	if code != status.None {
		return 0, code
	}
	return h.readHandle(t, outAddr), code
}

func (h *harness) close(t *testing.T, th *kernel.Thread, sess *kernel.Session, handle int) status.Code {
	msg := &kernel.Message{
		Opcode: fileserver.OpFileClose,
		Args:   [4]kernel.Arg{{Kind: kernel.ArgImmediate, Value: uint32(handle)}},
	}
	h.k.Send(th, sess, msg)
	return h.readStatus(th.RequestStatusAddr)
}

func TestShareDenialThenOkAfterClose(t *testing.T) {
	h := newHarness(t)
	_, th1, s1 := h.newProcessSession(t)
	_, th2, s2 := h.newProcessSession(t)

	h1, code := h.open(t, th1, s1, fileserver.OpFileCreate, `C:\a.txt`, vfs.ModeRead|vfs.ModeWrite, fileserver.ShareExclusive)
	require.Equal(t, status.None, code)

	_, code = h.open(t, th2, s2, fileserver.OpFileOpen, `C:\a.txt`, vfs.ModeRead, fileserver.ShareExclusive)
	require.Equal(t, status.AccessDenied, code)

	require.Equal(t, status.None, h.close(t, th1, s1, h1))

	h2, code := h.open(t, th2, s2, fileserver.OpFileOpen, `C:\a.txt`, vfs.ModeRead, fileserver.ShareExclusive)
	require.Equal(t, status.None, code)
	require.Equal(t, status.None, h.close(t, th2, s2, h2))
}

func TestFileCreateFailsAlreadyExists(t *testing.T) {
	h := newHarness(t)
	_, th, s := h.newProcessSession(t)

	h1, code := h.open(t, th, s, fileserver.OpFileCreate, `C:\dup.txt`, vfs.ModeRead|vfs.ModeWrite, fileserver.ShareReadersOrWriters)
	require.Equal(t, status.None, code)
	require.Equal(t, status.None, h.close(t, th, s, h1))

	_, code = h.open(t, th, s, fileserver.OpFileCreate, `C:\dup.txt`, vfs.ModeRead|vfs.ModeWrite, fileserver.ShareReadersOrWriters)
	require.Equal(t, status.AlreadyExists, code)
}

func TestFileReplaceTruncates(t *testing.T) {
	h := newHarness(t)
	_, th, s := h.newProcessSession(t)

	hnd, code := h.open(t, th, s, fileserver.OpFileCreate, `C:\r.txt`, vfs.ModeRead|vfs.ModeWrite, fileserver.ShareReadersOrWriters)
	require.Equal(t, status.None, code)

	writeMsg := &kernel.Message{
		Opcode: fileserver.OpFileWrite,
		Args: [4]kernel.Arg{
			{Kind: kernel.ArgImmediate, Value: uint32(hnd)},
			{Kind: kernel.ArgImmediate, Value: 0},
			{Kind: kernel.ArgDescriptorIn, Value: uint32(h.writeDescriptor(t, "hello world"))},
		},
	}
	h.k.Send(th, s, writeMsg)
	require.Equal(t, status.None, h.readStatus(th.RequestStatusAddr))
	require.Equal(t, status.None, h.close(t, th, s, hnd))

	hnd2, code := h.open(t, th, s, fileserver.OpFileReplace, `C:\r.txt`, vfs.ModeRead|vfs.ModeWrite, fileserver.ShareReadersOrWriters)
	require.Equal(t, status.None, code)

	info, err := h.vfs.GetEntryInfo(vfs.Path(`C:\r.txt`))
	require.NoError(t, err)
	require.Equal(t, int64(0), info.Size)
	require.Equal(t, status.None, h.close(t, th, s, hnd2))
}

func TestNotifyChangeExFiresOnMatchingDelete(t *testing.T) {
	h := newHarness(t)
	_, th, s := h.newProcessSession(t)
	require.NoError(t, h.vfs.CreateDirectories(vfs.Path(`C:\watch`)))

	hnd, code := h.open(t, th, s, fileserver.OpFileCreate, `C:\watch\a.log`, vfs.ModeRead|vfs.ModeWrite, fileserver.ShareReadersOrWriters)
	require.Equal(t, status.None, code)
	require.Equal(t, status.None, h.close(t, th, s, hnd))

	patternAddr := h.writeDescriptor(t, `C:\watch\*.log`)
	notifyMsg := &kernel.Message{
		Opcode: fileserver.OpNotifyChangeEx,
		Args: [4]kernel.Arg{
			{Kind: kernel.ArgDescriptorIn, Value: uint32(patternAddr)},
			{Kind: kernel.ArgImmediate, Value: uint32(fileserver.ChangeFile)},
		},
	}
	h.k.Send(th, s, notifyMsg)
	require.Equal(t, kernel.ThreadWaitingOnRequest, th.State)

	deleteMsg := &kernel.Message{
		Opcode: fileserver.OpDelete,
		Args:   [4]kernel.Arg{{Kind: kernel.ArgDescriptorIn, Value: uint32(h.writeDescriptor(t, `C:\watch\a.log`))}},
	}
	_, th2, s2 := h.newProcessSession(t)
	h.k.Send(th2, s2, deleteMsg)

	require.Equal(t, kernel.ThreadReady, th.State)
	require.Equal(t, status.None, h.readStatus(th.RequestStatusAddr))
}

// writeDescriptorOut allocates an empty, modifiable descriptor of the
// given capacity for a handler to pack an out-buffer into.
func (h *harness) writeDescriptorOut(t *testing.T, capacity uint32) mem.Address {
	_, dataAddr, err := h.as.AllocChunk("od", capacity, mem.Attr{Read: true, Write: true})
	require.NoError(t, err)
	_, hdrAddr, err := h.as.AllocChunk("oh", 12, mem.Attr{Read: true, Write: true})
	require.NoError(t, err)
	require.NoError(t, h.as.NewDescriptorHeader(hdrAddr, dataAddr, false, true, 0, capacity))
	return hdrAddr
}

func TestReadDirPacksMatchingEntriesIntoOutBuffer(t *testing.T) {
	h := newHarness(t)
	_, th, s := h.newProcessSession(t)
	require.NoError(t, h.vfs.CreateDirectories(vfs.Path(`C:\dir`)))

	for _, name := range []string{"a.txt", "b.txt", "c.log"} {
		hnd, code := h.open(t, th, s, fileserver.OpFileCreate, `C:\dir\`+name, vfs.ModeRead|vfs.ModeWrite, fileserver.ShareReadersOrWriters)
		require.Equal(t, status.None, code)
		require.Equal(t, status.None, h.close(t, th, s, hnd))
	}

	outAddr := h.writeDescriptorOut(t, 256)
	msg := &kernel.Message{
		Opcode: fileserver.OpReadDir,
		Args: [4]kernel.Arg{
			{Kind: kernel.ArgDescriptorIn, Value: uint32(h.writeDescriptor(t, `C:\dir`))},
			{Kind: kernel.ArgDescriptorIn, Value: uint32(h.writeDescriptor(t, "*.txt"))},
			{Kind: kernel.ArgDescriptorOut, Value: uint32(outAddr)},
		},
	}
	h.k.Send(th, s, msg)
	require.Equal(t, status.None, h.readStatus(th.RequestStatusAddr))

	packed, err := h.as.ReadDescriptor(outAddr)
	require.NoError(t, err)

	var got []string
	for len(packed) > 0 {
		n := int(packed[0]) | int(packed[1])<<8 | int(packed[2])<<16 | int(packed[3])<<24
		packed = packed[4:]
		got = append(got, string(packed[:n]))
		packed = packed[n:]
	}
	require.Equal(t, []string{"a.txt", "b.txt"}, got)
}

func TestSeekAddressModeOnlyValidForROMNode(t *testing.T) {
	h := newHarness(t)
	_, th, s := h.newProcessSession(t)
	require.NoError(t, h.rom.AddFile(`img.rom`, []byte("0123456789")))

	romH, code := h.open(t, th, s, fileserver.OpFileOpen, `Z:\img.rom`, vfs.ModeRead, fileserver.ShareAny)
	require.Equal(t, status.None, code)

	_, outAddr, err := h.as.AllocChunk("seekout", 8, mem.Attr{Read: true, Write: true})
	require.NoError(t, err)
	seekMsg := &kernel.Message{
		Opcode: fileserver.OpFileSeek,
		Args: [4]kernel.Arg{
			{Kind: kernel.ArgImmediate, Value: uint32(romH)},
			{Kind: kernel.ArgImmediate, Value: uint32(fileserver.SeekAddress)},
			{Kind: kernel.ArgImmediate, Value: 3},
			{Kind: kernel.ArgPackage, Value: uint32(outAddr)},
		},
	}
	h.k.Send(th, s, seekMsg)
	require.Equal(t, status.None, h.readStatus(th.RequestStatusAddr))

	newPos, err := h.as.Read64(outAddr)
	require.NoError(t, err)
	require.Equal(t, uint64(3), newPos)
	require.Equal(t, status.None, h.close(t, th, s, romH))

	cH, code := h.open(t, th, s, fileserver.OpFileCreate, `C:\plain.txt`, vfs.ModeRead|vfs.ModeWrite, fileserver.ShareReadersOrWriters)
	require.Equal(t, status.None, code)

	seekMsg2 := &kernel.Message{
		Opcode: fileserver.OpFileSeek,
		Args: [4]kernel.Arg{
			{Kind: kernel.ArgImmediate, Value: uint32(cH)},
			{Kind: kernel.ArgImmediate, Value: uint32(fileserver.SeekAddress)},
			{Kind: kernel.ArgImmediate, Value: 0},
			{Kind: kernel.ArgPackage, Value: uint32(outAddr)},
		},
	}
	h.k.Send(th, s, seekMsg2)
	require.Equal(t, status.NotSupported, h.readStatus(th.RequestStatusAddr))
}

func TestReadDirMissingDirFails(t *testing.T) {
	h := newHarness(t)
	_, th, s := h.newProcessSession(t)

	outAddr := h.writeDescriptorOut(t, 64)
	msg := &kernel.Message{
		Opcode: fileserver.OpReadDir,
		Args: [4]kernel.Arg{
			{Kind: kernel.ArgDescriptorIn, Value: uint32(h.writeDescriptor(t, `C:\nope`))},
			{Kind: kernel.ArgDescriptorIn, Value: uint32(h.writeDescriptor(t, ""))},
			{Kind: kernel.ArgDescriptorOut, Value: uint32(outAddr)},
		},
	}
	h.k.Send(th, s, msg)
	require.Equal(t, status.NotFound, h.readStatus(th.RequestStatusAddr))
}
