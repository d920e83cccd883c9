package windowserver_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mobcore/emu/graphics"
	"github.com/mobcore/emu/kernel"
	"github.com/mobcore/emu/mem"
	"github.com/mobcore/emu/status"
	"github.com/mobcore/emu/windowserver"
)

// fakeDriver records Flush/lock calls instead of drawing anything; enough
// to assert the window server takes its lock around every flush.
type fakeDriver struct {
	locked    bool
	lockedDuringFlush bool
	flushes   int
	lastPrims []graphics.Primitive
}

func (d *fakeDriver) LockFromProcess()              { d.locked = true }
func (d *fakeDriver) UnlockFromProcess()             { d.locked = false }
func (d *fakeDriver) Invalidate(int, graphics.Rect)  {}
func (d *fakeDriver) EndInvalidate(int)              {}
func (d *fakeDriver) Flush(screen int, p []graphics.Primitive) error {
	d.lockedDuringFlush = d.locked
	d.flushes++
	d.lastPrims = p
	return nil
}

type harness struct {
	t       *testing.T
	as      *mem.AddressSpace
	k       *kernel.Kernel
	ws      *windowserver.Server
	driver  *fakeDriver
	nextPID kernel.ProcessID
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	as := mem.NewAddressSpace(mem.LayoutModern)
	k := kernel.New(as, nil, nil, nil, nil)
	drv := &fakeDriver{}
	screens := []windowserver.ScreenConfig{{Number: 0, Modes: []windowserver.ScreenMode{{Number: 1, Width: 240, Height: 320}}}}
	wsrv := windowserver.New(k, drv, screens)
	require.Equal(t, status.None, k.RegisterServer(wsrv.KernelServer()))
	return &harness{t: t, as: as, k: k, ws: wsrv, driver: drv}
}

func (h *harness) newProcessSession(t *testing.T) (*kernel.Thread, *kernel.Session) {
	h.nextPID++
	p := &kernel.Process{ID: h.nextPID, Sessions: make(map[kernel.SessionID]*kernel.Session)}
	sess, code := h.k.CreateSession(p, "!Window server")
	require.Equal(t, status.None, code)

	_, statusAddr, err := h.as.AllocChunk("status", 4, mem.Attr{Read: true, Write: true})
	require.NoError(t, err)
	th := &kernel.Thread{ID: 1, Process: p, RequestStatusAddr: statusAddr, State: kernel.ThreadReady}
	p.Threads = append(p.Threads, th)
	return th, sess
}

func (h *harness) readStatus(addr mem.Address) status.Code {
	v, err := h.as.Read32(addr)
	require.NoError(h.t, err)
	return status.Code(int32(v))
}

func (h *harness) outSlot(t *testing.T) mem.Address {
	_, addr, err := h.as.AllocChunk("out", 4, mem.Attr{Read: true, Write: true})
	require.NoError(t, err)
	return addr
}

func (h *harness) readHandle(t *testing.T, addr mem.Address) windowserver.Handle {
	v, err := h.as.Read32(addr)
	require.NoError(t, err)
	return windowserver.Handle(v)
}

func (h *harness) createWindowGroup(t *testing.T, th *kernel.Thread, s *kernel.Session, parent windowserver.Handle, screen int, focus bool) (windowserver.Handle, status.Code) {
	out := h.outSlot(t)
	focusVal := uint32(0)
	if focus {
		focusVal = 1
	}
	msg := &kernel.Message{
		Opcode: windowserver.OpCreateWindowGroup,
		Args: [4]kernel.Arg{
			{Kind: kernel.ArgImmediate, Value: uint32(parent)},
			{Kind: kernel.ArgImmediate, Value: uint32(screen)},
			{Kind: kernel.ArgImmediate, Value: focusVal},
			{Kind: kernel.ArgPackage, Value: uint32(out)},
		},
	}
	h.k.Send(th, s, msg)
	code := h.readStatus(th.RequestStatusAddr)
	if code != status.None {
		return 0, code
	}
	return h.readHandle(t, out), code
}

func (h *harness) createWindowUser(t *testing.T, th *kernel.Thread, s *kernel.Session, parent windowserver.Handle, primary, secondary uint8) (windowserver.Handle, status.Code) {
	out := h.outSlot(t)
	msg := &kernel.Message{
		Opcode: windowserver.OpCreateWindowUser,
		Args: [4]kernel.Arg{
			{Kind: kernel.ArgImmediate, Value: uint32(parent)},
			{Kind: kernel.ArgImmediate, Value: uint32(primary)},
			{Kind: kernel.ArgImmediate, Value: uint32(secondary)},
			{Kind: kernel.ArgPackage, Value: uint32(out)},
		},
	}
	h.k.Send(th, s, msg)
	code := h.readStatus(th.RequestStatusAddr)
	if code != status.None {
		return 0, code
	}
	return h.readHandle(t, out), code
}

func (h *harness) receiveFocus(t *testing.T, th *kernel.Thread, s *kernel.Session, screen int) status.Code {
	msg := &kernel.Message{
		Opcode: windowserver.OpReceiveFocus,
		Args:   [4]kernel.Arg{{Kind: kernel.ArgImmediate, Value: uint32(screen)}},
	}
	h.k.Send(th, s, msg)
	return h.readStatus(th.RequestStatusAddr)
}

func rootOf(s *kernel.Session) windowserver.Handle {
	return s.State.(*windowserver.Client).Root
}

// TestFocusTransferOnGroupCreation exercises spec.md §4.9's worked focus
// scenario: the first window group created with focus=true on a screen
// becomes the focused group, and is recorded as a focus-gained event.
func TestFocusTransferOnGroupCreation(t *testing.T) {
	h := newHarness(t)
	th, s := h.newProcessSession(t)
	root := rootOf(s)

	g1, code := h.createWindowGroup(t, th, s, root, 0, true)
	require.Equal(t, status.None, code)
	require.NotZero(t, g1)

	cl := s.State.(*windowserver.Client)
	require.Len(t, cl.Events, 1)
	require.Equal(t, "focus-gained", cl.Events[0].Kind)
	require.Equal(t, g1, cl.Events[0].Window)
}

// TestFocusTransfersToNewGroup: a second group created with focus=true
// steals focus, firing focus-lost for the first then focus-gained for the
// second (spec.md §4.9 "Focus").
func TestFocusTransfersToNewGroup(t *testing.T) {
	h := newHarness(t)
	th, s := h.newProcessSession(t)
	root := rootOf(s)

	g1, code := h.createWindowGroup(t, th, s, root, 0, true)
	require.Equal(t, status.None, code)

	cl := s.State.(*windowserver.Client)
	cl.Events = nil // drain the first focus-gained so we can isolate the transfer

	g2, code := h.createWindowGroup(t, th, s, root, 0, true)
	require.Equal(t, status.None, code)

	require.Len(t, cl.Events, 2)
	require.Equal(t, "focus-lost", cl.Events[0].Kind)
	require.Equal(t, g1, cl.Events[0].Window)
	require.Equal(t, "focus-gained", cl.Events[1].Kind)
	require.Equal(t, g2, cl.Events[1].Window)
}

// TestEndRedrawFlushesUnderLock exercises the Activate/BeginRedraw/
// EndRedraw cycle, asserting the driver is locked for the duration of the
// flush (spec.md §5).
func TestEndRedrawFlushesUnderLock(t *testing.T) {
	h := newHarness(t)
	th, s := h.newProcessSession(t)
	root := rootOf(s)

	winH, code := h.createWindowUser(t, th, s, root, 1, 0)
	require.Equal(t, status.None, code)

	out := h.outSlot(t)
	gcMsg := &kernel.Message{
		Opcode: windowserver.OpCreateGraphicContext,
		Args:   [4]kernel.Arg{{}, {}, {}, {Kind: kernel.ArgPackage, Value: uint32(out)}},
	}
	h.k.Send(th, s, gcMsg)
	require.Equal(t, status.None, h.readStatus(th.RequestStatusAddr))
	gcH := h.readHandle(t, out)

	activateMsg := &kernel.Message{
		Opcode: windowserver.OpActivate,
		Args: [4]kernel.Arg{
			{Kind: kernel.ArgImmediate, Value: uint32(gcH)},
			{Kind: kernel.ArgImmediate, Value: uint32(winH)},
		},
	}
	h.k.Send(th, s, activateMsg)
	require.Equal(t, status.None, h.readStatus(th.RequestStatusAddr))

	beginMsg := &kernel.Message{Opcode: windowserver.OpBeginRedraw, Args: [4]kernel.Arg{{Kind: kernel.ArgImmediate, Value: uint32(gcH)}}}
	h.k.Send(th, s, beginMsg)
	require.Equal(t, status.None, h.readStatus(th.RequestStatusAddr))

	endMsg := &kernel.Message{
		Opcode: windowserver.OpEndRedraw,
		Args: [4]kernel.Arg{
			{Kind: kernel.ArgImmediate, Value: uint32(gcH)},
			{Kind: kernel.ArgImmediate, Value: 0},
		},
	}
	h.k.Send(th, s, endMsg)
	require.Equal(t, status.None, h.readStatus(th.RequestStatusAddr))

	require.Equal(t, 1, h.driver.flushes)
	require.True(t, h.driver.lockedDuringFlush)
	require.False(t, h.driver.locked)
}

// TestRedrawReadyFiresOnInvalidate exercises the async RedrawReady opcode:
// a thread registers, then Invalidate posts a redraw that completes it
// (spec.md §4.9 "Event delivery").
func TestRedrawReadyFiresOnInvalidate(t *testing.T) {
	h := newHarness(t)
	th, s := h.newProcessSession(t)
	root := rootOf(s)

	winH, code := h.createWindowUser(t, th, s, root, 0, 0)
	require.Equal(t, status.None, code)

	readyMsg := &kernel.Message{Opcode: windowserver.OpRedrawReady}
	h.k.Send(th, s, readyMsg)
	require.Equal(t, kernel.ThreadWaitingOnRequest, th.State)

	// A second thread of the same process issues the invalidate that
	// should wake the first.
	_, statusAddr2, err := h.as.AllocChunk("status2", 4, mem.Attr{Read: true, Write: true})
	require.NoError(t, err)
	other := &kernel.Thread{ID: 2, Process: th.Process, RequestStatusAddr: statusAddr2, State: kernel.ThreadReady}
	invMsg := &kernel.Message{Opcode: windowserver.OpInvalidate, Args: [4]kernel.Arg{{Kind: kernel.ArgImmediate, Value: uint32(winH)}}}
	h.k.Send(other, s, invMsg)

	require.Equal(t, kernel.ThreadReady, th.State)
}

// TestReceiveFocusNoGroupsIsNoop exercises ReceiveFocus on a screen with no
// window groups: nothing panics, no event is posted, status is None.
func TestReceiveFocusNoGroupsIsNoop(t *testing.T) {
	h := newHarness(t)
	th, s := h.newProcessSession(t)

	code := h.receiveFocus(t, th, s, 0)
	require.Equal(t, status.None, code)

	cl := s.State.(*windowserver.Client)
	require.Empty(t, cl.Events)
}
