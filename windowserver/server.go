package windowserver

import (
	"github.com/mobcore/emu/graphics"
	"github.com/mobcore/emu/ipc"
	"github.com/mobcore/emu/kernel"
	"github.com/mobcore/emu/status"
)

// Opcode numbering for the window server's dispatch table (spec.md §4.9).
// The high bit marks an async opcode or, per the wire format, the presence
// of an object handle; here it is reserved for the two genuinely
// asynchronous opcodes, matching the file server's convention.
const (
	OpCreateWindowGroup kernel.Opcode = iota + 1
	OpCreateWindowUser
	OpCreateGraphicContext
	OpActivate
	OpDeactivate
	OpBeginRedraw
	OpEndRedraw
	OpInvalidate
	OpReceiveFocus
	OpGetEvent
	OpGetRedraw

	OpEventReady  = kernel.Opcode(0x8000) | 12
	OpRedrawReady = kernel.Opcode(0x8000) | 13
)

// Server is the window server: screen configuration plus one Client per
// connected session (spec.md §4.9).
type Server struct {
	K       *kernel.Kernel
	Driver  graphics.Driver
	Screens []ScreenConfig

	clients map[*kernel.Session]*Client
	screenDevices map[int]*ScreenDeviceState
}

// New creates a window server over the given screen configuration and
// graphics driver.
func New(k *kernel.Kernel, driver graphics.Driver, screens []ScreenConfig) *Server {
	sd := make(map[int]*ScreenDeviceState, len(screens))
	for _, sc := range screens {
		sd[sc.Number] = &ScreenDeviceState{FocusIndex: -1}
	}
	return &Server{K: k, Driver: driver, Screens: screens, clients: make(map[*kernel.Session]*Client), screenDevices: sd}
}

// KernelServer builds the kernel.Server registered as "!Window server"
// (spec.md §4.4 naming convention).
func (s *Server) KernelServer() *kernel.Server {
	srv := kernel.NewServer("!Window server", s.onConnect, s)
	srv.Handlers[OpCreateWindowGroup] = s.handleCreateWindowGroup
	srv.Handlers[OpCreateWindowUser] = s.handleCreateWindowUser
	srv.Handlers[OpCreateGraphicContext] = s.handleCreateGraphicContext
	srv.Handlers[OpActivate] = s.handleActivate
	srv.Handlers[OpDeactivate] = s.handleDeactivate
	srv.Handlers[OpBeginRedraw] = s.handleBeginRedraw
	srv.Handlers[OpEndRedraw] = s.handleEndRedraw
	srv.Handlers[OpInvalidate] = s.handleInvalidate
	srv.Handlers[OpReceiveFocus] = s.handleReceiveFocus
	srv.Handlers[OpGetEvent] = s.handleGetEvent
	srv.Handlers[OpGetRedraw] = s.handleGetRedraw
	srv.Handlers[OpEventReady] = s.handleEventReady
	srv.Handlers[OpRedrawReady] = s.handleRedrawReady
	return srv
}

func (s *Server) onConnect(k *kernel.Kernel, sess *kernel.Session) status.Code {
	c := newClient(sess)
	sess.State = c
	s.clients[sess] = c
	return status.None
}

func clientOf(c *ipc.Context) *Client {
	cl, _ := c.Session().State.(*Client)
	return cl
}

// handleCreateWindowGroup implements window-group creation, optionally
// taking focus immediately (spec.md §4.9 "On group creation with focus =
// true ... the device recomputes focus").
func (s *Server) handleCreateWindowGroup(k *kernel.Kernel, msg *kernel.Message) {
	c := ipc.New(k, msg)
	cl := clientOf(c)
	parent := Handle(c.Int(0))
	screenNum := int(c.Int(1))
	wantsFocus := c.Int(2) != 0

	h, ok := cl.CreateWindow(KindGroup, parent, Priority{})
	if !ok {
		c.Complete(status.Argument)
		return
	}
	w, _ := cl.Window(h)
	w.CanReceiveFocus = wantsFocus

	sd, ok := s.screenDevices[screenNum]
	if ok {
		// A new group goes to the front of the draw order.
		sd.Groups = append([]Handle{h}, sd.Groups...)
		if sd.FocusIndex >= 0 {
			sd.FocusIndex++
		}
		if wantsFocus {
			recomputeFocus(k, cl, sd)
		}
	}

	writeHandleOut(c, 3, h)
	c.Complete(status.None)
}

func (s *Server) handleCreateWindowUser(k *kernel.Kernel, msg *kernel.Message) {
	c := ipc.New(k, msg)
	cl := clientOf(c)
	parent := Handle(c.Int(0))
	priority := Priority{Primary: uint8(c.Int(1)), Secondary: uint8(c.Int(2))}

	h, ok := cl.CreateWindow(KindUser, parent, priority)
	if !ok {
		c.Complete(status.Argument)
		return
	}
	w, _ := cl.Window(h)
	w.Visible = true

	writeHandleOut(c, 3, h)
	c.Complete(status.None)
}

func (s *Server) handleCreateGraphicContext(k *kernel.Kernel, msg *kernel.Message) {
	c := ipc.New(k, msg)
	cl := clientOf(c)
	h, ok := cl.CreateWindow(KindGraphicContext, cl.Root, Priority{})
	if !ok {
		c.Complete(status.Argument)
		return
	}
	writeHandleOut(c, 3, h)
	c.Complete(status.None)
}

// handleActivate implements Activate(winH): binds the graphic context named
// by the object handle in slot 0 to the window-user in slot 1 (spec.md
// §4.9 "Drawing").
func (s *Server) handleActivate(k *kernel.Kernel, msg *kernel.Message) {
	c := ipc.New(k, msg)
	cl := clientOf(c)
	gcH := Handle(c.Int(0))
	winH := Handle(c.Int(1))

	gc, ok := cl.Window(gcH)
	if !ok || gc.Kind != KindGraphicContext {
		c.Complete(status.Argument)
		return
	}
	if _, ok := cl.Window(winH); !ok {
		c.Complete(status.Argument)
		return
	}
	gc.ActiveWindow = winH
	c.Complete(status.None)
}

func (s *Server) handleDeactivate(k *kernel.Kernel, msg *kernel.Message) {
	c := ipc.New(k, msg)
	cl := clientOf(c)
	gc, ok := cl.Window(Handle(c.Int(0)))
	if !ok || gc.Kind != KindGraphicContext {
		c.Complete(status.Argument)
		return
	}
	gc.ActiveWindow = 0
	c.Complete(status.None)
}

// handleBeginRedraw clears the context's draw queue, ready to accumulate
// primitives (spec.md §4.9 "Drawing").
func (s *Server) handleBeginRedraw(k *kernel.Kernel, msg *kernel.Message) {
	c := ipc.New(k, msg)
	cl := clientOf(c)
	gc, ok := cl.Window(Handle(c.Int(0)))
	if !ok || gc.Kind != KindGraphicContext {
		c.Complete(status.Argument)
		return
	}
	gc.DrawQueue = gc.DrawQueue[:0]
	c.Complete(status.None)
}

// handleEndRedraw atomically flushes the context's draw queue to the
// graphics driver under its lock, bracketed by Invalidate/EndInvalidate
// (spec.md §4.9, §5 "the window server MUST take that lock around every
// flush").
func (s *Server) handleEndRedraw(k *kernel.Kernel, msg *kernel.Message) {
	c := ipc.New(k, msg)
	cl := clientOf(c)
	gc, ok := cl.Window(Handle(c.Int(0)))
	if !ok || gc.Kind != KindGraphicContext {
		c.Complete(status.Argument)
		return
	}
	screen := int(c.Int(1))

	rect := graphics.Rect{}
	for _, p := range gc.DrawQueue {
		rect = p.Rect
	}

	s.Driver.LockFromProcess()
	s.Driver.Invalidate(screen, rect)
	err := s.Driver.Flush(screen, gc.DrawQueue)
	s.Driver.EndInvalidate(screen)
	s.Driver.UnlockFromProcess()

	gc.DrawQueue = nil
	if err != nil {
		c.Complete(status.General)
		return
	}
	c.Complete(status.None)
}

// handleInvalidate implements the asynchronous Invalidate(rect): posts a
// redraw event rather than drawing synchronously (spec.md §4.9).
func (s *Server) handleInvalidate(k *kernel.Kernel, msg *kernel.Message) {
	c := ipc.New(k, msg)
	cl := clientOf(c)
	win := Handle(c.Int(0))
	if _, ok := cl.Window(win); !ok {
		c.Complete(status.Argument)
		return
	}
	cl.PostRedraw(k, win)
	c.Complete(status.None)
}

// handleReceiveFocus implements explicit ReceiveFocus(true) (spec.md §4.9).
func (s *Server) handleReceiveFocus(k *kernel.Kernel, msg *kernel.Message) {
	c := ipc.New(k, msg)
	cl := clientOf(c)
	screenNum := int(c.Int(0))
	sd, ok := s.screenDevices[screenNum]
	if !ok {
		c.Complete(status.Argument)
		return
	}
	recomputeFocus(k, cl, sd)
	c.Complete(status.None)
}

func (s *Server) handleGetEvent(k *kernel.Kernel, msg *kernel.Message) {
	c := ipc.New(k, msg)
	cl := clientOf(c)
	if len(cl.Events) == 0 {
		c.Complete(status.NotFound)
		return
	}
	ev := cl.Events[0]
	cl.Events = cl.Events[1:]
	_ = c.WriteDescriptor(0, ev.Payload)
	c.Complete(status.None)
}

func (s *Server) handleGetRedraw(k *kernel.Kernel, msg *kernel.Message) {
	c := ipc.New(k, msg)
	cl := clientOf(c)
	if len(cl.Redraws) == 0 {
		c.Complete(status.NotFound)
		return
	}
	r := cl.Redraws[0]
	cl.Redraws = cl.Redraws[1:]
	writeHandleOut(c, 0, r.Window)
	c.Complete(status.None)
}

// handleEventReady and handleRedrawReady implement spec.md §4.9 "Event
// delivery": the two async opcodes, each registering a {thread,
// status-cell} notify that fires the next time the corresponding queue
// gains an entry.
func (s *Server) handleEventReady(k *kernel.Kernel, msg *kernel.Message) {
	c := ipc.New(k, msg)
	cl := clientOf(c)
	cl.eventNotify = c.RegisterNotify()
}

func (s *Server) handleRedrawReady(k *kernel.Kernel, msg *kernel.Message) {
	c := ipc.New(k, msg)
	cl := clientOf(c)
	cl.redrawNotify = c.RegisterNotify()
}

func writeHandleOut(c *ipc.Context, slot int, h Handle) {
	buf := make([]byte, 4)
	ipc.PutUint32LE(buf, uint32(h))
	_ = c.WritePackage(slot, buf)
}
