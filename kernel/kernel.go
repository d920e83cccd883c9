package kernel

import (
	"fmt"
	"log"

	"github.com/jacobsa/syncutil"

	"github.com/mobcore/emu/handle"
	"github.com/mobcore/emu/loader"
	"github.com/mobcore/emu/mem"
	"github.com/mobcore/emu/status"
	"github.com/mobcore/emu/timing"
)

// DefaultHandleCapacity is the kernel-wide handle table's fixed size
// (spec.md §3, "Handle table").
const DefaultHandleCapacity = 512

// SchedulerHooks is the narrow interface the kernel uses to tell the
// scheduler that a thread transitioned to ready, without depending on the
// scheduler package directly.
type SchedulerHooks interface {
	ThreadBecameReady(t *Thread)
}

// Kernel aggregates the guest object model: the address space, the virtual
// clock, the kernel-wide handle table, every live process/session/server,
// and the property store. It is the single explicit context record handed
// to servers (design note: replaces a "system" god-object with one record
// each subsystem is given, rather than reaching for process-wide state).
type Kernel struct {
	AS        *mem.AddressSpace
	Clock     *timing.Clock
	Handles   *handle.Table
	Loader    loader.Loader
	Scheduler SchedulerHooks
	Logger    *log.Logger

	mu         syncutil.InvariantMutex
	processes  map[ProcessID]*Process
	sessions   map[SessionID]*Session
	servers    map[string]*Server
	properties map[propKey]*Property

	nextProcessID ProcessID
	nextThreadID  ThreadID
	nextSessionID SessionID
}

type propKey struct {
	category, key int
}

// New creates a kernel over the given address space and clock. loader and
// scheduler may be nil for tests that never spawn a guest image or drive a
// real scheduler.
func New(as *mem.AddressSpace, clock *timing.Clock, ld loader.Loader, sched SchedulerHooks, logger *log.Logger) *Kernel {
	k := &Kernel{
		AS:         as,
		Clock:      clock,
		Handles:    handle.New(DefaultHandleCapacity),
		Loader:     ld,
		Scheduler:  sched,
		Logger:     logger,
		processes:  make(map[ProcessID]*Process),
		sessions:   make(map[SessionID]*Session),
		servers:    make(map[string]*Server),
		properties: make(map[propKey]*Property),
	}
	k.mu = syncutil.NewInvariantMutex(func() {})
	return k
}

// RegisterServer adds srv to the kernel's server registry, failing with
// AlreadyExists on a duplicate name (spec.md §4.4).
func (k *Kernel) RegisterServer(srv *Server) status.Code {
	k.mu.Lock()
	defer k.mu.Unlock()

	if _, ok := k.servers[srv.Name]; ok {
		return status.AlreadyExists
	}
	k.servers[srv.Name] = srv
	return status.None
}

// Server looks up a registered server by name.
func (k *Kernel) Server(name string) (*Server, bool) {
	k.mu.Lock()
	defer k.mu.Unlock()
	s, ok := k.servers[name]
	return s, ok
}

// ProcessCount reports how many processes are currently live, used by the
// scheduler to decide when the main loop should terminate (spec.md §4.5).
func (k *Kernel) ProcessCount() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.processes)
}

// SpawnProcess loads the image at path via the kernel's Loader, allocates
// its local data chunk, and creates its primary thread in the ready state
// (spec.md §4.4). The caller must still invoke (*Kernel).RunProcess to make
// the process schedulable.
func (k *Kernel) SpawnProcess(path string, args []string, uid [3]uint32) (*Process, error) {
	if k.Loader == nil {
		return nil, fmt.Errorf("kernel: no loader configured")
	}

	exe, err := k.Loader.LoadExecutable(path)
	if err != nil {
		return nil, fmt.Errorf("kernel: load %q: %w", path, err)
	}

	k.mu.Lock()
	id := k.nextProcessID
	k.nextProcessID++
	k.mu.Unlock()

	p := &Process{
		ID:       id,
		UID:      uid,
		Path:     path,
		Args:     args,
		Handles:  handle.New(DefaultHandleCapacity),
		Sessions: make(map[SessionID]*Session),
	}

	var localSize uint32
	for _, seg := range exe.Segments {
		localSize += uint32(len(seg.Data))
	}
	if localSize == 0 {
		localSize = 4096
	}

	chunkID, base, err := k.AS.AllocChunk(fmt.Sprintf("proc-%d-local", id), localSize, mem.Attr{Read: true, Write: true})
	if err != nil {
		return nil, fmt.Errorf("kernel: alloc local chunk: %w", err)
	}
	p.LocalChunk = chunkID

	off := base
	for _, seg := range exe.Segments {
		if len(seg.Data) == 0 {
			continue
		}
		if err := k.AS.WriteBytes(off, seg.Data); err != nil {
			return nil, fmt.Errorf("kernel: map segment %q: %w", seg.Name, err)
		}
		off += mem.Address(len(seg.Data))
	}

	stackID, _, err := k.AS.AllocChunk(fmt.Sprintf("proc-%d-stack", id), 64*1024, mem.Attr{Read: true, Write: true})
	if err != nil {
		return nil, fmt.Errorf("kernel: alloc stack: %w", err)
	}

	k.mu.Lock()
	tid := k.nextThreadID
	k.nextThreadID++
	k.mu.Unlock()

	t := &Thread{
		ID:      tid,
		Process: p,
		Stack:   stackID,
		State:   ThreadReady,
	}
	t.Registers[15] = uint32(base) + exe.EntryRVA // PC, by ARM convention register 15

	p.Threads = append(p.Threads, t)

	k.mu.Lock()
	k.processes[id] = p
	k.mu.Unlock()

	return p, nil
}

// RunProcess marks p's primary thread runnable and notifies the scheduler
// (spec.md §4.4 "process.run()").
func (k *Kernel) RunProcess(p *Process) {
	t := p.PrimaryThread()
	if t == nil {
		return
	}
	t.State = ThreadReady
	if k.Scheduler != nil {
		k.Scheduler.ThreadBecameReady(t)
	}
}

// CreateSession connects process p to the named server, failing NotFound
// if no such server is registered, and invoking the server's connect
// handler synchronously (spec.md §4.4).
func (k *Kernel) CreateSession(p *Process, serverName string) (*Session, status.Code) {
	srv, ok := k.Server(serverName)
	if !ok {
		return nil, status.NotFound
	}

	k.mu.Lock()
	id := k.nextSessionID
	k.nextSessionID++
	k.mu.Unlock()

	s := &Session{ID: id, Process: p, Server: srv}

	if srv.Connect != nil {
		if code := srv.Connect(k, s); code != status.None {
			return nil, code
		}
	}

	p.Sessions[id] = s
	k.mu.Lock()
	k.sessions[id] = s
	k.mu.Unlock()

	return s, status.None
}

// CloseSession removes s from the kernel's session table and from its
// owning process. Requests and notifies registered through s are not
// cancelled: they stay pending until they fire or their thread exits.
func (k *Kernel) CloseSession(s *Session) {
	k.mu.Lock()
	delete(k.sessions, s.ID)
	k.mu.Unlock()
	delete(s.Process.Sessions, s.ID)
}

// Send enqueues msg at its session's server and blocks the sending thread
// until the server resolves it (spec.md §4.6). Messages to the same server
// are serviced strictly in FIFO order because Send only ever runs on the
// single emulator thread and drains the queue head before returning.
func (k *Kernel) Send(thread *Thread, session *Session, msg *Message) {
	msg.Session = session
	msg.Thread = thread
	msg.StatusAddr = thread.RequestStatusAddr
	msg.State = MessagePending

	srv := session.Server
	srv.Queue = append(srv.Queue, msg)

	thread.State = ThreadWaitingOnRequest
	thread.Blocked = &PendingRequest{Thread: thread, StatusAddr: msg.StatusAddr}
	thread.registerOutstanding(thread.Blocked)

	k.serviceNext(srv)
}

// serviceNext pops and runs the handler for the head of srv's queue.
func (k *Kernel) serviceNext(srv *Server) {
	if len(srv.Queue) == 0 {
		return
	}
	msg := srv.Queue[0]
	srv.Queue = srv.Queue[1:]
	msg.State = MessageServicing

	h, ok := srv.Handlers[msg.Opcode]
	if !ok {
		k.CompleteMessage(msg, status.NotSupported)
		return
	}
	h(k, msg)
}

// completeStatus writes code to addr and marks thread runnable again. It is
// the common tail of CompleteMessage and FireNotify.
func (k *Kernel) completeStatus(thread *Thread, addr mem.Address, code status.Code) {
	_ = k.AS.Write32(addr, uint32(int32(code)))
	thread.Blocked = nil
	thread.State = ThreadReady
	if k.Scheduler != nil {
		k.Scheduler.ThreadBecameReady(thread)
	}
}

// CompleteMessage resolves msg with the given status, writing it to the
// sender's request cell and marking the sender runnable. It is a no-op if
// msg was already completed (invariant 2: exactly one set_request_status
// per message).
func (k *Kernel) CompleteMessage(msg *Message, code status.Code) {
	if msg.State == MessageCompleted {
		return
	}
	msg.State = MessageCompleted
	if msg.Thread.Blocked != nil {
		msg.Thread.clearOutstanding(msg.Thread.Blocked)
	}
	k.completeStatus(msg.Thread, msg.StatusAddr, code)
}

// RegisterNotify creates a {thread, status-cell} notify record for an async
// opcode or a server-internal wait, tracked on the thread so it can be
// cancelled on teardown (spec.md §4.6, §5).
func (k *Kernel) RegisterNotify(thread *Thread, addr mem.Address) *PendingRequest {
	pr := &PendingRequest{Thread: thread, StatusAddr: addr}
	thread.registerOutstanding(pr)
	thread.Blocked = pr
	thread.State = ThreadWaitingOnRequest
	return pr
}

// FireNotify completes a previously-registered notify with the given
// status, unless it was already cancelled.
func (k *Kernel) FireNotify(pr *PendingRequest, code status.Code) {
	if pr.Cancelled {
		return
	}
	pr.Thread.clearOutstanding(pr)
	k.completeStatus(pr.Thread, pr.StatusAddr, code)
}

// CancelNotify fires pr with status.Cancel and marks it cancelled so a
// later, racing FireNotify is a no-op (spec.md §5 "Cancellation").
func (k *Kernel) CancelNotify(pr *PendingRequest) {
	if pr.Cancelled {
		return
	}
	pr.Cancelled = true
	pr.Thread.clearOutstanding(pr)
	k.completeStatus(pr.Thread, pr.StatusAddr, status.Cancel)
}

// CreateProperty registers a new property, failing if one already exists
// for the given (category, key) pair (spec.md §4.4).
func (k *Kernel) CreateProperty(category, key int, typ PropertyType, size int) (*Property, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	pk := propKey{category, key}
	if _, ok := k.properties[pk]; ok {
		return nil, fmt.Errorf("kernel: property (%d,%d) already exists", category, key)
	}

	p := &Property{Category: category, Key: key, Type: typ, Size: size}
	k.properties[pk] = p
	return p, nil
}

// Property looks up a previously-created property.
func (k *Kernel) Property(category, key int) (*Property, bool) {
	k.mu.Lock()
	defer k.mu.Unlock()
	p, ok := k.properties[propKey{category, key}]
	return p, ok
}

// DestroyProcess frees every handle and chunk owned by p, per spec.md §3.
// Called once p's last thread has exited.
func (k *Kernel) DestroyProcess(p *Process) {
	p.Handles.FreeAllByOwner(handle.OwnerProcess, int(p.ID))
	_ = k.AS.FreeChunk(p.LocalChunk)
	for _, t := range p.Threads {
		_ = k.AS.FreeChunk(t.Stack)
		t.State = ThreadDead
	}
	for _, s := range p.Sessions {
		k.CloseSession(s)
	}
	k.mu.Lock()
	delete(k.processes, p.ID)
	k.mu.Unlock()
}

// ExitThread marks t dead and, if it was the process's last living thread,
// destroys the owning process (spec.md §3 "Lifecycle").
func (k *Kernel) ExitThread(t *Thread) {
	t.State = ThreadDead
	for _, pr := range append([]*PendingRequest(nil), t.Outstanding...) {
		k.CancelNotify(pr)
	}
	if t.Process.aliveThreadCount() == 0 {
		k.DestroyProcess(t.Process)
	}
}
