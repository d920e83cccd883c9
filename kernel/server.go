package kernel

import "github.com/mobcore/emu/status"

// Handler is the dispatch-table entry for one opcode (design note: "virtual
// server dispatch" is replaced by a plain function-pointer table). It is
// given the kernel and the message being serviced and must resolve the
// message exactly once, either by calling k.CompleteMessage or by
// registering a notify via k.RegisterNotify for later completion.
type Handler func(k *Kernel, msg *Message)

// ConnectFunc is invoked synchronously by CreateSession, letting a server
// initialize per-session state (or refuse the connection).
type ConnectFunc func(k *Kernel, s *Session) status.Code

// Server is a kernel-wide named object exposing a dispatch table. Each
// server owns its own State, reachable from its handlers via a type
// assertion -- there is no shared "system" god-object (design note: global
// system_impl is replaced by explicit per-component context).
type Server struct {
	Name     string
	Connect  ConnectFunc
	Handlers map[Opcode]Handler
	State    any

	Queue []*Message // GUARDED_BY(owning Kernel.mu)
}

// NewServer creates a server with an empty dispatch table. Callers add
// entries to Handlers before registering it with a Kernel.
func NewServer(name string, connect ConnectFunc, state any) *Server {
	return &Server{
		Name:     name,
		Connect:  connect,
		Handlers: make(map[Opcode]Handler),
		State:    state,
	}
}
