package kernel

import (
	"github.com/mobcore/emu/cpuengine"
	"github.com/mobcore/emu/mem"
)

// ThreadState is a guest thread's scheduling state (spec.md §3).
type ThreadState int

const (
	ThreadReady ThreadState = iota
	ThreadRunning
	ThreadWaitingOnObject
	ThreadWaitingOnRequest
	ThreadDead
)

func (s ThreadState) String() string {
	switch s {
	case ThreadReady:
		return "ready"
	case ThreadRunning:
		return "running"
	case ThreadWaitingOnObject:
		return "waiting-on-object"
	case ThreadWaitingOnRequest:
		return "waiting-on-request"
	case ThreadDead:
		return "dead"
	default:
		return "unknown"
	}
}

// PendingRequest is a notify record: a {thread, status-cell} pair completed
// when some predicate fires (spec.md GLOSSARY "Notify entry"). It is the
// generic mechanism async opcodes, FS change notifications and window
// server event/redraw readiness all build on.
type PendingRequest struct {
	Thread     *Thread
	StatusAddr mem.Address
	Cancelled  bool
}

// Thread is a guest-scheduled unit of execution within a Process.
//
// INVARIANT: a thread in ThreadWaitingOnRequest has exactly one active
// PendingRequest (Thread.Blocked != nil)
type Thread struct {
	ID      ThreadID
	Process *Process

	Registers cpuengine.Registers
	Stack     mem.ChunkID
	Priority  int

	State ThreadState

	// RequestStatusAddr is the guest-side integer the kernel will write on
	// completion of the thread's current blocking request.
	RequestStatusAddr mem.Address

	// Blocked is the single PendingRequest tying the thread's current
	// ThreadWaitingOnRequest state to a status cell.
	Blocked *PendingRequest

	// Outstanding is every PendingRequest registered on this thread's
	// behalf that has not yet fired (including async notifies that do not
	// themselves block the thread), so thread teardown can cancel them all.
	Outstanding []*PendingRequest
}

// registerOutstanding tracks pr so it can be cancelled on teardown.
func (t *Thread) registerOutstanding(pr *PendingRequest) {
	t.Outstanding = append(t.Outstanding, pr)
}

// clearOutstanding removes pr from the tracking list once it has fired.
func (t *Thread) clearOutstanding(pr *PendingRequest) {
	for i, x := range t.Outstanding {
		if x == pr {
			t.Outstanding = append(t.Outstanding[:i], t.Outstanding[i+1:]...)
			return
		}
	}
}
