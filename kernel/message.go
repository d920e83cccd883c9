package kernel

import "github.com/mobcore/emu/mem"

// Opcode is a guest function code. The high bit marks an asynchronous
// opcode (spec.md §4.6): its handler must register a notify rather than
// completing the message inline.
type Opcode uint16

const asyncBit Opcode = 1 << 15

// IsAsync reports whether the opcode's high bit is set.
func (o Opcode) IsAsync() bool {
	return o&asyncBit != 0
}

// ArgKind distinguishes the four slot semantics a Message argument can
// carry (spec.md §4.6).
type ArgKind int

const (
	ArgImmediate ArgKind = iota
	ArgDescriptorIn
	ArgDescriptorOut
	ArgPackage
)

// Arg is one of a Message's four argument slots.
type Arg struct {
	Kind  ArgKind
	Value uint32     // immediate value, or guest pointer for descriptor/package slots
	MaxLen uint32    // caller-supplied max length for descriptor-out slots
}

// MessageState is the lifecycle stage of an in-flight Message.
type MessageState int

const (
	MessagePending MessageState = iota
	MessageServicing
	MessageCompleted
)

// Message is an in-flight request from a session to a server (spec.md §3).
type Message struct {
	Opcode  Opcode
	Args    [4]Arg
	Session *Session
	Thread  *Thread
	State   MessageState

	// StatusAddr is the guest address the final status is written to on
	// completion. It is a copy of Thread.RequestStatusAddr captured at send
	// time, so that a later async notify still knows where to write even
	// if the thread has moved on to another wait.
	StatusAddr mem.Address
}
