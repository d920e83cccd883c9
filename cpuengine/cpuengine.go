// Package cpuengine names the interface the guest-runtime core consumes
// from an external ARM CPU back-end. The engine itself -- instruction
// decode, register file, the actual emulated ALU -- is out of scope for
// this module (spec.md §1); only the shape the scheduler and kernel drive
// it through lives here.
package cpuengine

import "github.com/mobcore/emu/mem"

// Registers is an opaque snapshot of CPU register state. The engine decides
// its own layout; the kernel only ever copies it in and out of thread
// control blocks.
type Registers [16]uint32

// Engine is the contract a host CPU back-end must satisfy to drive guest
// threads. Run executes guest code until the engine voluntarily yields
// (because PrepareRescheduling was called, or because Step's budget was
// exhausted); Step executes a bounded number of instructions for precise
// control in tests and the debugger. Stop aborts execution at the next
// safe point.
type Engine interface {
	// LoadRegisters installs regs as the engine's current register file,
	// used when the scheduler switches the running thread.
	LoadRegisters(regs Registers)

	// SaveRegisters captures the engine's current register file, used when
	// the scheduler takes a thread out of the running state.
	SaveRegisters() Registers

	// Run executes guest instructions against addressSpace until the
	// engine yields control back to the scheduler (a syscall-equivalent,
	// an exception, or a pending reschedule request).
	Run(addressSpace *mem.AddressSpace) error

	// Step executes at most n instructions and returns early if the
	// engine would otherwise yield.
	Step(addressSpace *mem.AddressSpace, n int) error

	// Stop asks the engine to leave Run/Step at the next safe point.
	Stop()

	// PrepareRescheduling asks the engine to return from Run as soon as
	// it reaches an instruction boundary, without waiting for a syscall.
	PrepareRescheduling()
}
