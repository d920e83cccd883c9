// Package ipc implements the client/server request protocol's argument
// marshalling layer on top of the raw messages kernel.Kernel queues and
// completes (spec.md §4.6): descriptor decoding/encoding on demand, package
// (fixed-layout struct) slots, and the notify registration async opcodes
// use.
package ipc

import (
	"encoding/binary"
	"fmt"

	"github.com/mobcore/emu/kernel"
	"github.com/mobcore/emu/mem"
	"github.com/mobcore/emu/status"
)

// Context wraps one in-flight Message with the kernel it belongs to,
// giving a server handler convenient, on-demand access to its four
// argument slots without the handler ever touching mem.AddressSpace
// directly.
type Context struct {
	K   *kernel.Kernel
	Msg *kernel.Message
}

// New wraps msg for handler use.
func New(k *kernel.Kernel, msg *kernel.Message) *Context {
	return &Context{K: k, Msg: msg}
}

// Thread returns the sending thread.
func (c *Context) Thread() *kernel.Thread { return c.Msg.Thread }

// Session returns the originating session.
func (c *Context) Session() *kernel.Session { return c.Msg.Session }

// Int returns slot i's raw 32-bit value, for an ArgImmediate slot.
func (c *Context) Int(i int) uint32 {
	return c.Msg.Args[i].Value
}

// GetDescriptor decodes slot i as a length-prefixed descriptor-in buffer,
// reading it from the sender's address space on demand (spec.md §4.6).
func (c *Context) GetDescriptor(i int) ([]byte, error) {
	arg := c.Msg.Args[i]
	if arg.Kind != kernel.ArgDescriptorIn && arg.Kind != kernel.ArgDescriptorOut {
		return nil, fmt.Errorf("ipc: slot %d is not a descriptor", i)
	}
	return c.K.AS.ReadDescriptor(mem.Address(arg.Value))
}

// WriteDescriptor fills slot i's descriptor-out buffer with data. An
// over-length write returns status.Argument without touching the guest
// buffer (spec.md §4.6); the caller is expected to complete the message
// with that status rather than panic.
func (c *Context) WriteDescriptor(i int, data []byte) status.Code {
	arg := c.Msg.Args[i]
	if arg.Kind != kernel.ArgDescriptorOut {
		return status.Argument
	}
	if err := c.K.AS.WriteDescriptor(mem.Address(arg.Value), data); err != nil {
		if err == mem.ErrOverflow {
			return status.Argument
		}
		return status.General
	}
	return status.None
}

// GetPackage reads slot i's fixed-layout struct as raw bytes. The wire
// layout of the struct is part of the ABI and must match the guest's byte
// layout exactly (spec.md §4.6); callers decode with encoding/binary.
func (c *Context) GetPackage(i int, size uint32) ([]byte, error) {
	arg := c.Msg.Args[i]
	if arg.Kind != kernel.ArgPackage {
		return nil, fmt.Errorf("ipc: slot %d is not a package", i)
	}
	return c.K.AS.ReadBytes(mem.Address(arg.Value), size)
}

// WritePackage writes raw bytes back into slot i's package buffer.
func (c *Context) WritePackage(i int, data []byte) error {
	arg := c.Msg.Args[i]
	if arg.Kind != kernel.ArgPackage {
		return fmt.Errorf("ipc: slot %d is not a package", i)
	}
	return c.K.AS.WriteBytes(mem.Address(arg.Value), data)
}

// Complete resolves the message with the given status (spec.md §4.6).
func (c *Context) Complete(code status.Code) {
	c.K.CompleteMessage(c.Msg, code)
}

// RegisterNotify records a {thread, status-cell} notify for this message's
// async opcode, to be fired later by Fire/Cancel (spec.md §4.6 "Async
// opcodes").
func (c *Context) RegisterNotify() *kernel.PendingRequest {
	return c.K.RegisterNotify(c.Msg.Thread, c.Msg.StatusAddr)
}

// PutUint32LE is a small helper for building package payloads in the wire
// byte order spec.md §6 requires (little-endian, no padding).
func PutUint32LE(dst []byte, v uint32) {
	binary.LittleEndian.PutUint32(dst, v)
}

// PutUint64LE is the 64-bit counterpart of PutUint32LE.
func PutUint64LE(dst []byte, v uint64) {
	binary.LittleEndian.PutUint64(dst, v)
}
