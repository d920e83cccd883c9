// Package kernel implements the guest kernel's object model: processes,
// threads, sessions, servers, messages, properties and the synchronization
// primitives they share (spec.md §3, §4.4). It also owns the raw
// send/register_server/create_session operations; argument marshalling on
// top of a Message lives in package ipc to avoid a dependency cycle between
// the object model and the servers that use it.
package kernel

// ProcessID, ThreadID and SessionID are globally unique within one kernel
// instance. They are never reused for the lifetime of the kernel.
type ProcessID uint64
type ThreadID uint64
type SessionID uint64
