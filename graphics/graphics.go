// Package graphics names the interface to an external graphics driver
// client. Rendering pixels is out of scope for the guest-runtime core
// (spec.md §1); the window server only ever issues primitives through this
// interface and takes its lock around flushes (spec.md §5).
package graphics

// Rect is an inclusive-exclusive screen rectangle in device pixels.
type Rect struct {
	X0, Y0, X1, Y1 int32
}

// Primitive is one drawing command queued between BeginRedraw/EndRedraw.
type Primitive struct {
	Op    string
	Rect  Rect
	Bytes []byte // opcode-specific payload (color, bitmap data, text, ...)
}

// Driver is implemented by the external graphics back-end. In some builds
// it may be driven from a separate render thread, which is why it exposes
// an explicit lock pair rather than assuming the caller's goroutine is the
// only writer (spec.md §5).
type Driver interface {
	// LockFromProcess acquires the driver's cross-process lock. The window
	// server MUST hold this around every flush.
	LockFromProcess()

	// UnlockFromProcess releases the lock acquired by LockFromProcess.
	UnlockFromProcess()

	// Invalidate marks rect on the given screen as dirty, bracketing a
	// flush of queued primitives.
	Invalidate(screen int, rect Rect)

	// EndInvalidate closes the bracket opened by Invalidate.
	EndInvalidate(screen int)

	// Flush submits a batch of primitives for the given screen.
	Flush(screen int, primitives []Primitive) error
}
