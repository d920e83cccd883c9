package windowserver

import "github.com/mobcore/emu/graphics"

// Handle is a client-scoped 32-bit window handle. Handles start at
// FirstHandle and increment densely (spec.md §4.9).
type Handle uint32

// FirstHandle is the first handle a client's window tree allocates.
const FirstHandle Handle = 0x40000001

// Kind is one of the window object kinds spec.md §3 GLOSSARY "Window"
// names.
type Kind int

const (
	KindRoot Kind = iota
	KindGroup
	KindUser
	KindGraphicContext
	KindScreenDevice
	KindSprite
	KindAnimDLL
	KindClickDLL
)

// Priority is a window's two-part ordering key: primary bands (e.g.
// always-on-top) and a secondary tiebreak within a band (spec.md §4.9
// "priority_of").
type Priority struct {
	Primary   uint8
	Secondary uint8
}

// Window is one node in a client's window tree (spec.md §3 GLOSSARY
// "Window").
type Window struct {
	Handle   Handle
	Kind     Kind
	Parent   Handle
	Children []Handle

	Priority Priority
	Visible  bool

	// CanReceiveFocus marks a window group eligible for ReceiveFocus
	// (spec.md §4.9 "Focus").
	CanReceiveFocus bool

	// DrawQueue holds primitives appended between BeginRedraw and
	// EndRedraw, for a KindGraphicContext window (spec.md §4.9
	// "Drawing").
	DrawQueue []graphics.Primitive

	// ActiveWindow is the window-user a graphic context is presently
	// Activate-d against (KindGraphicContext only).
	ActiveWindow Handle
}

// priorityOf composes a window's effective priority root-down, per spec.md
// §4.9: "priority_of(window) = parent.priority_of ∘ (primary << 4 |
// secondary), composed root-down". Each level shifts the parent's composed
// key left by 8 bits and ORs in its own primary<<4 | (secondary & 0xf).
func priorityOf(windows map[Handle]*Window, h Handle) uint32 {
	w, ok := windows[h]
	if !ok {
		return 0
	}
	own := uint32(w.Priority.Primary)<<4 | uint32(w.Priority.Secondary&0xf)
	if w.Parent == 0 {
		return own
	}
	return priorityOf(windows, w.Parent)<<8 | own
}
