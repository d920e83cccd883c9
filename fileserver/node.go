// Package fileserver implements the file server described in spec.md §4.8:
// per-session working directories, a 256-slot FS-node handle table separate
// from the kernel's generic one, share-mode composition on open, and the
// NotifyChange family.
package fileserver

import (
	"github.com/mobcore/emu/kernel"
	"github.com/mobcore/emu/vfs"
)

// ShareMode is the sharing discipline a FileOpen/FileCreate request
// declares (spec.md §4.8 sharing composition table).
type ShareMode int

const (
	ShareExclusive ShareMode = iota
	ShareReadersOnly
	ShareReadersOrWriters
	ShareAny
)

// composeShare implements the sharing composition table from spec.md §4.8:
// new × existing -> composed mode, or ok=false (Deny). sameProcess decides
// the exclusive × exclusive cell; existingHasWriter decides the
// readers-only × readers-or-writers cell, which is OK only when the
// existing node currently has no writer open against it.
func composeShare(newMode, existing ShareMode, sameProcess, existingHasWriter bool) (ShareMode, bool) {
	switch newMode {
	case ShareExclusive:
		if existing == ShareExclusive && sameProcess {
			return ShareExclusive, true
		}
		return 0, false

	case ShareReadersOnly:
		switch existing {
		case ShareReadersOnly:
			return ShareReadersOnly, true
		case ShareReadersOrWriters:
			if existingHasWriter {
				return 0, false
			}
			return ShareReadersOnly, true
		default:
			return 0, false
		}

	case ShareReadersOrWriters:
		switch existing {
		case ShareReadersOnly, ShareReadersOrWriters, ShareAny:
			return existing, true
		default:
			return 0, false
		}

	case ShareAny:
		switch existing {
		case ShareReadersOrWriters, ShareAny:
			return existing, true
		default:
			return 0, false
		}
	}
	return 0, false
}

// Node is one entry in the file server's FS handle table (spec.md §4.8 "FS
// node").
type Node struct {
	Active    bool
	Path      vfs.Path
	File      vfs.File
	Mode      vfs.OpenMode
	Share     ShareMode
	Owner     kernel.ProcessID
	Temporary bool
	HasWriter bool
	RefCount  int

	// offset is the node's current file position, shared by every handle
	// opened against the same underlying file (spec.md §4.8 FileRead/
	// FileWrite/FileSeek all operate on one current offset per node).
	offset int64
}
