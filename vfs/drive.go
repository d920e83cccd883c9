// Package vfs implements the composable virtual file system: drive letters
// A-Z, an ordered list of filesystem providers, path normalisation, and the
// small set of path-level operations the file server drives (spec.md §4.7).
package vfs

import "fmt"

// Letter is a drive letter, A through Z.
type Letter byte

// String renders the letter as it appears in an absolute path, e.g. "C".
func (l Letter) String() string {
	return string(rune(l))
}

// Index returns l's zero-based position (A=0 .. Z=25). Panics if l is not a
// valid drive letter; callers are expected to validate with ParseLetter
// first.
func (l Letter) Index() int {
	if l < 'A' || l > 'Z' {
		panic(fmt.Sprintf("vfs: invalid drive letter %q", byte(l)))
	}
	return int(l - 'A')
}

// ParseLetter validates and uppercases b as a drive letter.
func ParseLetter(b byte) (Letter, bool) {
	if b >= 'a' && b <= 'z' {
		b -= 'a' - 'A'
	}
	if b < 'A' || b > 'Z' {
		return 0, false
	}
	return Letter(b), true
}

// MediaKind is a drive's backing media (spec.md §4.7).
type MediaKind int

const (
	MediaNone MediaKind = iota
	MediaPhysical
	MediaROM
	MediaReflected
)

// Attr is a bitmask of drive attributes (spec.md §4.7).
type Attr uint32

const (
	AttrInternal Attr = 1 << iota
	AttrRemovable
	AttrHidden
	AttrWriteProtected
)

// Drive describes one of the 26 lettered drives. Every drive starts out as
// MediaNone; system.Boot mounts the ROM image on Z, and
// system.MountPhysical mounts a host directory (drive C or any other
// letter) when called.
type Drive struct {
	Letter Letter
	Media  MediaKind
	Attrs  Attr

	// provider is the id of the Provider currently serving this drive's
	// root, or -1 if the drive is not mounted.
	provider ProviderID
}

// Mounted reports whether a is presently backed by a live provider.
func (d Drive) Mounted() bool {
	return d.Media != MediaNone
}
