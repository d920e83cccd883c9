// Package loader names the interface to an external ROM/package parser and
// install tool. Parsing executable image formats and install packages is
// out of scope for the guest-runtime core (spec.md §1); this package only
// describes what the kernel needs back from that process.
package loader

// Segment describes one piece of an executable's code or data to be mapped
// into a fresh process's address space.
type Segment struct {
	Name           string
	Data           []byte
	Writable       bool
	Executable     bool
	CommitOnDemand bool
}

// Executable is a parsed guest binary, ready to be spawned as a process.
type Executable struct {
	Path     string
	EntryRVA uint32
	UID      [3]uint32
	Segments []Segment
}

// ManifestEntry describes one file baked into the ROM image.
type ManifestEntry struct {
	Path     string
	Size     uint32
	ModTime  int64
	ROMData  []byte
}

// Manifest is the parsed table of contents of a ROM image.
type Manifest struct {
	Entries []ManifestEntry
}

// Loader is implemented by the external image-loading tool.
type Loader interface {
	// LoadExecutable parses the guest binary at path (resolved through the
	// VFS the caller owns) and returns its segments and entry point.
	LoadExecutable(path string) (*Executable, error)

	// LoadManifest parses the ROM image manifest, used to seed the VFS's
	// ROM drive provider.
	LoadManifest(romPath string) (*Manifest, error)
}
