package vfs

import "time"

// ProviderID identifies a registered filesystem provider, returned by
// AddFilesystem for later RemoveFilesystem calls (spec.md §4.7).
type ProviderID int

// EntryType distinguishes files from directories in GetEntryInfo/OpenDir
// results.
type EntryType int

const (
	EntryFile EntryType = iota
	EntryDirectory
)

// EntryInfo is the result of GetEntryInfo: the facts the file server's
// FileOpen/rename/notify logic needs about a path (spec.md §4.7).
type EntryInfo struct {
	Size      int64
	Attrs     Attr
	LastWrite time.Time
	Type      EntryType
}

// OpenMode mirrors the file server's access-mode bits far enough for a
// provider to honor them (spec.md §4.8).
type OpenMode int

const (
	ModeRead OpenMode = 1 << iota
	ModeWrite
	ModeAppend
	// ModeCreate instructs the provider to create the file if it does not
	// exist; used by FileCreate/FileReplace/FileTemp.
	ModeCreate
	// ModeExclusiveCreate fails if the path already exists; used by
	// FileCreate.
	ModeExclusiveCreate
	// ModeTruncate zeroes an existing file's contents on open; used by
	// FileReplace.
	ModeTruncate
)

// File is the host-side handle a Provider hands back from Open. The file
// server's FS-node layer (package fileserver) wraps one of these per node.
type File interface {
	ReadAt(buf []byte, pos int64) (int, error)
	WriteAt(buf []byte, pos int64) (int, error)
	Size() (int64, error)
	SetSize(n int64) error
	Close() error
}

// Dir is an open directory iterator returned by Provider.OpenDir.
type Dir interface {
	// Next returns the next matching entry's name, or ok=false when
	// exhausted. Iteration is lazy (spec.md §4.7 "directories enumerate
	// entries lazily").
	Next() (name string, ok bool, err error)
	Close() error
}

// Provider is one backing store the VFS can mount onto a drive: a read-only
// ROM image, a host-directory-backed physical store, or (in principle) a
// reflected view of another drive. Paths passed to a Provider are already
// normalised and have had their drive prefix stripped (spec.md §4.7).
type Provider interface {
	Open(path string, mode OpenMode) (File, error)
	Exist(path string) bool
	Delete(path string) error
	Rename(src, dst string, overwrite bool) error
	Stat(path string) (EntryInfo, error)
	OpenDir(path, filter string) (Dir, error)
	Mkdir(path string) error
	MkdirAll(path string) error
}
