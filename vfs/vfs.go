package vfs

import (
	"fmt"

	"github.com/jacobsa/syncutil"
)

// registeredProvider pairs a Provider with the id AddFilesystem returned for
// it. The drive a provider serves is recorded on that Drive entry.
type registeredProvider struct {
	id       ProviderID
	provider Provider
}

// VFS is the composable virtual file system spec.md §4.7 describes: 26
// drives, an ordered list of registered providers, and the handful of
// path-level operations the file server drives.
type VFS struct {
	mu syncutil.InvariantMutex

	drives    [26]Drive
	providers []registeredProvider
	nextID    ProviderID
}

// New creates a VFS with all 26 drives present but unmounted.
func New() *VFS {
	v := &VFS{}
	for i := range v.drives {
		v.drives[i] = Drive{Letter: Letter('A' + i), Media: MediaNone, provider: -1}
	}
	v.mu = syncutil.NewInvariantMutex(v.checkInvariants)
	return v
}

func (v *VFS) checkInvariants() {
	for _, d := range v.drives {
		if d.Mounted() && d.provider < 0 {
			panic(fmt.Sprintf("vfs: drive %s mounted with no provider", d.Letter))
		}
	}
}

// AddFilesystem registers provider and mounts it onto drive with the given
// media kind and attributes, returning an id for later RemoveFilesystem
// (spec.md §4.7).
func (v *VFS) AddFilesystem(drive Letter, media MediaKind, attrs Attr, provider Provider) ProviderID {
	v.mu.Lock()
	defer v.mu.Unlock()

	id := v.nextID
	v.nextID++
	v.providers = append(v.providers, registeredProvider{id: id, provider: provider})

	idx := drive.Index()
	v.drives[idx].Media = media
	v.drives[idx].Attrs = attrs
	v.drives[idx].provider = id
	return id
}

// RemoveFilesystem unmounts whichever drive id is serving and drops it from
// the provider list.
func (v *VFS) RemoveFilesystem(id ProviderID) {
	v.mu.Lock()
	defer v.mu.Unlock()

	for i := range v.drives {
		if v.drives[i].provider == id {
			v.drives[i].Media = MediaNone
			v.drives[i].Attrs = 0
			v.drives[i].provider = -1
		}
	}
	for i, rp := range v.providers {
		if rp.id == id {
			v.providers = append(v.providers[:i], v.providers[i+1:]...)
			break
		}
	}
}

// Drive returns drive letter l's current descriptor.
func (v *VFS) Drive(l Letter) Drive {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.drives[l.Index()]
}

func (v *VFS) providerFor(p Path) (Provider, error) {
	letter, ok := p.Drive()
	if !ok {
		return nil, fmt.Errorf("vfs: %q has no drive letter", p)
	}
	d := v.drives[letter.Index()]
	if !d.Mounted() {
		return nil, errNoProvider
	}
	for _, rp := range v.providers {
		if rp.id == d.provider {
			return rp.provider, nil
		}
	}
	return nil, errNoProvider
}

// OpenFile resolves and opens path (spec.md §4.7).
func (v *VFS) OpenFile(path Path, mode OpenMode) (File, error) {
	p, err := v.providerFor(path)
	if err != nil {
		return nil, err
	}
	return p.Open(path.Rest(), mode)
}

// Exist reports whether path resolves to a live entry.
func (v *VFS) Exist(path Path) bool {
	p, err := v.providerFor(path)
	if err != nil {
		return false
	}
	return p.Exist(path.Rest())
}

// DeleteEntry removes path, reporting success.
func (v *VFS) DeleteEntry(path Path) bool {
	p, err := v.providerFor(path)
	if err != nil {
		return false
	}
	return p.Delete(path.Rest()) == nil
}

// Rename moves src to dst without overwriting an existing destination
// (spec.md §4.8 distinguishes this from Replace, which does overwrite).
func (v *VFS) Rename(src, dst Path) bool {
	return v.renameOrReplace(src, dst, false)
}

// Replace moves src to dst, overwriting dst if it exists.
func (v *VFS) Replace(src, dst Path) bool {
	return v.renameOrReplace(src, dst, true)
}

func (v *VFS) renameOrReplace(src, dst Path, overwrite bool) bool {
	srcDrive, _ := src.Drive()
	dstDrive, _ := dst.Drive()
	if srcDrive != dstDrive {
		return false
	}
	p, err := v.providerFor(src)
	if err != nil {
		return false
	}
	return p.Rename(src.Rest(), dst.Rest(), overwrite) == nil
}

// GetEntryInfo stats path.
func (v *VFS) GetEntryInfo(path Path) (EntryInfo, error) {
	p, err := v.providerFor(path)
	if err != nil {
		return EntryInfo{}, err
	}
	return p.Stat(path.Rest())
}

// OpenDir opens path for lazy iteration, restricted to entries matching
// filter (a shell-style wildcard, "" for all).
func (v *VFS) OpenDir(path Path, filter string) (Dir, error) {
	p, err := v.providerFor(path)
	if err != nil {
		return nil, err
	}
	return p.OpenDir(path.Rest(), filter)
}

// CreateDirectory makes a single directory; the parent must already exist.
func (v *VFS) CreateDirectory(path Path) error {
	p, err := v.providerFor(path)
	if err != nil {
		return err
	}
	return p.Mkdir(path.Rest())
}

// CreateDirectories makes path and any missing ancestors.
func (v *VFS) CreateDirectories(path Path) error {
	p, err := v.providerFor(path)
	if err != nil {
		return err
	}
	return p.MkdirAll(path.Rest())
}
