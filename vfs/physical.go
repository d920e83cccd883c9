package vfs

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	fallocate "github.com/detailyang/go-fallocate"
	"golang.org/x/sys/unix"
)

// PhysicalProvider serves a drive out of a real host directory, the backing
// store for drive C and any other writable drive (spec.md §4.7,
// "Environment": drive C is persistent writable storage).
type PhysicalProvider struct {
	root string
}

// NewPhysicalProvider roots a provider at dir, which must already exist on
// the host.
func NewPhysicalProvider(dir string) *PhysicalProvider {
	return &PhysicalProvider{root: dir}
}

func (p *PhysicalProvider) hostPath(path string) string {
	parts := strings.Split(path, "\\")
	return filepath.Join(append([]string{p.root}, parts...)...)
}

func (p *PhysicalProvider) Open(path string, mode OpenMode) (File, error) {
	flags := os.O_RDONLY
	switch {
	case mode&ModeWrite != 0 && mode&ModeRead != 0:
		flags = os.O_RDWR
	case mode&ModeWrite != 0:
		flags = os.O_WRONLY
	}
	if mode&ModeAppend != 0 {
		flags |= os.O_APPEND
	}
	if mode&ModeExclusiveCreate != 0 {
		flags |= os.O_CREATE | os.O_EXCL
	} else if mode&ModeCreate != 0 {
		flags |= os.O_CREATE
	}
	if mode&ModeTruncate != 0 {
		flags |= os.O_TRUNC
	}

	f, err := os.OpenFile(p.hostPath(path), flags, 0644)
	if err != nil {
		return nil, err
	}
	return &physicalFile{f: f}, nil
}

func (p *PhysicalProvider) Exist(path string) bool {
	_, err := os.Stat(p.hostPath(path))
	return err == nil
}

func (p *PhysicalProvider) Delete(path string) error {
	return os.Remove(p.hostPath(path))
}

func (p *PhysicalProvider) Rename(src, dst string, overwrite bool) error {
	dstPath := p.hostPath(dst)
	if !overwrite {
		if _, err := os.Stat(dstPath); err == nil {
			return errExists
		}
	}
	return os.Rename(p.hostPath(src), dstPath)
}

func (p *PhysicalProvider) Mkdir(path string) error {
	return os.Mkdir(p.hostPath(path), 0755)
}

func (p *PhysicalProvider) MkdirAll(path string) error {
	return os.MkdirAll(p.hostPath(path), 0755)
}

func (p *PhysicalProvider) Stat(path string) (EntryInfo, error) {
	fi, err := os.Stat(p.hostPath(path))
	if err != nil {
		return EntryInfo{}, err
	}

	info := EntryInfo{
		Size:      fi.Size(),
		LastWrite: fi.ModTime(),
	}
	if fi.IsDir() {
		info.Type = EntryDirectory
	}
	if fi.Mode().Perm()&0200 == 0 {
		info.Attrs |= AttrWriteProtected
	}

	if strings.HasPrefix(filepath.Base(path), ".") {
		info.Attrs |= AttrHidden
	}

	return info, nil
}

// DriveAttrs inspects the host filesystem backing p with statfs(2) and
// reports whether it looks like removable media (FAT/ISO9660/tmpfs, the
// kinds a USB stick, SD card or optical drive actually present as) rather
// than internal storage (spec.md §4.7 drive attributes ∈ {internal,
// removable, hidden, write-protected}).
func (p *PhysicalProvider) DriveAttrs() (Attr, error) {
	var sfs unix.Statfs_t
	if err := unix.Statfs(p.root, &sfs); err != nil {
		return 0, err
	}
	switch int64(sfs.Type) {
	case int64(unix.MSDOS_SUPER_MAGIC), int64(unix.ISOFS_SUPER_MAGIC), int64(unix.TMPFS_MAGIC):
		return AttrRemovable, nil
	default:
		return AttrInternal, nil
	}
}

func (p *PhysicalProvider) OpenDir(path, filter string) (Dir, error) {
	entries, err := os.ReadDir(p.hostPath(path))
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if matchFilter(e.Name(), filter) {
			names = append(names, e.Name())
		}
	}
	return &sliceDir{names: names}, nil
}

type physicalFile struct {
	f *os.File
}

func (pf *physicalFile) ReadAt(buf []byte, pos int64) (int, error) {
	n, err := pf.f.ReadAt(buf, pos)
	if err == io.EOF {
		err = nil
	}
	return n, err
}

func (pf *physicalFile) WriteAt(buf []byte, pos int64) (int, error) {
	return pf.f.WriteAt(buf, pos)
}

func (pf *physicalFile) Size() (int64, error) {
	fi, err := pf.f.Stat()
	if err != nil {
		return 0, err
	}
	return fi.Size(), nil
}

// SetSize implements FileSetSize (spec.md §4.8). Growing a file
// preallocates its blocks with fallocate(2) rather than leaving a sparse
// hole, matching how the physical drive's real backing media would commit
// the space up front.
func (pf *physicalFile) SetSize(n int64) error {
	cur, err := pf.Size()
	if err != nil {
		return err
	}
	if n <= cur {
		return pf.f.Truncate(n)
	}
	return fallocate.Fallocate(pf.f, cur, n-cur)
}

func (pf *physicalFile) Close() error { return pf.f.Close() }
