package system_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mobcore/emu/graphics"
	"github.com/mobcore/emu/loader"
	"github.com/mobcore/emu/system"
	"github.com/mobcore/emu/vfs"
	"github.com/mobcore/emu/windowserver"
)

type fakeLoader struct {
	manifest *loader.Manifest
}

func (l *fakeLoader) LoadExecutable(path string) (*loader.Executable, error) {
	return &loader.Executable{Path: path}, nil
}

func (l *fakeLoader) LoadManifest(romPath string) (*loader.Manifest, error) {
	return l.manifest, nil
}

type fakeDriver struct{}

func (fakeDriver) LockFromProcess()                                 {}
func (fakeDriver) UnlockFromProcess()                               {}
func (fakeDriver) Invalidate(int, graphics.Rect)                    {}
func (fakeDriver) EndInvalidate(int)                                {}
func (fakeDriver) Flush(int, []graphics.Primitive) error            { return nil }

func TestBootMapsROMAndRegistersServers(t *testing.T) {
	ld := &fakeLoader{manifest: &loader.Manifest{Entries: []loader.ManifestEntry{
		{Path: `\System\Apps\hello.app`, ROMData: []byte("binary")},
	}}}

	sy := system.New(nil, ld, false)
	screens := []windowserver.ScreenConfig{{Number: 0}}
	require.NoError(t, sy.Boot(`Z:\rom.img`, fakeDriver{}, screens))

	require.NotNil(t, sy.FileServer)
	require.NotNil(t, sy.WindowServer)
	require.True(t, sy.VFS.Exist(vfs.Path(`Z:\System\Apps\hello.app`)))
}

func TestLoadAppSpawnsAndRunsProcess(t *testing.T) {
	ld := &fakeLoader{manifest: &loader.Manifest{}}
	sy := system.New(nil, ld, false)
	require.NoError(t, sy.Boot(`Z:\rom.img`, fakeDriver{}, nil))

	require.NoError(t, sy.LoadApp(`Z:\app.exe`, nil, [3]uint32{}))
	require.Equal(t, 1, sy.Kernel.ProcessCount())
}

func TestMountPhysicalMountsWritableDrive(t *testing.T) {
	ld := &fakeLoader{manifest: &loader.Manifest{}}
	sy := system.New(nil, ld, false)
	require.NoError(t, sy.Boot(`Z:\rom.img`, fakeDriver{}, nil))

	require.NoError(t, sy.MountPhysical('C', t.TempDir()))
	require.True(t, sy.VFS.Drive('C').Mounted())
}
