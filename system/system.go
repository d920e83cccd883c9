// Package system is the guest-runtime core's single explicit context
// record: it owns the address space, virtual clock, kernel, scheduler,
// VFS and the two built-in servers, and reproduces the reference boot
// sequence (ROM mapped before any process exists; file server and window
// server registered before any user image loads).
package system

import (
	"fmt"
	"io"
	"log"
	"os"
	"sync"

	"time"

	"github.com/mobcore/emu/cpuengine"
	"github.com/mobcore/emu/fileserver"
	"github.com/mobcore/emu/graphics"
	"github.com/mobcore/emu/kernel"
	"github.com/mobcore/emu/loader"
	"github.com/mobcore/emu/mem"
	"github.com/mobcore/emu/sched"
	"github.com/mobcore/emu/status"
	"github.com/mobcore/emu/timing"
	"github.com/mobcore/emu/vfs"
	"github.com/mobcore/emu/windowserver"
)

var (
	loggerOnce sync.Once
	logger     *log.Logger
)

// newLogger builds the package's debug logger once, the way the teacher's
// debug.go gates gLogger on a boolean rather than always writing to
// stderr.
func newLogger(debug bool) *log.Logger {
	loggerOnce.Do(func() {
		var w io.Writer = io.Discard
		if debug {
			w = os.Stderr
		}
		logger = log.New(w, "emu: ", log.Ldate|log.Ltime|log.Lmicroseconds)
	})
	return logger
}

// System aggregates every live subsystem. It is the one record handed to
// components that need cross-cutting access (spec.md §2 "control flow"),
// in place of a single god-object each subsystem would otherwise reach
// into directly.
type System struct {
	AS        *mem.AddressSpace
	Clock     *timing.Clock
	Kernel    *kernel.Kernel
	Scheduler *sched.Scheduler
	VFS       *vfs.VFS

	FileServer   *fileserver.Server
	WindowServer *windowserver.Server

	Logger *log.Logger
}

// New wires together the address space, clock, kernel and scheduler, but
// does not yet map the ROM or register any server -- call Boot for that.
func New(cpu cpuengine.Engine, ld loader.Loader, debug bool) *System {
	lg := newLogger(debug)

	as := mem.NewAddressSpace(mem.LayoutModern)
	clock := timing.New()
	k := kernel.New(as, clock, ld, nil, lg)
	s := sched.New(k, cpu)
	k.Scheduler = s

	return &System{
		AS:        as,
		Clock:     clock,
		Kernel:    k,
		Scheduler: s,
		VFS:       vfs.New(),
		Logger:    lg,
	}
}

// romClock adapts the emulator's virtual tick clock to timeutil.Clock, so
// vfs.NewROMProvider can stamp ROM entries with a deterministic mtime tied
// to virtual rather than wall-clock time.
type romClock struct{ c *timing.Clock }

func (r romClock) Now() time.Time {
	return time.Unix(int64(r.c.Now()), 0).UTC()
}

// Boot reproduces the reference implementation's startup order
// (`epoc.cpp`): the ROM manifest is mapped onto drive Z before any
// process exists, then the file server and window server are registered
// -- the two system servers that must be reachable before any user image
// is loaded. Screens comes from a parsed wsini.ini (windowserver.LoadWsIni).
func (sy *System) Boot(romPath string, driver graphics.Driver, screens []windowserver.ScreenConfig) error {
	if err := sy.mapROM(romPath); err != nil {
		return fmt.Errorf("system: map ROM: %w", err)
	}

	fsrv := fileserver.New(sy.Kernel, sy.VFS)
	if code := sy.Kernel.RegisterServer(fsrv.KernelServer()); code != status.None {
		return fmt.Errorf("system: register file server: status %d", code)
	}
	sy.FileServer = fsrv

	wsrv := windowserver.New(sy.Kernel, driver, screens)
	if code := sy.Kernel.RegisterServer(wsrv.KernelServer()); code != status.None {
		return fmt.Errorf("system: register window server: status %d", code)
	}
	sy.WindowServer = wsrv

	sy.Logger.Printf("boot: ROM mapped, file server and window server registered")
	return nil
}

// mapROM loads romPath's manifest through the kernel's loader and seeds a
// read-only provider mounted on drive Z (spec.md §4.7, `fs.cpp`'s drive
// table: every letter defaults to unmounted, only an explicit
// add_filesystem call populates one).
func (sy *System) mapROM(romPath string) error {
	if sy.Kernel.Loader == nil {
		return fmt.Errorf("no loader configured")
	}

	manifest, err := sy.Kernel.Loader.LoadManifest(romPath)
	if err != nil {
		return err
	}

	rom := vfs.NewROMProvider(romClock{sy.Clock})
	for _, e := range manifest.Entries {
		if err := rom.AddFile(e.Path, e.ROMData); err != nil {
			return fmt.Errorf("add %q: %w", e.Path, err)
		}
	}

	sy.VFS.AddFilesystem('Z', vfs.MediaROM, vfs.AttrWriteProtected, rom)
	return nil
}

// MountPhysical mounts a host directory onto drive as writable storage,
// detecting internal-vs-removable media with statfs(2) rather than
// guessing (vfs.PhysicalProvider.DriveAttrs).
func (sy *System) MountPhysical(drive vfs.Letter, path string) error {
	p := vfs.NewPhysicalProvider(path)
	attrs, err := p.DriveAttrs()
	if err != nil {
		return fmt.Errorf("system: stat %q: %w", path, err)
	}
	sy.VFS.AddFilesystem(drive, vfs.MediaPhysical, attrs, p)
	return nil
}

// LoadApp spawns the guest executable at path as a new process and marks
// it runnable, the step that happens strictly after Boot per spec.md §2.
func (sy *System) LoadApp(path string, args []string, uid [3]uint32) error {
	p, err := sy.Kernel.SpawnProcess(path, args, uid)
	if err != nil {
		return err
	}
	sy.Kernel.RunProcess(p)
	return nil
}

// Run drives the scheduler loop until no processes remain.
func (sy *System) Run() error {
	return sy.Scheduler.Run()
}
