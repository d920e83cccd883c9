// Command emu is the guest-runtime core's thin front-end. It owns none of
// the core's logic: it parses flags, loads the persisted coreconfig.yml
// and wsini.ini, and hands everything to system.New/Boot. The CPU engine,
// image loader and graphics driver are external collaborators (spec.md
// §1) this binary does not implement -- wire in real ones to get a
// running emulator.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mobcore/emu/config"
	"github.com/mobcore/emu/graphics"
	"github.com/mobcore/emu/system"
	"github.com/mobcore/emu/vfs"
	"github.com/mobcore/emu/windowserver"
)

// noopDriver stands in for a real graphics back-end, which this thin
// front-end does not provide (spec.md §1).
type noopDriver struct{}

func (noopDriver) LockFromProcess()                        {}
func (noopDriver) UnlockFromProcess()                       {}
func (noopDriver) Invalidate(int, graphics.Rect)            {}
func (noopDriver) EndInvalidate(int)                        {}
func (noopDriver) Flush(int, []graphics.Primitive) error    { return nil }

type flags struct {
	configPath string
	romPath    string
	wsiniPath  string
	appPath    string
	debug      bool
}

func main() {
	var f flags

	root := &cobra.Command{
		Use:   "emu [app-path]",
		Short: "Guest-runtime core front-end",
		Long: `emu boots the guest-runtime core: it maps a ROM image, registers the
file server and window server, and optionally spawns a guest executable.

It does not itself provide an ARM CPU engine, an image loader, or a
graphics driver -- those are external collaborators the core only
describes the interface of.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				f.appPath = args[0]
			}
			return run(f)
		},
	}

	root.Flags().StringVar(&f.configPath, "config", "coreconfig.yml", "path to the persisted core config file")
	root.Flags().StringVar(&f.romPath, "rom", "", "path to the ROM image (overrides the config file's rom_path)")
	root.Flags().StringVar(&f.wsiniPath, "wsini", "", "path to wsini.ini (overrides the config file's wsini_path)")
	root.Flags().BoolVar(&f.debug, "debug", false, "enable debug logging")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(f flags) error {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return err
	}

	romPath := f.romPath
	if romPath == "" {
		romPath = cfg.ROMPath
	}
	wsiniPath := f.wsiniPath
	if wsiniPath == "" {
		wsiniPath = cfg.WsIniPath
	}
	if romPath == "" {
		return fmt.Errorf("emu: no ROM path given (set --rom or rom_path in %s)", f.configPath)
	}

	var screens []windowserver.ScreenConfig
	if wsiniPath != "" {
		data, err := os.ReadFile(wsiniPath)
		if err != nil {
			return fmt.Errorf("emu: read wsini.ini: %w", err)
		}
		screens, err = windowserver.LoadWsIni(data)
		if err != nil {
			return err
		}
	}

	sy := system.New(nil, nil, f.debug || cfg.DebugLogging)
	if err := sy.Boot(romPath, noopDriver{}, screens); err != nil {
		return fmt.Errorf("emu: boot: %w (no CPU engine/loader wired into this binary)", err)
	}

	for _, m := range cfg.MountedDirs {
		if len(m.Drive) != 1 {
			return fmt.Errorf("emu: mounted_dirs: invalid drive letter %q", m.Drive)
		}
		letter, ok := vfs.ParseLetter(m.Drive[0])
		if !ok {
			return fmt.Errorf("emu: mounted_dirs: invalid drive letter %q", m.Drive)
		}
		if err := sy.MountPhysical(letter, m.Path); err != nil {
			return fmt.Errorf("emu: mount %s: %q: %w", m.Drive, m.Path, err)
		}
	}

	if f.appPath != "" {
		if err := sy.LoadApp(f.appPath, nil, [3]uint32{}); err != nil {
			return fmt.Errorf("emu: load %q: %w", f.appPath, err)
		}
	}

	cfg.ROMPath = romPath
	cfg.WsIniPath = wsiniPath
	return config.Save(f.configPath, cfg)
}
