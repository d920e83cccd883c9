// Package config persists the emulator's host-side settings file,
// coreconfig.yml (spec.md §6 "Persisted state ... opaque to the core").
// Nothing in the guest-runtime core reads these fields; they exist purely
// so a front-end (cmd/emu) has somewhere to keep user preferences across
// runs.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Core is the on-disk shape of coreconfig.yml. Every field is free-form
// front-end state: the kernel, VFS and servers never look at this struct.
type Core struct {
	ROMPath      string  `yaml:"rom_path"`
	WsIniPath    string  `yaml:"wsini_path"`
	MountedDirs  []Mount `yaml:"mounted_dirs"`
	LastApp      string  `yaml:"last_app,omitempty"`
	DebugLogging bool    `yaml:"debug_logging"`
}

// Mount is one host-directory-to-drive-letter binding, remembered across
// runs so the front-end doesn't need the user to re-pick it every launch.
type Mount struct {
	Drive string `yaml:"drive"`
	Path  string `yaml:"path"`
}

// Load reads and parses path, returning a zero-value Core if the file does
// not yet exist (first run).
func Load(path string) (*Core, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return &Core{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: read %q: %w", path, err)
	}

	var c Core
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return &c, nil
}

// Save serializes c to path, overwriting any existing file.
func Save(path string, c *Core) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("config: marshal: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("config: write %q: %w", path, err)
	}
	return nil
}
