package config_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mobcore/emu/config"
)

func TestLoadMissingFileReturnsZeroValue(t *testing.T) {
	c, err := config.Load(filepath.Join(t.TempDir(), "coreconfig.yml"))
	require.NoError(t, err)
	require.Equal(t, &config.Core{}, c)
}

func TestSaveThenLoadRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "coreconfig.yml")
	want := &config.Core{
		ROMPath:      `C:\rom.img`,
		WsIniPath:    `Z:\wsini.ini`,
		MountedDirs:  []config.Mount{{Drive: "C", Path: "/host/c"}},
		DebugLogging: true,
	}
	require.NoError(t, config.Save(path, want))

	got, err := config.Load(path)
	require.NoError(t, err)
	require.Equal(t, want, got)
}
