// Package windowserver implements the window server described in spec.md
// §4.9: per-client window trees, redraw priority ordering, focus transfer,
// and graphics-context drawing bracketed by BeginRedraw/EndRedraw.
package windowserver

import (
	"fmt"

	"gopkg.in/ini.v1"
)

// Rotation is a screen mode's rotation in degrees (spec.md §6 wsini.ini).
type Rotation int

const (
	Rotate0   Rotation = 0
	Rotate90  Rotation = 90
	Rotate180 Rotation = 180
	Rotate270 Rotation = 270
)

// ScreenMode is one numbered mode a screen can be switched to.
type ScreenMode struct {
	Number   int
	Width    int
	Height   int
	Rotation Rotation
}

// ScreenConfig is one SCREEN<n> section of wsini.ini: an ordered list of
// modes.
type ScreenConfig struct {
	Number int
	Modes  []ScreenMode
}

// LoadWsIni parses the window server's config out of wsini.ini (spec.md
// §6): sections "SCREEN<n>" with keys "SCR_WIDTH<m>"/"SCR_HEIGHT<m>"/
// "SCR_ROTATION<m>" for each mode m.
func LoadWsIni(data []byte) ([]ScreenConfig, error) {
	f, err := ini.Load(data)
	if err != nil {
		return nil, fmt.Errorf("windowserver: parse wsini.ini: %w", err)
	}

	var screens []ScreenConfig
	for _, sec := range f.Sections() {
		var screenNum int
		if _, err := fmt.Sscanf(sec.Name(), "SCREEN%d", &screenNum); err != nil {
			continue
		}

		sc := ScreenConfig{Number: screenNum}
		for m := 1; ; m++ {
			widthKey := fmt.Sprintf("SCR_WIDTH%d", m)
			if !sec.HasKey(widthKey) {
				break
			}
			mode := ScreenMode{Number: m}
			mode.Width = sec.Key(widthKey).MustInt(0)
			mode.Height = sec.Key(fmt.Sprintf("SCR_HEIGHT%d", m)).MustInt(0)
			mode.Rotation = Rotation(sec.Key(fmt.Sprintf("SCR_ROTATION%d", m)).MustInt(0))
			sc.Modes = append(sc.Modes, mode)
		}
		screens = append(screens, sc)
	}
	return screens, nil
}
