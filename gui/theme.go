//go:build gui

package gui

import (
	"image/color"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/theme"
)

// palette overrides the stock dark variant. Red marks the record button
// and the active recording state.
var palette = map[fyne.ThemeColorName]color.Color{
	theme.ColorNameBackground:      color.NRGBA{R: 18, G: 18, B: 18, A: 255},
	theme.ColorNameForeground:      color.NRGBA{R: 200, G: 200, B: 200, A: 255},
	theme.ColorNamePrimary:         color.NRGBA{R: 196, G: 40, B: 40, A: 255},
	theme.ColorNameButton:          color.NRGBA{R: 34, G: 34, B: 34, A: 255},
	theme.ColorNameInputBackground: color.NRGBA{R: 34, G: 34, B: 34, A: 255},
}

// transcriptTheme forces the dark variant and a slightly larger text size
// so the transcript is readable at a distance.
type transcriptTheme struct {
	fyne.Theme
}

func newTranscriptTheme() fyne.Theme {
	return &transcriptTheme{Theme: theme.DefaultTheme()}
}

func (t *transcriptTheme) Color(name fyne.ThemeColorName, _ fyne.ThemeVariant) color.Color {
	if c, ok := palette[name]; ok {
		return c
	}
	return t.Theme.Color(name, theme.VariantDark)
}

func (t *transcriptTheme) Size(name fyne.ThemeSizeName) float32 {
	if name == theme.SizeNameText {
		return 15
	}
	return t.Theme.Size(name)
}
