package main

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/unklstewy/skyradar/pkg/config"
)

// palette holds the colors of one theme.
type palette struct {
	title     lipgloss.Color
	titleBg   lipgloss.Color
	border    lipgloss.Color
	ring      lipgloss.Color
	ringLabel lipgloss.Color
	compass   lipgloss.Color
	center    lipgloss.Color
	vector    lipgloss.Color
	trail     lipgloss.Color
	label     lipgloss.Color
	selected  lipgloss.Color
	text      lipgloss.Color
	muted     lipgloss.Color
	highlight lipgloss.Color
	err       lipgloss.Color
}

var darkPalette = palette{
	title:     lipgloss.Color("86"),
	titleBg:   lipgloss.Color("235"),
	border:    lipgloss.Color("240"),
	ring:      lipgloss.Color("238"),
	ringLabel: lipgloss.Color("244"),
	compass:   lipgloss.Color("250"),
	center:    lipgloss.Color("208"),
	vector:    lipgloss.Color("39"),
	trail:     lipgloss.Color("242"),
	label:     lipgloss.Color("252"),
	selected:  lipgloss.Color("226"),
	text:      lipgloss.Color("255"),
	muted:     lipgloss.Color("241"),
	highlight: lipgloss.Color("237"),
	err:       lipgloss.Color("196"),
}

var lightPalette = palette{
	title:     lipgloss.Color("25"),
	titleBg:   lipgloss.Color("254"),
	border:    lipgloss.Color("245"),
	ring:      lipgloss.Color("250"),
	ringLabel: lipgloss.Color("243"),
	compass:   lipgloss.Color("236"),
	center:    lipgloss.Color("166"),
	vector:    lipgloss.Color("26"),
	trail:     lipgloss.Color("247"),
	label:     lipgloss.Color("235"),
	selected:  lipgloss.Color("160"),
	text:      lipgloss.Color("232"),
	muted:     lipgloss.Color("244"),
	highlight: lipgloss.Color("253"),
	err:       lipgloss.Color("160"),
}

// paletteFor resolves the configured theme against the terminal background.
func paletteFor(theme config.Theme, darkBackground bool) palette {
	if theme.Resolve(darkBackground) == config.ThemeLight {
		return lightPalette
	}
	return darkPalette
}
