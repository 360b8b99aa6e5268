package main

import (
	"fmt"
	"strconv"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/unklstewy/skyradar/pkg/config"
)

type fieldKind int

const (
	fieldText fieldKind = iota
	fieldNumber
	fieldToggle
)

// settingField is one editable line of the settings screen.
// Toggle fields flip or cycle on enter; the others open an edit buffer.
type settingField struct {
	label string
	help  string
	kind  fieldKind
	get   func(config.Config) string
	set   func(*config.Config, string) error
	flip  func(*config.Config)
}

func parseFloat(s string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, fmt.Errorf("not a number: %q", s)
	}
	return v, nil
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}

var settingFields = []settingField{
	{
		label: "Observer name",
		kind:  fieldText,
		get:   func(c config.Config) string { return c.Observer.Name },
		set: func(c *config.Config, s string) error {
			c.Observer.Name = strings.TrimSpace(s)
			return nil
		},
	},
	{
		label: "Latitude",
		help:  "-90 to 90",
		kind:  fieldNumber,
		get:   func(c config.Config) string { return strconv.FormatFloat(c.Observer.Latitude, 'f', 4, 64) },
		set: func(c *config.Config, s string) error {
			v, err := parseFloat(s)
			c.Observer.Latitude = v
			return err
		},
	},
	{
		label: "Longitude",
		help:  "-180 to 180",
		kind:  fieldNumber,
		get:   func(c config.Config) string { return strconv.FormatFloat(c.Observer.Longitude, 'f', 4, 64) },
		set: func(c *config.Config, s string) error {
			v, err := parseFloat(s)
			c.Observer.Longitude = v
			return err
		},
	},
	{
		label: "Locate by IP at startup",
		kind:  fieldToggle,
		get:   func(c config.Config) string { return onOff(c.Observer.AutoLocate) },
		flip:  func(c *config.Config) { c.Observer.AutoLocate = !c.Observer.AutoLocate },
	},
	{
		label: "Refresh interval (s)",
		help:  fmt.Sprintf("minimum %d", config.MinRefreshIntervalSeconds),
		kind:  fieldNumber,
		get:   func(c config.Config) string { return strconv.Itoa(c.Refresh.IntervalSeconds) },
		set: func(c *config.Config, s string) error {
			v, err := strconv.Atoi(strings.TrimSpace(s))
			if err != nil {
				return fmt.Errorf("not a whole number: %q", s)
			}
			c.Refresh.IntervalSeconds = v
			return nil
		},
	},
	{
		label: "Auto refresh",
		kind:  fieldToggle,
		get:   func(c config.Config) string { return onOff(c.Refresh.AutoRefresh) },
		flip:  func(c *config.Config) { c.Refresh.AutoRefresh = !c.Refresh.AutoRefresh },
	},
	{
		label: "Radar radius (km)",
		help:  fmt.Sprintf("%.0f to %.0f", config.MinRadarRadiusKm, config.MaxRadarRadiusKm),
		kind:  fieldNumber,
		get:   func(c config.Config) string { return strconv.FormatFloat(c.Radar.RadiusKm, 'f', -1, 64) },
		set: func(c *config.Config, s string) error {
			v, err := parseFloat(s)
			c.Radar.RadiusKm = v
			return err
		},
	},
	{
		label: "Trails",
		kind:  fieldToggle,
		get:   func(c config.Config) string { return onOff(c.Radar.ShowTrails) },
		flip:  func(c *config.Config) { c.Radar.ShowTrails = !c.Radar.ShowTrails },
	},
	{
		label: "Out of range aircraft",
		kind:  fieldToggle,
		get:   func(c config.Config) string { return c.Radar.RangePolicy },
		flip: func(c *config.Config) {
			if c.Radar.Policy().String() == "clamp" {
				c.Radar.RangePolicy = "exclude"
			} else {
				c.Radar.RangePolicy = "clamp"
			}
		},
	},
	{
		label: "Theme",
		kind:  fieldToggle,
		get:   func(c config.Config) string { return string(c.UI.Theme) },
		flip:  func(c *config.Config) { c.UI.Theme = c.UI.Theme.Next() },
	},
}

// settingsModel edits the live configuration. Every accepted change is
// validated, saved and applied immediately.
type settingsModel struct {
	live    *config.Live
	open    bool
	cursor  int
	editing bool
	buffer  string

	message        string
	messageIsError bool
}

func newSettingsModel(live *config.Live) settingsModel {
	return settingsModel{live: live}
}

func (m settingsModel) Update(msg tea.KeyMsg) settingsModel {
	if m.editing {
		return m.handleEditMode(msg)
	}

	switch msg.String() {
	case "esc", "s", "q":
		m.open = false
		m.message = ""
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		} else {
			m.cursor = len(settingFields) - 1
		}
		m.message = ""
	case "down", "j":
		m.cursor = (m.cursor + 1) % len(settingFields)
		m.message = ""
	case "enter", " ":
		f := settingFields[m.cursor]
		if f.kind == fieldToggle {
			m.report(m.live.Update(f.flip), f.label+" updated")
			return m
		}
		m.editing = true
		m.buffer = f.get(m.live.Config())
	case "D":
		m.report(m.live.Reset(), "Defaults restored")
	}
	return m
}

func (m settingsModel) handleEditMode(msg tea.KeyMsg) settingsModel {
	switch msg.Type {
	case tea.KeyEsc:
		m.editing = false
		m.buffer = ""
		m.message = "Edit cancelled"
		m.messageIsError = false
	case tea.KeyEnter:
		f := settingFields[m.cursor]
		probe := m.live.Config()
		err := f.set(&probe, m.buffer)
		if err == nil {
			err = m.live.Update(func(c *config.Config) {
				_ = f.set(c, m.buffer)
			})
		}
		if err == nil {
			m.editing = false
			m.buffer = ""
		}
		m.report(err, f.label+" updated")
	case tea.KeyBackspace:
		if r := []rune(m.buffer); len(r) > 0 {
			m.buffer = string(r[:len(r)-1])
		}
	case tea.KeyRunes, tea.KeySpace:
		m.buffer += string(msg.Runes)
	}
	return m
}

func (m *settingsModel) report(err error, ok string) {
	if err != nil {
		m.message = fmt.Sprintf("Error: %v", err)
		m.messageIsError = true
		return
	}
	m.message = ok
	m.messageIsError = false
}

func (m settingsModel) View(pal palette) string {
	var s strings.Builder

	headerStyle := lipgloss.NewStyle().Bold(true).Foreground(pal.vector)
	s.WriteString(headerStyle.Render("SETTINGS"))
	s.WriteString("\n\n")

	cfg := m.live.Config()
	for i, f := range settingFields {
		selected := i == m.cursor

		prefix := "  "
		if selected {
			prefix = "▸ "
		}

		fieldStyle := lipgloss.NewStyle().Foreground(pal.text)
		if selected {
			fieldStyle = fieldStyle.Background(pal.highlight)
		}

		value := f.get(cfg)
		if selected && m.editing {
			value = m.buffer + "_"
		}
		line := fmt.Sprintf("%s%-24s %s", prefix, f.label+":", value)
		s.WriteString(fieldStyle.Render(line))
		if f.help != "" {
			s.WriteString(lipgloss.NewStyle().Foreground(pal.muted).Render("  (" + f.help + ")"))
		}
		s.WriteString("\n")
	}

	s.WriteString("\n")
	if m.message != "" {
		color := pal.vector
		if m.messageIsError {
			color = pal.err
		}
		s.WriteString(lipgloss.NewStyle().Foreground(color).Render(m.message))
		s.WriteString("\n")
	}
	if path := m.live.Path(); path != "" {
		s.WriteString(lipgloss.NewStyle().Foreground(pal.muted).Render("Saved to " + path))
		s.WriteString("\n")
	}

	helpStyle := lipgloss.NewStyle().Foreground(pal.muted)
	if m.editing {
		s.WriteString(helpStyle.Render("ENTER: Apply  ESC: Cancel"))
	} else {
		s.WriteString(helpStyle.Render("↑/↓: Select  ENTER: Edit/Toggle  D: Restore defaults  ESC: Back"))
	}
	return s.String()
}
