package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/rs/zerolog"

	"github.com/unklstewy/skyradar/internal/app"
	"github.com/unklstewy/skyradar/internal/logging"
	"github.com/unklstewy/skyradar/pkg/config"
	"github.com/unklstewy/skyradar/pkg/coordinates"
	"github.com/unklstewy/skyradar/pkg/radar"
	"github.com/unklstewy/skyradar/pkg/refresh"
	"github.com/unklstewy/skyradar/pkg/tracking"
)

var (
	// Version information (set by build flags)
	version = "dev"
	commit  = "unknown"
)

// Space reserved around the radar box
const (
	panelWidth   = 38
	chromeHeight = 5
	minRadarW    = 40
	minRadarH    = 15
)

type tickMsg time.Time

func tick(fps int) tea.Cmd {
	if fps <= 0 {
		fps = 4
	}
	return tea.Tick(time.Second/time.Duration(fps), func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

type locatedMsg struct{ err error }

type model struct {
	app      *app.App
	log      zerolog.Logger
	darkBg   bool
	settings settingsModel

	width  int
	height int

	// Frame state, rebuilt on every tick
	now    time.Time
	vp     coordinates.Viewport
	points []radar.Point
	rings  []radar.Ring
	status refresh.Status

	selected string
	labels   bool

	message        string
	messageIsError bool
}

func newModel(a *app.App, logger zerolog.Logger) model {
	return model{
		app:      a,
		log:      logger,
		darkBg:   lipgloss.HasDarkBackground(),
		settings: newSettingsModel(a.Config),
		width:    minRadarW + panelWidth,
		height:   minRadarH + chromeHeight,
		now:      time.Now(),
	}
}

func (m model) Init() tea.Cmd {
	return tick(m.app.Config.Config().UI.FPS)
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.refreshFrame()
		return m, nil

	case tickMsg:
		m.refreshFrame()
		return m, tick(m.app.Config.Config().UI.FPS)

	case locatedMsg:
		if msg.err != nil {
			m.setMessage("Location unavailable, keeping "+m.observerName(), true)
		} else {
			m.setMessage("Located at "+m.observerName(), false)
		}
		return m, nil

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
		if m.settings.open {
			m.settings = m.settings.Update(msg)
			return m, nil
		}
		return m.handleKey(msg)
	}

	return m, nil
}

func (m model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	m.message = ""

	switch msg.String() {
	case "q":
		return m, tea.Quit
	case "+", "=":
		m.app.View.ZoomIn()
	case "-", "_":
		m.app.View.ZoomOut()
	case "0":
		m.app.View.SetZoom(m.app.Config.Config().Radar.Zoom)
	case "r":
		m.app.RefreshNow()
		m.setMessage("Refresh requested", false)
	case "a":
		m.toggle("Auto refresh", func(c *config.Config) { c.Refresh.AutoRefresh = !c.Refresh.AutoRefresh })
	case "v":
		m.toggle("Trails", func(c *config.Config) { c.Radar.ShowTrails = !c.Radar.ShowTrails })
	case "t":
		m.toggle("Theme", func(c *config.Config) { c.UI.Theme = c.UI.Theme.Next() })
	case "l":
		m.labels = !m.labels
	case "g":
		m.setMessage("Locating…", false)
		return m, m.locate()
	case "s":
		m.settings.open = true
	case "up", "k":
		m.moveSelection(-1)
	case "down", "j":
		m.moveSelection(1)
	case "esc":
		m.selected = ""
	}

	m.refreshFrame()
	return m, nil
}

func (m *model) toggle(name string, fn func(*config.Config)) {
	if err := m.app.Config.Update(fn); err != nil {
		m.log.Warn().Err(err).Str("setting", name).Msg("Settings update rejected")
		m.setMessage(fmt.Sprintf("%s: %v", name, err), true)
		return
	}
	m.setMessage(name+" updated", false)
}

func (m model) locate() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return locatedMsg{err: m.app.Locate(ctx)}
	}
}

func (m *model) setMessage(text string, isError bool) {
	m.message = text
	m.messageIsError = isError
}

func (m model) observerName() string {
	cfg := m.app.Config.Config()
	if cfg.Observer.Name != "" {
		return cfg.Observer.Name
	}
	return fmt.Sprintf("%.4f, %.4f", cfg.Observer.Latitude, cfg.Observer.Longitude)
}

// radarSize returns the outer size of the radar box for the current window.
func (m model) radarSize() (int, int) {
	w := m.width - panelWidth
	if w < minRadarW {
		w = minRadarW
	}
	h := m.height - chromeHeight
	if h < minRadarH {
		h = minRadarH
	}
	return w, h
}

// refreshFrame advances interpolation and projects the current records.
func (m *model) refreshFrame() {
	m.now = time.Now()
	m.vp = radarViewport(m.radarSize())
	m.points = m.app.Points(m.vp)
	m.rings = m.app.View.Rings(m.vp)
	m.status = m.app.Scheduler.Status()

	sort.SliceStable(m.points, func(i, j int) bool {
		return m.points[i].RangeKm < m.points[j].RangeKm
	})

	if m.selected != "" && m.selectedIndex() < 0 {
		m.selected = ""
	}
}

func (m model) selectedIndex() int {
	for i, p := range m.points {
		if p.ICAO24 == m.selected {
			return i
		}
	}
	return -1
}

// moveSelection steps through aircraft ordered by range.
func (m *model) moveSelection(delta int) {
	if len(m.points) == 0 {
		m.selected = ""
		return
	}
	i := m.selectedIndex()
	switch {
	case i < 0 && delta > 0:
		i = 0
	case i < 0:
		i = len(m.points) - 1
	default:
		i = (i + delta + len(m.points)) % len(m.points)
	}
	m.selected = m.points[i].ICAO24
}

func (m model) View() string {
	cfg := m.app.Config.Config()
	pal := paletteFor(cfg.UI.Theme, m.darkBg)

	var s strings.Builder

	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(pal.title).
		Background(pal.titleBg).
		Padding(0, 1)
	s.WriteString(titleStyle.Render("SKYRADAR"))
	s.WriteString(lipgloss.NewStyle().Foreground(pal.muted).Render(fmt.Sprintf(
		"  %s  ·  range %.1f km  ·  zoom %.2fx  ·  %s",
		m.observerName(), m.app.View.VisibleRangeKm(), m.app.View.Zoom(), m.status.Source)))
	s.WriteString("\n")

	if m.settings.open {
		s.WriteString("\n")
		s.WriteString(m.settings.View(pal))
		return s.String()
	}

	w, h := m.radarSize()
	box := renderRadar(radarFrame{
		width:    w,
		height:   h,
		points:   m.points,
		rings:    m.rings,
		vp:       m.vp,
		selected: m.selected,
		labels:   m.labels,
		pal:      pal,
	})
	s.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, box, " ", m.renderInfo(pal, h)))
	s.WriteString("\n")

	statusColor := pal.text
	if m.status.State == refresh.StateBackoff {
		statusColor = pal.err
	}
	autoLabel := "auto"
	if !cfg.Refresh.AutoRefresh {
		autoLabel = "manual"
	}
	s.WriteString(lipgloss.NewStyle().Foreground(statusColor).Render(m.status.Summary(m.now)))
	s.WriteString(lipgloss.NewStyle().Foreground(pal.muted).Render(fmt.Sprintf(
		"  ·  %d aircraft  ·  %s", m.app.Store.Len(), autoLabel)))
	s.WriteString("\n")

	if m.message != "" {
		color := pal.vector
		if m.messageIsError {
			color = pal.err
		}
		s.WriteString(lipgloss.NewStyle().Foreground(color).Render(m.message))
	}
	s.WriteString("\n")

	helpStyle := lipgloss.NewStyle().Foreground(pal.muted)
	s.WriteString(helpStyle.Render("+/-: Zoom  r: Refresh  a: Auto  v: Trails  l: Labels  t: Theme  g: Locate  s: Settings  ↑/↓: Select  q: Quit"))

	return s.String()
}

// renderInfo renders the side panel: nearest aircraft, selection details
// and the altitude legend.
func (m model) renderInfo(pal palette, height int) string {
	var info strings.Builder

	headerStyle := lipgloss.NewStyle().Bold(true).Foreground(pal.vector)
	textStyle := lipgloss.NewStyle().Foreground(pal.text)
	mutedStyle := lipgloss.NewStyle().Foreground(pal.muted)

	info.WriteString(headerStyle.Render(fmt.Sprintf("AIRCRAFT (%d in range)", len(m.points))))
	info.WriteString("\n")

	listRows := height - 18
	if listRows < 3 {
		listRows = 3
	}
	for i, p := range m.points {
		if i >= listRows {
			info.WriteString(mutedStyle.Render(fmt.Sprintf("  … %d more", len(m.points)-i)))
			info.WriteString("\n")
			break
		}
		prefix := "  "
		style := textStyle
		if p.ICAO24 == m.selected {
			prefix = "▸ "
			style = style.Foreground(pal.selected).Bold(true)
		}
		swatch := lipgloss.NewStyle().Foreground(lipgloss.Color(p.Color.Hex())).Render("■")
		info.WriteString(prefix + swatch + " ")
		info.WriteString(style.Render(fmt.Sprintf("%-8s %6.1fkm %03.0f° %s",
			truncate(p.Label, 8), p.RangeKm, p.BearingDeg, formatAltitude(p))))
		info.WriteString("\n")
	}
	info.WriteString("\n")

	if rec, ok := m.app.Store.Get(m.selected); ok {
		info.WriteString(headerStyle.Render(rec.DisplayName()))
		info.WriteString("\n")
		info.WriteString(textStyle.Render(m.details(rec)))
		info.WriteString("\n")
	}

	info.WriteString(headerStyle.Render("ALTITUDE"))
	info.WriteString("\n")
	for _, band := range []tracking.AltitudeBand{
		tracking.BandLow, tracking.BandMedium, tracking.BandHigh, tracking.BandVeryHigh, tracking.BandUnknown,
	} {
		info.WriteString(lipgloss.NewStyle().Foreground(lipgloss.Color(band.Color().Hex())).Render("■"))
		info.WriteString(" " + band.String() + "\n")
	}

	return info.String()
}

func (m model) details(rec tracking.Record) string {
	var d strings.Builder
	fmt.Fprintf(&d, "ICAO      %s\n", rec.ICAO24)
	if v, ok := rec.Last.OriginCountry.Get(); ok {
		fmt.Fprintf(&d, "Country   %s\n", v)
	}
	if v, ok := rec.Last.Altitude.Get(); ok {
		fmt.Fprintf(&d, "Altitude  %.0f m\n", v)
	}
	if v, ok := rec.Last.GroundSpeed.Get(); ok {
		fmt.Fprintf(&d, "Speed     %.0f km/h\n", v*3.6)
	}
	if v, ok := rec.Last.Heading.Get(); ok {
		fmt.Fprintf(&d, "Track     %03.0f°\n", v)
	}
	if v, ok := rec.Last.VerticalRate.Get(); ok {
		fmt.Fprintf(&d, "V/S       %+.1f m/s\n", v)
	}
	if v, ok := rec.Last.Squawk.Get(); ok {
		fmt.Fprintf(&d, "Squawk    %s\n", v)
	}
	fmt.Fprintf(&d, "Seen      %s ago\n", rec.Age(m.now).Round(time.Second))
	fmt.Fprintf(&d, "Updates   %d\n", rec.Updates)
	return d.String()
}

func formatAltitude(p radar.Point) string {
	alt, ok := p.Altitude.Get()
	if !ok {
		return "  ---"
	}
	return fmt.Sprintf("%5.0fm", alt)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func main() {
	configPath := flag.String("config", "", "Path to configuration file (default: user config dir)")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	if *showVersion {
		fmt.Printf("skyradar version %s (commit: %s)\n", version, commit)
		os.Exit(0)
	}

	live, err := config.LoadLive(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// The terminal belongs to the UI, so log to file only
	logger, closer := logging.New(live.Config().Logging, false)
	defer closer.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := app.New(ctx, live, logger, app.Options{})
	if err != nil {
		logger.Error().Err(err).Msg("Failed to start")
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer a.Close()

	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	p := tea.NewProgram(newModel(a, logger), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	cancel()
	if err := <-done; err != nil {
		logger.Error().Err(err).Msg("Tracker stopped with error")
	}
}
