package main

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/unklstewy/skyradar/internal/app"
	"github.com/unklstewy/skyradar/pkg/config"
	"github.com/unklstewy/skyradar/pkg/coordinates"
	"github.com/unklstewy/skyradar/pkg/tracking"
)

// SortMode orders the aircraft table.
type SortMode int

const (
	SortRange SortMode = iota
	SortAltitude
	SortCallsign
	SortAge
	numSortModes
)

func (s SortMode) String() string {
	switch s {
	case SortAltitude:
		return "altitude"
	case SortCallsign:
		return "callsign"
	case SortAge:
		return "age"
	default:
		return "range"
	}
}

// boardRow is one aircraft line of the table.
type boardRow struct {
	rec   tracking.Record
	polar coordinates.Polar
	age   time.Duration
}

// buildRows computes range, bearing and age for every record and sorts them.
func buildRows(records []tracking.Record, observer coordinates.Geographic, now time.Time, mode SortMode) []boardRow {
	rows := make([]boardRow, 0, len(records))
	for _, rec := range records {
		rows = append(rows, boardRow{
			rec:   rec,
			polar: coordinates.BearingAndRange(observer, rec.Position),
			age:   rec.Age(now),
		})
	}

	less := func(i, j int) bool { return rows[i].polar.RangeKm < rows[j].polar.RangeKm }
	switch mode {
	case SortAltitude:
		// Highest first; unknown altitude last
		less = func(i, j int) bool {
			ai, oki := rows[i].rec.Last.Altitude.Get()
			aj, okj := rows[j].rec.Last.Altitude.Get()
			if oki != okj {
				return oki
			}
			return ai > aj
		}
	case SortCallsign:
		less = func(i, j int) bool { return rows[i].rec.DisplayName() < rows[j].rec.DisplayName() }
	case SortAge:
		less = func(i, j int) bool { return rows[i].age < rows[j].age }
	}
	sort.SliceStable(rows, less)
	return rows
}

var boardColumns = []string{"CALLSIGN", "ICAO", "RANGE", "BRG", "ALT", "SPEED", "TRK", "V/S", "BAND", "AGE"}

// cells formats a row for the table.
func (r boardRow) cells() []string {
	opt := func(v float64, ok bool, format string) string {
		if !ok {
			return "---"
		}
		return fmt.Sprintf(format, v)
	}
	alt, altOK := r.rec.Last.Altitude.Get()
	spd, spdOK := r.rec.Last.GroundSpeed.Get()
	trk, trkOK := r.rec.Last.Heading.Get()
	vs, vsOK := r.rec.Last.VerticalRate.Get()

	return []string{
		r.rec.DisplayName(),
		r.rec.ICAO24,
		fmt.Sprintf("%.1f km", r.polar.RangeKm),
		fmt.Sprintf("%03.0f°", r.polar.BearingDeg),
		opt(alt, altOK, "%.0f m"),
		opt(spd*3.6, spdOK, "%.0f km/h"),
		opt(trk, trkOK, "%03.0f°"),
		opt(vs, vsOK, "%+.1f"),
		r.rec.Band.String(),
		r.age.Round(time.Second).String(),
	}
}

func bandColor(b tracking.AltitudeBand) tcell.Color {
	c := b.Color()
	return tcell.NewRGBColor(int32(c.R), int32(c.G), int32(c.B))
}

// Board is the table front-end.
type Board struct {
	app  *app.App
	logs *logPanel

	tviewApp *tview.Application
	table    *tview.Table
	header   *tview.TextView
	detail   *tview.TextView
	status   *tview.TextView
	root     *tview.Flex

	mu       sync.Mutex
	sortMode SortMode
	rows     []boardRow
	selected string

	stopChan chan struct{}
}

// NewBoard builds the UI for a.
func NewBoard(a *app.App, logs *logPanel) *Board {
	b := &Board{
		app:      a,
		logs:     logs,
		stopChan: make(chan struct{}),
	}
	b.setupUI()
	return b
}

func (b *Board) setupUI() {
	b.tviewApp = tview.NewApplication()

	b.header = tview.NewTextView().SetDynamicColors(true)

	b.table = tview.NewTable().
		SetFixed(1, 0).
		SetSelectable(true, false).
		SetSeparator(' ')
	b.table.SetBorder(true).SetTitle(" Aircraft ")
	b.table.SetSelectionChangedFunc(func(row, _ int) {
		b.mu.Lock()
		if row > 0 && row-1 < len(b.rows) {
			b.selected = b.rows[row-1].rec.ICAO24
		}
		b.mu.Unlock()
		b.updateDetail()
	})

	b.detail = tview.NewTextView().SetDynamicColors(true)
	b.detail.SetBorder(true).SetTitle(" Selected ")

	b.status = tview.NewTextView().SetDynamicColors(true)

	sidebar := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(b.detail, 0, 1, false).
		AddItem(b.logs.textView, 0, 1, false)

	body := tview.NewFlex().
		SetDirection(tview.FlexColumn).
		AddItem(b.table, 0, 7, true).
		AddItem(sidebar, 0, 3, false)

	b.root = tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(b.header, 1, 0, false).
		AddItem(body, 0, 1, true).
		AddItem(b.status, 2, 0, false)

	b.tviewApp.SetRoot(b.root, true)
	b.tviewApp.SetInputCapture(b.handleKeyboard)
}

func (b *Board) handleKeyboard(event *tcell.EventKey) *tcell.EventKey {
	key := event.Key()
	r := event.Rune()

	switch {
	case key == tcell.KeyEscape || r == 'q':
		b.Stop()
		return nil
	case r == 'r':
		b.app.RefreshNow()
		log := b.app.Log()
		log.Info().Msg("Refresh requested")
		return nil
	case r == 'a':
		b.toggle("Auto refresh", func(c *config.Config) { c.Refresh.AutoRefresh = !c.Refresh.AutoRefresh })
		return nil
	case r == 'o':
		b.mu.Lock()
		b.sortMode = (b.sortMode + 1) % numSortModes
		b.mu.Unlock()
		b.refresh()
		return nil
	case r == '+' || r == '=':
		b.app.View.ZoomIn()
		b.refresh()
		return nil
	case r == '-':
		b.app.View.ZoomOut()
		b.refresh()
		return nil
	}
	return event
}

func (b *Board) toggle(name string, fn func(*config.Config)) {
	log := b.app.Log()
	if err := b.app.Config.Update(fn); err != nil {
		log.Warn().Err(err).Str("setting", name).Msg("Settings update rejected")
		return
	}
	log.Info().Str("setting", name).Msg("Settings updated")
}

// refresh rebuilds the rows and redraws the table. Safe from any goroutine.
func (b *Board) refresh() {
	now := time.Now()
	records := b.app.Records()
	observer := b.app.View.Observer()
	maxRange := b.app.View.VisibleRangeKm()
	status := b.app.Scheduler.Status()

	b.mu.Lock()
	rows := buildRows(records, observer, now, b.sortMode)
	b.rows = rows
	mode := b.sortMode
	selected := b.selected
	b.mu.Unlock()

	b.tviewApp.QueueUpdateDraw(func() {
		b.fillTable(rows, selected, maxRange)
		cfg := b.app.Config.Config()
		b.header.SetText(fmt.Sprintf("[::b]SKYRADAR BOARD[::-]  [gray]%s  %.4f°, %.4f°  ·  range %.1f km  ·  sort %s[-]",
			cfg.Observer.Name, observer.Latitude, observer.Longitude, maxRange, mode))

		color := "white"
		if status.Error != "" {
			color = "red"
		}
		auto := "auto"
		if !cfg.Refresh.AutoRefresh {
			auto = "manual"
		}
		b.status.SetText(fmt.Sprintf("[%s]%s[-]  [gray]·  %d tracked  ·  %s[-]\n[gray]↑/↓: Select  r: Refresh  a: Auto  o: Sort  +/-: Range  q: Quit[-]",
			color, tview.Escape(status.Summary(now)), len(rows), auto))
		b.updateDetail()
	})
}

func (b *Board) fillTable(rows []boardRow, selected string, maxRange float64) {
	b.table.Clear()
	for col, title := range boardColumns {
		b.table.SetCell(0, col, tview.NewTableCell(title).
			SetTextColor(tcell.ColorYellow).
			SetSelectable(false).
			SetExpansion(1))
	}

	selectRow := 0
	for i, row := range rows {
		textColor := tcell.ColorWhite
		if row.polar.RangeKm > maxRange {
			textColor = tcell.ColorGray
		}
		for col, text := range row.cells() {
			cell := tview.NewTableCell(tview.Escape(text)).
				SetTextColor(textColor).
				SetExpansion(1)
			if boardColumns[col] == "BAND" {
				cell.SetTextColor(bandColor(row.rec.Band))
			}
			b.table.SetCell(i+1, col, cell)
		}
		if row.rec.ICAO24 == selected {
			selectRow = i + 1
		}
	}
	if selectRow > 0 {
		b.table.Select(selectRow, 0)
	}
}

func (b *Board) updateDetail() {
	b.mu.Lock()
	selected := b.selected
	b.mu.Unlock()

	rec, ok := b.app.Store.Get(selected)
	text := "[gray]No aircraft selected[-]"
	if ok {
		text = detailText(rec, b.app.View.Observer(), time.Now())
	}
	b.detail.SetText(text)
}

// detailText describes one record for the side panel.
func detailText(rec tracking.Record, observer coordinates.Geographic, now time.Time) string {
	var d strings.Builder
	polar := coordinates.BearingAndRange(observer, rec.Position)

	fmt.Fprintf(&d, "[yellow]%s[-] [gray](%s)[-]\n", tview.Escape(rec.DisplayName()), rec.ICAO24)
	if v, ok := rec.Last.OriginCountry.Get(); ok {
		fmt.Fprintf(&d, "[gray]Country:[-] %s\n", tview.Escape(v))
	}
	if v, ok := rec.Last.Squawk.Get(); ok {
		fmt.Fprintf(&d, "[gray]Squawk:[-]  %s\n", tview.Escape(v))
	}
	fmt.Fprintf(&d, "[gray]Range:[-]   %.1f km at %03.0f°\n", polar.RangeKm, polar.BearingDeg)
	fmt.Fprintf(&d, "[gray]Pos:[-]     %.4f°, %.4f°\n", rec.Position.Latitude, rec.Position.Longitude)
	if !rec.Velocity.IsZero() {
		closest, eta, approaching := coordinates.ClosestApproach(observer, rec.Position, rec.Velocity.Speed(), rec.Velocity.Track())
		if approaching {
			fmt.Fprintf(&d, "[gray]Closest:[-] %.1f km in %s\n", closest, eta.Round(time.Second))
		} else {
			fmt.Fprintf(&d, "[gray]Closest:[-] receding\n")
		}
	}
	fmt.Fprintf(&d, "[gray]Seen:[-]    %s ago, %d updates\n", rec.Age(now).Round(time.Second), rec.Updates)
	fmt.Fprintf(&d, "[gray]Conf:[-]    %.0f%%\n", rec.Confidence*100)
	return d.String()
}

// Run starts the refresh loop and blocks until the UI stops.
func (b *Board) Run(fps int) error {
	if fps <= 0 {
		fps = 4
	}
	ticker := time.NewTicker(time.Second / time.Duration(fps))
	defer ticker.Stop()

	go func() {
		b.refresh()
		for {
			select {
			case <-ticker.C:
				b.refresh()
			case <-b.stopChan:
				return
			}
		}
	}()

	return b.tviewApp.Run()
}

// Stop ends the refresh loop and the UI.
func (b *Board) Stop() {
	select {
	case <-b.stopChan:
	default:
		close(b.stopChan)
	}
	b.tviewApp.Stop()
}
