package main

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unklstewy/skyradar/internal/app"
	"github.com/unklstewy/skyradar/pkg/adsb"
	"github.com/unklstewy/skyradar/pkg/config"
	"github.com/unklstewy/skyradar/pkg/coordinates"
	"github.com/unklstewy/skyradar/pkg/tracking"
)

func record(icao, callsign string, pos coordinates.Geographic, alt adsb.Optional[float64], seen time.Time) tracking.Record {
	return tracking.Record{
		ICAO24:   icao,
		Last:     adsb.Snapshot{ICAO24: icao, Callsign: adsb.Some(callsign), Altitude: alt},
		Position: pos,
		LastSeen: seen,
		Band:     tracking.BandFor(alt),
	}
}

func TestBuildRows(t *testing.T) {
	now := time.Unix(1700000000, 0)
	observer := coordinates.Geographic{}

	records := []tracking.Record{
		record("aaa001", "FAR", coordinates.Geographic{Latitude: 0.5}, adsb.Some(3000.0), now.Add(-5*time.Second)),
		record("aaa002", "NEAR", coordinates.Geographic{Latitude: 0.1}, adsb.None[float64](), now.Add(-20*time.Second)),
		record("aaa003", "MID", coordinates.Geographic{Longitude: 0.3}, adsb.Some(11000.0), now),
	}

	order := func(rows []boardRow) []string {
		var names []string
		for _, r := range rows {
			names = append(names, r.rec.DisplayName())
		}
		return names
	}

	tests := []struct {
		mode     SortMode
		expected []string
	}{
		{SortRange, []string{"NEAR", "MID", "FAR"}},
		{SortAltitude, []string{"MID", "FAR", "NEAR"}},
		{SortCallsign, []string{"FAR", "MID", "NEAR"}},
		{SortAge, []string{"MID", "FAR", "NEAR"}},
	}

	for _, tt := range tests {
		t.Run(tt.mode.String(), func(t *testing.T) {
			rows := buildRows(records, observer, now, tt.mode)
			assert.Equal(t, tt.expected, order(rows))
		})
	}

	rows := buildRows(records, observer, now, SortRange)
	assert.InDelta(t, 90, rows[1].polar.BearingDeg, 1e-6)
	assert.Equal(t, 20*time.Second, rows[0].age)
}

func TestRowCells(t *testing.T) {
	now := time.Unix(1700000000, 0)
	rec := record("abc123", "KLM7", coordinates.Geographic{Latitude: 0.1}, adsb.None[float64](), now.Add(-3*time.Second))
	rec.Last.GroundSpeed = adsb.Some(100.0)

	rows := buildRows([]tracking.Record{rec}, coordinates.Geographic{}, now, SortRange)
	require.Len(t, rows, 1)
	cells := rows[0].cells()

	require.Len(t, cells, len(boardColumns))
	assert.Equal(t, "KLM7", cells[0])
	assert.Equal(t, "abc123", cells[1])
	assert.Equal(t, "000°", cells[3])
	assert.Equal(t, "---", cells[4], "absent altitude")
	assert.Equal(t, "360 km/h", cells[5])
	assert.Equal(t, "unknown", cells[8])
	assert.Equal(t, "3s", cells[9])
}

func TestDetailText(t *testing.T) {
	now := time.Unix(1700000000, 0)
	rec := record("abc123", "KLM7", coordinates.Geographic{Latitude: 0.1}, adsb.Some(500.0), now.Add(-time.Second))
	rec.Last.Squawk = adsb.Some("7700")
	rec.Velocity = tracking.VelocityFrom(200, 180)
	rec.Confidence = 1

	text := detailText(rec, coordinates.Geographic{}, now)
	assert.Contains(t, text, "KLM7")
	assert.Contains(t, text, "7700")
	assert.Contains(t, text, "Closest:")
	assert.NotContains(t, text, "receding")
}

func TestLogPanel(t *testing.T) {
	lp := newLogPanel(2)
	for _, line := range []string{"12:00:00 INF one\n", "12:00:01 WRN two\n", "12:00:02 ERR three\n"} {
		n, err := lp.Write([]byte(line))
		require.NoError(t, err)
		assert.Equal(t, len(line), n)
	}

	lines := lp.Lines()
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "[yellow]"))
	assert.True(t, strings.HasPrefix(lines[1], "[red]"))
	assert.Contains(t, lines[1], "three")
}

func TestBoardKeys(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.ADSB.Provider = "mock"
	cfg.Observer.AutoLocate = false
	require.NoError(t, cfg.Validate())

	logs := newLogPanel(50)
	logger := zerolog.New(zerolog.ConsoleWriter{Out: logs, NoColor: true})
	live := config.NewLive(cfg, filepath.Join(t.TempDir(), "config.json"))
	a, err := app.New(context.Background(), live, logger, app.Options{Source: adsb.NewMockSource(nil)})
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })

	b := NewBoard(a, logs)
	contains := func(text string) bool {
		for _, line := range logs.Lines() {
			if strings.Contains(line, text) {
				return true
			}
		}
		return false
	}

	t.Run("Toggle", func(t *testing.T) {
		before := live.Config().Refresh.AutoRefresh
		b.toggle("Auto refresh", func(c *config.Config) { c.Refresh.AutoRefresh = !c.Refresh.AutoRefresh })
		assert.Equal(t, !before, live.Config().Refresh.AutoRefresh)
		assert.True(t, contains("Settings updated"))
	})

	t.Run("Rejected toggle", func(t *testing.T) {
		b.toggle("Latitude", func(c *config.Config) { c.Observer.Latitude = 95 })
		assert.NotEqual(t, 95.0, live.Config().Observer.Latitude)
		assert.True(t, contains("Settings update rejected"))

		lines := logs.Lines()
		assert.True(t, strings.HasPrefix(lines[len(lines)-1], "[yellow]"))
	})

	t.Run("Refresh key", func(t *testing.T) {
		ev := b.handleKeyboard(tcell.NewEventKey(tcell.KeyRune, 'r', tcell.ModNone))
		assert.Nil(t, ev)
		assert.True(t, contains("Refresh requested"))
	})

	t.Run("Unbound key passes through", func(t *testing.T) {
		ev := tcell.NewEventKey(tcell.KeyRune, 'x', tcell.ModNone)
		assert.Equal(t, ev, b.handleKeyboard(ev))
	})
}
