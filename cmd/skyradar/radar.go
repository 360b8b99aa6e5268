package main

import (
	"math"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/unklstewy/skyradar/pkg/adsb"
	"github.com/unklstewy/skyradar/pkg/coordinates"
	"github.com/unklstewy/skyradar/pkg/radar"
)

// Terminal cells are about twice as tall as they are wide
const aspectX = 2.0

// Draw order. A cell only accepts a glyph from the same or a higher layer.
const (
	layerEmpty = iota
	layerRing
	layerTrail
	layerVector
	layerCompass
	layerLabel
	layerAircraft
)

type cell struct {
	ch    rune
	color lipgloss.Color
	bold  bool
	faint bool
	layer int
}

// canvas is a grid of colored runes.
type canvas struct {
	w, h  int
	cells [][]cell
}

func newCanvas(w, h int) *canvas {
	c := &canvas{w: w, h: h, cells: make([][]cell, h)}
	for y := range c.cells {
		c.cells[y] = make([]cell, w)
		for x := range c.cells[y] {
			c.cells[y][x] = cell{ch: ' '}
		}
	}
	return c
}

// setPixel places ch at x, y if it is on the canvas and the cell does not
// hold a glyph from a higher layer.
func (c *canvas) setPixel(x, y int, ch rune, color lipgloss.Color, layer int) bool {
	if y < 0 || y >= c.h || x < 0 || x >= c.w {
		return false
	}
	if c.cells[y][x].layer > layer {
		return false
	}
	c.cells[y][x] = cell{ch: ch, color: color, layer: layer}
	return true
}

func (c *canvas) at(x, y int) *cell {
	if y < 0 || y >= c.h || x < 0 || x >= c.w {
		return nil
	}
	return &c.cells[y][x]
}

// text writes s starting at x, y.
func (c *canvas) text(x, y int, s string, color lipgloss.Color, layer int) {
	for i, ch := range []rune(s) {
		c.setPixel(x+i, y, ch, color, layer)
	}
}

// row renders one canvas row, styling runs of equal cells together.
func (c *canvas) row(y int) string {
	var b strings.Builder
	var run []rune
	var current cell

	flush := func() {
		if len(run) == 0 {
			return
		}
		if current.layer == layerEmpty {
			b.WriteString(string(run))
		} else {
			b.WriteString(lipgloss.NewStyle().
				Foreground(current.color).
				Bold(current.bold).
				Faint(current.faint).
				Render(string(run)))
		}
		run = run[:0]
	}

	for _, cl := range c.cells[y] {
		if cl.color != current.color || cl.bold != current.bold || cl.faint != current.faint || (cl.layer == layerEmpty) != (current.layer == layerEmpty) {
			flush()
			current = cl
		}
		run = append(run, cl.ch)
	}
	flush()
	return b.String()
}

// radarFrame is everything needed to draw one radar screen.
type radarFrame struct {
	// width and height of the box including its border
	width, height int

	points   []radar.Point
	rings    []radar.Ring
	vp       coordinates.Viewport
	selected string
	labels   bool
	pal      palette
}

// radarViewport fits the largest round radar into a box of the given outer
// size. Coordinates are relative to the inside of the border.
func radarViewport(width, height int) coordinates.Viewport {
	innerW := width - 2
	innerH := height - 2

	radiusY := float64(innerH/2 - 1)
	radiusX := float64(innerW/2-2) / aspectX
	radius := math.Max(1, math.Min(radiusX, radiusY))

	return coordinates.Viewport{
		CenterX:  float64(innerW / 2),
		CenterY:  float64(innerH / 2),
		RadiusPx: radius,
		AspectX:  aspectX,
	}
}

// renderRadar draws the radar box: rings, compass, observer, trails,
// velocity vectors, aircraft and labels.
func renderRadar(f radarFrame) string {
	innerW := f.width - 2
	innerH := f.height - 2
	if innerW < 1 || innerH < 1 {
		return ""
	}
	c := newCanvas(innerW, innerH)

	cx := int(math.Round(f.vp.CenterX))
	cy := int(math.Round(f.vp.CenterY))

	for _, ring := range f.rings {
		r := int(math.Round(ring.RadiusPx))
		if r < 1 {
			continue
		}
		drawCircle(c, cx, cy, r, f.vp.AspectX, f.pal.ring)

		labelX := cx - len(ring.Label)/2
		c.text(labelX, cy-r, ring.Label, f.pal.ringLabel, layerRing)
	}

	drawCompass(c, cx, cy, f.vp.RadiusPx, f.vp.AspectX, f.pal.compass)

	if cl := c.at(cx, cy); cl != nil {
		*cl = cell{ch: '+', color: f.pal.center, bold: true, layer: layerCompass}
	}

	for _, p := range f.points {
		for _, tp := range p.Trail {
			c.setPixel(round(tp.X), round(tp.Y), '·', f.pal.trail, layerTrail)
		}
	}

	type label struct {
		x, y  int
		text  string
		color lipgloss.Color
	}
	var labels []label

	for _, p := range f.points {
		x, y := round(p.X), round(p.Y)
		isSelected := p.ICAO24 == f.selected

		if speed, ok := p.Speed.Get(); ok {
			if heading, ok := p.Heading.Get(); ok {
				drawVelocityVector(c, x, y, heading, speed, f.vp.AspectX, f.pal.vector)
			}
		}

		color := lipgloss.Color(p.Color.Hex())
		glyph := headingGlyph(p.Heading)
		if isSelected {
			color = f.pal.selected
		}
		if c.setPixel(x, y, glyph, color, layerAircraft) {
			cl := c.at(x, y)
			cl.bold = isSelected
			cl.faint = p.Confidence < 0.5
		}

		if f.labels || isSelected {
			lc := f.pal.label
			if isSelected {
				lc = f.pal.selected
			}
			labels = append(labels, label{x: x + 2, y: y, text: p.Label, color: lc})
		}
	}

	for _, l := range labels {
		c.text(l.x, l.y, l.text, l.color, layerLabel)
	}

	borderStyle := lipgloss.NewStyle().Foreground(f.pal.border)
	var out strings.Builder
	out.WriteString(borderStyle.Render("┌" + strings.Repeat("─", innerW) + "┐"))
	out.WriteString("\n")
	for y := 0; y < innerH; y++ {
		out.WriteString(borderStyle.Render("│"))
		out.WriteString(c.row(y))
		out.WriteString(borderStyle.Render("│"))
		out.WriteString("\n")
	}
	out.WriteString(borderStyle.Render("└" + strings.Repeat("─", innerW) + "┘"))

	return out.String()
}

func round(v float64) int {
	return int(math.Round(v))
}

// drawCircle draws a ring using Bresenham's circle algorithm, stretching X by
// aspect so it looks round on terminal cells.
func drawCircle(c *canvas, cx, cy, radius int, aspect float64, color lipgloss.Color) {
	x := radius
	y := 0
	err := 0

	for x >= y {
		xs := round(float64(x) * aspect)
		ys := round(float64(y) * aspect)

		c.setPixel(cx+xs, cy+y, '·', color, layerRing)
		c.setPixel(cx+ys, cy+x, '·', color, layerRing)
		c.setPixel(cx-ys, cy+x, '·', color, layerRing)
		c.setPixel(cx-xs, cy+y, '·', color, layerRing)
		c.setPixel(cx-xs, cy-y, '·', color, layerRing)
		c.setPixel(cx-ys, cy-x, '·', color, layerRing)
		c.setPixel(cx+ys, cy-x, '·', color, layerRing)
		c.setPixel(cx+xs, cy-y, '·', color, layerRing)

		y++
		err += 1 + 2*y
		if 2*(err-x)+1 > 0 {
			x--
			err += 1 - 2*x
		}
	}
}

// drawCompass puts N, E, S and W on the rim.
func drawCompass(c *canvas, cx, cy int, radius, aspect float64, color lipgloss.Color) {
	r := round(radius)
	rx := round(radius * aspect)
	for _, p := range []struct {
		x, y int
		ch   rune
	}{
		{cx, cy - r, 'N'},
		{cx + rx, cy, 'E'},
		{cx, cy + r, 'S'},
		{cx - rx, cy, 'W'},
	} {
		if c.setPixel(p.x, p.y, p.ch, color, layerCompass) {
			c.at(p.x, p.y).bold = true
		}
	}
}

// drawVelocityVector draws a short line along the track, longer for faster
// aircraft.
func drawVelocityVector(c *canvas, x, y int, trackDeg, speedMps, aspect float64, color lipgloss.Color) {
	if speedMps < 25 {
		return
	}
	length := int(speedMps/75) + 1
	if length > 4 {
		length = 4
	}

	trackRad := trackDeg * coordinates.DegreesToRadians
	for i := 1; i <= length; i++ {
		dx := round(float64(i) * math.Sin(trackRad) * aspect)
		dy := -round(float64(i) * math.Cos(trackRad))
		c.setPixel(x+dx, y+dy, '∙', color, layerVector)
	}
}

var headingGlyphs = []rune("↑↗→↘↓↙←↖")

// headingGlyph returns an arrow pointing along the heading, or a dot when
// the heading is unknown.
func headingGlyph(heading adsb.Optional[float64]) rune {
	h, ok := heading.Get()
	if !ok || math.IsNaN(h) {
		return '●'
	}
	h = coordinates.NormalizeAzimuth(h)
	return headingGlyphs[int((h+22.5)/45)%8]
}
