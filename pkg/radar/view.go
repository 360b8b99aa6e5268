// Package radar turns tracked records into observer-relative radar points.
//
// A View holds the observer location, zoom and range policy shared by every
// front-end. Range/bearing results are cached per aircraft position and the
// cache is purged whenever the observer moves.
package radar

import (
	"fmt"
	"math"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/unklstewy/skyradar/pkg/adsb"
	"github.com/unklstewy/skyradar/pkg/coordinates"
	"github.com/unklstewy/skyradar/pkg/tracking"
)

const (
	MinZoom  = 0.1
	MaxZoom  = 5.0
	ZoomStep = 1.2

	// DefaultCacheSize bounds the projection cache (positions, not aircraft)
	DefaultCacheSize = 4096
)

// Point is a record projected onto the radar screen.
type Point struct {
	ICAO24     string                    `json:"icao24"`
	Label      string                    `json:"label"`
	RangeKm    float64                   `json:"range_km"`
	BearingDeg float64                   `json:"bearing_deg"`
	X          float64                   `json:"x"`
	Y          float64                   `json:"y"`
	Color      tracking.RGB              `json:"color"`
	Band       tracking.AltitudeBand     `json:"band"`
	Altitude   adsb.Optional[float64]    `json:"altitude"`
	Heading    adsb.Optional[float64]    `json:"heading"`
	Speed      adsb.Optional[float64]    `json:"ground_speed"`
	Confidence float64                   `json:"confidence"`
	Trail      []coordinates.ScreenPoint `json:"trail,omitempty"`
}

// Ring is a range ring with its label.
type Ring struct {
	RangeKm  float64 `json:"range_km"`
	RadiusPx float64 `json:"radius_px"`
	Label    string  `json:"label"`
}

// Options configures a View.
type Options struct {
	Observer   coordinates.Geographic
	MaxRangeKm float64
	Zoom       float64
	Policy     coordinates.RangePolicy
	ShowTrails bool
	CacheSize  int
}

type cacheKey struct {
	lat, lon float64
}

// View projects records for display. It is safe for concurrent use.
type View struct {
	mu         sync.Mutex
	observer   coordinates.Geographic
	maxRangeKm float64
	zoom       float64
	policy     coordinates.RangePolicy
	showTrails bool
	cache      *lru.Cache[cacheKey, coordinates.Polar]
}

// NewView creates a view.
func NewView(opts Options) (*View, error) {
	if opts.MaxRangeKm <= 0 {
		opts.MaxRangeKm = 8
	}
	if opts.Zoom == 0 {
		opts.Zoom = 1
	}
	if opts.CacheSize <= 0 {
		opts.CacheSize = DefaultCacheSize
	}

	cache, err := lru.New[cacheKey, coordinates.Polar](opts.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create projection cache: %w", err)
	}

	return &View{
		observer:   opts.Observer,
		maxRangeKm: opts.MaxRangeKm,
		zoom:       clampZoom(opts.Zoom),
		policy:     opts.Policy,
		showTrails: opts.ShowTrails,
		cache:      cache,
	}, nil
}

func clampZoom(z float64) float64 {
	return math.Max(MinZoom, math.Min(MaxZoom, z))
}

// SetObserver moves the radar centre and invalidates cached projections.
func (v *View) SetObserver(loc coordinates.Geographic) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if loc == v.observer {
		return
	}
	v.observer = loc
	v.cache.Purge()
}

// Observer returns the radar centre.
func (v *View) Observer() coordinates.Geographic {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.observer
}

// SetMaxRange changes the range mapped onto the rim at zoom 1.
func (v *View) SetMaxRange(km float64) {
	if km <= 0 {
		return
	}
	v.mu.Lock()
	v.maxRangeKm = km
	v.mu.Unlock()
}

// SetShowTrails toggles trail projection.
func (v *View) SetShowTrails(on bool) {
	v.mu.Lock()
	v.showTrails = on
	v.mu.Unlock()
}

// ZoomIn magnifies by one step.
func (v *View) ZoomIn() float64 {
	return v.SetZoom(v.Zoom() * ZoomStep)
}

// ZoomOut shrinks by one step.
func (v *View) ZoomOut() float64 {
	return v.SetZoom(v.Zoom() / ZoomStep)
}

// SetZoom sets the zoom factor, clamped to [MinZoom, MaxZoom].
func (v *View) SetZoom(z float64) float64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.zoom = clampZoom(z)
	return v.zoom
}

// Zoom returns the current zoom factor.
func (v *View) Zoom() float64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.zoom
}

// VisibleRangeKm is the range shown at the rim at the current zoom.
func (v *View) VisibleRangeKm() float64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.maxRangeKm / v.zoom
}

// polar returns the cached range/bearing of pos. Callers hold v.mu.
func (v *View) polar(pos coordinates.Geographic) coordinates.Polar {
	key := cacheKey{lat: pos.Latitude, lon: pos.Longitude}
	if p, ok := v.cache.Get(key); ok {
		return p
	}
	p := coordinates.BearingAndRange(v.observer, pos)
	v.cache.Add(key, p)
	return p
}

// Points projects records into vp. Records outside the visible range are
// dropped or pinned to the rim according to the range policy. The result
// keeps the order of records.
func (v *View) Points(records []tracking.Record, vp coordinates.Viewport) []Point {
	v.mu.Lock()
	defer v.mu.Unlock()

	vp.MaxRangeKm = v.maxRangeKm
	points := make([]Point, 0, len(records))
	for _, rec := range records {
		p := v.polar(rec.Position)
		sp, ok := coordinates.Project(p, v.zoom, vp, v.policy)
		if !ok {
			continue
		}

		pt := Point{
			ICAO24:     rec.ICAO24,
			Label:      rec.DisplayName(),
			RangeKm:    p.RangeKm,
			BearingDeg: p.BearingDeg,
			X:          sp.X,
			Y:          sp.Y,
			Color:      rec.Color,
			Band:       rec.Band,
			Altitude:   rec.Last.Altitude,
			Heading:    rec.Last.Heading,
			Speed:      rec.Last.GroundSpeed,
			Confidence: rec.Confidence,
		}
		if !rec.Velocity.IsZero() {
			if !pt.Heading.IsSet() {
				pt.Heading = adsb.Some(rec.Velocity.Track())
			}
			if !pt.Speed.IsSet() {
				pt.Speed = adsb.Some(rec.Velocity.Speed())
			}
		}

		if v.showTrails {
			for _, tp := range rec.Trail {
				if tsp, ok := coordinates.Project(v.polar(tp.Position), v.zoom, vp, coordinates.RangeExclude); ok {
					pt.Trail = append(pt.Trail, tsp)
				}
			}
		}
		points = append(points, pt)
	}
	return points
}

// ringSteps are the candidate ring spacings in kilometres.
var ringSteps = []float64{0.5, 1, 2, 5, 10, 20, 25, 50, 100, 250, 500}

// Rings returns up to four evenly spaced range rings inside the visible range.
func (v *View) Rings(vp coordinates.Viewport) []Ring {
	visible := v.VisibleRangeKm()

	step := ringSteps[len(ringSteps)-1]
	for _, s := range ringSteps {
		if visible/s <= 4 {
			step = s
			break
		}
	}

	var rings []Ring
	for r := step; r <= visible+1e-9; r += step {
		label := fmt.Sprintf("%.0f km", r)
		if r < 1 {
			label = fmt.Sprintf("%.0f m", r*1000)
		}
		rings = append(rings, Ring{
			RangeKm:  r,
			RadiusPx: r / visible * vp.RadiusPx,
			Label:    label,
		})
	}
	return rings
}
