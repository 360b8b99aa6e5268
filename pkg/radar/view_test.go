package radar

import (
	"math"
	"testing"
	"time"

	"github.com/unklstewy/skyradar/pkg/adsb"
	"github.com/unklstewy/skyradar/pkg/coordinates"
	"github.com/unklstewy/skyradar/pkg/tracking"
)

var vp = coordinates.Viewport{CenterX: 100, CenterY: 100, RadiusPx: 100}

func record(icao string, lat, lon float64) tracking.Record {
	pos := coordinates.Geographic{Latitude: lat, Longitude: lon}
	return tracking.Record{
		ICAO24:    icao,
		Last:      adsb.Snapshot{ICAO24: icao},
		Confirmed: pos,
		Position:  pos,
		Band:      tracking.BandUnknown,
		Color:     tracking.BandUnknown.Color(),
	}
}

func newView(t *testing.T, opts Options) *View {
	t.Helper()
	v, err := NewView(opts)
	if err != nil {
		t.Fatalf("NewView failed: %v", err)
	}
	return v
}

// TestPointsOrientation tests that north is up and east is right.
func TestPointsOrientation(t *testing.T) {
	v := newView(t, Options{MaxRangeKm: 100})
	north := coordinates.Destination(coordinates.Geographic{}, 50, 0)
	east := coordinates.Destination(coordinates.Geographic{}, 50, 90)

	points := v.Points([]tracking.Record{
		record("aaaaaa", north.Latitude, north.Longitude),
		record("bbbbbb", east.Latitude, east.Longitude),
	}, vp)
	if len(points) != 2 {
		t.Fatalf("Expected 2 points, got %d", len(points))
	}

	n, e := points[0], points[1]
	if math.Abs(n.X-100) > 1e-6 || math.Abs(n.Y-50) > 1e-6 {
		t.Errorf("Expected north at (100, 50), got (%f, %f)", n.X, n.Y)
	}
	if math.Abs(e.X-150) > 1e-6 || math.Abs(e.Y-100) > 1e-6 {
		t.Errorf("Expected east at (150, 100), got (%f, %f)", e.X, e.Y)
	}
	if math.Abs(e.RangeKm-50) > 1e-6 || math.Abs(e.BearingDeg-90) > 1e-6 {
		t.Errorf("Unexpected polar values %f km %f°", e.RangeKm, e.BearingDeg)
	}
	if n.Label != "aaaaaa" {
		t.Errorf("Expected ICAO label, got %q", n.Label)
	}
}

// TestPointsRangePolicy tests exclusion and clamping beyond range.
func TestPointsRangePolicy(t *testing.T) {
	far := coordinates.Destination(coordinates.Geographic{}, 20, 180)
	recs := []tracking.Record{record("aaaaaa", far.Latitude, far.Longitude)}

	exclude := newView(t, Options{MaxRangeKm: 8})
	if got := exclude.Points(recs, vp); len(got) != 0 {
		t.Errorf("Expected far aircraft excluded, got %d points", len(got))
	}

	clamp := newView(t, Options{MaxRangeKm: 8, Policy: coordinates.RangeClamp})
	got := clamp.Points(recs, vp)
	if len(got) != 1 {
		t.Fatalf("Expected clamped point, got %d", len(got))
	}
	if math.Abs(got[0].Y-200) > 1e-6 {
		t.Errorf("Expected point on the southern rim (y=200), got %f", got[0].Y)
	}
	if math.Abs(got[0].RangeKm-20) > 1e-6 {
		t.Errorf("Expected true range kept, got %f", got[0].RangeKm)
	}
}

// TestSetObserverPurgesCache tests that moving the observer reprojects.
func TestSetObserverPurgesCache(t *testing.T) {
	v := newView(t, Options{MaxRangeKm: 500})
	recs := []tracking.Record{record("aaaaaa", 1, 0)}

	before := v.Points(recs, vp)[0]
	if math.Abs(before.BearingDeg) > 1e-6 {
		t.Fatalf("Expected aircraft due north, got %f", before.BearingDeg)
	}

	v.SetObserver(coordinates.Geographic{Latitude: 2, Longitude: 0})
	after := v.Points(recs, vp)[0]
	if math.Abs(after.BearingDeg-180) > 1e-6 {
		t.Errorf("Expected aircraft due south after moving observer, got %f", after.BearingDeg)
	}
	if v.cache.Len() != 1 {
		t.Errorf("Expected fresh cache with 1 entry, got %d", v.cache.Len())
	}
	if v.Observer().Latitude != 2 {
		t.Errorf("Observer not updated")
	}
}

// TestZoom tests zoom steps and clamping.
func TestZoom(t *testing.T) {
	v := newView(t, Options{MaxRangeKm: 10})

	if z := v.ZoomIn(); math.Abs(z-1.2) > 1e-9 {
		t.Errorf("Expected zoom 1.2, got %f", z)
	}
	if r := v.VisibleRangeKm(); math.Abs(r-10/1.2) > 1e-9 {
		t.Errorf("Expected visible range %f, got %f", 10/1.2, r)
	}
	v.ZoomOut()
	if math.Abs(v.Zoom()-1) > 1e-9 {
		t.Errorf("Expected zoom back to 1, got %f", v.Zoom())
	}

	for i := 0; i < 50; i++ {
		v.ZoomIn()
	}
	if v.Zoom() != MaxZoom {
		t.Errorf("Expected zoom clamped to %f, got %f", MaxZoom, v.Zoom())
	}
	for i := 0; i < 100; i++ {
		v.ZoomOut()
	}
	if v.Zoom() != MinZoom {
		t.Errorf("Expected zoom clamped to %f, got %f", MinZoom, v.Zoom())
	}
}

// TestPointsTrailsAndHeading tests trail projection and heading fallback.
func TestPointsTrailsAndHeading(t *testing.T) {
	rec := record("aaaaaa", 0, 0.01)
	rec.Trail = []tracking.TrailPoint{
		{Position: coordinates.Geographic{Latitude: 0, Longitude: 0}, Time: time.Unix(0, 0)},
		{Position: coordinates.Geographic{Latitude: 0, Longitude: 0.01}, Time: time.Unix(10, 0)},
	}
	rec.Velocity = tracking.VelocityFrom(100, 90)

	off := newView(t, Options{MaxRangeKm: 8})
	pt := off.Points([]tracking.Record{rec}, vp)[0]
	if len(pt.Trail) != 0 {
		t.Errorf("Expected no trail when disabled, got %d", len(pt.Trail))
	}
	if h, ok := pt.Heading.Get(); !ok || math.Abs(h-90) > 1e-9 {
		t.Errorf("Expected derived heading 90, got %v (set=%v)", h, ok)
	}

	on := newView(t, Options{MaxRangeKm: 8, ShowTrails: true})
	pt = on.Points([]tracking.Record{rec}, vp)[0]
	if len(pt.Trail) != 2 {
		t.Fatalf("Expected 2 trail points, got %d", len(pt.Trail))
	}
	if pt.Trail[0].X != vp.CenterX || pt.Trail[0].Y != vp.CenterY {
		t.Errorf("Expected first trail point at the centre, got %+v", pt.Trail[0])
	}

	rec.Last.Heading = adsb.Some(0.0)
	pt = on.Points([]tracking.Record{rec}, vp)[0]
	if h, _ := pt.Heading.Get(); h != 0 {
		t.Errorf("Expected reported heading 0 to win, got %f", h)
	}
}

// TestRings tests ring spacing and labels.
func TestRings(t *testing.T) {
	v := newView(t, Options{MaxRangeKm: 8})
	rings := v.Rings(vp)
	if len(rings) != 4 {
		t.Fatalf("Expected 4 rings, got %d", len(rings))
	}
	if rings[0].Label != "2 km" || rings[3].RadiusPx != 100 {
		t.Errorf("Unexpected rings %+v", rings)
	}

	v.SetZoom(5)
	rings = v.Rings(vp)
	if rings[0].Label != "500 m" {
		t.Errorf("Expected metre label at high zoom, got %q", rings[0].Label)
	}
}
