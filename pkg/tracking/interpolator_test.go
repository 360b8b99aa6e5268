package tracking

import (
	"math"
	"testing"
	"time"

	"github.com/unklstewy/skyradar/pkg/adsb"
	"github.com/unklstewy/skyradar/pkg/coordinates"
)

func movingRecord() Record {
	return Record{
		ICAO24:    "abc123",
		Confirmed: coordinates.Geographic{Latitude: 35.0, Longitude: -80.0},
		Velocity:  VelocityFrom(200, 90),
		LastSeen:  t0,
	}
}

// TestInterpolatorAdvance tests dead reckoning from the confirmed position.
func TestInterpolatorAdvance(t *testing.T) {
	ip := Interpolator{MaxHorizon: 60 * time.Second}

	t.Run("Zero delta time returns confirmed position", func(t *testing.T) {
		rec := movingRecord()
		pos := ip.Advance(rec, t0)
		if pos != rec.Confirmed {
			t.Errorf("Expected %+v, got %+v", rec.Confirmed, pos)
		}
	})

	t.Run("Negative delta time returns confirmed position", func(t *testing.T) {
		rec := movingRecord()
		pos := ip.Advance(rec, t0.Add(-5*time.Second))
		if pos != rec.Confirmed {
			t.Errorf("Expected %+v, got %+v", rec.Confirmed, pos)
		}
	})

	t.Run("Moves along track", func(t *testing.T) {
		rec := movingRecord()
		pos := ip.Advance(rec, t0.Add(30*time.Second))

		dist := coordinates.DistanceKm(rec.Confirmed, pos)
		if math.Abs(dist-6.0) > 0.001 {
			t.Errorf("Expected 6 km travelled, got %f", dist)
		}
		if pos.Longitude <= rec.Confirmed.Longitude {
			t.Errorf("Expected eastward movement, got %+v", pos)
		}
	})

	t.Run("Stationary record stays put", func(t *testing.T) {
		rec := movingRecord()
		rec.Velocity = Velocity{}
		pos := ip.Advance(rec, t0.Add(30*time.Second))
		if pos != rec.Confirmed {
			t.Errorf("Expected no movement, got %+v", pos)
		}
	})

	t.Run("Idempotent for the same now", func(t *testing.T) {
		rec := movingRecord()
		now := t0.Add(17 * time.Second)
		a := ip.Advance(rec, now)
		b := ip.Advance(rec, now)
		if a != b {
			t.Errorf("Expected identical results, got %+v and %+v", a, b)
		}
	})
}

// TestInterpolatorHorizon tests that extrapolation freezes at the horizon.
func TestInterpolatorHorizon(t *testing.T) {
	ip := Interpolator{MaxHorizon: 30 * time.Second}
	rec := movingRecord()

	atHorizon := ip.Advance(rec, t0.Add(30*time.Second))
	for _, d := range []time.Duration{31 * time.Second, 5 * time.Minute, 24 * time.Hour} {
		pos := ip.Advance(rec, t0.Add(d))
		if pos != atHorizon {
			t.Errorf("After %v expected frozen position %+v, got %+v", d, atHorizon, pos)
		}
	}

	t.Run("Zero horizon uses default", func(t *testing.T) {
		def := Interpolator{}
		a := def.Advance(rec, t0.Add(DefaultMaxHorizon))
		b := def.Advance(rec, t0.Add(time.Hour))
		if a != b {
			t.Errorf("Expected default horizon cap, got %+v and %+v", a, b)
		}
	})
}

// TestInterpolatorConfidence tests the confidence falloff.
func TestInterpolatorConfidence(t *testing.T) {
	ip := Interpolator{}
	rec := movingRecord()

	tests := []struct {
		elapsed  time.Duration
		expected float64
	}{
		{0, 1.0},
		{30 * time.Second, 0.5},
		{60 * time.Second, 0.0},
		{10 * time.Minute, 0.0},
	}
	for _, tt := range tests {
		_, conf := ip.Estimate(rec, t0.Add(tt.elapsed))
		if math.Abs(conf-tt.expected) > 1e-9 {
			t.Errorf("After %v expected confidence %f, got %f", tt.elapsed, tt.expected, conf)
		}
	}
}

// TestInterpolatorUseReported tests the reported speed/heading fallback.
func TestInterpolatorUseReported(t *testing.T) {
	rec := movingRecord()
	rec.Velocity = Velocity{}
	rec.Last = adsb.Snapshot{GroundSpeed: adsb.Some(100.0), Heading: adsb.Some(0.0)}

	off := Interpolator{}
	if pos := off.Advance(rec, t0.Add(10*time.Second)); pos != rec.Confirmed {
		t.Errorf("Expected no movement without UseReported, got %+v", pos)
	}

	on := Interpolator{UseReported: true}
	pos := on.Advance(rec, t0.Add(10*time.Second))
	if pos.Latitude <= rec.Confirmed.Latitude {
		t.Errorf("Expected northward movement, got %+v", pos)
	}
	if d := coordinates.DistanceKm(rec.Confirmed, pos); math.Abs(d-1.0) > 0.001 {
		t.Errorf("Expected 1 km travelled, got %f", d)
	}

	rec.Last.Heading = adsb.None[float64]()
	if pos := on.Advance(rec, t0.Add(10*time.Second)); pos != rec.Confirmed {
		t.Errorf("Expected no movement with unknown heading, got %+v", pos)
	}
}

// TestVelocity tests Velocity helpers.
func TestVelocity(t *testing.T) {
	v := VelocityFrom(100, 45)
	if math.Abs(v.Speed()-100) > 1e-9 {
		t.Errorf("Expected speed 100, got %f", v.Speed())
	}
	if math.Abs(v.Track()-45) > 1e-9 {
		t.Errorf("Expected track 45, got %f", v.Track())
	}
	if w := VelocityFrom(50, 270); math.Abs(w.Track()-270) > 1e-9 {
		t.Errorf("Expected track 270, got %f", w.Track())
	}
	if (Velocity{}).Track() != 0 {
		t.Error("Expected zero track for zero velocity")
	}

	if got := velocityBetween(coordinates.Geographic{}, coordinates.Geographic{Latitude: 1}, 0); !got.IsZero() {
		t.Errorf("Expected zero velocity for zero elapsed, got %+v", got)
	}
	if got := velocityBetween(coordinates.Geographic{}, coordinates.Geographic{Latitude: 1}, -time.Second); !got.IsZero() {
		t.Errorf("Expected zero velocity for negative elapsed, got %+v", got)
	}
}
