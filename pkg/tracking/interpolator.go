package tracking

import (
	"math"
	"time"

	"github.com/unklstewy/skyradar/pkg/coordinates"
)

// DefaultMaxHorizon bounds extrapolation when no horizon is configured.
// It matches the default refresh interval.
const DefaultMaxHorizon = 30 * time.Second

// Interpolator advances a record's displayed position between snapshots by
// constant-velocity dead reckoning from the last confirmed position.
//
// Assumptions:
// - Aircraft maintains the velocity observed between its last two snapshots
// - No wind correction and no turn modelling
//
// Extrapolation stops at MaxHorizon past LastSeen. Beyond that the position
// stays at the horizon point; staleness is handled by eviction, not motion.
type Interpolator struct {
	// MaxHorizon caps the extrapolation time (default: DefaultMaxHorizon)
	MaxHorizon time.Duration

	// UseReported extrapolates with the reported ground speed and heading
	// when no velocity has been derived yet
	UseReported bool
}

// Advance returns the interpolated position of rec at now.
// It is a pure function of its arguments.
func (ip Interpolator) Advance(rec Record, now time.Time) coordinates.Geographic {
	pos, _ := ip.Estimate(rec, now)
	return pos
}

// Estimate returns the interpolated position together with a confidence
// score in [0, 1]: 1.0 at LastSeen, 0.5 at 30s, 0.0 at 60s and beyond.
func (ip Interpolator) Estimate(rec Record, now time.Time) (coordinates.Geographic, float64) {
	if !now.After(rec.LastSeen) {
		return rec.Confirmed, 1.0
	}

	elapsed := now.Sub(rec.LastSeen)
	confidence := math.Max(0.0, 1.0-elapsed.Seconds()/60.0)

	horizon := ip.MaxHorizon
	if horizon <= 0 {
		horizon = DefaultMaxHorizon
	}
	if elapsed > horizon {
		elapsed = horizon
	}

	v := ip.velocity(rec)
	if v.IsZero() {
		return rec.Confirmed, confidence
	}

	distanceKm := v.Speed() * elapsed.Seconds() / 1000.0
	return coordinates.Destination(rec.Confirmed, distanceKm, v.Track()), confidence
}

func (ip Interpolator) velocity(rec Record) Velocity {
	if !rec.Velocity.IsZero() || !ip.UseReported {
		return rec.Velocity
	}
	speed, okSpeed := rec.Last.GroundSpeed.Get()
	heading, okHeading := rec.Last.Heading.Get()
	if !okSpeed || !okHeading || speed <= 0 {
		return Velocity{}
	}
	return VelocityFrom(speed, heading)
}
