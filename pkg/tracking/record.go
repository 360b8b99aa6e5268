// Package tracking keeps per-aircraft state across refresh cycles.
//
// The Store is the single owner of all Records. Consumers read deep copies
// through Snapshot and Get; nothing outside the package holds a pointer to a
// live record.
package tracking

import (
	"math"
	"time"

	"github.com/unklstewy/skyradar/pkg/adsb"
	"github.com/unklstewy/skyradar/pkg/coordinates"
)

// Velocity is horizontal motion in the local north/east frame.
type Velocity struct {
	NorthMps float64 `json:"north_mps"`
	EastMps  float64 `json:"east_mps"`
}

// Speed returns the ground speed in meters per second.
func (v Velocity) Speed() float64 {
	return math.Hypot(v.NorthMps, v.EastMps)
}

// Track returns the direction of motion in degrees (0 = North, clockwise).
// A stationary velocity has track 0.
func (v Velocity) Track() float64 {
	if v.IsZero() {
		return 0
	}
	return coordinates.NormalizeAzimuth(math.Atan2(v.EastMps, v.NorthMps) * coordinates.RadiansToDegrees)
}

// IsZero reports whether there is no motion.
func (v Velocity) IsZero() bool {
	return v.NorthMps == 0 && v.EastMps == 0
}

// VelocityFrom builds a Velocity from a speed and a track.
func VelocityFrom(speedMps, trackDeg float64) Velocity {
	rad := trackDeg * coordinates.DegreesToRadians
	return Velocity{
		NorthMps: speedMps * math.Cos(rad),
		EastMps:  speedMps * math.Sin(rad),
	}
}

// velocityBetween derives the velocity that moved an aircraft from one
// confirmed position to the next. It fails closed to zero when elapsed is not
// positive or the result is not finite.
func velocityBetween(from, to coordinates.Geographic, elapsed time.Duration) Velocity {
	secs := elapsed.Seconds()
	if secs <= 0 {
		return Velocity{}
	}

	radiusM := coordinates.EarthRadiusKm * 1000.0
	meanLat := (from.Latitude + to.Latitude) / 2 * coordinates.DegreesToRadians
	dLat := (to.Latitude - from.Latitude) * coordinates.DegreesToRadians
	dLon := coordinates.NormalizeLongitude(to.Longitude-from.Longitude) * coordinates.DegreesToRadians

	v := Velocity{
		NorthMps: dLat * radiusM / secs,
		EastMps:  dLon * radiusM * math.Cos(meanLat) / secs,
	}
	if math.IsNaN(v.NorthMps) || math.IsInf(v.NorthMps, 0) ||
		math.IsNaN(v.EastMps) || math.IsInf(v.EastMps, 0) {
		return Velocity{}
	}
	return v
}

// TrailPoint is one confirmed position in an aircraft's history.
type TrailPoint struct {
	Position coordinates.Geographic `json:"position"`
	Time     time.Time              `json:"time"`
}

// Record is the tracked state of one aircraft.
type Record struct {
	// ICAO24 is the normalized (lower-case) transponder address.
	// It never changes for the lifetime of the record.
	ICAO24 string `json:"icao24"`

	// Last is the most recent accepted snapshot.
	Last adsb.Snapshot `json:"last"`

	// Confirmed is the position reported in Last.
	Confirmed coordinates.Geographic `json:"confirmed"`

	// Position is the interpolated display position.
	Position coordinates.Geographic `json:"position"`

	// Confidence of Position, 1 at LastSeen and falling with extrapolation time
	Confidence float64 `json:"confidence"`

	// Velocity derived from the last two accepted snapshots, zero after the first
	Velocity Velocity `json:"velocity"`

	FirstSeen time.Time `json:"first_seen"`
	LastSeen  time.Time `json:"last_seen"`

	// Updates counts accepted snapshots, including the first
	Updates int `json:"updates"`

	Band  AltitudeBand `json:"band"`
	Color RGB          `json:"color"`

	// Trail holds recent confirmed positions, oldest first
	Trail []TrailPoint `json:"trail,omitempty"`
}

// DisplayName returns the callsign or, failing that, the ICAO address.
func (r Record) DisplayName() string {
	return r.Last.DisplayName()
}

// Age is how long ago the aircraft was last reported.
func (r Record) Age(now time.Time) time.Duration {
	return now.Sub(r.LastSeen)
}

// clone returns a copy that shares no mutable memory with r.
func (r Record) clone() Record {
	c := r
	if r.Trail != nil {
		c.Trail = make([]TrailPoint, len(r.Trail))
		copy(c.Trail, r.Trail)
	}
	return c
}
