// Package coordinates provides the pure geographic math behind the radar:
// great-circle range and bearing, destination points for dead reckoning and
// the polar-to-screen projection used by the render front-ends.
//
// All functions are stateless and safe for concurrent use.
package coordinates

import (
	"math"
	"time"
)

// Constants for coordinate calculations
const (
	// DegreesToRadians converts degrees to radians
	DegreesToRadians = math.Pi / 180.0

	// RadiansToDegrees converts radians to degrees
	RadiansToDegrees = 180.0 / math.Pi

	// EarthRadiusKm is the Earth's radius in kilometers (WGS84 mean radius)
	EarthRadiusKm = 6371.0

	// KmPerNauticalMile converts nautical miles to kilometers
	KmPerNauticalMile = 1.852

	// FeetToMeters converts feet to meters
	FeetToMeters = 0.3048

	// KnotsToMps converts knots to meters per second
	KnotsToMps = 1852.0 / 3600.0
)

// Geographic represents a position on Earth's surface.
// Uses the WGS84 coordinate system (same as GPS).
type Geographic struct {
	// Latitude in decimal degrees (-90 to +90)
	// Positive = North, Negative = South
	Latitude float64 `json:"latitude"`

	// Longitude in decimal degrees (-180 to +180)
	// Positive = East, Negative = West
	Longitude float64 `json:"longitude"`
}

// Valid reports whether the position is finite and inside the WGS84 range.
func (g Geographic) Valid() bool {
	return !math.IsNaN(g.Latitude) && !math.IsNaN(g.Longitude) &&
		g.Latitude >= -90 && g.Latitude <= 90 &&
		g.Longitude >= -180 && g.Longitude <= 180
}

// Polar is a position relative to an observer.
type Polar struct {
	// RangeKm is the great-circle distance from the observer in kilometers
	RangeKm float64 `json:"range_km"`

	// BearingDeg is the initial bearing from the observer (0-360, 0 = North, clockwise)
	BearingDeg float64 `json:"bearing_deg"`
}

// clamp keeps asin/acos arguments inside [-1, 1] so floating-point overshoot
// near the poles or antipodes never produces NaN.
func clamp(v float64) float64 {
	if v > 1 {
		return 1
	}
	if v < -1 {
		return -1
	}
	return v
}

// NormalizeAzimuth ensures azimuth is in the range [0, 360).
func NormalizeAzimuth(azimuth float64) float64 {
	az := math.Mod(azimuth, 360.0)
	if az < 0 {
		az += 360.0
	}
	return az
}

// NormalizeLongitude wraps a longitude into [-180, 180).
func NormalizeLongitude(lon float64) float64 {
	l := math.Mod(lon+180.0, 360.0)
	if l < 0 {
		l += 360.0
	}
	return l - 180.0
}

// Bearing calculates the initial bearing (forward azimuth) from one point to another.
// Returns bearing in degrees (0-360), where 0/360 = North, 90 = East, 180 = South, 270 = West.
// Coincident points return 0.
func Bearing(from, to Geographic) float64 {
	lat1 := from.Latitude * DegreesToRadians
	lon1 := from.Longitude * DegreesToRadians
	lat2 := to.Latitude * DegreesToRadians
	lon2 := to.Longitude * DegreesToRadians

	dLon := lon2 - lon1
	y := math.Sin(dLon) * math.Cos(lat2)
	x := math.Cos(lat1)*math.Sin(lat2) - math.Sin(lat1)*math.Cos(lat2)*math.Cos(dLon)
	if x == 0 && y == 0 {
		return 0
	}

	return NormalizeAzimuth(math.Atan2(y, x) * RadiansToDegrees)
}

// DistanceKm calculates the great-circle distance between two points
// using the haversine formula.
func DistanceKm(from, to Geographic) float64 {
	lat1Rad := from.Latitude * DegreesToRadians
	lon1Rad := from.Longitude * DegreesToRadians
	lat2Rad := to.Latitude * DegreesToRadians
	lon2Rad := to.Longitude * DegreesToRadians

	dLat := lat2Rad - lat1Rad
	dLon := lon2Rad - lon1Rad

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1Rad)*math.Cos(lat2Rad)*
			math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Asin(math.Sqrt(clamp(a)))

	return EarthRadiusKm * c
}

// DistanceNauticalMiles is DistanceKm expressed in nautical miles.
func DistanceNauticalMiles(from, to Geographic) float64 {
	return DistanceKm(from, to) / KmPerNauticalMile
}

// BearingAndRange returns the observer-relative polar position of a target.
// Defined for every pair of valid positions, including from == to (range 0).
func BearingAndRange(from, to Geographic) Polar {
	r := DistanceKm(from, to)
	if r == 0 {
		return Polar{}
	}
	return Polar{RangeKm: r, BearingDeg: Bearing(from, to)}
}

// Destination returns the point reached by travelling distanceKm along a
// great circle starting at from with the given initial bearing.
func Destination(from Geographic, distanceKm, bearingDeg float64) Geographic {
	if distanceKm == 0 {
		return from
	}

	latRad := from.Latitude * DegreesToRadians
	lonRad := from.Longitude * DegreesToRadians
	trackRad := bearingDeg * DegreesToRadians
	angularDistance := distanceKm / EarthRadiusKm

	// lat2 = asin(sin(lat1)*cos(d) + cos(lat1)*sin(d)*cos(track))
	newLatRad := math.Asin(clamp(
		math.Sin(latRad)*math.Cos(angularDistance) +
			math.Cos(latRad)*math.Sin(angularDistance)*math.Cos(trackRad),
	))

	// lon2 = lon1 + atan2(sin(track)*sin(d)*cos(lat1), cos(d)-sin(lat1)*sin(lat2))
	newLonRad := lonRad + math.Atan2(
		math.Sin(trackRad)*math.Sin(angularDistance)*math.Cos(latRad),
		math.Cos(angularDistance)-math.Sin(latRad)*math.Sin(newLatRad),
	)

	return Geographic{
		Latitude:  newLatRad * RadiansToDegrees,
		Longitude: NormalizeLongitude(newLonRad * RadiansToDegrees),
	}
}

// ClosestApproach estimates when a target on a constant track will be closest to the observer.
// Returns:
//   - closestKm: the minimum distance in kilometers
//   - eta: duration until closest approach (0 if not approaching)
//   - approaching: true if the target is currently closing
func ClosestApproach(observer, target Geographic, speedMps, trackDeg float64) (closestKm float64, eta time.Duration, approaching bool) {
	current := BearingAndRange(observer, target)
	if speedMps <= 0 || current.RangeKm == 0 {
		return current.RangeKm, 0, false
	}

	// Angle between the target's track and the line back to the observer.
	// ~0° means flying straight at the observer.
	back := NormalizeAzimuth(current.BearingDeg + 180)
	relative := math.Abs(trackDeg - back)
	if relative > 180 {
		relative = 360 - relative
	}
	relRad := relative * DegreesToRadians

	closingMps := speedMps * math.Cos(relRad)
	if closingMps <= 0.05 {
		return current.RangeKm, 0, false
	}

	seconds := current.RangeKm * 1000 * math.Cos(relRad) / speedMps
	closestKm = math.Abs(current.RangeKm * math.Sin(relRad))
	return closestKm, time.Duration(seconds * float64(time.Second)), true
}
