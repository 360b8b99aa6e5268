// Package adsb defines the raw aircraft observations produced by ADS-B data
// providers and the clients that fetch them.
package adsb

import (
	"context"
	"math"
	"strings"
	"time"

	"github.com/unklstewy/skyradar/pkg/coordinates"
)

// MaxBatchSize is the largest number of snapshots a single fetch may return.
// Providers fail larger responses with a DataFormatError and the tracking
// store rejects entries beyond it.
const MaxBatchSize = 5000

// Snapshot is one provider observation of one aircraft.
// Units are SI: meters, meters per second, degrees.
// Any field other than ICAO24 and Timestamp may be missing from raw data.
type Snapshot struct {
	// ICAO24 is the 24-bit transponder address as hex (e.g., "a12345").
	// Case-insensitive; the tracking store normalizes it.
	ICAO24 string `json:"icao24"`

	// Latitude and Longitude in decimal degrees (WGS84).
	// Required for the snapshot to be tracked.
	Latitude  Optional[float64] `json:"latitude"`
	Longitude Optional[float64] `json:"longitude"`

	// Altitude in meters above mean sea level
	Altitude Optional[float64] `json:"altitude"`

	// GroundSpeed in meters per second
	GroundSpeed Optional[float64] `json:"ground_speed"`

	// Heading is the ground track in degrees (0 = North, clockwise)
	Heading Optional[float64] `json:"heading"`

	// VerticalRate in meters per second (positive = climbing)
	VerticalRate Optional[float64] `json:"vertical_rate"`

	// OnGround is reported by some providers
	OnGround Optional[bool] `json:"on_ground"`

	Callsign      Optional[string] `json:"callsign"`
	Destination   Optional[string] `json:"destination"`
	OriginCountry Optional[string] `json:"origin_country"`
	Squawk        Optional[string] `json:"squawk"`

	// Timestamp is when the position was measured.
	// Zero means the time of the fetch that produced the snapshot.
	Timestamp time.Time `json:"timestamp"`
}

// Position returns the reported position, if both coordinates are present.
func (s Snapshot) Position() (coordinates.Geographic, bool) {
	lat, okLat := s.Latitude.Get()
	lon, okLon := s.Longitude.Get()
	if !okLat || !okLon {
		return coordinates.Geographic{}, false
	}
	return coordinates.Geographic{Latitude: lat, Longitude: lon}, true
}

// DisplayName returns the trimmed callsign, falling back to the ICAO address.
func (s Snapshot) DisplayName() string {
	if cs, ok := s.Callsign.Get(); ok {
		if cs = strings.TrimSpace(cs); cs != "" {
			return cs
		}
	}
	return strings.ToLower(strings.TrimSpace(s.ICAO24))
}

// Area is the region a fetch covers, centred on the observer.
type Area struct {
	Center   coordinates.Geographic
	RadiusKm float64
}

// BoundingBox returns the latitude/longitude box enclosing the area.
// Longitude extent widens with latitude and is capped near the poles.
func (a Area) BoundingBox() (latMin, latMax, lonMin, lonMax float64) {
	const kmPerDegree = 111.0

	dLat := a.RadiusKm / kmPerDegree
	cosLat := math.Cos(a.Center.Latitude * coordinates.DegreesToRadians)
	dLon := 180.0
	if cosLat > 0.01 {
		dLon = math.Min(180.0, a.RadiusKm/(kmPerDegree*cosLat))
	}

	latMin = math.Max(-90, a.Center.Latitude-dLat)
	latMax = math.Min(90, a.Center.Latitude+dLat)
	lonMin = math.Max(-180, a.Center.Longitude-dLon)
	lonMax = math.Min(180, a.Center.Longitude+dLon)
	return latMin, latMax, lonMin, lonMax
}

// DataSource is the interface that all ADS-B data providers must implement.
// This abstraction allows switching between online services (OpenSky,
// airplanes.live) and the built-in demo traffic.
type DataSource interface {
	// FetchSnapshots returns the aircraft currently reported inside area.
	// Failures are *TransportError, *RateLimitError or *DataFormatError.
	// Entries the provider sent but could not fully decode are still
	// returned so the caller can account for them.
	FetchSnapshots(ctx context.Context, area Area) ([]Snapshot, error)

	// Name identifies the provider in logs and status output.
	Name() string

	// Close cleanly shuts down the data source connection.
	Close() error
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// finiteOpt drops non-finite provider values instead of passing them on.
func finiteOpt(p *float64) Optional[float64] {
	if p == nil || !finite(*p) {
		return None[float64]()
	}
	return Some(*p)
}

func trimmedOpt(p *string) Optional[string] {
	if p == nil {
		return None[string]()
	}
	s := strings.TrimSpace(*p)
	if s == "" {
		return None[string]()
	}
	return Some(s)
}
