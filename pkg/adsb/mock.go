package adsb

import (
	"context"
	"math"
	"time"

	"github.com/unklstewy/skyradar/pkg/coordinates"
)

// MockSource generates deterministic demo traffic circling the fetch area.
// It is used when no provider is configured and by tests.
type MockSource struct {
	now func() time.Time
}

// NewMockSource creates a demo source driven by now (time.Now when nil).
func NewMockSource(now func() time.Time) *MockSource {
	if now == nil {
		now = time.Now
	}
	return &MockSource{now: now}
}

type mockTrack struct {
	icao      string
	callsign  string
	country   string
	orbitFrac float64 // orbit radius as a fraction of the area radius
	phaseDeg  float64
	speedMps  float64
	altitude  Optional[float64]
	clockwise bool
}

var mockTracks = []mockTrack{
	{icao: "a12345", callsign: "TEST123", country: "United States", orbitFrac: 0.6, phaseDeg: 0, speedMps: 230, altitude: Some(10668.0), clockwise: true},
	{icao: "b67890", callsign: "DEMO456", country: "Canada", orbitFrac: 0.35, phaseDeg: 120, speedMps: 195, altitude: Some(8534.0)},
	{icao: "c0ffee", callsign: "LOCAL1", country: "United States", orbitFrac: 0.2, phaseDeg: 240, speedMps: 60, altitude: Some(450.0), clockwise: true},
	{icao: "d15ea5", country: "Mexico", orbitFrac: 0.8, phaseDeg: 300, speedMps: 120, altitude: None[float64]()},
}

// Name implements DataSource.
func (m *MockSource) Name() string {
	return "mock"
}

// Close implements DataSource.
func (m *MockSource) Close() error {
	return nil
}

// FetchSnapshots implements DataSource. Positions are a pure function of the
// clock so consecutive fetches show consistent motion.
func (m *MockSource) FetchSnapshots(ctx context.Context, area Area) ([]Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, &TransportError{Provider: m.Name(), Err: err}
	}

	now := m.now().UTC()
	radiusKm := area.RadiusKm
	if radiusKm <= 0 {
		radiusKm = 8
	}

	snapshots := make([]Snapshot, 0, len(mockTracks))
	for _, tr := range mockTracks {
		orbitKm := radiusKm * tr.orbitFrac
		circumference := 2 * math.Pi * orbitKm * 1000
		angle := math.Mod(float64(now.Unix())*tr.speedMps/circumference*360.0, 360.0)
		if !tr.clockwise {
			angle = -angle
		}
		bearing := coordinates.NormalizeAzimuth(tr.phaseDeg + angle)
		pos := coordinates.Destination(area.Center, orbitKm, bearing)

		heading := coordinates.NormalizeAzimuth(bearing + 90)
		if !tr.clockwise {
			heading = coordinates.NormalizeAzimuth(bearing - 90)
		}

		s := Snapshot{
			ICAO24:        tr.icao,
			Latitude:      Some(pos.Latitude),
			Longitude:     Some(pos.Longitude),
			Altitude:      tr.altitude,
			GroundSpeed:   Some(tr.speedMps),
			Heading:       Some(heading),
			VerticalRate:  Some(0.0),
			OriginCountry: Some(tr.country),
			Timestamp:     now.Truncate(time.Second),
		}
		if tr.callsign != "" {
			s.Callsign = Some(tr.callsign)
		}
		snapshots = append(snapshots, s)
	}

	return snapshots, nil
}
