package tracking

import (
	"fmt"

	"github.com/unklstewy/skyradar/pkg/adsb"
)

// AltitudeBand groups aircraft by altitude for display coloring.
type AltitudeBand int

const (
	// BandUnknown is used when no altitude was reported.
	// It is deliberately distinct from every measured band.
	BandUnknown AltitudeBand = iota
	BandLow
	BandMedium
	BandHigh
	BandVeryHigh
)

// Band thresholds in meters above mean sea level.
const (
	LowCeilingMeters    = 1000.0
	MediumCeilingMeters = 10000.0
	HighCeilingMeters   = 25000.0
)

// RGB is a display color.
type RGB struct {
	R, G, B uint8
}

// Hex returns the color as "#rrggbb".
func (c RGB) Hex() string {
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}

// BandFor classifies an optional altitude in meters.
func BandFor(altitude adsb.Optional[float64]) AltitudeBand {
	alt, ok := altitude.Get()
	if !ok {
		return BandUnknown
	}
	switch {
	case alt < LowCeilingMeters:
		return BandLow
	case alt < MediumCeilingMeters:
		return BandMedium
	case alt < HighCeilingMeters:
		return BandHigh
	default:
		return BandVeryHigh
	}
}

// Color returns the radar color for the band.
func (b AltitudeBand) Color() RGB {
	switch b {
	case BandLow:
		return RGB{255, 255, 0}
	case BandMedium:
		return RGB{0, 255, 0}
	case BandHigh:
		return RGB{0, 255, 255}
	case BandVeryHigh:
		return RGB{255, 0, 255}
	default:
		return RGB{128, 128, 128}
	}
}

func (b AltitudeBand) String() string {
	switch b {
	case BandLow:
		return "low"
	case BandMedium:
		return "medium"
	case BandHigh:
		return "high"
	case BandVeryHigh:
		return "very-high"
	default:
		return "unknown"
	}
}

// MarshalText encodes the band by name.
func (b AltitudeBand) MarshalText() ([]byte, error) {
	return []byte(b.String()), nil
}
