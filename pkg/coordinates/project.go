package coordinates

import "math"

// RangePolicy decides what happens to targets beyond the radar's maximum range.
type RangePolicy int

const (
	// RangeExclude drops targets outside the maximum range from the render set.
	RangeExclude RangePolicy = iota

	// RangeClamp pins targets outside the maximum range to the radar rim.
	RangeClamp
)

// String returns the config spelling of the policy.
func (p RangePolicy) String() string {
	if p == RangeClamp {
		return "clamp"
	}
	return "exclude"
}

// ParseRangePolicy converts "exclude" or "clamp" to a RangePolicy.
// Anything else yields RangeExclude.
func ParseRangePolicy(s string) RangePolicy {
	if s == "clamp" {
		return RangeClamp
	}
	return RangeExclude
}

// Viewport describes the screen area the radar is drawn into.
type Viewport struct {
	// CenterX, CenterY is the observer's position on screen
	CenterX float64
	CenterY float64

	// RadiusPx is the radar rim radius in screen units at scale 1
	RadiusPx float64

	// MaxRangeKm is the range that maps onto the rim at scale 1
	MaxRangeKm float64

	// AspectX stretches the X axis. Terminal cells are about twice as tall
	// as they are wide, so text front-ends use 2.0. Zero means 1.0.
	AspectX float64
}

// ScreenPoint is a projected position in screen coordinates.
// Y grows downwards, as on every display surface the radar is drawn on.
type ScreenPoint struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Project converts an observer-relative polar position to screen coordinates.
// Bearing 0° maps to up (negative Y) and bearing increases clockwise, so 90° is
// to the right. scale is the zoom factor; the visible range is MaxRangeKm/scale.
// The boolean is false when the target lies beyond the visible range and the
// policy is RangeExclude, or when the inputs are not finite.
func Project(p Polar, scale float64, vp Viewport, policy RangePolicy) (ScreenPoint, bool) {
	if scale <= 0 || vp.MaxRangeKm <= 0 || math.IsNaN(p.RangeKm) || math.IsNaN(p.BearingDeg) {
		return ScreenPoint{}, false
	}

	visibleKm := vp.MaxRangeKm / scale
	r := p.RangeKm
	if r > visibleKm {
		if policy == RangeExclude {
			return ScreenPoint{}, false
		}
		r = visibleKm
	}

	aspect := vp.AspectX
	if aspect == 0 {
		aspect = 1
	}

	screenDist := r / visibleKm * vp.RadiusPx
	bearingRad := p.BearingDeg * DegreesToRadians

	return ScreenPoint{
		X: vp.CenterX + screenDist*math.Sin(bearingRad)*aspect,
		Y: vp.CenterY - screenDist*math.Cos(bearingRad),
	}, true
}
