package frame

import "math"

const (
	// MinFrames is the shortest duration, in frames, AlignDuration returns.
	MinFrames = 3

	// alignEpsilon is the distance, in frames, under which a value is
	// already on a boundary and is returned untouched.
	alignEpsilon = 1e-6
)

// NearestMultiple returns the multiple of step closest to value. On an exact
// tie the lower multiple wins. A value within alignEpsilon frames of a
// multiple is returned as-is. A non-positive step returns value unchanged.
func NearestMultiple(value, step float64) float64 {
	if step <= 0 {
		return value
	}

	exact := value / step
	if math.Abs(exact-math.Round(exact)) < alignEpsilon {
		return value
	}

	lower := math.Floor(exact) * step
	upper := math.Ceil(exact) * step
	if value-lower <= upper-value {
		return lower
	}
	return upper
}

// AlignDuration rounds desiredMs to the nearest whole number of frames
// (lower on ties) and never returns less than MinFrames frames.
func AlignDuration(desiredMs, frameMs float64) float64 {
	if frameMs <= 0 {
		return desiredMs
	}
	return math.Max(NearestMultiple(desiredMs, frameMs), MinFrames*frameMs)
}

// AlignTimecode rounds an absolute position in seconds to the nearest frame
// boundary (lower on ties). There is no minimum.
func AlignTimecode(desiredS, frameMs float64) float64 {
	if frameMs <= 0 {
		return desiredS
	}
	return NearestMultiple(desiredS, frameMs/1000)
}
