// Package quantize converts floating positions and analog inputs into the
// 16-bit fixed-point values carried on the wire. Conversions saturate instead
// of wrapping and never fail.
package quantize

import (
	"math"

	"github.com/automoto/doomerang-netsync/shared/netconfig"
)

const milliPerSubunit = netconfig.MilliPerUnit / netconfig.PositionScale

// Position quantizes a world coordinate with scale 100.
func Position(v float32) int16 {
	return scale(float64(v)*netconfig.PositionScale, math.MinInt16, math.MaxInt16)
}

// DequantizePosition is the inverse of Position.
func DequantizePosition(q int16) float32 {
	return float32(q) / netconfig.PositionScale
}

// Input quantizes an analog axis in [-1,1] with scale 1000.
func Input(v float32) int16 {
	f := float64(v)
	if f > 1 {
		f = 1
	} else if f < -1 {
		f = -1
	}
	return scale(f*netconfig.InputScale, -netconfig.InputScale, netconfig.InputScale)
}

// DequantizeInput is the inverse of Input.
func DequantizeInput(q int16) float32 {
	return float32(q) / netconfig.InputScale
}

// PositionToMilli converts a quantized position into integration units. The
// conversion is exact.
func PositionToMilli(q int16) int32 {
	return int32(q) * milliPerSubunit
}

// MilliToPosition converts integration units into a quantized position,
// rounding half away from zero and saturating.
func MilliToPosition(m int32) int16 {
	return scale(float64(m)/milliPerSubunit, math.MinInt16, math.MaxInt16)
}

// scale clamps v to [lo, hi] and rounds half away from zero. NaN maps to 0.
func scale(v, lo, hi float64) int16 {
	if math.IsNaN(v) {
		return 0
	}
	if v < lo {
		v = lo
	} else if v > hi {
		v = hi
	}
	return int16(math.Round(v))
}
