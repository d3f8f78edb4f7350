package gamemath

import "github.com/automoto/doomerang-netsync/shared/netconfig"

// Vec2Milli is a world position in fixed-point integration units
// (netconfig.MilliPerUnit per world unit).
type Vec2Milli struct {
	X, Y int32
}

// Units returns the position in world units for rendering.
func (v Vec2Milli) Units() (float32, float32) {
	return float32(v.X) / netconfig.MilliPerUnit, float32(v.Y) / netconfig.MilliPerUnit
}

// Bounds is an inclusive world rectangle in integration units.
type Bounds struct {
	MinX, MinY int32
	MaxX, MaxY int32
}

// BoundsFromUnits builds bounds spanning [0,width] x [0,height] world units.
func BoundsFromUnits(width, height int) Bounds {
	return Bounds{
		MaxX: int32(width) * netconfig.MilliPerUnit,
		MaxY: int32(height) * netconfig.MilliPerUnit,
	}
}

// DefaultBounds is used until a map or a JoinAccepted provides real bounds.
func DefaultBounds() Bounds {
	return BoundsFromUnits(netconfig.DefaultWorldWidth, netconfig.DefaultWorldHeight)
}

// Clamp moves v inside b.
func (b Bounds) Clamp(v Vec2Milli) Vec2Milli {
	v.X = clampInt32(v.X, b.MinX, b.MaxX)
	v.Y = clampInt32(v.Y, b.MinY, b.MaxY)
	return v
}

// MoveParams holds the integration constants. Client and server must use the
// same values or predictions drift.
type MoveParams struct {
	SpeedMilliPerSecond int64
	InputScale          int64
	SimulationHz        int64
}

// DefaultMoveParams returns the shared movement constants.
func DefaultMoveParams() MoveParams {
	return MoveParams{
		SpeedMilliPerSecond: netconfig.MoveSpeedMilliPerSecond,
		InputScale:          netconfig.InputScale,
		SimulationHz:        netconfig.SimulationHz,
	}
}

// StepDelta returns the displacement for one tick of a quantized axis value.
// Integer division truncates toward zero so opposite inputs move symmetrically.
func (p MoveParams) StepDelta(axis int16) int32 {
	a := clampInt64(int64(axis), -p.InputScale, p.InputScale)
	return int32(a * p.SpeedMilliPerSecond / (p.InputScale * p.SimulationHz))
}

// Integrate advances pos by one tick of input and clamps it to bounds. This is
// the only movement formula; the predictor, the replay and the server all call it.
func Integrate(pos Vec2Milli, moveX, moveY int16, p MoveParams, b Bounds) Vec2Milli {
	pos.X += p.StepDelta(moveX)
	pos.Y += p.StepDelta(moveY)
	return b.Clamp(pos)
}

func clampInt32(v, lo, hi int32) int32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampInt64(v, lo, hi int64) int64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
