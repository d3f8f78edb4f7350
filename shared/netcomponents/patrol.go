package netcomponents

import (
	"github.com/automoto/doomerang-netsync/shared/gamemath"
	"github.com/yohamta/donburi"
)

// patrolAxis is the quantized input an NPC walks with.
const patrolAxis = 500

// NetPatrolData walks an NPC back and forth around Origin.
type NetPatrolData struct {
	Origin     gamemath.Vec2Milli
	RangeMilli int32
	Dir        int16 // +1 or -1
}

var NetPatrol = donburi.NewComponentType[NetPatrolData]()

// Step moves pos one tick along the patrol, turning at either end.
func (p *NetPatrolData) Step(pos gamemath.Vec2Milli, params gamemath.MoveParams, b gamemath.Bounds) gamemath.Vec2Milli {
	if p.RangeMilli <= 0 {
		return pos
	}
	if p.Dir == 0 {
		p.Dir = 1
	}
	next := gamemath.Integrate(pos, p.Dir*patrolAxis, 0, params, b)
	off := next.X - p.Origin.X
	if off >= p.RangeMilli || off <= -p.RangeMilli || next.X == pos.X {
		p.Dir = -p.Dir
	}
	return next
}
