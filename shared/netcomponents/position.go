// Package netcomponents holds the donburi components of authoritative
// entities on the server and their conversion to snapshot records.
package netcomponents

import (
	"github.com/automoto/doomerang-netsync/shared/gamemath"
	"github.com/automoto/doomerang-netsync/shared/messages"
	"github.com/yohamta/donburi"
)

// NetIdentityData is the wire identity of an entity.
type NetIdentityData struct {
	ID   uint32
	Kind messages.EntityKind
}

var NetIdentity = donburi.NewComponentType[NetIdentityData]()

// NetPositionData is the authoritative position in integration units.
type NetPositionData struct {
	Pos gamemath.Vec2Milli
}

var NetPosition = donburi.NewComponentType[NetPositionData]()
