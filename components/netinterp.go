package components

import (
	"time"

	"github.com/automoto/doomerang-netsync/network"
	"github.com/automoto/doomerang-netsync/shared/messages"
	"github.com/yohamta/donburi"
)

// NetEntityData is the latest authoritative state of a remote entity.
type NetEntityData struct {
	ID       uint32
	Kind     messages.EntityKind
	State    messages.EntitySnapshot
	LastTick uint32 // server tick of the snapshot that produced State
}

var NetEntity = donburi.NewComponentType[NetEntityData]()

// NetInterpData renders a remote entity between buffered snapshots. X/Y hold
// the position computed by the most recent interpolation pass.
type NetInterpData struct {
	Buffer      *network.SnapshotBuffer
	X, Y        float32
	HasPosition bool
}

var NetInterp = donburi.NewComponentType[NetInterpData]()

// LootHintData marks where a loot entity was seen and since when.
type LootHintData struct {
	X, Y      float32
	FirstSeen time.Time
}

var LootHint = donburi.NewComponentType[LootHintData]()
