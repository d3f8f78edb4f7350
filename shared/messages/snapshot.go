package messages

// EntityKind classifies snapshot entities for client-side handling.
type EntityKind uint8

const (
	KindUnknown EntityKind = iota
	KindPlayer
	KindNPC
	KindLoot
	KindSpecial // encounter markers and static effects; never interpolated
)

func (k EntityKind) String() string {
	switch k {
	case KindPlayer:
		return "player"
	case KindNPC:
		return "npc"
	case KindLoot:
		return "loot"
	case KindSpecial:
		return "special"
	}
	return "unknown"
}

// EntitySnapshot is the authoritative state of one entity. It fully replaces
// whatever the client knew about that entity before.
type EntitySnapshot struct {
	ID        uint32
	Kind      EntityKind
	X, Y      int16 // quantized position
	Health    uint16
	MaxHealth uint16
	Energy    uint16
	Cooldowns []uint16 // remaining milliseconds per ability slot
}

// WorldSnapshot is the full world state at ServerTick as seen by one client.
type WorldSnapshot struct {
	ServerTick         uint32
	LastProcessedInput uint32 // highest input sequence from the recipient applied by the server
	Entities           []EntitySnapshot
}

func (WorldSnapshot) Tag() Tag { return TagSnapshot }

// Find returns the entity with the given id.
func (s WorldSnapshot) Find(id uint32) (EntitySnapshot, bool) {
	for _, e := range s.Entities {
		if e.ID == id {
			return e, true
		}
	}
	return EntitySnapshot{}, false
}
