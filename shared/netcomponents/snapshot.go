package netcomponents

import (
	"github.com/automoto/doomerang-netsync/shared/messages"
	"github.com/automoto/doomerang-netsync/shared/quantize"
	"github.com/yohamta/donburi"
)

// ToSnapshot builds the wire record of entry. Vitals are optional.
func ToSnapshot(entry *donburi.Entry) messages.EntitySnapshot {
	id := NetIdentity.Get(entry)
	pos := NetPosition.Get(entry).Pos
	es := messages.EntitySnapshot{
		ID:   id.ID,
		Kind: id.Kind,
		X:    quantize.MilliToPosition(pos.X),
		Y:    quantize.MilliToPosition(pos.Y),
	}
	if entry.HasComponent(NetVitals) {
		v := NetVitals.Get(entry)
		es.Health, es.MaxHealth, es.Energy = v.Health, v.MaxHealth, v.Energy
		if len(v.Cooldowns) > 0 {
			es.Cooldowns = append([]uint16(nil), v.Cooldowns...)
		}
	}
	return es
}
