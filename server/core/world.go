package core

import (
	"sort"

	"github.com/automoto/doomerang-netsync/shared/gamemath"
	"github.com/automoto/doomerang-netsync/shared/leveldata"
	"github.com/automoto/doomerang-netsync/shared/messages"
	nc "github.com/automoto/doomerang-netsync/shared/netcomponents"
	"github.com/yohamta/donburi"
)

// defaultPatrolMilli is used for NPCs added beyond the map's own.
const defaultPatrolMilli = 5_000

// World is the authoritative entity store. Only the game loop goroutine
// touches it.
type World struct {
	ecs    donburi.World
	level  *leveldata.WorldData
	params gamemath.MoveParams
	byID   map[uint32]donburi.Entity
	nextID uint32
	joins  int
}

// NewWorld populates loot and up to npcCount NPCs from level.
func NewWorld(level *leveldata.WorldData, params gamemath.MoveParams, npcCount int) *World {
	w := &World{
		ecs:    donburi.NewWorld(),
		level:  level,
		params: params,
		byID:   make(map[uint32]donburi.Entity),
	}
	for i := 0; i < npcCount; i++ {
		w.spawnNPC(w.npcSpawn(i))
	}
	for _, pos := range level.Loot {
		w.create(messages.KindLoot, pos, nc.NetIdentity, nc.NetPosition)
	}
	return w
}

func (w *World) npcSpawn(i int) leveldata.NPCSpawn {
	if i < len(w.level.NPCs) {
		return w.level.NPCs[i]
	}
	// Spread extra NPCs on a row through the middle of the map.
	b := w.level.Bounds
	extra := int32(i - len(w.level.NPCs) + 1)
	step := (b.MaxX - b.MinX) / 8
	return leveldata.NPCSpawn{
		Pos:         b.Clamp(gamemath.Vec2Milli{X: b.MinX + (extra%8)*step, Y: (b.MinY + b.MaxY) / 2}),
		PatrolMilli: defaultPatrolMilli,
	}
}

func (w *World) create(kind messages.EntityKind, pos gamemath.Vec2Milli, comps ...donburi.IComponentType) *donburi.Entry {
	w.nextID++
	e := w.ecs.Create(comps...)
	entry := w.ecs.Entry(e)
	nc.NetIdentity.SetValue(entry, nc.NetIdentityData{ID: w.nextID, Kind: kind})
	nc.NetPosition.SetValue(entry, nc.NetPositionData{Pos: w.level.Bounds.Clamp(pos)})
	w.byID[w.nextID] = e
	return entry
}

func (w *World) spawnNPC(s leveldata.NPCSpawn) uint32 {
	entry := w.create(messages.KindNPC, s.Pos, nc.NetIdentity, nc.NetPosition, nc.NetVitals, nc.NetPatrol)
	nc.NetVitals.SetValue(entry, nc.NetVitalsData{Health: 50, MaxHealth: 50})
	nc.NetPatrol.SetValue(entry, nc.NetPatrolData{Origin: nc.NetPosition.Get(entry).Pos, RangeMilli: s.PatrolMilli, Dir: 1})
	return nc.NetIdentity.Get(entry).ID
}

// SpawnPlayer creates a player at the next spawn point and returns its id.
func (w *World) SpawnPlayer() uint32 {
	pos := w.level.Spawn(w.joins)
	w.joins++
	entry := w.create(messages.KindPlayer, pos, nc.NetIdentity, nc.NetPosition, nc.NetVitals)
	nc.NetVitals.SetValue(entry, nc.NewPlayerVitals())
	return nc.NetIdentity.Get(entry).ID
}

// Remove deletes the entity with id, if present.
func (w *World) Remove(id uint32) {
	e, ok := w.byID[id]
	if !ok {
		return
	}
	if w.ecs.Valid(e) {
		w.ecs.Remove(e)
	}
	delete(w.byID, id)
}

func (w *World) entry(id uint32) (*donburi.Entry, bool) {
	e, ok := w.byID[id]
	if !ok || !w.ecs.Valid(e) {
		return nil, false
	}
	return w.ecs.Entry(e), true
}

// ApplyInput moves player id by one command and fires any ability bits.
func (w *World) ApplyInput(id uint32, cmd messages.InputCommand) bool {
	entry, ok := w.entry(id)
	if !ok {
		return false
	}
	pos := nc.NetPosition.Get(entry)
	pos.Pos = gamemath.Integrate(pos.Pos, cmd.MoveX, cmd.MoveY, w.params, w.level.Bounds)

	if entry.HasComponent(nc.NetVitals) {
		v := nc.NetVitals.Get(entry)
		for slot, flag := range []messages.ActionFlags{
			messages.ActionAbility1, messages.ActionAbility2, messages.ActionAbility3, messages.ActionAbility4,
		} {
			if cmd.Actions.Has(flag) {
				v.Trigger(slot)
			}
		}
	}
	return true
}

// Position returns the position of id.
func (w *World) Position(id uint32) (gamemath.Vec2Milli, bool) {
	entry, ok := w.entry(id)
	if !ok {
		return gamemath.Vec2Milli{}, false
	}
	return nc.NetPosition.Get(entry).Pos, true
}

// Step advances NPC patrols and vitals by one tick of stepMS.
func (w *World) Step(stepMS uint16) {
	nc.NetPatrol.Each(w.ecs, func(entry *donburi.Entry) {
		pos := nc.NetPosition.Get(entry)
		pos.Pos = nc.NetPatrol.Get(entry).Step(pos.Pos, w.params, w.level.Bounds)
	})
	nc.NetVitals.Each(w.ecs, func(entry *donburi.Entry) {
		nc.NetVitals.Get(entry).Advance(stepMS)
	})
}

// Snapshot returns every entity ordered by id.
func (w *World) Snapshot() []messages.EntitySnapshot {
	ids := make([]uint32, 0, len(w.byID))
	for id := range w.byID {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	out := make([]messages.EntitySnapshot, 0, len(ids))
	for _, id := range ids {
		if entry, ok := w.entry(id); ok {
			out = append(out, nc.ToSnapshot(entry))
		}
	}
	return out
}

// Len is the number of live entities.
func (w *World) Len() int { return len(w.byID) }

// Bounds are the world limits in integration units.
func (w *World) Bounds() gamemath.Bounds { return w.level.Bounds }
