package systems

import (
	"sort"
	"time"

	"github.com/automoto/doomerang-netsync/components"
	"github.com/automoto/doomerang-netsync/network"
	"github.com/automoto/doomerang-netsync/shared/messages"
	"github.com/automoto/doomerang-netsync/shared/netconfig"
	"github.com/automoto/doomerang-netsync/shared/quantize"
	"github.com/tanema/gween/ease"
	"github.com/yohamta/donburi"
)

// RemoteView is what the render sink needs to draw one remote entity.
type RemoteView struct {
	ID                uint32
	Kind              messages.EntityKind
	X, Y              float32
	Visible           bool // false until the interpolator has a position
	Interpolated      bool
	Health, MaxHealth uint16
	Energy            uint16
	Cooldowns         []uint16
	FirstSeen         time.Time // loot only
}

// ApplyResult counts entity churn caused by one snapshot.
type ApplyResult struct {
	Created, Updated, Removed int
}

// RemoteEntities mirrors the non-local entities of each snapshot into a
// donburi world, keyed by server entity id. Entities missing from a snapshot
// are removed along with their buffers and loot hints.
type RemoteEntities struct {
	world   donburi.World
	byID    map[uint32]donburi.Entity
	present map[uint32]struct{}
	blend   ease.TweenFunc
	history int
}

func NewRemoteEntities(world donburi.World) *RemoteEntities {
	return &RemoteEntities{
		world:   world,
		byID:    make(map[uint32]donburi.Entity),
		present: make(map[uint32]struct{}),
		blend:   ease.Linear,
		history: netconfig.SampleHistory,
	}
}

// SetBlend sets the blend function for buffers created from now on.
func (r *RemoteEntities) SetBlend(fn ease.TweenFunc) {
	if fn != nil {
		r.blend = fn
	}
}

// Apply folds snap into the world. localID is skipped; the predictor owns it.
// Re-applying a snapshot with the same server tick does not add samples.
func (r *RemoteEntities) Apply(snap messages.WorldSnapshot, localID uint32, now time.Time) ApplyResult {
	var res ApplyResult
	clear(r.present)

	for _, es := range snap.Entities {
		if es.ID == localID {
			continue
		}
		r.present[es.ID] = struct{}{}

		entry, created := r.entry(es, now)
		if created {
			res.Created++
		} else {
			res.Updated++
		}

		ne := components.NetEntity.Get(entry)
		duplicate := !created && ne.LastTick == snap.ServerTick
		ne.State = es
		ne.LastTick = snap.ServerTick

		x, y := quantize.DequantizePosition(es.X), quantize.DequantizePosition(es.Y)
		if entry.HasComponent(components.LootHint) {
			hint := components.LootHint.Get(entry)
			hint.X, hint.Y = x, y
		}
		if duplicate || !entry.HasComponent(components.NetInterp) {
			continue
		}
		components.NetInterp.Get(entry).Buffer.Push(network.SnapshotSample{
			ServerTick: snap.ServerTick,
			ReceivedAt: now,
			X:          x,
			Y:          y,
		})
	}

	for id, e := range r.byID {
		if _, ok := r.present[id]; ok {
			continue
		}
		r.remove(id, e)
		res.Removed++
	}
	return res
}

// entry returns the world entry for es, creating it on first sight or when
// the entity changed kind.
func (r *RemoteEntities) entry(es messages.EntitySnapshot, now time.Time) (*donburi.Entry, bool) {
	if e, ok := r.byID[es.ID]; ok && r.world.Valid(e) {
		entry := r.world.Entry(e)
		if components.NetEntity.Get(entry).Kind == es.Kind {
			return entry, false
		}
		r.remove(es.ID, e)
	}

	var e donburi.Entity
	switch es.Kind {
	case messages.KindSpecial:
		e = r.world.Create(components.NetEntity)
	case messages.KindLoot:
		e = r.world.Create(components.NetEntity, components.NetInterp, components.LootHint)
	default:
		e = r.world.Create(components.NetEntity, components.NetInterp)
	}
	entry := r.world.Entry(e)
	components.NetEntity.SetValue(entry, components.NetEntityData{ID: es.ID, Kind: es.Kind})
	if entry.HasComponent(components.NetInterp) {
		buf := network.NewSnapshotBuffer(r.history)
		buf.SetBlend(r.blend)
		components.NetInterp.SetValue(entry, components.NetInterpData{Buffer: buf})
	}
	if entry.HasComponent(components.LootHint) {
		components.LootHint.SetValue(entry, components.LootHintData{FirstSeen: now})
	}
	r.byID[es.ID] = e
	return entry, true
}

func (r *RemoteEntities) remove(id uint32, e donburi.Entity) {
	if r.world.Valid(e) {
		r.world.Remove(e)
	}
	delete(r.byID, id)
}

// Clear removes every tracked entity.
func (r *RemoteEntities) Clear() {
	for id, e := range r.byID {
		r.remove(id, e)
	}
}

func (r *RemoteEntities) Len() int { return len(r.byID) }

// Views returns the remote entities ordered by id.
func (r *RemoteEntities) Views() []RemoteView {
	ids := make([]uint32, 0, len(r.byID))
	for id := range r.byID {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	views := make([]RemoteView, 0, len(ids))
	for _, id := range ids {
		e := r.byID[id]
		if !r.world.Valid(e) {
			continue
		}
		entry := r.world.Entry(e)
		ne := components.NetEntity.Get(entry)
		v := RemoteView{
			ID:        ne.ID,
			Kind:      ne.Kind,
			Health:    ne.State.Health,
			MaxHealth: ne.State.MaxHealth,
			Energy:    ne.State.Energy,
			Cooldowns: ne.State.Cooldowns,
		}
		if entry.HasComponent(components.NetInterp) {
			interp := components.NetInterp.Get(entry)
			v.X, v.Y, v.Visible = interp.X, interp.Y, interp.HasPosition
			v.Interpolated = true
		} else {
			v.X = quantize.DequantizePosition(ne.State.X)
			v.Y = quantize.DequantizePosition(ne.State.Y)
			v.Visible = true
		}
		if entry.HasComponent(components.LootHint) {
			v.FirstSeen = components.LootHint.Get(entry).FirstSeen
		}
		views = append(views, v)
	}
	return views
}
