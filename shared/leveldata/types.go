// Package leveldata provides TMX level parsing shared between client and server.
// It has no dependencies on ebitengine or donburi. One map tile is one world unit.
package leveldata

import "github.com/automoto/doomerang-netsync/shared/gamemath"

// WorldData holds everything the sync layer needs from a level file.
type WorldData struct {
	Name        string
	Bounds      gamemath.Bounds
	SpawnPoints []SpawnPoint
	NPCs        []NPCSpawn
	Loot        []gamemath.Vec2Milli
}

// SpawnPoint represents a player spawn location.
type SpawnPoint struct {
	Pos   gamemath.Vec2Milli
	Index int
}

// NPCSpawn is an NPC start position and its horizontal patrol half-width.
type NPCSpawn struct {
	Pos         gamemath.Vec2Milli
	PatrolMilli int32
}

// Default returns an empty world with default bounds and a center spawn.
func Default() *WorldData {
	b := gamemath.DefaultBounds()
	return &WorldData{
		Name:        "default",
		Bounds:      b,
		SpawnPoints: []SpawnPoint{{Pos: gamemath.Vec2Milli{X: b.MaxX / 2, Y: b.MaxY / 2}}},
	}
}

// Spawn returns the spawn point for the n-th joining player.
func (w *WorldData) Spawn(n int) gamemath.Vec2Milli {
	if len(w.SpawnPoints) == 0 {
		return gamemath.Vec2Milli{X: w.Bounds.MaxX / 2, Y: w.Bounds.MaxY / 2}
	}
	return w.SpawnPoints[n%len(w.SpawnPoints)].Pos
}
