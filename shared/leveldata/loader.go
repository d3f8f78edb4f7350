package leveldata

import (
	"fmt"
	"io/fs"
	"math"
	"path/filepath"
	"sort"
	"strings"

	"github.com/automoto/doomerang-netsync/shared/gamemath"
	"github.com/automoto/doomerang-netsync/shared/netconfig"
	"github.com/lafriks/go-tiled"
)

// Object group names read from the TMX file.
const (
	groupPlayerSpawn = "PlayerSpawn"
	groupNPC         = "NPC"
	groupLoot        = "Loot"
)

// maxWorldUnits keeps every position representable as a quantized int16.
const maxWorldUnits = math.MaxInt16 / netconfig.PositionScale

// Load parses a TMX file and returns world bounds and spawn data. It takes an
// fs.FS so callers can pass embed.FS or os.DirFS.
func Load(fsys fs.FS, tmxPath string) (*WorldData, error) {
	levelMap, err := tiled.LoadFile(tmxPath, tiled.WithFileSystem(fsys))
	if err != nil {
		return nil, fmt.Errorf("load TMX %s: %w", tmxPath, err)
	}
	if levelMap.TileWidth <= 0 || levelMap.TileHeight <= 0 {
		return nil, fmt.Errorf("load TMX %s: invalid tile size %dx%d", tmxPath, levelMap.TileWidth, levelMap.TileHeight)
	}
	if levelMap.Width > maxWorldUnits || levelMap.Height > maxWorldUnits {
		return nil, fmt.Errorf("load TMX %s: map %dx%d exceeds %d units", tmxPath, levelMap.Width, levelMap.Height, maxWorldUnits)
	}

	data := &WorldData{
		Name:   strings.TrimSuffix(filepath.Base(tmxPath), ".tmx"),
		Bounds: gamemath.BoundsFromUnits(levelMap.Width, levelMap.Height),
	}

	tileW := float64(levelMap.TileWidth)
	tileH := float64(levelMap.TileHeight)
	toMilli := func(x, y float64) gamemath.Vec2Milli {
		return data.Bounds.Clamp(gamemath.Vec2Milli{
			X: int32(math.Round(x / tileW * netconfig.MilliPerUnit)),
			Y: int32(math.Round(y / tileH * netconfig.MilliPerUnit)),
		})
	}

	for _, og := range levelMap.ObjectGroups {
		switch og.Name {
		case groupPlayerSpawn:
			for _, o := range og.Objects {
				data.SpawnPoints = append(data.SpawnPoints, SpawnPoint{
					Pos:   toMilli(o.X, o.Y),
					Index: o.Properties.GetInt("spawnIndex"),
				})
			}
		case groupNPC:
			for _, o := range og.Objects {
				data.NPCs = append(data.NPCs, NPCSpawn{
					Pos:         toMilli(o.X, o.Y),
					PatrolMilli: int32(o.Properties.GetInt("patrol")) * netconfig.MilliPerUnit,
				})
			}
		case groupLoot:
			for _, o := range og.Objects {
				data.Loot = append(data.Loot, toMilli(o.X, o.Y))
			}
		}
	}

	// Sort spawns by index, then left-to-right, for consistent assignment
	sort.SliceStable(data.SpawnPoints, func(i, j int) bool {
		a, b := data.SpawnPoints[i], data.SpawnPoints[j]
		if a.Index != b.Index {
			return a.Index < b.Index
		}
		return a.Pos.X < b.Pos.X
	})

	return data, nil
}
