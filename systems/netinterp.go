package systems

import (
	"time"

	"github.com/automoto/doomerang-netsync/components"
	"github.com/yohamta/donburi"
	"github.com/yohamta/donburi/filter"
)

var netInterpQuery = donburi.NewQuery(filter.Contains(components.NetEntity, components.NetInterp))

// UpdateNetInterp samples every remote entity's snapshot buffer at
// now-delay and stores the rendered position. It returns how many entities
// have a position this frame.
func UpdateNetInterp(world donburi.World, now time.Time, delay time.Duration) int {
	target := now.Add(-delay)
	placed := 0
	netInterpQuery.Each(world, func(entry *donburi.Entry) {
		interp := components.NetInterp.Get(entry)
		if interp.Buffer == nil {
			interp.HasPosition = false
			return
		}
		interp.X, interp.Y, interp.HasPosition = interp.Buffer.Sample(target)
		if interp.HasPosition {
			placed++
		}
	})
	return placed
}
