package netcomponents

import (
	"github.com/automoto/doomerang-netsync/shared/netconfig"
	"github.com/yohamta/donburi"
)

const (
	AbilitySlots    = netconfig.AbilitySlots
	AbilityCost     = 10
	AbilityCooldown = 1500 // ms
	energyRegenMS   = 100  // one energy point per this many ms
)

// NetVitalsData carries the stats every snapshot reports.
type NetVitalsData struct {
	Health, MaxHealth uint16
	Energy, MaxEnergy uint16
	Cooldowns         []uint16 // remaining ms per ability slot

	regenMS uint16
}

var NetVitals = donburi.NewComponentType[NetVitalsData]()

// NewPlayerVitals returns full health and energy with idle ability slots.
func NewPlayerVitals() NetVitalsData {
	return NetVitalsData{
		Health: 100, MaxHealth: 100,
		Energy: 100, MaxEnergy: 100,
		Cooldowns: make([]uint16, AbilitySlots),
	}
}

// Trigger starts the cooldown of slot if it is ready and enough energy
// remains. It reports whether the ability fired.
func (v *NetVitalsData) Trigger(slot int) bool {
	if slot < 0 || slot >= len(v.Cooldowns) || v.Cooldowns[slot] > 0 || v.Energy < AbilityCost {
		return false
	}
	v.Cooldowns[slot] = AbilityCooldown
	v.Energy -= AbilityCost
	return true
}

// Advance counts cooldowns down and regenerates energy over stepMS.
func (v *NetVitalsData) Advance(stepMS uint16) {
	for i, c := range v.Cooldowns {
		if c > stepMS {
			v.Cooldowns[i] = c - stepMS
		} else {
			v.Cooldowns[i] = 0
		}
	}
	if v.Energy >= v.MaxEnergy {
		v.regenMS = 0
		return
	}
	v.regenMS += stepMS
	for v.regenMS >= energyRegenMS && v.Energy < v.MaxEnergy {
		v.regenMS -= energyRegenMS
		v.Energy++
	}
}
