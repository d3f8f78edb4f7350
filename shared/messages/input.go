package messages

import "strings"

// ActionFlags is the bitset of pressed actions sampled each tick.
type ActionFlags uint16

const (
	ActionAttack ActionFlags = 1 << iota
	ActionFastAttack
	ActionBlock
	ActionDodge
	ActionInteract
	ActionAbility1
	ActionAbility2
	ActionAbility3
	ActionAbility4
)

var actionNames = []struct {
	flag ActionFlags
	name string
}{
	{ActionAttack, "Attack"},
	{ActionFastAttack, "FastAttack"},
	{ActionBlock, "Block"},
	{ActionDodge, "Dodge"},
	{ActionInteract, "Interact"},
	{ActionAbility1, "Ability1"},
	{ActionAbility2, "Ability2"},
	{ActionAbility3, "Ability3"},
	{ActionAbility4, "Ability4"},
}

// Has reports whether all bits of f are set.
func (a ActionFlags) Has(f ActionFlags) bool { return a&f == f }

func (a ActionFlags) String() string {
	if a == 0 {
		return "None"
	}
	var parts []string
	for _, n := range actionNames {
		if a.Has(n.flag) {
			parts = append(parts, n.name)
		}
	}
	if len(parts) == 0 {
		return "Unknown"
	}
	return strings.Join(parts, "|")
}

// InputCommand is sent from client to server every simulation tick. Used for
// server-side movement processing and client-side prediction reconciliation.
type InputCommand struct {
	Sequence   uint32 // Incrementing ID for reconciliation
	ClientTick uint32
	MoveX      int16 // quantized axis, see quantize.Input
	MoveY      int16
	Actions    ActionFlags
}

func (InputCommand) Tag() Tag { return TagInput }
