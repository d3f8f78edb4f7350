package main

import (
	"github.com/automoto/doomerang-netsync/shared/messages"
	"github.com/automoto/doomerang-netsync/systems"
	"github.com/hajimehoshi/ebiten/v2"
)

const stickDeadzone = 0.2

var (
	keysLeft  = []ebiten.Key{ebiten.KeyA, ebiten.KeyArrowLeft}
	keysRight = []ebiten.Key{ebiten.KeyD, ebiten.KeyArrowRight}
	keysUp    = []ebiten.Key{ebiten.KeyW, ebiten.KeyArrowUp}
	keysDown  = []ebiten.Key{ebiten.KeyS, ebiten.KeyArrowDown}
)

var actionBindings = []struct {
	flag    messages.ActionFlags
	keys    []ebiten.Key
	buttons []ebiten.StandardGamepadButton
}{
	{messages.ActionAttack, []ebiten.Key{ebiten.KeyJ}, []ebiten.StandardGamepadButton{ebiten.StandardGamepadButtonRightLeft}},
	{messages.ActionFastAttack, []ebiten.Key{ebiten.KeyK}, []ebiten.StandardGamepadButton{ebiten.StandardGamepadButtonRightTop}},
	{messages.ActionBlock, []ebiten.Key{ebiten.KeyL}, []ebiten.StandardGamepadButton{ebiten.StandardGamepadButtonFrontBottomLeft}},
	{messages.ActionDodge, []ebiten.Key{ebiten.KeySpace}, []ebiten.StandardGamepadButton{ebiten.StandardGamepadButtonRightBottom}},
	{messages.ActionInteract, []ebiten.Key{ebiten.KeyE}, []ebiten.StandardGamepadButton{ebiten.StandardGamepadButtonRightRight}},
	{messages.ActionAbility1, []ebiten.Key{ebiten.Key1}, []ebiten.StandardGamepadButton{ebiten.StandardGamepadButtonLeftLeft}},
	{messages.ActionAbility2, []ebiten.Key{ebiten.Key2}, []ebiten.StandardGamepadButton{ebiten.StandardGamepadButtonLeftTop}},
	{messages.ActionAbility3, []ebiten.Key{ebiten.Key3}, []ebiten.StandardGamepadButton{ebiten.StandardGamepadButtonLeftRight}},
	{messages.ActionAbility4, []ebiten.Key{ebiten.Key4}, []ebiten.StandardGamepadButton{ebiten.StandardGamepadButtonLeftBottom}},
}

// deviceInput samples the keyboard and the first standard gamepad.
type deviceInput struct {
	gamepads []ebiten.GamepadID
}

func anyKey(keys []ebiten.Key) bool {
	for _, k := range keys {
		if ebiten.IsKeyPressed(k) {
			return true
		}
	}
	return false
}

func (d *deviceInput) Sample() systems.InputState {
	var s systems.InputState
	if anyKey(keysLeft) {
		s.MoveX--
	}
	if anyKey(keysRight) {
		s.MoveX++
	}
	if anyKey(keysUp) {
		s.MoveY--
	}
	if anyKey(keysDown) {
		s.MoveY++
	}
	for _, b := range actionBindings {
		if anyKey(b.keys) {
			s.Actions |= b.flag
		}
	}

	d.gamepads = ebiten.AppendGamepadIDs(d.gamepads[:0])
	for _, id := range d.gamepads {
		if !ebiten.IsStandardGamepadLayoutAvailable(id) {
			continue
		}
		h := float32(ebiten.StandardGamepadAxisValue(id, ebiten.StandardGamepadAxisLeftStickHorizontal))
		v := float32(ebiten.StandardGamepadAxisValue(id, ebiten.StandardGamepadAxisLeftStickVertical))
		if h > stickDeadzone || h < -stickDeadzone {
			s.MoveX = h
		}
		if v > stickDeadzone || v < -stickDeadzone {
			s.MoveY = v
		}
		for _, b := range actionBindings {
			for _, btn := range b.buttons {
				if ebiten.IsStandardGamepadButtonPressed(id, btn) {
					s.Actions |= b.flag
				}
			}
		}
		break
	}
	return s
}
