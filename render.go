package main

import (
	"fmt"
	"image/color"
	"strconv"

	"github.com/automoto/doomerang-netsync/scenes"
	"github.com/automoto/doomerang-netsync/shared/messages"
	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/text"
	"github.com/hajimehoshi/ebiten/v2/vector"
	"golang.org/x/image/font/basicfont"
)

const (
	screenWidth  = 320
	screenHeight = 240
	entitySize   = 8
)

var (
	colorBackground = color.RGBA{0x14, 0x14, 0x1e, 0xff}
	colorLocal      = color.RGBA{0x3c, 0xe6, 0x5a, 0xff}
	colorPlayer     = color.RGBA{0x46, 0x8c, 0xf0, 0xff}
	colorNPC        = color.RGBA{0xe6, 0x50, 0x46, 0xff}
	colorLoot       = color.RGBA{0xf0, 0xd2, 0x3c, 0xff}
	colorSpecial    = color.RGBA{0xb4, 0x64, 0xf0, 0xff}
	colorText       = color.RGBA{0xdc, 0xdc, 0xdc, 0xff}
	colorHealth     = color.RGBA{0xc8, 0x28, 0x28, 0xff}
)

func kindColor(k messages.EntityKind) color.Color {
	switch k {
	case messages.KindNPC:
		return colorNPC
	case messages.KindLoot:
		return colorLoot
	case messages.KindSpecial:
		return colorSpecial
	}
	return colorPlayer
}

// frameRenderer keeps the latest frame from the scene and draws it centered
// on the local player. Present and Draw both run on the ebiten main thread.
type frameRenderer struct {
	frame   scenes.Frame
	showHUD bool
}

func (r *frameRenderer) Present(f scenes.Frame) { r.frame = f }

func (r *frameRenderer) Draw(screen *ebiten.Image) {
	screen.Fill(colorBackground)
	f := r.frame
	ox := float32(screenWidth/2) - f.Local.X
	oy := float32(screenHeight/2) - f.Local.Y

	face := basicfont.Face7x13
	for _, v := range f.Remotes {
		if !v.Visible {
			continue
		}
		x, y := v.X+ox, v.Y+oy
		vector.FillRect(screen, x-entitySize/2, y-entitySize/2, entitySize, entitySize, kindColor(v.Kind), false)
		if v.Kind != messages.KindLoot {
			label := strconv.FormatUint(uint64(v.ID), 10)
			text.Draw(screen, label, face, int(x)-len(label)*3, int(y)-entitySize, colorText)
		}
	}
	if f.Local.Known {
		vector.FillRect(screen, ox+f.Local.X-entitySize/2, oy+f.Local.Y-entitySize/2, entitySize, entitySize, colorLocal, false)
	}

	if !r.showHUD {
		return
	}
	if f.Local.MaxHealth > 0 {
		w := float32(60) * float32(f.Local.Health) / float32(f.Local.MaxHealth)
		vector.FillRect(screen, 4, screenHeight-10, w, 6, colorHealth, false)
	}
	s := f.Stats
	info := fmt.Sprintf("%s tick:%d pend:%d snap:%.1f", s.State, s.ServerTick, s.Pending, s.Prediction.MaxSnap)
	text.Draw(screen, info, face, 4, 12, colorText)
	net := fmt.Sprintf("rx:%d tx:%d drop:%d stale:%d", s.Net.Received, s.Net.Sent, s.Net.Dropped(), s.StaleSnapshots)
	text.Draw(screen, net, face, 4, 26, colorText)
}
