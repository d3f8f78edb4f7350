package systems

import (
	"math"
	"time"

	"github.com/automoto/doomerang-netsync/network"
	"github.com/automoto/doomerang-netsync/shared/gamemath"
	"github.com/automoto/doomerang-netsync/shared/messages"
	"github.com/automoto/doomerang-netsync/shared/netconfig"
	"github.com/automoto/doomerang-netsync/shared/quantize"
	"go.uber.org/zap"
)

// PredictionStats accumulates predictor and reconciler counters.
type PredictionStats struct {
	Steps          uint64
	DiscardedSteps uint64 // steps dropped because a frame exceeded MaxStepsPerFrame
	SendErrors     uint64
	Reconciles     uint64
	Corrections    uint64 // reconciles that moved the predicted position
	TotalSnap      float64
	MaxSnap        float64
}

// ReconcileResult describes one applied snapshot.
type ReconcileResult struct {
	Applied      bool
	Pruned       int
	Replayed     int
	SnapDistance float64 // world units between the old prediction and the rebuilt one
}

// NetPrediction owns client-side prediction state for the local player:
// the fixed-step accumulator, the pending input log and the predicted position.
// All movement goes through gamemath.Integrate, the same function the server
// runs, so a replay over acknowledged state reproduces the server exactly.
type NetPrediction struct {
	log     *zap.Logger
	input   InputSource
	sender  Sender
	pending *network.PendingInputLog

	params   gamemath.MoveParams
	bounds   gamemath.Bounds
	step     time.Duration
	maxSteps int

	acc   time.Duration
	tick  uint32
	seq   uint32
	pos   gamemath.Vec2Milli
	known bool

	stats PredictionStats
}

// NewNetPrediction creates a predictor that samples input and sends one
// InputCommand per tick through sender.
func NewNetPrediction(input InputSource, sender Sender, logger *zap.Logger) *NetPrediction {
	p := &NetPrediction{
		log:      logger.Named("prediction"),
		input:    input,
		sender:   sender,
		pending:  network.NewPendingInputLog(netconfig.PendingInputCap),
		params:   gamemath.DefaultMoveParams(),
		bounds:   gamemath.DefaultBounds(),
		maxSteps: netconfig.MaxStepsPerFrame,
	}
	p.step = time.Second / time.Duration(p.params.SimulationHz)
	return p
}

// SetBounds replaces the world bounds used for integration.
func (p *NetPrediction) SetBounds(b gamemath.Bounds) { p.bounds = b }

// SetSimulationHz adopts the server's tick rate. Zero is ignored.
func (p *NetPrediction) SetSimulationHz(hz uint16) {
	if hz == 0 {
		return
	}
	p.params.SimulationHz = int64(hz)
	p.step = time.Second / time.Duration(hz)
}

// SetTick aligns the local tick counter, typically with the server tick from
// JoinAccepted. Sequence numbers are not affected.
func (p *NetPrediction) SetTick(tick uint32) { p.tick = tick }

// Reset forgets the anchored position, pending inputs and accumulated time
// before a new join. Sequence numbers keep increasing.
func (p *NetPrediction) Reset() {
	p.pending.Clear()
	p.known = false
	p.pos = gamemath.Vec2Milli{}
	p.acc = 0
}

// Advance feeds one frame's elapsed time into the accumulator and runs the
// due simulation steps. It returns the number of steps taken.
func (p *NetPrediction) Advance(frame time.Duration) int {
	if frame > 0 {
		p.acc += frame
	}
	steps := 0
	for p.acc >= p.step && steps < p.maxSteps {
		p.Step()
		p.acc -= p.step
		steps++
	}
	if p.acc >= p.step {
		// Spiral-of-death guard: drop whole steps, keep the remainder.
		dropped := p.acc / p.step
		p.stats.DiscardedSteps += uint64(dropped)
		p.acc -= dropped * p.step
		p.log.Debug("discarded simulation steps", zap.Int64("steps", int64(dropped)))
	}
	return steps
}

// Step runs exactly one simulation tick.
func (p *NetPrediction) Step() {
	st := p.input.Sample()
	mx := quantize.Input(st.MoveX)
	my := quantize.Input(st.MoveY)

	p.tick++
	p.seq++
	p.pending.Append(network.PendingInput{
		Sequence: p.seq,
		Tick:     p.tick,
		MoveX:    mx,
		MoveY:    my,
		Actions:  st.Actions,
	})
	p.pos = gamemath.Integrate(p.pos, mx, my, p.params, p.bounds)
	p.stats.Steps++

	cmd := messages.InputCommand{
		Sequence:   p.seq,
		ClientTick: p.tick,
		MoveX:      mx,
		MoveY:      my,
		Actions:    st.Actions,
	}
	if err := p.sender.Send(cmd); err != nil {
		p.stats.SendErrors++
		p.log.Debug("input send failed", zap.Uint32("seq", p.seq), zap.Error(err))
	}
}

// Reconcile rebuilds the predicted position from an authoritative snapshot:
// snap to the server position, drop acknowledged inputs and replay the rest.
// A snapshot that does not contain localID changes nothing.
func (p *NetPrediction) Reconcile(snap messages.WorldSnapshot, localID uint32) ReconcileResult {
	ent, ok := snap.Find(localID)
	if !ok {
		return ReconcileResult{}
	}

	before, hadPrediction := p.pos, p.known
	pos := gamemath.Vec2Milli{
		X: quantize.PositionToMilli(ent.X),
		Y: quantize.PositionToMilli(ent.Y),
	}
	pruned := p.pending.Prune(snap.LastProcessedInput)
	replay := p.pending.Entries()
	for _, in := range replay {
		pos = gamemath.Integrate(pos, in.MoveX, in.MoveY, p.params, p.bounds)
	}
	p.pos = pos
	p.known = true

	res := ReconcileResult{Applied: true, Pruned: pruned, Replayed: len(replay)}
	if hadPrediction {
		res.SnapDistance = distanceUnits(before, pos)
	}

	p.stats.Reconciles++
	if res.SnapDistance > 0 {
		p.stats.Corrections++
		p.stats.TotalSnap += res.SnapDistance
		if res.SnapDistance > p.stats.MaxSnap {
			p.stats.MaxSnap = res.SnapDistance
		}
		p.log.Debug("prediction corrected",
			zap.Uint32("serverTick", snap.ServerTick),
			zap.Uint32("ack", snap.LastProcessedInput),
			zap.Int("replayed", res.Replayed),
			zap.Float64("snap", res.SnapDistance))
	}
	return res
}

// Position returns the predicted local position in world units.
func (p *NetPrediction) Position() (float32, float32) { return p.pos.Units() }

// PositionMilli returns the predicted position in integration units.
func (p *NetPrediction) PositionMilli() gamemath.Vec2Milli { return p.pos }

// Known reports whether a snapshot has anchored the prediction yet.
func (p *NetPrediction) Known() bool { return p.known }

func (p *NetPrediction) Sequence() uint32                  { return p.seq }
func (p *NetPrediction) Tick() uint32                      { return p.tick }
func (p *NetPrediction) Pending() *network.PendingInputLog { return p.pending }
func (p *NetPrediction) Stats() PredictionStats            { return p.stats }

func distanceUnits(a, b gamemath.Vec2Milli) float64 {
	dx := float64(a.X - b.X)
	dy := float64(a.Y - b.Y)
	return math.Hypot(dx, dy) / netconfig.MilliPerUnit
}
