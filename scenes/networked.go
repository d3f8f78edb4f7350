package scenes

import (
	"sync"
	"time"

	"github.com/automoto/doomerang-netsync/network"
	"github.com/automoto/doomerang-netsync/shared/gamemath"
	"github.com/automoto/doomerang-netsync/shared/messages"
	"github.com/automoto/doomerang-netsync/shared/netconfig"
	"github.com/automoto/doomerang-netsync/shared/protocol"
	"github.com/automoto/doomerang-netsync/shared/quantize"
	"github.com/automoto/doomerang-netsync/systems"
	"github.com/yohamta/donburi"
	"go.uber.org/zap"
)

// Clock supplies frame timestamps.
type Clock interface {
	Now() time.Time
}

// SystemClock is the wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// Link is the part of network.Client the scene drives.
type Link interface {
	Inbound() [][]byte
	Send(m messages.Message) error
	ReportMalformed(err error)
	Stats() network.Stats
}

// LocalView is the predicted local player plus its last authoritative stats.
type LocalView struct {
	EntityID  uint32
	X, Y      float32
	Known     bool // a snapshot has anchored the prediction
	Health    uint16
	MaxHealth uint16
	Energy    uint16
	Cooldowns []uint16
}

// FrameStats is the diagnostic overlay data.
type FrameStats struct {
	State          network.SessionState
	ServerTick     uint32
	Snapshots      uint64
	StaleSnapshots uint64
	Pending        int
	Resyncs        uint64 // handshakes restarted after snapshots stopped
	Net            network.Stats
	Prediction     systems.PredictionStats
}

// Frame is handed to the render sink once per Update.
type Frame struct {
	At      time.Time
	Local   LocalView
	Remotes []systems.RemoteView
	Stats   FrameStats
}

// RenderSink consumes frames.
type RenderSink interface {
	Present(f Frame)
}

// SceneConfig configures a NetworkedScene.
type SceneConfig struct {
	Join               messages.JoinRequest
	Nonce              uint32
	InterpolationDelay time.Duration
	SnapshotTimeout    time.Duration
}

// NetworkedScene is the single-threaded frame driver. Every call to Update
// drains the inbound queue, applies messages in arrival order, runs the
// predictor, interpolates remote entities and presents a frame. It owns all
// sync state; nothing here is touched by the receive goroutine.
type NetworkedScene struct {
	log   *zap.Logger
	link  Link
	clock Clock
	sink  RenderSink

	session    *network.Session
	prediction *systems.NetPrediction
	world      donburi.World
	remotes    *systems.RemoteEntities
	delay      time.Duration
	timeout    time.Duration

	once      sync.Once
	lastFrame time.Time
	lastTick  uint32
	haveTick  bool
	lastSnap  time.Time
	snapshots uint64
	stale     uint64
	resyncs   uint64
	local     messages.EntitySnapshot
	ended     bool
}

func NewNetworkedScene(link Link, input systems.InputSource, clock Clock, sink RenderSink, cfg SceneConfig, logger *zap.Logger) *NetworkedScene {
	delay := cfg.InterpolationDelay
	if delay <= 0 {
		delay = netconfig.InterpolationDelay
	}
	timeout := cfg.SnapshotTimeout
	if timeout <= 0 {
		timeout = netconfig.SnapshotTimeout
	}
	world := donburi.NewWorld()
	return &NetworkedScene{
		log:        logger.Named("networked"),
		link:       link,
		clock:      clock,
		sink:       sink,
		session:    network.NewSession(cfg.Join, cfg.Nonce),
		prediction: systems.NewNetPrediction(input, link, logger),
		world:      world,
		remotes:    systems.NewRemoteEntities(world),
		delay:      delay,
		timeout:    timeout,
	}
}

func (ns *NetworkedScene) configure() {
	ns.session.Begin()
	ns.lastFrame = ns.clock.Now()
	ns.log.Info("handshake started")
}

// Update runs one simulation frame: network, handshake and prediction, then
// presents. Render can present again between Updates.
func (ns *NetworkedScene) Update() {
	ns.once.Do(ns.configure)
	now := ns.clock.Now()

	for _, raw := range ns.link.Inbound() {
		msg, err := protocol.Decode(raw)
		if err != nil {
			ns.link.ReportMalformed(err)
			continue
		}
		ns.dispatch(msg, now)
	}

	if ns.session.State() == network.StateJoinedGame && now.Sub(ns.lastSnap) > ns.timeout {
		ns.resync()
	}
	if msg := ns.session.Poll(now); msg != nil {
		if err := ns.link.Send(msg); err != nil {
			ns.log.Debug("handshake send failed", zap.Stringer("tag", msg.Tag()), zap.Error(err))
		}
	}

	elapsed := now.Sub(ns.lastFrame)
	ns.lastFrame = now
	if ns.session.State() == network.StateJoinedGame {
		ns.prediction.Advance(elapsed)
	}

	ns.present(now)
}

// Render re-samples remote interpolation at the clock's current time and
// presents a frame. It does not touch the network or the predictor, so it can
// run once per drawn frame at any display rate.
func (ns *NetworkedScene) Render() {
	ns.present(ns.clock.Now())
}

func (ns *NetworkedScene) present(now time.Time) {
	systems.UpdateNetInterp(ns.world, now, ns.delay)
	ns.sink.Present(ns.frame(now))
}

// resync restarts the handshake after the server went quiet. A restarted
// server counts ticks from zero, so the stale filter starts over too.
func (ns *NetworkedScene) resync() {
	ns.log.Warn("no snapshots, restarting handshake", zap.Duration("timeout", ns.timeout))
	ns.resyncs++
	ns.session.Begin()
	ns.prediction.Reset()
	ns.remotes.Clear()
	ns.haveTick, ns.lastTick = false, 0
	ns.local = messages.EntitySnapshot{}
}

func (ns *NetworkedScene) dispatch(msg messages.Message, now time.Time) {
	switch m := msg.(type) {
	case messages.Hello:
		if ns.session.OnHello(m) {
			ns.log.Info("server answered hello", zap.Uint16("protocol", m.ProtocolVersion))
		}
	case messages.JoinAccepted:
		ns.onJoinAccepted(m, now)
	case messages.WorldSnapshot:
		ns.applySnapshot(m, now)
	case messages.Disconnect:
		ns.log.Info("server closed the session", zap.Uint8("reason", uint8(m.Reason)))
		ns.session.OnDisconnect()
		ns.remotes.Clear()
		ns.ended = true
	default:
		ns.log.Debug("ignoring unexpected message", zap.Stringer("tag", msg.Tag()))
	}
}

func (ns *NetworkedScene) onJoinAccepted(m messages.JoinAccepted, now time.Time) {
	if !ns.session.OnJoinAccepted(m) {
		return
	}
	ns.lastSnap = now
	ns.prediction.SetSimulationHz(m.SimulationHz)
	ns.prediction.SetTick(m.ServerTick)
	if m.HasBounds() {
		ns.prediction.SetBounds(gamemath.Bounds{
			MaxX: quantize.PositionToMilli(m.BoundsMaxX),
			MaxY: quantize.PositionToMilli(m.BoundsMaxY),
		})
	}
	ns.log.Info("joined world",
		zap.Uint32("entity", m.EntityID),
		zap.Uint32("serverTick", m.ServerTick),
		zap.Uint16("simulationHz", m.SimulationHz))
}

func (ns *NetworkedScene) applySnapshot(snap messages.WorldSnapshot, now time.Time) {
	localID, joined := ns.session.EntityID()
	if !joined {
		return
	}
	if ns.haveTick && snap.ServerTick < ns.lastTick {
		ns.stale++
		return
	}
	ns.lastTick, ns.haveTick = snap.ServerTick, true
	ns.lastSnap = now
	ns.snapshots++

	ns.prediction.Reconcile(snap, localID)
	if ent, ok := snap.Find(localID); ok {
		ns.local = ent
	}
	ns.remotes.Apply(snap, localID, now)
}

func (ns *NetworkedScene) frame(now time.Time) Frame {
	id, _ := ns.session.EntityID()
	x, y := ns.prediction.Position()
	return Frame{
		At: now,
		Local: LocalView{
			EntityID:  id,
			X:         x,
			Y:         y,
			Known:     ns.prediction.Known(),
			Health:    ns.local.Health,
			MaxHealth: ns.local.MaxHealth,
			Energy:    ns.local.Energy,
			Cooldowns: ns.local.Cooldowns,
		},
		Remotes: ns.remotes.Views(),
		Stats: FrameStats{
			State:          ns.session.State(),
			ServerTick:     ns.lastTick,
			Snapshots:      ns.snapshots,
			StaleSnapshots: ns.stale,
			Pending:        ns.prediction.Pending().Len(),
			Resyncs:        ns.resyncs,
			Net:            ns.link.Stats(),
			Prediction:     ns.prediction.Stats(),
		},
	}
}

// Done reports whether the server ended the session.
func (ns *NetworkedScene) Done() bool { return ns.ended }

// Prediction exposes the predictor for diagnostics.
func (ns *NetworkedScene) Prediction() *systems.NetPrediction { return ns.prediction }
