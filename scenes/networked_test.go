package scenes

import (
	"testing"
	"time"

	"github.com/automoto/doomerang-netsync/network"
	"github.com/automoto/doomerang-netsync/shared/messages"
	"github.com/automoto/doomerang-netsync/shared/netconfig"
	"github.com/automoto/doomerang-netsync/shared/protocol"
	"github.com/automoto/doomerang-netsync/systems"
	"go.uber.org/zap"
)

type fakeLink struct {
	queue     [][]byte
	sent      []messages.Message
	malformed int
}

func (l *fakeLink) Inbound() [][]byte {
	q := l.queue
	l.queue = nil
	return q
}

func (l *fakeLink) Send(m messages.Message) error {
	l.sent = append(l.sent, m)
	return nil
}

func (l *fakeLink) ReportMalformed(error) { l.malformed++ }

func (l *fakeLink) Stats() network.Stats {
	return network.Stats{Malformed: uint64(l.malformed), Sent: uint64(len(l.sent))}
}

func (l *fakeLink) deliver(t *testing.T, msgs ...messages.Message) {
	t.Helper()
	for _, m := range msgs {
		b, err := protocol.Encode(m)
		if err != nil {
			t.Fatalf("encode %T: %v", m, err)
		}
		l.queue = append(l.queue, b)
	}
}

func (l *fakeLink) takeSent() []messages.Message {
	s := l.sent
	l.sent = nil
	return s
}

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time          { return c.now }
func (c *fakeClock) advance(d time.Duration) { c.now = c.now.Add(d) }
func (c *fakeClock) advanceMS(n int)         { c.advance(time.Duration(n) * time.Millisecond) }

type frameRecorder struct{ frames []Frame }

func (r *frameRecorder) Present(f Frame) { r.frames = append(r.frames, f) }
func (r *frameRecorder) last() Frame     { return r.frames[len(r.frames)-1] }

type harness struct {
	link  *fakeLink
	clock *fakeClock
	sink  *frameRecorder
	scene *NetworkedScene
}

func newHarness(input systems.InputSource) *harness {
	h := &harness{
		link:  &fakeLink{},
		clock: &fakeClock{now: time.Unix(1_700_000_000, 0)},
		sink:  &frameRecorder{},
	}
	cfg := SceneConfig{Join: messages.JoinRequest{CharacterName: "Ash", ClassName: "Ranger"}, Nonce: 42}
	h.scene = NewNetworkedScene(h.link, input, h.clock, h.sink, cfg, zap.NewNop())
	return h
}

// join runs the handshake to completion with entity id 7 at server tick 100.
func (h *harness) join(t *testing.T) {
	t.Helper()
	h.scene.Update()
	sent := h.link.takeSent()
	if len(sent) != 1 || sent[0] != (messages.Hello{ProtocolVersion: netconfig.ProtocolVersion, Nonce: 42}) {
		t.Fatalf("first update sent %#v", sent)
	}

	h.link.deliver(t, messages.Hello{ProtocolVersion: netconfig.ProtocolVersion, Nonce: 42})
	h.scene.Update()
	sent = h.link.takeSent()
	if len(sent) != 1 {
		t.Fatalf("expected join request, sent %#v", sent)
	}
	if jr, ok := sent[0].(messages.JoinRequest); !ok || jr.ClassName != "Ranger" {
		t.Fatalf("join request = %#v", sent[0])
	}

	h.link.deliver(t, messages.JoinAccepted{
		EntityID: 7, ServerTick: 100, SimulationHz: netconfig.SimulationHz,
		SnapshotHz: netconfig.SnapshotHz, BoundsMaxX: 10000, BoundsMaxY: 10000,
	})
	h.scene.Update()
	h.link.takeSent()
	if h.sink.last().Stats.State != network.StateJoinedGame {
		t.Fatalf("state = %s", h.sink.last().Stats.State)
	}
}

func inputs(msgs []messages.Message) []messages.InputCommand {
	var out []messages.InputCommand
	for _, m := range msgs {
		if c, ok := m.(messages.InputCommand); ok {
			out = append(out, c)
		}
	}
	return out
}

func right() systems.InputSource {
	return systems.InputFunc(func() systems.InputState { return systems.InputState{MoveX: 1} })
}

func TestHandshakeResendsUntilAnswered(t *testing.T) {
	h := newHarness(right())
	h.scene.Update()
	h.clock.advanceMS(100)
	h.scene.Update()
	if n := len(h.link.sent); n != 1 {
		t.Fatalf("sent %d datagrams before resend interval", n)
	}
	h.clock.advance(netconfig.HandshakeResend)
	h.scene.Update()
	if n := len(h.link.sent); n != 2 {
		t.Fatalf("hello not resent, sent %d", n)
	}
	if len(inputs(h.link.sent)) != 0 {
		t.Fatal("inputs sent before join")
	}
}

func TestPredictsAfterJoin(t *testing.T) {
	h := newHarness(right())
	h.join(t)

	h.clock.advanceMS(50)
	h.scene.Update()
	cmds := inputs(h.link.takeSent())
	if len(cmds) != 3 {
		t.Fatalf("sent %d inputs for 50ms", len(cmds))
	}
	for i, c := range cmds {
		if c.Sequence != uint32(i+1) || c.ClientTick != uint32(101+i) || c.MoveX != 1000 {
			t.Fatalf("input %d = %+v", i, c)
		}
	}
	f := h.sink.last()
	if f.Local.EntityID != 7 || f.Local.Known || f.Stats.Pending != 3 {
		t.Fatalf("frame = %+v", f.Local)
	}
}

func TestSnapshotReconcilesAndTracksRemotes(t *testing.T) {
	h := newHarness(right())
	h.join(t)

	h.clock.advanceMS(50)
	h.scene.Update()
	h.link.takeSent()

	// Server processed the first two inputs from a spawn at (10,10).
	h.link.deliver(t, messages.WorldSnapshot{
		ServerTick:         103,
		LastProcessedInput: 2,
		Entities: []messages.EntitySnapshot{
			{ID: 7, Kind: messages.KindPlayer, X: 1020, Y: 1000, Health: 80, MaxHealth: 100, Cooldowns: []uint16{250}},
			{ID: 8, Kind: messages.KindNPC, X: 500, Y: 500},
			{ID: 9, Kind: messages.KindSpecial, X: 0, Y: 100},
		},
	})
	h.scene.Update()

	f := h.sink.last()
	// 10.2 plus one replayed step of 0.1.
	if !f.Local.Known || f.Local.X != 10.3 || f.Local.Y != 10 {
		t.Fatalf("local = %+v", f.Local)
	}
	if f.Local.Health != 80 || len(f.Local.Cooldowns) != 1 {
		t.Fatalf("local stats = %+v", f.Local)
	}
	if len(f.Remotes) != 2 || f.Remotes[0].ID != 8 || f.Remotes[1].ID != 9 {
		t.Fatalf("remotes = %+v", f.Remotes)
	}
	if !f.Remotes[0].Visible || f.Remotes[0].X != 5 {
		t.Fatalf("npc = %+v", f.Remotes[0])
	}
	if f.Stats.Snapshots != 1 || f.Stats.Pending != 1 {
		t.Fatalf("stats = %+v", f.Stats)
	}

	// Entity 8 leaves.
	h.link.deliver(t, messages.WorldSnapshot{
		ServerTick:         106,
		LastProcessedInput: 3,
		Entities:           []messages.EntitySnapshot{{ID: 7, X: 1030, Y: 1000}, {ID: 9, Kind: messages.KindSpecial}},
	})
	h.scene.Update()
	if f := h.sink.last(); len(f.Remotes) != 1 || f.Remotes[0].ID != 9 {
		t.Fatalf("remotes after leave = %+v", f.Remotes)
	}
}

func TestStaleSnapshotsAreDiscarded(t *testing.T) {
	h := newHarness(systems.InputFunc(func() systems.InputState { return systems.InputState{} }))
	h.join(t)

	h.link.deliver(t,
		messages.WorldSnapshot{ServerTick: 110, Entities: []messages.EntitySnapshot{{ID: 7, X: 2000, Y: 2000}}},
		messages.WorldSnapshot{ServerTick: 105, Entities: []messages.EntitySnapshot{{ID: 7, X: 0, Y: 0}}},
		messages.WorldSnapshot{ServerTick: 110, Entities: []messages.EntitySnapshot{{ID: 7, X: 2000, Y: 2000}}},
	)
	h.scene.Update()

	f := h.sink.last()
	if f.Stats.StaleSnapshots != 1 || f.Stats.Snapshots != 2 || f.Stats.ServerTick != 110 {
		t.Fatalf("stats = %+v", f.Stats)
	}
	if f.Local.X != 20 || f.Local.Y != 20 {
		t.Fatalf("local = %+v", f.Local)
	}
}

func TestMalformedDatagramsAreCounted(t *testing.T) {
	h := newHarness(right())
	h.link.queue = [][]byte{{}, {0x7f}, {0x05, 0x01}}
	h.scene.Update()
	if f := h.sink.last(); f.Stats.Net.Malformed != 3 {
		t.Fatalf("malformed = %d", f.Stats.Net.Malformed)
	}
}

func TestSnapshotBeforeJoinIsIgnored(t *testing.T) {
	h := newHarness(right())
	h.scene.Update()
	h.link.deliver(t, messages.WorldSnapshot{ServerTick: 1, Entities: []messages.EntitySnapshot{{ID: 3, Kind: messages.KindNPC}}})
	h.scene.Update()
	if f := h.sink.last(); len(f.Remotes) != 0 || f.Stats.Snapshots != 0 {
		t.Fatalf("frame = %+v", f)
	}
}

func TestServerDisconnectEndsScene(t *testing.T) {
	h := newHarness(right())
	h.join(t)
	h.link.deliver(t, messages.WorldSnapshot{ServerTick: 101, Entities: []messages.EntitySnapshot{{ID: 7}, {ID: 8, Kind: messages.KindNPC}}})
	h.scene.Update()

	h.link.deliver(t, messages.Disconnect{Reason: messages.ReasonServerShutdown})
	h.clock.advanceMS(50)
	h.scene.Update()
	if !h.scene.Done() {
		t.Fatal("scene not done after disconnect")
	}
	f := h.sink.last()
	if f.Stats.State != network.StateDisconnected || len(f.Remotes) != 0 {
		t.Fatalf("frame = %+v", f)
	}
	if n := len(inputs(h.link.takeSent())); n != 0 {
		t.Fatalf("sent %d inputs after disconnect", n)
	}
}

func TestRenderInterpolatesBetweenUpdates(t *testing.T) {
	h := newHarness(systems.InputFunc(func() systems.InputState { return systems.InputState{} }))
	h.join(t)

	h.link.deliver(t, messages.WorldSnapshot{ServerTick: 101, Entities: []messages.EntitySnapshot{{ID: 8, Kind: messages.KindNPC, X: 0}}})
	h.scene.Update()
	h.clock.advanceMS(50)
	h.link.deliver(t, messages.WorldSnapshot{ServerTick: 104, Entities: []messages.EntitySnapshot{{ID: 8, Kind: messages.KindNPC, X: 1000}}})
	h.scene.Update()
	h.link.takeSent()

	h.clock.advanceMS(75)
	h.scene.Render()
	first := h.sink.last().Remotes[0]
	if !first.Visible || first.X != 5 {
		t.Fatalf("remote at first render = %+v", first)
	}
	h.clock.advanceMS(15)
	h.scene.Render()
	if second := h.sink.last().Remotes[0]; second.X <= first.X {
		t.Fatalf("remote did not advance between renders: %v then %v", first.X, second.X)
	}
	if n := len(h.link.takeSent()); n != 0 {
		t.Fatalf("render sent %d datagrams", n)
	}
}

func TestSilentServerRestartsHandshake(t *testing.T) {
	h := newHarness(systems.InputFunc(func() systems.InputState { return systems.InputState{} }))
	h.join(t)
	h.link.deliver(t, messages.WorldSnapshot{ServerTick: 500, Entities: []messages.EntitySnapshot{{ID: 7, X: 100}, {ID: 8, Kind: messages.KindNPC}}})
	h.scene.Update()

	for i := 0; i < 3; i++ {
		h.clock.advance(time.Second)
		h.scene.Update()
	}
	if f := h.sink.last(); f.Stats.State != network.StateJoinedGame {
		t.Fatalf("gave up before the timeout: %s", f.Stats.State)
	}
	h.link.takeSent()

	h.clock.advance(time.Second)
	h.scene.Update()
	f := h.sink.last()
	if f.Stats.State != network.StateHandshaking || f.Stats.Resyncs != 1 || len(f.Remotes) != 0 || f.Local.Known {
		t.Fatalf("frame after timeout = %+v", f)
	}
	if sent := h.link.takeSent(); len(sent) != 1 || sent[0] != (messages.Hello{ProtocolVersion: netconfig.ProtocolVersion, Nonce: 42}) {
		t.Fatalf("sent %#v", sent)
	}

	// The restarted server counts ticks from zero again.
	h.link.deliver(t,
		messages.Hello{ProtocolVersion: netconfig.ProtocolVersion, Nonce: 42},
		messages.JoinAccepted{EntityID: 3, ServerTick: 4, SimulationHz: netconfig.SimulationHz},
		messages.WorldSnapshot{ServerTick: 6, Entities: []messages.EntitySnapshot{{ID: 3, X: 2000, Y: 2000}}},
	)
	h.scene.Update()
	f = h.sink.last()
	if f.Stats.State != network.StateJoinedGame || f.Stats.StaleSnapshots != 0 || f.Stats.ServerTick != 6 {
		t.Fatalf("stats after rejoin = %+v", f.Stats)
	}
	if !f.Local.Known || f.Local.EntityID != 3 || f.Local.X != 20 {
		t.Fatalf("local after rejoin = %+v", f.Local)
	}
}
