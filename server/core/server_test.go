package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/automoto/doomerang-netsync/network"
	"github.com/automoto/doomerang-netsync/shared/leveldata"
	"github.com/automoto/doomerang-netsync/shared/messages"
	"github.com/automoto/doomerang-netsync/shared/netconfig"
	"github.com/automoto/doomerang-netsync/shared/protocol"
	"go.uber.org/zap"
)

var t0 = time.Unix(1_700_000_000, 0)

type memPeer struct {
	key string

	mu   sync.Mutex
	sent []messages.Message
	fail bool
}

func (p *memPeer) Key() string { return p.key }

func (p *memPeer) Send(b []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail {
		return errors.New("peer gone")
	}
	m, err := protocol.Decode(b)
	if err != nil {
		return err
	}
	p.sent = append(p.sent, m)
	return nil
}

func (p *memPeer) take() []messages.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := p.sent
	p.sent = nil
	return s
}

func newTestServer(opts Options) *Server {
	return NewServer(leveldata.Default(), opts, zap.NewNop())
}

func deliver(t *testing.T, s *Server, p peer, m messages.Message, now time.Time) {
	t.Helper()
	b, err := protocol.Encode(m)
	if err != nil {
		t.Fatalf("encode %T: %v", m, err)
	}
	s.handle(packet{from: p, data: b}, now)
}

func hello(nonce uint32) messages.Hello {
	return messages.Hello{ProtocolVersion: netconfig.ProtocolVersion, Nonce: nonce}
}

// joinPeer runs the handshake for p and returns the acceptance.
func joinPeer(t *testing.T, s *Server, p *memPeer, now time.Time) messages.JoinAccepted {
	t.Helper()
	deliver(t, s, p, hello(1), now)
	deliver(t, s, p, messages.JoinRequest{CharacterName: "Ash"}, now)
	sent := p.take()
	if len(sent) != 2 {
		t.Fatalf("handshake replies = %#v", sent)
	}
	acc, ok := sent[1].(messages.JoinAccepted)
	if !ok {
		t.Fatalf("second reply = %#v", sent[1])
	}
	return acc
}

func snapshots(msgs []messages.Message) []messages.WorldSnapshot {
	var out []messages.WorldSnapshot
	for _, m := range msgs {
		if s, ok := m.(messages.WorldSnapshot); ok {
			out = append(out, s)
		}
	}
	return out
}

func TestHandshake(t *testing.T) {
	s := newTestServer(Options{})
	p := &memPeer{key: "a"}

	deliver(t, s, p, hello(9), t0)
	if sent := p.take(); len(sent) != 1 || sent[0] != hello(9) {
		t.Fatalf("hello reply = %#v", sent)
	}

	deliver(t, s, p, messages.JoinRequest{CharacterName: "Ash", ClassName: "Ranger"}, t0)
	want := messages.JoinAccepted{
		EntityID: 1, SimulationHz: 60, SnapshotHz: 20,
		BoundsMaxX: 32000, BoundsMaxY: 32000,
	}
	if sent := p.take(); len(sent) != 1 || sent[0] != want {
		t.Fatalf("join reply = %#v", sent)
	}

	s.step(t0)
	deliver(t, s, p, messages.JoinRequest{CharacterName: "Ash"}, t0)
	if sent := p.take(); len(sent) != 1 || sent[0] != want {
		t.Fatalf("repeated join reply = %#v", sent)
	}
	if s.metrics.Joins.Load() != 1 || s.world.Len() != 1 {
		t.Fatalf("joins=%d entities=%d", s.metrics.Joins.Load(), s.world.Len())
	}
}

func TestHandshakeRejectsOtherVersion(t *testing.T) {
	s := newTestServer(Options{})
	p := &memPeer{key: "a"}
	deliver(t, s, p, messages.Hello{ProtocolVersion: 2, Nonce: 1}, t0)

	sent := p.take()
	if len(sent) != 1 || sent[0] != (messages.Disconnect{Reason: messages.ReasonKicked}) {
		t.Fatalf("reply = %#v", sent)
	}
	if len(s.sessions) != 0 || s.metrics.Rejected.Load() != 1 {
		t.Fatal("session kept after version mismatch")
	}
}

func TestJoinWithoutHelloIsIgnored(t *testing.T) {
	s := newTestServer(Options{})
	p := &memPeer{key: "a"}
	deliver(t, s, p, messages.JoinRequest{CharacterName: "Ash"}, t0)
	if len(p.take()) != 0 || s.world.Len() != 0 {
		t.Fatal("join accepted without hello")
	}
}

func TestServerFull(t *testing.T) {
	s := newTestServer(Options{MaxPlayers: 1})
	joinPeer(t, s, &memPeer{key: "a"}, t0)

	late := &memPeer{key: "b"}
	deliver(t, s, late, hello(2), t0)
	deliver(t, s, late, messages.JoinRequest{}, t0)
	sent := late.take()
	if got := sent[len(sent)-1]; got != (messages.Disconnect{Reason: messages.ReasonKicked}) {
		t.Fatalf("late joiner got %#v", got)
	}
	if s.world.Len() != 1 || len(s.sessions) != 1 {
		t.Fatalf("entities=%d sessions=%d", s.world.Len(), len(s.sessions))
	}
}

func TestInputsAppliedOnceInSequenceOrder(t *testing.T) {
	s := newTestServer(Options{})
	p := &memPeer{key: "a"}
	acc := joinPeer(t, s, p, t0)

	for _, seq := range []uint32{2, 1, 3, 3} {
		deliver(t, s, p, messages.InputCommand{Sequence: seq, MoveX: 1000}, t0)
	}
	s.step(t0)

	pos, _ := s.world.Position(acc.EntityID)
	if pos.X != 160_300 {
		t.Fatalf("x = %d, want three steps applied", pos.X)
	}
	if s.metrics.InputsApplied.Load() != 3 || s.metrics.InputsStale.Load() != 1 {
		t.Fatalf("applied=%d stale=%d", s.metrics.InputsApplied.Load(), s.metrics.InputsStale.Load())
	}

	deliver(t, s, p, messages.InputCommand{Sequence: 2, MoveX: 1000}, t0)
	s.step(t0)
	s.step(t0)
	if pos, _ := s.world.Position(acc.EntityID); pos.X != 160_300 {
		t.Fatalf("stale input moved the player to %d", pos.X)
	}

	snaps := snapshots(p.take())
	if len(snaps) != 1 {
		t.Fatalf("snapshots after 3 ticks = %d", len(snaps))
	}
	snap := snaps[0]
	if snap.ServerTick != 3 || snap.LastProcessedInput != 3 {
		t.Fatalf("snapshot = %+v", snap)
	}
	if e, ok := snap.Find(acc.EntityID); !ok || e.X != 16030 || e.Kind != messages.KindPlayer {
		t.Fatalf("player = %+v", e)
	}
}

func TestInputQueueOverflow(t *testing.T) {
	s := newTestServer(Options{})
	p := &memPeer{key: "a"}
	joinPeer(t, s, p, t0)
	for seq := uint32(1); seq <= maxQueuedInputs+5; seq++ {
		deliver(t, s, p, messages.InputCommand{Sequence: seq}, t0)
	}
	if s.metrics.InputsOverflow.Load() != 5 {
		t.Fatalf("overflow = %d", s.metrics.InputsOverflow.Load())
	}
}

func TestSnapshotsCarryEveryEntity(t *testing.T) {
	s := newTestServer(Options{NPCCount: 2})
	a, b := &memPeer{key: "a"}, &memPeer{key: "b"}
	joinPeer(t, s, a, t0)
	joinPeer(t, s, b, t0)
	deliver(t, s, b, messages.InputCommand{Sequence: 4}, t0)

	for i := 0; i < 3; i++ {
		s.step(t0)
	}
	sa, sb := snapshots(a.take()), snapshots(b.take())
	if len(sa) != 1 || len(sb) != 1 {
		t.Fatalf("snapshots a=%d b=%d", len(sa), len(sb))
	}
	if len(sa[0].Entities) != 4 || sa[0].LastProcessedInput != 0 || sb[0].LastProcessedInput != 4 {
		t.Fatalf("a=%+v b=%+v", sa[0], sb[0])
	}
}

func TestIdleSessionsTimeOut(t *testing.T) {
	s := newTestServer(Options{SessionTimeout: time.Second})
	p := &memPeer{key: "a"}
	joinPeer(t, s, p, t0)

	s.step(t0.Add(500 * time.Millisecond))
	if len(s.sessions) != 1 {
		t.Fatal("session dropped early")
	}
	s.step(t0.Add(1500 * time.Millisecond))
	sent := p.take()
	if len(sent) == 0 || sent[len(sent)-1] != (messages.Disconnect{Reason: messages.ReasonTimeout}) {
		t.Fatalf("sent = %#v", sent)
	}
	if len(s.sessions) != 0 || s.world.Len() != 0 || s.metrics.Timeouts.Load() != 1 {
		t.Fatal("timed out session not removed")
	}
}

func TestDisconnectAndLeave(t *testing.T) {
	s := newTestServer(Options{})
	a, b := &memPeer{key: "a"}, &memPeer{key: "b"}
	joinPeer(t, s, a, t0)
	joinPeer(t, s, b, t0)

	deliver(t, s, a, messages.Disconnect{Reason: messages.ReasonClientQuit}, t0)
	s.handle(packet{from: b, left: true}, t0)
	if len(s.sessions) != 0 || s.world.Len() != 0 {
		t.Fatalf("sessions=%d entities=%d", len(s.sessions), s.world.Len())
	}
	if s.metrics.Disconnects.Load() != 1 {
		t.Fatalf("disconnects = %d", s.metrics.Disconnects.Load())
	}
}

func TestRestartedClientGetsNewEntity(t *testing.T) {
	s := newTestServer(Options{})
	p := &memPeer{key: "a"}
	first := joinPeer(t, s, p, t0)

	deliver(t, s, p, hello(77), t0)
	deliver(t, s, p, messages.JoinRequest{}, t0)
	sent := p.take()
	acc, ok := sent[len(sent)-1].(messages.JoinAccepted)
	if !ok || acc.EntityID == first.EntityID || s.world.Len() != 1 {
		t.Fatalf("rejoin = %#v entities=%d", sent, s.world.Len())
	}
}

func TestMalformedAndSendFailures(t *testing.T) {
	s := newTestServer(Options{})
	p := &memPeer{key: "a"}
	s.handle(packet{from: p, data: []byte{0x7f}}, t0)
	s.handle(packet{from: p, data: nil}, t0)
	if s.metrics.Malformed.Load() != 2 || s.metrics.Datagrams.Load() != 2 {
		t.Fatalf("malformed=%d", s.metrics.Malformed.Load())
	}

	p.fail = true
	deliver(t, s, p, hello(1), t0)
	if s.metrics.SendErrors.Load() != 1 {
		t.Fatalf("send errors = %d", s.metrics.SendErrors.Load())
	}
}

func TestShutdownNotifiesPeers(t *testing.T) {
	s := newTestServer(Options{})
	p := &memPeer{key: "a"}
	joinPeer(t, s, p, t0)
	s.shutdown()
	if sent := p.take(); len(sent) != 1 || sent[0] != (messages.Disconnect{Reason: messages.ReasonServerShutdown}) {
		t.Fatalf("sent = %#v", sent)
	}
	if len(s.sessions) != 0 {
		t.Fatal("sessions survived shutdown")
	}
}

// receive reads datagrams from tr until match accepts one.
func receive(t *testing.T, tr network.Transport, match func(messages.Message) bool) messages.Message {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	for {
		b, err := tr.Receive(ctx)
		if err != nil {
			t.Fatalf("receive: %v", err)
		}
		m, err := protocol.Decode(b)
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if match(m) {
			return m
		}
	}
}

func sendMsg(t *testing.T, tr network.Transport, m messages.Message) {
	t.Helper()
	b, err := protocol.Encode(m)
	if err != nil {
		t.Fatal(err)
	}
	if err := tr.Send(b); err != nil {
		t.Fatal(err)
	}
}

func startServer(t *testing.T) (*Server, context.CancelFunc, <-chan error) {
	t.Helper()
	s := newTestServer(Options{NPCCount: 1})
	if err := s.Listen("127.0.0.1:0", "127.0.0.1:0"); err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx) }()
	t.Cleanup(cancel)
	return s, cancel, done
}

func isTag(tag messages.Tag) func(messages.Message) bool {
	return func(m messages.Message) bool { return m.Tag() == tag }
}

func playSession(t *testing.T, tr network.Transport) {
	t.Helper()
	sendMsg(t, tr, hello(5))
	if m := receive(t, tr, isTag(messages.TagHello)); m != hello(5) {
		t.Fatalf("hello = %#v", m)
	}
	sendMsg(t, tr, messages.JoinRequest{CharacterName: "Ash"})
	acc := receive(t, tr, isTag(messages.TagJoinAccepted)).(messages.JoinAccepted)

	sendMsg(t, tr, messages.InputCommand{Sequence: 1, MoveX: 1000})
	snap := receive(t, tr, func(m messages.Message) bool {
		s, ok := m.(messages.WorldSnapshot)
		return ok && s.LastProcessedInput == 1
	}).(messages.WorldSnapshot)
	if e, ok := snap.Find(acc.EntityID); !ok || e.X != 16010 {
		t.Fatalf("player = %+v", e)
	}
	if len(snap.Entities) != 2 {
		t.Fatalf("entities = %+v", snap.Entities)
	}
}

func TestUDPEndToEnd(t *testing.T) {
	s, cancel, done := startServer(t)
	tr, err := network.DialUDP(s.UDPAddr().String())
	if err != nil {
		t.Fatal(err)
	}
	defer tr.Close()
	playSession(t, tr)

	resp, err := http.Get("http://" + s.HTTPAddr().String() + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var m map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&m); err != nil {
		t.Fatal(err)
	}
	if m["joins"] != float64(1) || m["sessions"] != float64(1) {
		t.Fatalf("metrics = %v", m)
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("serve: %v", err)
	}
}

func TestWebSocketEndToEnd(t *testing.T) {
	s, cancel, done := startServer(t)
	ctx, stop := context.WithTimeout(context.Background(), 3*time.Second)
	defer stop()
	tr, err := network.DialWebSocket(ctx, "ws://"+s.HTTPAddr().String()+"/ws")
	if err != nil {
		t.Fatal(err)
	}
	defer tr.Close()
	playSession(t, tr)

	cancel()
	if m := receive(t, tr, isTag(messages.TagDisconnect)); m != (messages.Disconnect{Reason: messages.ReasonServerShutdown}) {
		t.Fatalf("disconnect = %#v", m)
	}
	if err := <-done; err != nil {
		t.Fatalf("serve: %v", err)
	}
}

func TestWorldLimitedToOneSnapshot(t *testing.T) {
	s := newTestServer(Options{NPCCount: 40, MaxPlayers: 32})
	if s.opts.MaxPlayers != 22 || s.opts.NPCCount != 40 {
		t.Fatalf("maxPlayers=%d npcs=%d", s.opts.MaxPlayers, s.opts.NPCCount)
	}

	peers := make([]*memPeer, 32)
	joined := 0
	for i := range peers {
		peers[i] = &memPeer{key: fmt.Sprintf("p%d", i)}
		deliver(t, s, peers[i], hello(uint32(i+1)), t0)
		deliver(t, s, peers[i], messages.JoinRequest{}, t0)
		if _, ok := peers[i].take()[1].(messages.JoinAccepted); ok {
			joined++
		}
	}
	if joined != 22 {
		t.Fatalf("joined = %d", joined)
	}

	for i := 0; i < 30; i++ {
		s.step(t0)
	}
	for i, p := range peers[:joined] {
		snaps := snapshots(p.take())
		if len(snaps) != 10 || len(snaps[0].Entities) != 62 {
			t.Fatalf("peer %d got %d snapshots", i, len(snaps))
		}
	}
	if s.metrics.SnapshotErrors.Load() != 0 {
		t.Fatalf("snapshot errors = %d", s.metrics.SnapshotErrors.Load())
	}
}

func TestNPCsTrimmedToLeaveRoomForAPlayer(t *testing.T) {
	s := newTestServer(Options{NPCCount: 100})
	if s.opts.MaxPlayers != 1 || s.opts.NPCCount != 72 || s.world.Len() != 72 {
		t.Fatalf("maxPlayers=%d npcs=%d entities=%d", s.opts.MaxPlayers, s.opts.NPCCount, s.world.Len())
	}
}

func TestOversizedSnapshotReportedUntilRecovered(t *testing.T) {
	s := newTestServer(Options{})
	p := &memPeer{key: "a"}
	joinPeer(t, s, p, t0)

	var extra []uint32
	for i := 0; i < 60; i++ {
		extra = append(extra, s.world.SpawnPlayer())
	}
	for i := 0; i < 6; i++ {
		s.step(t0)
	}
	if got := s.metrics.Snapshot()["snapshot_failing"]; got != int64(2) || len(snapshots(p.take())) != 0 {
		t.Fatalf("snapshot_failing = %v", got)
	}

	for _, id := range extra {
		s.world.Remove(id)
	}
	for i := 0; i < 3; i++ {
		s.step(t0)
	}
	if s.metrics.SnapshotFailStreak.Load() != 0 || len(snapshots(p.take())) != 1 {
		t.Fatal("snapshots did not recover")
	}
}

func TestLeaveWaitsForQueueRoom(t *testing.T) {
	s := newTestServer(Options{})
	for i := 0; i < cap(s.inbound); i++ {
		s.enqueue(packet{from: &memPeer{key: "spam"}, data: []byte{0x01}})
	}
	s.enqueue(packet{from: &memPeer{key: "spam"}})
	if s.metrics.InboundDropped.Load() != 1 {
		t.Fatalf("dropped = %d", s.metrics.InboundDropped.Load())
	}

	gone := &memPeer{key: "gone"}
	done := make(chan struct{})
	go func() {
		s.leave(gone)
		close(done)
	}()
	for i := 0; i < cap(s.inbound); i++ {
		<-s.inbound
	}
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("leave notice never queued")
	}
	if pkt := <-s.inbound; !pkt.left || pkt.from != peer(gone) {
		t.Fatalf("queued %+v", pkt)
	}
}

func TestLeaveReturnsAfterStop(t *testing.T) {
	s := newTestServer(Options{})
	for i := 0; i < cap(s.inbound); i++ {
		s.enqueue(packet{from: &memPeer{key: "spam"}})
	}
	close(s.stopped)
	s.leave(&memPeer{key: "gone"})
}
