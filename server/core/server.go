// Package core is the authoritative reference server for the sync protocol.
// It accepts datagrams over UDP and WebSocket, applies each client's inputs
// with the shared integration formula and broadcasts snapshots.
package core

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sort"
	"sync/atomic"
	"time"

	"github.com/automoto/doomerang-netsync/shared/gamemath"
	"github.com/automoto/doomerang-netsync/shared/leveldata"
	"github.com/automoto/doomerang-netsync/shared/messages"
	"github.com/automoto/doomerang-netsync/shared/netconfig"
	"github.com/automoto/doomerang-netsync/shared/protocol"
	"github.com/automoto/doomerang-netsync/shared/quantize"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 2 * time.Second

// Options tune the simulation and session policy.
type Options struct {
	SimulationHz   int
	SnapshotHz     int
	NPCCount       int
	MaxPlayers     int
	SessionTimeout time.Duration
}

func DefaultOptions() Options {
	return Options{
		SimulationHz:   netconfig.SimulationHz,
		SnapshotHz:     netconfig.SnapshotHz,
		NPCCount:       4,
		MaxPlayers:     32,
		SessionTimeout: 10 * time.Second,
	}
}

// Server owns the world and every session. All state except the metrics and
// listener handles is confined to the game loop goroutine.
type Server struct {
	log     *zap.Logger
	opts    Options
	world   *World
	loop    *GameLoop
	metrics *Metrics

	sessions map[string]*session
	inbound  chan packet
	tick     uint32

	udpConn *net.UDPConn
	httpLn  net.Listener
	wsSeq   atomic.Uint64
	stopped chan struct{}
}

func NewServer(level *leveldata.WorldData, opts Options, logger *zap.Logger) *Server {
	def := DefaultOptions()
	if opts.SimulationHz <= 0 {
		opts.SimulationHz = def.SimulationHz
	}
	if opts.SnapshotHz <= 0 || opts.SnapshotHz > opts.SimulationHz {
		opts.SnapshotHz = min(def.SnapshotHz, opts.SimulationHz)
	}
	if opts.NPCCount < 0 {
		opts.NPCCount = 0
	}
	if opts.MaxPlayers <= 0 {
		opts.MaxPlayers = def.MaxPlayers
	}
	if opts.SessionTimeout <= 0 {
		opts.SessionTimeout = def.SessionTimeout
	}
	if level == nil {
		level = leveldata.Default()
	}
	log := logger.Named("server")

	players, npcs, loot := fitSnapshot(opts.MaxPlayers, opts.NPCCount, len(level.Loot))
	if players != opts.MaxPlayers || npcs != opts.NPCCount || loot != len(level.Loot) {
		log.Warn("world reduced to fit one snapshot datagram",
			zap.Int("maxPlayers", players),
			zap.Int("npcs", npcs),
			zap.Int("loot", loot),
			zap.Int("maxDatagram", netconfig.MaxDatagramSize))
		trimmed := *level
		trimmed.Loot = level.Loot[:loot]
		level = &trimmed
		opts.MaxPlayers, opts.NPCCount = players, npcs
	}

	params := gamemath.DefaultMoveParams()
	params.SimulationHz = int64(opts.SimulationHz)

	s := &Server{
		log:      log,
		opts:     opts,
		world:    NewWorld(level, params, opts.NPCCount),
		metrics:  &Metrics{},
		sessions: make(map[string]*session),
		inbound:  make(chan packet, netconfig.InboundQueueSize),
		stopped:  make(chan struct{}),
	}
	s.loop = NewGameLoop(s, opts.SimulationHz)
	return s
}

func (s *Server) Metrics() *Metrics { return s.metrics }
func (s *Server) World() *World     { return s.world }

// Handler serves the WebSocket endpoint and the diagnostics.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/metrics", s.metrics.HandleMetrics)
	mux.HandleFunc("/healthz", handleHealthz)
	return mux
}

// Listen binds the UDP and HTTP listeners. An empty address skips that listener.
func (s *Server) Listen(udpAddr, httpAddr string) error {
	if udpAddr != "" {
		addr, err := net.ResolveUDPAddr("udp", udpAddr)
		if err != nil {
			return fmt.Errorf("resolve %s: %w", udpAddr, err)
		}
		conn, err := net.ListenUDP("udp", addr)
		if err != nil {
			return fmt.Errorf("listen udp %s: %w", udpAddr, err)
		}
		s.udpConn = conn
	}
	if httpAddr != "" {
		ln, err := net.Listen("tcp", httpAddr)
		if err != nil {
			if s.udpConn != nil {
				_ = s.udpConn.Close()
			}
			return fmt.Errorf("listen http %s: %w", httpAddr, err)
		}
		s.httpLn = ln
	}
	return nil
}

// UDPAddr is the bound UDP address, or nil.
func (s *Server) UDPAddr() net.Addr {
	if s.udpConn == nil {
		return nil
	}
	return s.udpConn.LocalAddr()
}

// HTTPAddr is the bound HTTP address, or nil.
func (s *Server) HTTPAddr() net.Addr {
	if s.httpLn == nil {
		return nil
	}
	return s.httpLn.Addr()
}

// Serve runs the listeners and the game loop until ctx is done or one fails.
func (s *Server) Serve(ctx context.Context) error {
	defer close(s.stopped)
	g, ctx := errgroup.WithContext(ctx)

	if s.udpConn != nil {
		g.Go(func() error { return s.serveUDP(ctx, s.udpConn) })
	}
	if s.httpLn != nil {
		srv := &http.Server{Handler: s.Handler(), ReadHeaderTimeout: 5 * time.Second}
		g.Go(func() error {
			s.log.Info("http listening", zap.Stringer("addr", s.httpLn.Addr()))
			if err := srv.Serve(s.httpLn); !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(sctx)
		})
	}
	g.Go(func() error { return s.loop.Run(ctx) })
	return g.Wait()
}

func (s *Server) send(p peer, m messages.Message) {
	b, err := protocol.Encode(m)
	if err != nil {
		s.log.Error("encode failed", zap.Stringer("tag", m.Tag()), zap.Error(err))
		return
	}
	if err := p.Send(b); err != nil {
		s.metrics.SendErrors.Add(1)
		s.log.Debug("send failed", zap.String("peer", p.Key()), zap.Error(err))
	}
}

// handle applies one inbound packet.
func (s *Server) handle(pkt packet, now time.Time) {
	key := pkt.from.Key()
	sess := s.sessions[key]
	if pkt.left {
		if sess != nil {
			s.remove(key, sess, "connection closed")
		}
		return
	}

	s.metrics.Datagrams.Add(1)
	msg, err := protocol.Decode(pkt.data)
	if err != nil {
		s.metrics.Malformed.Add(1)
		s.log.Debug("malformed datagram", zap.String("peer", key), zap.Error(err))
		return
	}

	switch m := msg.(type) {
	case messages.Hello:
		s.onHello(key, sess, pkt.from, m, now)
	case messages.JoinRequest:
		if sess == nil {
			s.log.Debug("join before hello", zap.String("peer", key))
			return
		}
		sess.touch(now)
		s.onJoin(key, sess, m)
	case messages.InputCommand:
		if sess == nil || !sess.joined {
			return
		}
		sess.touch(now)
		if m.Sequence <= sess.lastProcessed {
			s.metrics.InputsStale.Add(1)
			return
		}
		if !sess.queue(m) {
			s.metrics.InputsOverflow.Add(1)
		}
	case messages.Disconnect:
		if sess != nil {
			s.metrics.Disconnects.Add(1)
			s.remove(key, sess, "client left")
		}
	default:
		s.log.Debug("ignoring message", zap.String("peer", key), zap.Stringer("tag", msg.Tag()))
	}
}

func (s *Server) onHello(key string, sess *session, p peer, m messages.Hello, now time.Time) {
	if m.ProtocolVersion != netconfig.ProtocolVersion {
		s.metrics.Rejected.Add(1)
		s.log.Info("protocol mismatch", zap.String("peer", key), zap.Uint16("version", m.ProtocolVersion))
		s.send(p, messages.Disconnect{Reason: messages.ReasonKicked})
		return
	}
	// A new nonce from a joined peer is a restarted client.
	if sess != nil && sess.joined && sess.nonce != m.Nonce {
		s.remove(key, sess, "client restarted")
		sess = nil
	}
	if sess == nil {
		sess = newSession(p, m.Nonce, now)
		s.sessions[key] = sess
		s.metrics.Sessions.Store(int64(len(s.sessions)))
		s.log.Debug("session opened", zap.String("peer", key))
	}
	sess.nonce = m.Nonce
	sess.touch(now)
	s.send(p, messages.Hello{ProtocolVersion: netconfig.ProtocolVersion, Nonce: m.Nonce})
}

func (s *Server) onJoin(key string, sess *session, m messages.JoinRequest) {
	if !sess.joined {
		if s.players() >= s.opts.MaxPlayers {
			s.metrics.Rejected.Add(1)
			s.send(sess.peer, messages.Disconnect{Reason: messages.ReasonKicked})
			s.remove(key, sess, "server full")
			return
		}
		b := s.world.Bounds()
		sess.entityID = s.world.SpawnPlayer()
		sess.joined = true
		sess.name = m.CharacterName
		sess.accepted = messages.JoinAccepted{
			EntityID:     sess.entityID,
			ServerTick:   s.tick,
			SimulationHz: uint16(s.opts.SimulationHz),
			SnapshotHz:   uint16(s.opts.SnapshotHz),
			BoundsMaxX:   quantize.MilliToPosition(b.MaxX),
			BoundsMaxY:   quantize.MilliToPosition(b.MaxY),
		}
		s.metrics.Joins.Add(1)
		s.log.Info("player joined",
			zap.String("peer", key),
			zap.Uint32("entity", sess.entityID),
			zap.String("character", m.CharacterName),
			zap.String("class", m.ClassName))
	}
	// Repeated requests get the same answer.
	s.send(sess.peer, sess.accepted)
}

func (s *Server) players() int {
	n := 0
	for _, sess := range s.sessions {
		if sess.joined {
			n++
		}
	}
	return n
}

func (s *Server) remove(key string, sess *session, reason string) {
	delete(s.sessions, key)
	if sess.joined {
		s.world.Remove(sess.entityID)
	}
	s.metrics.Sessions.Store(int64(len(s.sessions)))
	s.log.Info("session closed",
		zap.String("peer", key),
		zap.Uint32("entity", sess.entityID),
		zap.String("reason", reason))
}

// fitSnapshot lowers loot, then NPCs, then the player cap until a snapshot of
// the fullest possible world fits one datagram. At least one player always fits.
func fitSnapshot(players, npcs, loot int) (int, int, int) {
	fits := func(p, n, l int) bool {
		return protocol.SnapshotSize(p+n+l, p*netconfig.AbilitySlots) <= netconfig.MaxDatagramSize
	}
	for loot > 0 && !fits(1, 0, loot) {
		loot--
	}
	for npcs > 0 && !fits(1, npcs, loot) {
		npcs--
	}
	for players > 1 && !fits(players, npcs, loot) {
		players--
	}
	return players, npcs, loot
}

// sortedSessions returns joined sessions ordered by entity id so input
// application is deterministic.
func (s *Server) sortedSessions() []*session {
	out := make([]*session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		if sess.joined {
			out = append(out, sess)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].entityID < out[j].entityID })
	return out
}

// step runs one simulation tick.
func (s *Server) step(now time.Time) {
	s.tick++

	for key, sess := range s.sessions {
		if now.Sub(sess.lastSeen) > s.opts.SessionTimeout {
			s.metrics.Timeouts.Add(1)
			s.send(sess.peer, messages.Disconnect{Reason: messages.ReasonTimeout})
			s.remove(key, sess, "timeout")
		}
	}

	joined := s.sortedSessions()
	for _, sess := range joined {
		s.applyInputs(sess)
	}
	s.world.Step(uint16(1000 / s.opts.SimulationHz))

	if s.tick%uint32(s.opts.SimulationHz/s.opts.SnapshotHz) == 0 {
		s.broadcast(joined)
	}
}

// applyInputs applies queued commands once each, in sequence order.
func (s *Server) applyInputs(sess *session) {
	if len(sess.inputs) == 0 {
		return
	}
	sort.Slice(sess.inputs, func(i, j int) bool { return sess.inputs[i].Sequence < sess.inputs[j].Sequence })
	for _, cmd := range sess.inputs {
		if cmd.Sequence <= sess.lastProcessed {
			s.metrics.InputsStale.Add(1)
			continue
		}
		s.world.ApplyInput(sess.entityID, cmd)
		sess.lastProcessed = cmd.Sequence
		s.metrics.InputsApplied.Add(1)
	}
	sess.inputs = sess.inputs[:0]
}

func (s *Server) broadcast(joined []*session) {
	ents := s.world.Snapshot()
	for _, sess := range joined {
		b, err := protocol.Encode(messages.WorldSnapshot{
			ServerTick:         s.tick,
			LastProcessedInput: sess.lastProcessed,
			Entities:           ents,
		})
		if err != nil {
			s.metrics.SnapshotErrors.Add(1)
			if s.metrics.SnapshotFailStreak.Add(1) == 1 {
				s.log.Warn("snapshots failing, clients get no updates", zap.Int("entities", len(ents)), zap.Error(err))
			}
			return
		}
		if streak := s.metrics.SnapshotFailStreak.Swap(0); streak > 0 {
			s.log.Info("snapshots recovered", zap.Int64("failedBroadcasts", streak))
		}
		if err := sess.peer.Send(b); err != nil {
			s.metrics.SendErrors.Add(1)
			continue
		}
		s.metrics.SnapshotsSent.Add(1)
	}
}

// shutdown tells every peer the server is going away.
func (s *Server) shutdown() {
	for key, sess := range s.sessions {
		s.send(sess.peer, messages.Disconnect{Reason: messages.ReasonServerShutdown})
		s.remove(key, sess, "shutdown")
	}
}
