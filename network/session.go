package network

import (
	"time"

	"github.com/automoto/doomerang-netsync/shared/messages"
	"github.com/automoto/doomerang-netsync/shared/netconfig"
)

type SessionState int

const (
	StateDisconnected SessionState = iota
	StateHandshaking
	StateJoining
	StateJoinedGame
)

func (s SessionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateHandshaking:
		return "handshaking"
	case StateJoining:
		return "joining"
	case StateJoinedGame:
		return "joined"
	}
	return "unknown"
}

// Session tracks the Hello/Join handshake. Handshake datagrams can be lost
// like any other, so Poll re-issues the current step until it is answered.
// Owned by the frame driver; not safe for concurrent use.
type Session struct {
	state    SessionState
	nonce    uint32
	join     messages.JoinRequest
	accepted messages.JoinAccepted
	lastSent time.Time
	resend   time.Duration
}

// NewSession prepares a handshake that will join with req.
func NewSession(req messages.JoinRequest, nonce uint32) *Session {
	return &Session{
		join:   req,
		nonce:  nonce,
		resend: netconfig.HandshakeResend,
	}
}

// Begin starts the handshake.
func (s *Session) Begin() {
	s.state = StateHandshaking
	s.lastSent = time.Time{}
}

// Poll returns the message to (re)send at now, or nil.
func (s *Session) Poll(now time.Time) messages.Message {
	if s.state != StateHandshaking && s.state != StateJoining {
		return nil
	}
	if !s.lastSent.IsZero() && now.Sub(s.lastSent) < s.resend {
		return nil
	}
	s.lastSent = now
	if s.state == StateHandshaking {
		return messages.Hello{ProtocolVersion: netconfig.ProtocolVersion, Nonce: s.nonce}
	}
	return s.join
}

// OnHello advances to joining when the server echoes our nonce.
func (s *Session) OnHello(h messages.Hello) bool {
	if s.state != StateHandshaking || h.Nonce != s.nonce {
		return false
	}
	s.state = StateJoining
	s.lastSent = time.Time{}
	return true
}

// OnJoinAccepted completes the handshake. Duplicates after joining are ignored.
func (s *Session) OnJoinAccepted(ja messages.JoinAccepted) bool {
	if s.state != StateJoining && s.state != StateHandshaking {
		return false
	}
	s.accepted = ja
	s.state = StateJoinedGame
	return true
}

// OnDisconnect ends the session.
func (s *Session) OnDisconnect() {
	s.state = StateDisconnected
}

func (s *Session) State() SessionState             { return s.state }
func (s *Session) Accepted() messages.JoinAccepted { return s.accepted }

// EntityID returns the local entity id once joined.
func (s *Session) EntityID() (uint32, bool) {
	if s.state != StateJoinedGame {
		return 0, false
	}
	return s.accepted.EntityID, true
}
