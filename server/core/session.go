package core

import (
	"time"

	"github.com/automoto/doomerang-netsync/shared/messages"
)

// maxQueuedInputs bounds inputs buffered between two ticks.
const maxQueuedInputs = 128

type session struct {
	peer     peer
	nonce    uint32
	name     string
	joined   bool
	entityID uint32
	accepted messages.JoinAccepted
	lastSeen time.Time

	lastProcessed uint32
	inputs        []messages.InputCommand
}

func newSession(p peer, nonce uint32, now time.Time) *session {
	return &session{peer: p, nonce: nonce, lastSeen: now}
}

func (s *session) touch(now time.Time) { s.lastSeen = now }

func (s *session) queue(cmd messages.InputCommand) bool {
	if len(s.inputs) >= maxQueuedInputs {
		return false
	}
	s.inputs = append(s.inputs, cmd)
	return true
}
