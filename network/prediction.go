package network

import (
	"sort"

	"github.com/automoto/doomerang-netsync/shared/messages"
)

// PendingInput is one locally applied input the server has not acknowledged.
type PendingInput struct {
	Sequence uint32
	Tick     uint32
	MoveX    int16
	MoveY    int16
	Actions  messages.ActionFlags
}

// PendingInputLog keeps unacknowledged inputs in ascending sequence order for
// server reconciliation. It is bounded: if the server stops acknowledging,
// the oldest entries are evicted and the next snapshot corrects the drift.
type PendingInputLog struct {
	entries  []PendingInput
	capacity int
	evicted  uint64
}

// NewPendingInputLog creates a log holding at most capacity entries.
func NewPendingInputLog(capacity int) *PendingInputLog {
	if capacity < 1 {
		capacity = 1
	}
	return &PendingInputLog{
		entries:  make([]PendingInput, 0, capacity),
		capacity: capacity,
	}
}

// Append records an input. Sequences must increase; an entry that does not
// is ignored and Append returns false.
func (l *PendingInputLog) Append(in PendingInput) bool {
	if n := len(l.entries); n > 0 && in.Sequence <= l.entries[n-1].Sequence {
		return false
	}
	if len(l.entries) == l.capacity {
		copy(l.entries, l.entries[1:])
		l.entries = l.entries[:len(l.entries)-1]
		l.evicted++
	}
	l.entries = append(l.entries, in)
	return true
}

// Prune removes every entry with Sequence <= ack and returns how many were
// removed. Pruning the same ack twice is a no-op.
func (l *PendingInputLog) Prune(ack uint32) int {
	i := sort.Search(len(l.entries), func(i int) bool {
		return l.entries[i].Sequence > ack
	})
	if i == 0 {
		return 0
	}
	n := copy(l.entries, l.entries[i:])
	l.entries = l.entries[:n]
	return i
}

// Clear drops every pending input.
func (l *PendingInputLog) Clear() {
	l.entries = l.entries[:0]
}

// Entries returns the pending inputs in ascending sequence order. The slice
// is only valid until the next Append or Prune.
func (l *PendingInputLog) Entries() []PendingInput {
	return l.entries
}

// Len returns the number of pending inputs.
func (l *PendingInputLog) Len() int {
	return len(l.entries)
}

// Evicted returns how many entries were dropped for capacity.
func (l *PendingInputLog) Evicted() uint64 {
	return l.evicted
}
