// Package protocol implements the binary wire codec. Every datagram starts
// with a one-byte messages.Tag followed by fixed-width little-endian fields in
// declared order and length-prefixed strings last.
//
// Messages that grew fields over time are decoded by probing the remaining
// buffer before each optional group, never by a version number, so datagrams
// from older senders still decode.
package protocol

import (
	"errors"
	"fmt"
	"math"

	"github.com/automoto/doomerang-netsync/shared/messages"
	"github.com/automoto/doomerang-netsync/shared/netconfig"
)

var (
	ErrEmpty      = errors.New("protocol: empty datagram")
	ErrUnknownTag = errors.New("protocol: unknown message tag")
	ErrTruncated  = errors.New("protocol: truncated message")
	ErrMalformed  = errors.New("protocol: malformed message")
	ErrTooLarge   = errors.New("protocol: message too large")
)

const (
	entityFixedSize = 4 + 1 + 2 + 2 + 2 + 2 + 2 + 1
	snapshotHeader  = 1 + 4 + 4 + 2
)

// SnapshotSize is the encoded size of a snapshot holding entities records
// with cooldowns values between them.
func SnapshotSize(entities, cooldowns int) int {
	return snapshotHeader + entities*entityFixedSize + 2*cooldowns
}

// Encode serializes m. It fails only for values the layout cannot carry.
func Encode(m messages.Message) ([]byte, error) {
	var w *writer
	switch v := m.(type) {
	case messages.Hello:
		w = newWriter(7)
		w.u8(uint8(messages.TagHello))
		w.u16(v.ProtocolVersion)
		w.u32(v.Nonce)
	case messages.JoinRequest:
		w = newWriter(64)
		w.u8(uint8(messages.TagJoinRequest))
		w.str(v.CharacterName)
		w.str(v.AccountName)
		w.i32(v.AccountID)
		w.str(v.SessionToken)
		w.str(v.ClassName)
		w.str(v.SpecName)
	case messages.JoinAccepted:
		w = newWriter(17)
		w.u8(uint8(messages.TagJoinAccepted))
		w.u32(v.EntityID)
		w.u32(v.ServerTick)
		w.u16(v.SimulationHz)
		w.u16(v.SnapshotHz)
		w.i16(v.BoundsMaxX)
		w.i16(v.BoundsMaxY)
	case messages.InputCommand:
		w = newWriter(15)
		w.u8(uint8(messages.TagInput))
		w.u32(v.Sequence)
		w.u32(v.ClientTick)
		w.i16(v.MoveX)
		w.i16(v.MoveY)
		w.u16(uint16(v.Actions))
	case messages.WorldSnapshot:
		var err error
		if w, err = encodeSnapshot(v); err != nil {
			return nil, err
		}
	case messages.Disconnect:
		w = newWriter(2)
		w.u8(uint8(messages.TagDisconnect))
		w.u8(uint8(v.Reason))
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownTag, m)
	}

	b, err := w.bytes()
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", m.Tag(), err)
	}
	if len(b) > netconfig.MaxDatagramSize {
		return nil, fmt.Errorf("encode %s: %w: %d bytes exceeds %d", m.Tag(), ErrTooLarge, len(b), netconfig.MaxDatagramSize)
	}
	return b, nil
}

func encodeSnapshot(s messages.WorldSnapshot) (*writer, error) {
	if len(s.Entities) > math.MaxUint16 {
		return nil, fmt.Errorf("encode snapshot: %w: %d entities", ErrTooLarge, len(s.Entities))
	}
	cooldowns := 0
	for _, e := range s.Entities {
		if len(e.Cooldowns) > math.MaxUint8 {
			return nil, fmt.Errorf("encode snapshot: %w: entity %d has %d cooldowns", ErrTooLarge, e.ID, len(e.Cooldowns))
		}
		cooldowns += len(e.Cooldowns)
	}
	size := SnapshotSize(len(s.Entities), cooldowns)

	w := newWriter(size)
	w.u8(uint8(messages.TagSnapshot))
	w.u32(s.ServerTick)
	w.u32(s.LastProcessedInput)
	w.u16(uint16(len(s.Entities)))
	for _, e := range s.Entities {
		w.u32(e.ID)
		w.u8(uint8(e.Kind))
		w.i16(e.X)
		w.i16(e.Y)
		w.u16(e.Health)
		w.u16(e.MaxHealth)
		w.u16(e.Energy)
		w.u8(uint8(len(e.Cooldowns)))
		for _, c := range e.Cooldowns {
			w.u16(c)
		}
	}
	return w, nil
}

// Decode parses one datagram. Any error means "no message": the caller drops
// the datagram exactly like a lost packet. Decode never panics.
func Decode(b []byte) (messages.Message, error) {
	if len(b) == 0 {
		return nil, ErrEmpty
	}
	tag := messages.Tag(b[0])
	r := newReader(b[1:])

	var m messages.Message
	switch tag {
	case messages.TagHello:
		m = messages.Hello{ProtocolVersion: r.u16(), Nonce: r.u32()}
	case messages.TagJoinRequest:
		m = decodeJoinRequest(r)
	case messages.TagJoinAccepted:
		m = decodeJoinAccepted(r)
	case messages.TagInput:
		m = messages.InputCommand{
			Sequence:   r.u32(),
			ClientTick: r.u32(),
			MoveX:      r.i16(),
			MoveY:      r.i16(),
			Actions:    messages.ActionFlags(r.u16()),
		}
	case messages.TagSnapshot:
		m = decodeSnapshot(r)
	case messages.TagDisconnect:
		var d messages.Disconnect
		if r.remaining() > 0 {
			d.Reason = messages.DisconnectReason(r.u8())
		}
		m = d
	default:
		return nil, fmt.Errorf("%w: 0x%02x", ErrUnknownTag, b[0])
	}

	if r.err != nil {
		return nil, fmt.Errorf("decode %s: %w", tag, r.err)
	}
	return m, nil
}

func decodeJoinRequest(r *reader) messages.JoinRequest {
	var req messages.JoinRequest
	req.CharacterName = r.str()
	if r.err != nil || r.remaining() == 0 {
		return req
	}
	req.AccountName = r.str()
	req.AccountID = r.i32()
	req.SessionToken = r.str()
	if r.err != nil || r.remaining() == 0 {
		return req
	}
	req.ClassName = r.str()
	req.SpecName = r.str()
	return req
}

func decodeJoinAccepted(r *reader) messages.JoinAccepted {
	var ja messages.JoinAccepted
	ja.EntityID = r.u32()
	ja.ServerTick = r.u32()
	ja.SimulationHz = r.u16()
	if r.err != nil || r.remaining() == 0 {
		return ja
	}
	ja.SnapshotHz = r.u16()
	if r.err != nil || r.remaining() == 0 {
		return ja
	}
	ja.BoundsMaxX = r.i16()
	ja.BoundsMaxY = r.i16()
	return ja
}

func decodeSnapshot(r *reader) messages.WorldSnapshot {
	var s messages.WorldSnapshot
	s.ServerTick = r.u32()
	s.LastProcessedInput = r.u32()
	count := int(r.u16())
	if r.err != nil {
		return s
	}
	// Reject counts the buffer cannot hold before allocating for them.
	if count*entityFixedSize > r.remaining() {
		r.err = fmt.Errorf("%w: %d entities in %d bytes", ErrTruncated, count, r.remaining())
		return s
	}
	if count > 0 {
		s.Entities = make([]messages.EntitySnapshot, 0, count)
	}
	for i := 0; i < count && r.err == nil; i++ {
		e := messages.EntitySnapshot{
			ID:        r.u32(),
			Kind:      messages.EntityKind(r.u8()),
			X:         r.i16(),
			Y:         r.i16(),
			Health:    r.u16(),
			MaxHealth: r.u16(),
			Energy:    r.u16(),
		}
		if n := int(r.u8()); n > 0 {
			e.Cooldowns = make([]uint16, 0, n)
			for j := 0; j < n && r.err == nil; j++ {
				e.Cooldowns = append(e.Cooldowns, r.u16())
			}
		}
		s.Entities = append(s.Entities, e)
	}
	return s
}
