// Package messages defines the protocol message set exchanged between client
// and server. Encoding lives in shared/protocol.
package messages

// Tag is the first byte of every datagram and identifies the variant.
type Tag uint8

const (
	TagHello        Tag = 0x01
	TagJoinRequest  Tag = 0x02
	TagJoinAccepted Tag = 0x03
	TagInput        Tag = 0x04
	TagSnapshot     Tag = 0x05
	TagDisconnect   Tag = 0x06
)

func (t Tag) String() string {
	switch t {
	case TagHello:
		return "hello"
	case TagJoinRequest:
		return "join_request"
	case TagJoinAccepted:
		return "join_accepted"
	case TagInput:
		return "input"
	case TagSnapshot:
		return "snapshot"
	case TagDisconnect:
		return "disconnect"
	}
	return "unknown"
}

// Message is implemented by every wire variant.
type Message interface {
	Tag() Tag
}

// Hello opens the handshake. The server answers with its own Hello echoing Nonce.
type Hello struct {
	ProtocolVersion uint16
	Nonce           uint32
}

func (Hello) Tag() Tag { return TagHello }

// DisconnectReason explains why a peer left.
type DisconnectReason uint8

const (
	ReasonUnspecified DisconnectReason = iota
	ReasonClientQuit
	ReasonTimeout
	ReasonKicked
	ReasonServerShutdown
)

// Disconnect is a best-effort leave notice. Legacy senders omit the reason.
type Disconnect struct {
	Reason DisconnectReason
}

func (Disconnect) Tag() Tag { return TagDisconnect }
