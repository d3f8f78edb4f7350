package messages

// JoinRequest is sent by a client after the Hello exchange to request joining
// the world. Fields were added over time; older clients send only a prefix.
type JoinRequest struct {
	CharacterName string

	// Account fields, absent from the oldest clients.
	AccountName  string
	AccountID    int32
	SessionToken string

	// Class selection, absent from pre-class clients.
	ClassName string
	SpecName  string
}

// JoinAccepted is sent by the server when a client's join request is accepted.
type JoinAccepted struct {
	EntityID     uint32
	ServerTick   uint32
	SimulationHz uint16

	// Added later; zero when the server predates it.
	SnapshotHz uint16

	// World bounds in quantized position units; zero when not sent.
	BoundsMaxX int16
	BoundsMaxY int16
}

func (JoinRequest) Tag() Tag  { return TagJoinRequest }
func (JoinAccepted) Tag() Tag { return TagJoinAccepted }

// HasBounds reports whether the server sent world bounds.
func (j JoinAccepted) HasBounds() bool {
	return j.BoundsMaxX > 0 && j.BoundsMaxY > 0
}
