// Package netconfig defines constants shared between client and server for
// simulation timing and wire encoding. It must have zero dependencies on ebiten
// or any graphics library so the dedicated server binary stays headless.
package netconfig

import "time"

// Protocol version carried in Hello. Older senders are still decoded through
// field probing, so this is informational only.
const ProtocolVersion uint16 = 3

// Simulation timing. The client predictor and the server step at the same rate.
const (
	SimulationHz = 60
	SnapshotHz   = 20

	// SimulationStep is the duration of one fixed tick.
	SimulationStep = time.Second / SimulationHz
	// MaxStepsPerFrame bounds catch-up work after a long frame.
	MaxStepsPerFrame = 5
)

// Quantization scale factors.
const (
	PositionScale = 100  // world units -> wire subunits
	InputScale    = 1000 // analog axis -> wire subunits
	MilliPerUnit  = 1000 // world units -> fixed-point integration units
)

// Movement. Must match on client and server exactly.
const (
	MoveSpeedMilliPerSecond = 6000 // 6 world units per second at full deflection
)

// Default world bounds in world units. A loaded map overrides them.
const (
	DefaultWorldWidth  = 320
	DefaultWorldHeight = 320
)

// Rendering and buffering.
const (
	InterpolationDelay = 100 * time.Millisecond
	SampleHistory      = 32
	PendingInputCap    = 512
	HandshakeResend    = 500 * time.Millisecond
	// SnapshotTimeout is how long a joined client waits for a snapshot
	// before it restarts the handshake.
	SnapshotTimeout    = 3 * time.Second
)

// AbilitySlots is the number of cooldowns a player entity reports.
const AbilitySlots = 4

// Transport limits.
const (
	MaxDatagramSize  = 1200
	InboundQueueSize = 256
)
