package systems

import "github.com/automoto/doomerang-netsync/shared/messages"

// InputState is one sample of the local controls. Move axes are in [-1,1];
// values outside are clamped by quantization.
type InputState struct {
	MoveX, MoveY float32
	Actions      messages.ActionFlags
}

// InputSource is sampled once per simulation tick.
type InputSource interface {
	Sample() InputState
}

// InputFunc adapts a plain function to InputSource.
type InputFunc func() InputState

func (f InputFunc) Sample() InputState { return f() }

// Sender transmits a message without waiting for acknowledgement.
type Sender interface {
	Send(m messages.Message) error
}
