package contracts

import "context"

// Sequencer is the control-side handle of a MIDI file player.
//
// Process is the only method meant to be called from the realtime audio
// context; it never blocks, allocates or locks. Every other method belongs
// to the control context.
type Sequencer interface {
	LoadFile(raw []byte) error         // Decodes a Standard MIDI File and hands it to the realtime side.
	Goto(time float64)                 // Requests a silent seek to time seconds.
	SetPlaying(playing bool)           // Continuous transport parameter.
	SetLoop(loop bool)                 // Continuous transport parameter.
	SetReplaceOnEnd(replace bool)      // Continuous transport parameter.
	Process(clock float64, frames int) // Advances one audio block starting at clock.
	Poll() int                         // Drains emitted messages and invokes handlers. Returns messages delivered.
	Position() float64                 // Latest playhead reported by the realtime side.
	Duration() float64                 // Duration of the most recently loaded file.
	Drive(ctx context.Context) error   // Runs a software audio clock until ctx is done.
	Close() error                      // Flushes all channels and releases the link.
}

// Host is the capability a surrounding patcher framework exposes to an object.
type Host interface {
	Emit(outlet int, data any)
	Error(err error)
}

// Object is the capability an object exposes to the surrounding framework.
type Object interface {
	OnInlet(index int, data any)
	Destroy() error
}
