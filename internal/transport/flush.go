package transport

import "gitlab.com/gomidi/midi/v2"

const (
	ccResetAllControllers = 121
	ccAllNotesOff         = 123
	midiChannels          = 16
)

// flushMessages resets controllers and silences notes on every channel.
// Built once so the realtime side only hands out shared slices.
var flushMessages = func() []midi.Message {
	msgs := make([]midi.Message, 0, 2*midiChannels)
	for ch := uint8(0); ch < midiChannels; ch++ {
		msgs = append(msgs,
			midi.ControlChange(ch, ccResetAllControllers, 0),
			midi.ControlChange(ch, ccAllNotesOff, 0),
		)
	}
	return msgs
}()

// FlushMessages returns the messages sent on stop, seek, swap and teardown.
// The returned slices must not be modified.
func FlushMessages() []midi.Message {
	return flushMessages
}
