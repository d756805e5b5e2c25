package contracts

import (
	"time"

	"gitlab.com/gomidi/midi/v2"
)

// MidiHandler receives every message emitted by the sequencer, together with
// its time in the clock domain passed to Process.
type MidiHandler func(msg midi.Message, time float64) error

// PositionHandler receives the latest playhead position in seconds.
type PositionHandler func(position float64)

// EndHandler is invoked when playback reaches the end of a program
// without loop or replace-on-end.
type EndHandler func()

// SequencerOptions defines the configuration options for a sequencer.
type SequencerOptions struct {
	Logger          Logger          // Logger for control-side events and errors.
	LogLevel        LogLevel        // Level of logging to use.
	SampleRate      float64         // Audio sample rate in Hz used to convert block frames to seconds.
	BlockSize       int             // Frames per audio block when driven by the software clock.
	OutputCapacity  int             // Capacity of the realtime-to-control message ring.
	PollInterval    time.Duration   // Interval at which Drive polls when blocks are coalesced.
	ConductorTempo  bool            // Apply the first track's tempo map to every track of format 1 files.
	OnMidi          MidiHandler     // Optional handler for emitted MIDI messages.
	OnPosition      PositionHandler // Optional handler for position updates.
	OnEnd           EndHandler      // Optional handler for end-of-program notifications.
	OverrunLogEvery time.Duration   // Minimum spacing between mailbox overrun warnings.
}

// Option is a function that modifies SequencerOptions.
type Option func(*SequencerOptions)

// WithLogger sets the logger for the sequencer.
func WithLogger(l Logger) Option {
	return func(opts *SequencerOptions) {
		opts.Logger = l
	}
}

// WithLogLevel sets the logging level for the sequencer.
func WithLogLevel(level LogLevel) Option {
	return func(opts *SequencerOptions) {
		opts.LogLevel = level
	}
}

// WithSampleRate sets the audio sample rate in Hz.
func WithSampleRate(rate float64) Option {
	return func(opts *SequencerOptions) {
		opts.SampleRate = rate
	}
}

// WithBlockSize sets the number of frames per block for the software clock.
func WithBlockSize(frames int) Option {
	return func(opts *SequencerOptions) {
		opts.BlockSize = frames
	}
}

// WithOutputCapacity sets the capacity of the emitted message ring.
// It is rounded up to a power of two.
func WithOutputCapacity(n int) Option {
	return func(opts *SequencerOptions) {
		opts.OutputCapacity = n
	}
}

// WithPollInterval sets how often Drive drains emitted messages.
func WithPollInterval(d time.Duration) Option {
	return func(opts *SequencerOptions) {
		opts.PollInterval = d
	}
}

// WithConductorTempo makes tempo changes of the first track in a format 1
// file apply to all tracks.
func WithConductorTempo() Option {
	return func(opts *SequencerOptions) {
		opts.ConductorTempo = true
	}
}

// WithMidiHandler sets the handler for emitted MIDI messages.
func WithMidiHandler(h MidiHandler) Option {
	return func(opts *SequencerOptions) {
		opts.OnMidi = h
	}
}

// WithPositionHandler sets the handler for position updates.
func WithPositionHandler(h PositionHandler) Option {
	return func(opts *SequencerOptions) {
		opts.OnPosition = h
	}
}

// WithEndHandler sets the handler for end-of-program notifications.
func WithEndHandler(h EndHandler) Option {
	return func(opts *SequencerOptions) {
		opts.OnEnd = h
	}
}

// WithOverrunLogEvery limits how often superseded load/goto requests are logged.
func WithOverrunLogEvery(d time.Duration) Option {
	return func(opts *SequencerOptions) {
		opts.OverrunLogEvery = d
	}
}
