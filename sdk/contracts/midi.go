package contracts

import (
	"gitlab.com/gomidi/midi/v2"
)

// Event is a single decoded MIDI file event.
type Event struct {
	Time  float64      // Absolute time in seconds, monotonic within a track.
	Bytes midi.Message // Raw wire bytes to emit. Empty for events that only affect timing.
}

// Program is the in-memory form of a decoded Standard MIDI File.
// A Program is never mutated after decoding; a new load replaces it wholesale.
type Program struct {
	Tracks   [][]Event // Tracks in file order, each ordered by Time.
	Duration float64   // End-of-file time in seconds.
	Format   uint16    // SMF format word (0, 1 or 2).
	Division uint16    // Raw time-division word from the header.
}

// EventCount returns the number of events across all tracks.
func (p *Program) EventCount() int {
	if p == nil {
		return 0
	}
	n := 0
	for _, tr := range p.Tracks {
		n += len(tr)
	}
	return n
}

// Goto requests a seek when sent to a sequencer object inlet.
type Goto struct {
	Time float64 // Target position in seconds.
}
