package smf

import (
	"errors"
	"fmt"
)

// Reasons carried by FormatError.
var (
	ErrBadHeader         = errors.New("missing or malformed MThd header")
	ErrUnsupportedFormat = errors.New("unsupported SMF format")
	ErrChunkOverrun      = errors.New("chunk length runs past end of data")
	ErrMissingTrack      = errors.New("fewer track chunks than declared")
	ErrVLQOverrun        = errors.New("variable-length quantity overruns chunk")
	ErrEventOverrun      = errors.New("event data overruns chunk")
	ErrNoRunningStatus   = errors.New("data byte without running status")
	ErrBadDivision       = errors.New("invalid time division")
	ErrUnknownStatus     = errors.New("status byte not allowed in a track chunk")
)

// FormatError reports malformed Standard MIDI File input.
type FormatError struct {
	Offset int   // Byte offset into the input where decoding failed.
	Track  int   // Track index, or -1 for the header.
	Reason error // One of the Err* reasons above.
}

func (e *FormatError) Error() string {
	if e.Track < 0 {
		return fmt.Sprintf("smf: %v at offset %d", e.Reason, e.Offset)
	}
	return fmt.Sprintf("smf: track %d: %v at offset %d", e.Track, e.Reason, e.Offset)
}

func (e *FormatError) Unwrap() error {
	return e.Reason
}

func formatErr(track, offset int, reason error) error {
	return &FormatError{Offset: offset, Track: track, Reason: reason}
}
