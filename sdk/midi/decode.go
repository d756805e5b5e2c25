package midi

import (
	"github.com/leandrodaf/midiplayer/internal/smf"
	"github.com/leandrodaf/midiplayer/sdk/contracts"
)

// FormatError describes why a file is not a usable Standard MIDI File.
type FormatError = smf.FormatError

// Reasons carried by FormatError. Match them with errors.Is.
var (
	ErrBadHeader         = smf.ErrBadHeader
	ErrUnsupportedFormat = smf.ErrUnsupportedFormat
	ErrChunkOverrun      = smf.ErrChunkOverrun
	ErrMissingTrack      = smf.ErrMissingTrack
	ErrVLQOverrun        = smf.ErrVLQOverrun
	ErrEventOverrun      = smf.ErrEventOverrun
	ErrNoRunningStatus   = smf.ErrNoRunningStatus
	ErrBadDivision       = smf.ErrBadDivision
	ErrUnknownStatus     = smf.ErrUnknownStatus
)

// Decode parses a Standard MIDI File into a program of timed messages
// without loading it into a sequencer. Set conductorTempo to apply the
// first track's tempo map to every track of a format 1 file.
func Decode(data []byte, conductorTempo bool) (*contracts.Program, error) {
	if conductorTempo {
		return smf.Decode(data, smf.WithConductorTempo())
	}
	return smf.Decode(data)
}
