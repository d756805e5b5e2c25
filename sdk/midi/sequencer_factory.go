package midi

import (
	"fmt"

	"github.com/leandrodaf/midiplayer/internal/sequencer"
	"github.com/leandrodaf/midiplayer/sdk/contracts"
)

// ErrClosed is returned by operations on a closed sequencer.
var ErrClosed = sequencer.ErrClosed

// newSequencer builds the sequencer handle from fully defaulted options.
//
// opts *contracts.SequencerOptions: Configuration options for the sequencer.
//
// Returns:
//   - contracts.Sequencer: An instance of the sequencer.
//   - error: An error if the handle could not be created.
func newSequencer(opts *contracts.SequencerOptions) (contracts.Sequencer, error) {
	seq, err := sequencer.NewSequencer(opts)
	if err != nil {
		return nil, fmt.Errorf("creating sequencer: %w", err)
	}
	return seq, nil
}
