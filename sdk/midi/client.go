package midi

import (
	"github.com/leandrodaf/midiplayer/sdk/contracts"
)

// NewSequencer creates a new MIDI file sequencer with the specified options.
// It applies default options and initializes the sequencer.
//
// opts ...contracts.Option: A variadic list of option functions to customize the sequencer configuration.
//
// Returns:
//   - contracts.Sequencer: An instance of the sequencer.
//   - error: An error, if any occurred during the creation of the sequencer.
func NewSequencer(opts ...contracts.Option) (contracts.Sequencer, error) {
	options, err := applyDefaultOptions(opts...)
	if err != nil {
		return nil, err
	}

	seq, err := newSequencer(&options)
	if err != nil {
		return nil, err
	}

	return seq, nil
}
