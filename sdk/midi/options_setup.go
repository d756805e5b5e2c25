package midi

import (
	"errors"
	"fmt"
	"time"

	"github.com/leandrodaf/midiplayer/internal/logger"
	"github.com/leandrodaf/midiplayer/sdk/contracts"
)

// ErrInvalidOption is returned when an option value cannot be used.
var ErrInvalidOption = errors.New("invalid sequencer option")

const (
	defaultSampleRate      = 48000
	defaultBlockSize       = 128
	defaultOutputCapacity  = 4096
	defaultPollInterval    = 10 * time.Millisecond
	defaultOverrunLogEvery = time.Second

	// minOutputCapacity leaves room for a complete flush plus traffic.
	minOutputCapacity = 64
)

// applyDefaultOptions sets default values for SequencerOptions if not explicitly provided.
//
// opts ...contracts.Option: A variadic list of option functions that can modify SequencerOptions.
//
// Returns:
//   - contracts.SequencerOptions: A structure containing the finalized options with defaults applied.
//   - error: ErrInvalidOption, wrapped, if a value is out of range.
func applyDefaultOptions(opts ...contracts.Option) (contracts.SequencerOptions, error) {
	options := &contracts.SequencerOptions{}
	for _, opt := range opts {
		opt(options)
	}

	// Set defaults if options are not provided
	if options.Logger == nil {
		options.Logger = logger.NewZapLogger()
	}
	if options.SampleRate == 0 {
		options.SampleRate = defaultSampleRate
	}
	if options.BlockSize == 0 {
		options.BlockSize = defaultBlockSize
	}
	if options.OutputCapacity == 0 {
		options.OutputCapacity = defaultOutputCapacity
	}
	if options.PollInterval == 0 {
		options.PollInterval = defaultPollInterval
	}
	if options.OverrunLogEvery == 0 {
		options.OverrunLogEvery = defaultOverrunLogEvery
	}

	switch {
	case !(options.SampleRate > 0):
		return *options, fmt.Errorf("%w: sample rate %v", ErrInvalidOption, options.SampleRate)
	case options.BlockSize < 0:
		return *options, fmt.Errorf("%w: block size %d", ErrInvalidOption, options.BlockSize)
	case options.OutputCapacity < minOutputCapacity:
		return *options, fmt.Errorf("%w: output capacity %d is below %d", ErrInvalidOption, options.OutputCapacity, minOutputCapacity)
	case options.PollInterval < 0:
		return *options, fmt.Errorf("%w: poll interval %s", ErrInvalidOption, options.PollInterval)
	case options.OverrunLogEvery < 0:
		return *options, fmt.Errorf("%w: overrun log interval %s", ErrInvalidOption, options.OverrunLogEvery)
	case options.LogLevel < contracts.DebugLevel || options.LogLevel > contracts.ErrorLevel:
		return *options, fmt.Errorf("%w: log level %d", ErrInvalidOption, options.LogLevel)
	}

	options.Logger.SetLevel(options.LogLevel)
	return *options, nil
}
