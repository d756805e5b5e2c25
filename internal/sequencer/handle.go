// Package sequencer implements the control-side handle of the MIDI file
// player: it decodes files, talks to the realtime processor through package
// link and delivers what the processor emits to the caller's handlers.
package sequencer

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/leandrodaf/midiplayer/internal/link"
	"github.com/leandrodaf/midiplayer/internal/smf"
	"github.com/leandrodaf/midiplayer/internal/transport"
	"github.com/leandrodaf/midiplayer/sdk/contracts"
	"go.uber.org/multierr"
	"golang.org/x/time/rate"
)

// ErrClosed is returned by operations on a closed sequencer.
var ErrClosed = errors.New("sequencer closed")

// Handle manages one sequencer instance.
// Process belongs to the realtime context; everything else is control side.
type Handle struct {
	logger  contracts.Logger
	options contracts.SequencerOptions

	params link.Params
	mail   link.Mailbox[*transport.Sequence]
	status link.Status
	out    *link.Ring
	proc   *transport.Processor

	overruns *rate.Limiter
	decode   []smf.DecodeOption

	mu         sync.Mutex // Serialises draining; the ring has a single consumer.
	seenBlocks uint64
	seenEnds   uint64

	duration  atomic.Uint64 // float64 bits of the last loaded duration
	lastClock atomic.Uint64 // float64 bits of the last block clock
	closed    atomic.Bool
	done      chan struct{} // closed by Close to stop Drive
	closeOnce sync.Once
	closeErr  error
}

// NewSequencer creates a handle and its realtime processor from fully
// defaulted options.
func NewSequencer(options *contracts.SequencerOptions) (contracts.Sequencer, error) {
	if options == nil || options.Logger == nil {
		return nil, errors.New("sequencer options require a logger")
	}
	h := &Handle{
		logger:   options.Logger.Named("sequencer"),
		options:  *options,
		out:      link.NewRing(options.OutputCapacity),
		overruns: rate.NewLimiter(rate.Every(options.OverrunLogEvery), 1),
		done:     make(chan struct{}),
	}
	if options.ConductorTempo {
		h.decode = append(h.decode, smf.WithConductorTempo())
	}
	h.proc = transport.NewProcessor(options.SampleRate, &h.params, &h.mail, h.out, &h.status)

	h.logger.Info("Sequencer created",
		h.logger.Field().Float64("sampleRate", options.SampleRate),
		h.logger.Field().Int("blockSize", options.BlockSize),
		h.logger.Field().Int("outputCapacity", h.out.Cap()))
	return h, nil
}

// LoadFile decodes raw as a Standard MIDI File and sends it to the realtime
// side. Decoding errors are returned synchronously.
func (h *Handle) LoadFile(raw []byte) error {
	if h.closed.Load() {
		return ErrClosed
	}
	prog, err := smf.Decode(raw, h.decode...)
	if err != nil {
		h.logger.Error("Failed to decode MIDI file",
			h.logger.Field().String("size", humanize.Bytes(uint64(len(raw)))),
			h.logger.Field().Error("error", err))
		return fmt.Errorf("decoding MIDI file: %w", err)
	}

	seq := transport.Compile(prog)
	h.duration.Store(math.Float64bits(seq.Duration))
	h.logger.Info("MIDI file loaded",
		h.logger.Field().String("size", humanize.Bytes(uint64(len(raw)))),
		h.logger.Field().Int("format", int(prog.Format)),
		h.logger.Field().Int("tracks", len(prog.Tracks)),
		h.logger.Field().Int("events", len(seq.Entries)),
		h.logger.Field().Float64("duration", seq.Duration))

	if h.mail.SendLoad(seq) {
		h.overrun("load")
	}
	return nil
}

// Goto requests a silent seek. The realtime side clamps t to the program.
func (h *Handle) Goto(t float64) {
	if h.closed.Load() {
		return
	}
	h.logger.Debug("Goto requested", h.logger.Field().Float64("time", t))
	if h.mail.SendGoto(t) {
		h.overrun("goto")
	}
}

// overrun logs a request that replaced an unconsumed one, at most once per
// OverrunLogEvery.
func (h *Handle) overrun(kind string) {
	if !h.overruns.Allow() {
		return
	}
	h.logger.Warn("Request superseded before the realtime side consumed it",
		h.logger.Field().String("kind", kind),
		h.logger.Field().Uint64("superseded", h.mail.Superseded()))
}

// SetPlaying sets the playing parameter sampled at the next block.
func (h *Handle) SetPlaying(playing bool) {
	h.params.Playing.Store(playing)
}

// SetLoop sets the loop parameter sampled at the next block.
func (h *Handle) SetLoop(loop bool) {
	h.params.Loop.Store(loop)
}

// SetReplaceOnEnd sets the replace-on-end parameter sampled at the next block.
func (h *Handle) SetReplaceOnEnd(replace bool) {
	h.params.ReplaceOnEnd.Store(replace)
}

// Process runs one block on the realtime processor. It must be called from a
// single realtime context.
func (h *Handle) Process(clock float64, frames int) {
	if h.closed.Load() {
		return
	}
	h.lastClock.Store(math.Float64bits(clock))
	h.proc.Process(clock, frames)
}

// Poll delivers queued messages, the latest position and end notifications
// to the configured handlers. It returns the number of MIDI messages delivered.
// Once the handle is closed nothing is delivered.
func (h *Handle) Poll() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed.Load() {
		return 0
	}
	return h.drain()
}

// drain delivers everything queued. Callers hold h.mu.
func (h *Handle) drain() int {
	n := 0
	for {
		e, ok := h.out.Pop()
		if !ok {
			break
		}
		n++
		if h.options.OnMidi == nil {
			continue
		}
		if err := h.options.OnMidi(e.Bytes, e.Time); err != nil {
			h.logger.Error("MIDI handler failed",
				h.logger.Field().Float64("time", e.Time),
				h.logger.Field().Error("error", err))
		}
	}

	if blocks := h.status.Blocks(); blocks != h.seenBlocks {
		h.seenBlocks = blocks
		if h.options.OnPosition != nil {
			h.options.OnPosition(h.status.Position())
		}
	}
	for ends := h.status.Ends(); h.seenEnds < ends; h.seenEnds++ {
		h.logger.Debug("Reached end of program")
		if h.options.OnEnd != nil {
			h.options.OnEnd()
		}
	}
	return n
}

// Position returns the latest playhead reported by the realtime side.
func (h *Handle) Position() float64 {
	return h.status.Position()
}

// Duration returns the duration of the most recently loaded file.
func (h *Handle) Duration() float64 {
	return math.Float64frombits(h.duration.Load())
}

// Drive runs a software audio clock for hosts without an audio callback.
// Every PollInterval it processes the blocks that became due and polls.
// The clock domain starts at zero when Drive is called. Drive returns nil
// when ctx is done and ErrClosed if the sequencer is closed.
func (h *Handle) Drive(ctx context.Context) error {
	if h.closed.Load() {
		return ErrClosed
	}
	sampleRate := h.options.SampleRate
	block := h.options.BlockSize
	ticker := time.NewTicker(h.options.PollInterval)
	defer ticker.Stop()

	h.logger.Info("Software clock started",
		h.logger.Field().Duration("pollInterval", h.options.PollInterval))

	start := time.Now()
	var frames uint64
	for {
		select {
		case <-ctx.Done():
			h.logger.Info("Software clock stopped")
			return nil
		case <-h.done:
			return ErrClosed
		case now := <-ticker.C:
			if h.closed.Load() {
				return ErrClosed
			}
			due := uint64(now.Sub(start).Seconds() * sampleRate)
			for frames+uint64(block) <= due {
				h.Process(float64(frames)/sampleRate, block)
				frames += uint64(block)
			}
			h.Poll()
		}
	}
}

// Close stops playback, delivers what is still queued and then sends a flush
// straight to the MIDI handler so no device keeps sounding notes.
// The flush is the last thing the handler receives: a block still in flight
// may queue more messages, but Poll no longer delivers them.
// Handler errors are combined into the returned error.
func (h *Handle) Close() error {
	h.closeOnce.Do(func() {
		h.params.Playing.Store(false)
		h.closed.Store(true)
		close(h.done)

		h.mu.Lock()
		defer h.mu.Unlock()
		h.drain()

		if h.options.OnMidi != nil {
			clock := math.Float64frombits(h.lastClock.Load())
			for _, msg := range transport.FlushMessages() {
				h.closeErr = multierr.Append(h.closeErr, h.options.OnMidi(msg, clock))
			}
		}
		if h.closeErr != nil {
			h.logger.Error("Flush on close failed", h.logger.Field().Error("error", h.closeErr))
		}
		h.logger.Info("Sequencer closed")
	})
	return h.closeErr
}
