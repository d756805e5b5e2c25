// Package transport is the realtime half of the sequencer. A Processor is
// driven once per audio block and never blocks, locks or allocates; all
// communication with the control side goes through package link.
package transport

import (
	"math"

	"github.com/leandrodaf/midiplayer/internal/link"
)

// Processor owns the installed sequence and the playhead. It must only be
// used from the realtime context.
type Processor struct {
	sampleRate float64
	params     *link.Params
	mail       *link.Mailbox[*Sequence]
	out        *link.Ring
	status     *link.Status

	seq      *Sequence
	pending  *Sequence
	playhead float64
	cursor   int

	playing      bool
	loop         bool
	replaceOnEnd bool

	ended        bool
	flushPending bool
}

// NewProcessor wires a processor to its link endpoints.
func NewProcessor(sampleRate float64, params *link.Params, mail *link.Mailbox[*Sequence], out *link.Ring, status *link.Status) *Processor {
	return &Processor{
		sampleRate: sampleRate,
		params:     params,
		mail:       mail,
		out:        out,
		status:     status,
	}
}

// Process runs one audio block of frames samples whose first sample plays at
// clock. It samples the parameters, applies pending requests, advances and
// reports the playhead.
func (p *Processor) Process(clock float64, frames int) {
	p.SetParams(p.params.Playing.Load(), p.params.Loop.Load(), p.params.ReplaceOnEnd.Load(), clock)
	p.receive(clock)
	if frames > 0 && p.sampleRate > 0 {
		p.Advance(clock, float64(frames)/p.sampleRate)
	} else {
		p.Advance(clock, 0)
	}
	p.status.Report(p.playhead)
}

// receive applies pending load and goto requests in the order they were sent.
func (p *Processor) receive(clock float64) {
	load, seek := p.mail.Take()
	if seek != nil && load != nil && seek.Seq < load.Seq {
		p.Goto(seek.Time, clock)
		seek = nil
	}
	if load != nil {
		p.Load(load.Payload, clock)
	}
	if seek != nil {
		p.Goto(seek.Time, clock)
	}
}

// SetParams applies the continuous parameters for the coming block.
// Stopping flushes, and clearing replaceOnEnd discards the pending sequence.
func (p *Processor) SetParams(playing, loop, replaceOnEnd bool, clock float64) {
	if p.playing && !playing {
		p.flush(clock)
	}
	if p.replaceOnEnd && !replaceOnEnd {
		p.pending = nil
	}
	p.playing = playing
	p.loop = loop
	p.replaceOnEnd = replaceOnEnd
}

// Load installs seq, or parks it until the end of the current sequence when
// replaceOnEnd is set and playback is in progress.
func (p *Processor) Load(seq *Sequence, clock float64) {
	if seq == nil {
		return
	}
	if p.replaceOnEnd && p.playing && p.seq != nil {
		p.pending = seq
		return
	}
	p.install(seq, clock)
}

// Goto jumps to t without emitting the skipped events.
func (p *Processor) Goto(t float64, clock float64) {
	if p.seq == nil || math.IsNaN(t) {
		return
	}
	if t < 0 {
		t = 0
	} else if t > p.seq.Duration {
		t = p.seq.Duration
	}
	p.flush(clock)
	p.cursor = p.seq.search(t)
	p.playhead = t
	p.ended = false
}

// Position returns the playhead in seconds.
func (p *Processor) Position() float64 {
	return p.playhead
}

// Loaded reports whether a sequence is installed.
func (p *Processor) Loaded() bool {
	return p.seq != nil
}

// Pending reports whether a sequence is waiting for the end of the current one.
func (p *Processor) Pending() bool {
	return p.pending != nil
}

func (p *Processor) install(seq *Sequence, clock float64) {
	p.flush(clock)
	p.seq = seq
	p.cursor = 0
	p.playhead = 0
	p.ended = false
}

// Advance moves the playhead by dur seconds and emits every entry whose time
// falls inside the covered interval.
func (p *Processor) Advance(clock, dur float64) {
	if p.flushPending && !p.deliverFlush(clock) {
		return
	}
	if !p.playing || p.seq == nil || !(dur > 0) {
		return
	}
	if p.playhead >= p.seq.Duration && p.cursor >= len(p.seq.Entries) {
		if !p.endOfTimeline(clock) {
			return
		}
	}

	offset, remaining := 0.0, dur
	for remaining > 0 {
		end := p.playhead + remaining
		if end < p.seq.Duration {
			if p.walk(clock, offset, end, false) {
				p.playhead = end
			}
			return
		}

		// The block reaches the end of the timeline: entries at exactly
		// Duration belong to this pass.
		if !p.walk(clock, offset, p.seq.Duration, true) {
			return
		}
		used := p.seq.Duration - p.playhead
		offset += used
		remaining -= used
		p.playhead = p.seq.Duration
		if remaining <= 0 && !p.loop {
			return
		}
		if !p.endOfTimeline(clock + offset) {
			return
		}
	}
}

// endOfTimeline swaps in the pending sequence, wraps, or parks at the end.
// It reports whether playback continues in the current block.
func (p *Processor) endOfTimeline(clock float64) bool {
	if p.pending != nil && p.replaceOnEnd {
		next := p.pending
		p.pending = nil
		p.install(next, clock)
		return !p.flushPending
	}
	if p.loop && p.seq.Duration > 0 {
		p.playhead = 0
		p.cursor = 0
		p.ended = false
		return true
	}
	if !p.ended {
		p.ended = true
		p.status.End()
	}
	return false
}

// walk emits entries from the cursor up to limit. On a full output ring the
// playhead stops at the undelivered entry and walk reports false.
func (p *Processor) walk(clock, base, limit float64, inclusive bool) bool {
	entries := p.seq.Entries
	for p.cursor < len(entries) {
		e := &entries[p.cursor]
		if e.Time > limit || (!inclusive && e.Time == limit) {
			return true
		}
		at := base
		if e.Time > p.playhead {
			at += e.Time - p.playhead
		}
		if !p.out.Push(link.Emission{Bytes: e.Bytes, Time: clock + at, Offset: at}) {
			if e.Time > p.playhead {
				p.playhead = e.Time
			}
			return false
		}
		p.cursor++
	}
	return true
}

func (p *Processor) flush(clock float64) {
	p.flushPending = true
	p.deliverFlush(clock)
}

// deliverFlush pushes the whole flush or nothing.
func (p *Processor) deliverFlush(clock float64) bool {
	if p.out.Free() < len(flushMessages) {
		return false
	}
	for _, msg := range flushMessages {
		p.out.Push(link.Emission{Bytes: msg, Time: clock})
	}
	p.flushPending = false
	return true
}
