package link

import (
	"math"
	"sync/atomic"
)

// Load carries a payload whose ownership moves to the realtime side.
type Load[P any] struct {
	Seq     uint64
	Payload P
}

// Seek carries a goto request.
type Seek struct {
	Seq  uint64
	Time float64
}

// Mailbox holds at most one pending load and one pending seek. A newer
// request replaces an unconsumed one of the same kind; sequence numbers keep
// the relative order of the two kinds. Both live in one immutable pair so
// Take removes them in a single step.
type Mailbox[P any] struct {
	box        atomic.Pointer[requests[P]]
	superseded atomic.Uint64
}

// requests is never modified once published.
type requests[P any] struct {
	load *Load[P]
	seek *Seek
	next uint64 // Seq for the next request merged into this pair
}

// SendLoad posts a load request and reports whether it replaced one that was
// never consumed.
func (m *Mailbox[P]) SendLoad(payload P) bool {
	for {
		old := m.box.Load()
		n := &requests[P]{load: &Load[P]{Payload: payload}}
		if old != nil {
			n.load.Seq = old.next
			n.seek = old.seek
		}
		n.next = n.load.Seq + 1
		if m.box.CompareAndSwap(old, n) {
			return m.note(old != nil && old.load != nil)
		}
	}
}

// SendGoto posts a goto request and reports whether it replaced one that was
// never consumed.
func (m *Mailbox[P]) SendGoto(t float64) bool {
	for {
		old := m.box.Load()
		n := &requests[P]{seek: &Seek{Time: t}}
		if old != nil {
			n.seek.Seq = old.next
			n.load = old.load
		}
		n.next = n.seek.Seq + 1
		if m.box.CompareAndSwap(old, n) {
			return m.note(old != nil && old.seek != nil)
		}
	}
}

func (m *Mailbox[P]) note(replaced bool) bool {
	if replaced {
		m.superseded.Add(1)
	}
	return replaced
}

// Take removes the pending requests, either of which may be nil.
// Called from the realtime side.
func (m *Mailbox[P]) Take() (*Load[P], *Seek) {
	r := m.box.Swap(nil)
	if r == nil {
		return nil, nil
	}
	return r.load, r.seek
}

// Superseded returns how many requests were replaced before being consumed.
func (m *Mailbox[P]) Superseded() uint64 {
	return m.superseded.Load()
}

// Params are the continuously sampled transport parameters.
type Params struct {
	Playing      atomic.Bool
	Loop         atomic.Bool
	ReplaceOnEnd atomic.Bool
}

// Status is what the realtime side reports back besides MIDI bytes.
// Only the latest position matters, so it is a single coalesced value.
type Status struct {
	position atomic.Uint64
	blocks   atomic.Uint64
	ends     atomic.Uint64
}

// Report stores the playhead at the end of a block.
func (s *Status) Report(position float64) {
	s.position.Store(math.Float64bits(position))
	s.blocks.Add(1)
}

// End records that playback reached the end of the program.
func (s *Status) End() {
	s.ends.Add(1)
}

// Position returns the latest reported playhead.
func (s *Status) Position() float64 {
	return math.Float64frombits(s.position.Load())
}

// Blocks returns how many blocks have been reported.
func (s *Status) Blocks() uint64 {
	return s.blocks.Load()
}

// Ends returns how many end notifications were recorded.
func (s *Status) Ends() uint64 {
	return s.ends.Load()
}
