// Package link connects the control context to the realtime context without
// locks. Every type here has exactly one producer and one consumer.
package link

import (
	"sync/atomic"

	"gitlab.com/gomidi/midi/v2"
)

// Emission is a MIDI message produced by the realtime side.
type Emission struct {
	Bytes  midi.Message // Shared, read-only.
	Time   float64      // Host clock time of the message.
	Offset float64      // Seconds from the start of the block that produced it.
}

// Ring is a bounded single-producer single-consumer queue of emissions.
// Push is called from the realtime side, Pop from the control side.
type Ring struct {
	buf  []Emission
	mask uint64
	head atomic.Uint64 // next slot to read
	tail atomic.Uint64 // next slot to write
}

// NewRing returns a ring holding at least capacity emissions.
func NewRing(capacity int) *Ring {
	n := 1
	for n < capacity {
		n <<= 1
	}
	return &Ring{buf: make([]Emission, n), mask: uint64(n - 1)}
}

// Cap returns the number of slots in the ring.
func (r *Ring) Cap() int {
	return len(r.buf)
}

// Free returns the number of slots the producer can fill without failing.
func (r *Ring) Free() int {
	return len(r.buf) - int(r.tail.Load()-r.head.Load())
}

// Len returns the number of queued emissions.
func (r *Ring) Len() int {
	return int(r.tail.Load() - r.head.Load())
}

// Push appends e and reports whether there was room.
func (r *Ring) Push(e Emission) bool {
	tail := r.tail.Load()
	if tail-r.head.Load() == uint64(len(r.buf)) {
		return false
	}
	r.buf[tail&r.mask] = e
	r.tail.Store(tail + 1)
	return true
}

// Pop removes the oldest emission.
func (r *Ring) Pop() (Emission, bool) {
	head := r.head.Load()
	if head == r.tail.Load() {
		return Emission{}, false
	}
	slot := &r.buf[head&r.mask]
	e := *slot
	*slot = Emission{}
	r.head.Store(head + 1)
	return e, true
}
