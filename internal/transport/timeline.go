package transport

import (
	"sort"

	"github.com/leandrodaf/midiplayer/sdk/contracts"
	"gitlab.com/gomidi/midi/v2"
)

// Entry is one emitting event of a merged timeline.
type Entry struct {
	Time  float64
	Bytes midi.Message
}

// Sequence is a program compiled for playback: all tracks merged into one
// timeline sorted by time. Compile runs on the control side so installing a
// sequence on the realtime side is a pointer swap.
type Sequence struct {
	Program  *contracts.Program
	Entries  []Entry
	Duration float64
}

// Compile merges the tracks of p. Events without bytes are skipped and
// events with equal times keep track order.
func Compile(p *contracts.Program) *Sequence {
	s := &Sequence{Program: p, Entries: make([]Entry, 0, p.EventCount()), Duration: p.Duration}
	for _, tr := range p.Tracks {
		for _, ev := range tr {
			if len(ev.Bytes) == 0 {
				continue
			}
			s.Entries = append(s.Entries, Entry{Time: ev.Time, Bytes: ev.Bytes})
		}
	}
	sort.SliceStable(s.Entries, func(i, j int) bool {
		return s.Entries[i].Time < s.Entries[j].Time
	})
	if n := len(s.Entries); n > 0 && s.Entries[n-1].Time > s.Duration {
		s.Duration = s.Entries[n-1].Time
	}
	return s
}

// search returns the index of the first entry with Time >= t.
// It is hand-rolled so the realtime side does not build a closure.
func (s *Sequence) search(t float64) int {
	lo, hi := 0, len(s.Entries)
	for lo < hi {
		mid := int(uint(lo+hi) >> 1)
		if s.Entries[mid].Time < t {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo
}
