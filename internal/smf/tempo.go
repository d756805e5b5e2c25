package smf

import "sort"

// defaultTempo is 120 BPM expressed in microseconds per quarter note.
const defaultTempo = 500000

type tempoChange struct {
	tick         uint64
	usPerQuarter uint32
}

type tempoSegment struct {
	tick         uint64
	seconds      float64
	usPerQuarter uint32
}

// clock converts absolute ticks to seconds for one track.
type clock struct {
	smpte          bool
	ticksPerSecond float64 // SMPTE only.
	ticksPerQuart  float64 // Metrical only.
	segments       []tempoSegment
}

// newClock builds a converter for the given division and tempo changes.
// Changes must be sorted by tick.
func newClock(d division, changes []tempoChange) *clock {
	c := &clock{smpte: d.smpte}
	if d.smpte {
		c.ticksPerSecond = d.framesPerSecond * float64(d.ticksPerFrame)
		return c
	}
	c.ticksPerQuart = float64(d.ticksPerQuarter)
	c.segments = append(c.segments, tempoSegment{usPerQuarter: defaultTempo})
	for _, ch := range changes {
		last := c.segments[len(c.segments)-1]
		if ch.tick == last.tick {
			c.segments[len(c.segments)-1].usPerQuarter = ch.usPerQuarter
			continue
		}
		c.segments = append(c.segments, tempoSegment{
			tick:         ch.tick,
			seconds:      last.seconds + c.span(ch.tick-last.tick, last.usPerQuarter),
			usPerQuarter: ch.usPerQuarter,
		})
	}
	return c
}

func (c *clock) span(ticks uint64, usPerQuarter uint32) float64 {
	return float64(ticks) * float64(usPerQuarter) / (c.ticksPerQuart * 1e6)
}

// seconds returns the absolute time of tick.
func (c *clock) seconds(tick uint64) float64 {
	if c.smpte {
		return float64(tick) / c.ticksPerSecond
	}
	i := sort.Search(len(c.segments), func(i int) bool {
		return c.segments[i].tick > tick
	}) - 1
	seg := c.segments[i]
	return seg.seconds + c.span(tick-seg.tick, seg.usPerQuarter)
}

// mergeTempos combines a conductor track's tempo changes with a track's own.
// On equal ticks the track's own change wins.
func mergeTempos(conductor, own []tempoChange) []tempoChange {
	out := make([]tempoChange, 0, len(conductor)+len(own))
	out = append(out, conductor...)
	out = append(out, own...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].tick < out[j].tick
	})
	return out
}
