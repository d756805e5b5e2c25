// Package smf decodes Standard MIDI Files into contracts.Program values.
//
// Decoding runs on the control side only. It may allocate freely and makes a
// single bounded pass over the input.
package smf

import (
	"encoding/binary"

	"github.com/leandrodaf/midiplayer/sdk/contracts"
	"gitlab.com/gomidi/midi/v2"
)

const (
	headerID = "MThd"
	trackID  = "MTrk"

	metaEndOfTrack = 0x2f
	metaTempo      = 0x51

	statusSysEx  = 0xf0
	statusEscape = 0xf7
	statusMeta   = 0xff
)

// DecodeOption configures Decode.
type DecodeOption func(*decodeConfig)

type decodeConfig struct {
	conductor bool
}

// WithConductorTempo applies tempo changes found in the first track of a
// format 1 file to every other track.
func WithConductorTempo() DecodeOption {
	return func(c *decodeConfig) {
		c.conductor = true
	}
}

type division struct {
	smpte           bool
	ticksPerQuarter uint16
	framesPerSecond float64
	ticksPerFrame   uint8
}

type header struct {
	format   uint16
	ntrks    uint16
	raw      uint16
	division division
}

type rawEvent struct {
	tick uint64
	msg  midi.Message
}

type rawTrack struct {
	events  []rawEvent
	tempos  []tempoChange
	endTick uint64
}

// Decode parses a Standard MIDI File. Malformed input yields a *FormatError.
func Decode(data []byte, opts ...DecodeOption) (*contracts.Program, error) {
	var cfg decodeConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	hdr, pos, err := readHeader(data)
	if err != nil {
		return nil, err
	}

	tracks := make([]rawTrack, 0, hdr.ntrks)
	for len(tracks) < int(hdr.ntrks) {
		idx := len(tracks)
		if pos+8 > len(data) {
			return nil, formatErr(idx, pos, ErrMissingTrack)
		}
		id := string(data[pos : pos+4])
		length := int(binary.BigEndian.Uint32(data[pos+4:]))
		start := pos + 8
		if length < 0 || length > len(data)-start {
			return nil, formatErr(idx, pos+4, ErrChunkOverrun)
		}
		pos = start + length
		if id != trackID {
			// Unknown chunk types must be skipped.
			continue
		}
		tr, err := parseTrack(data[start:pos], start, idx)
		if err != nil {
			return nil, err
		}
		tracks = append(tracks, tr)
	}

	prog := &contracts.Program{
		Tracks:   make([][]contracts.Event, len(tracks)),
		Format:   hdr.format,
		Division: hdr.raw,
	}
	for i, tr := range tracks {
		tempos := tr.tempos
		if cfg.conductor && hdr.format == 1 && i > 0 {
			tempos = mergeTempos(tracks[0].tempos, tr.tempos)
		}
		clk := newClock(hdr.division, tempos)

		events := make([]contracts.Event, len(tr.events))
		for j, ev := range tr.events {
			events[j] = contracts.Event{Time: clk.seconds(ev.tick), Bytes: ev.msg}
		}
		prog.Tracks[i] = events

		if end := clk.seconds(tr.endTick); end > prog.Duration {
			prog.Duration = end
		}
	}
	return prog, nil
}

func readHeader(data []byte) (header, int, error) {
	var h header
	if len(data) < 8 || string(data[:4]) != headerID {
		return h, 0, formatErr(-1, 0, ErrBadHeader)
	}
	length := int(binary.BigEndian.Uint32(data[4:]))
	if length < 6 {
		return h, 4, formatErr(-1, 4, ErrBadHeader)
	}
	if length > len(data)-8 {
		return h, 4, formatErr(-1, 4, ErrChunkOverrun)
	}

	h.format = binary.BigEndian.Uint16(data[8:])
	h.ntrks = binary.BigEndian.Uint16(data[10:])
	h.raw = binary.BigEndian.Uint16(data[12:])
	if h.format > 2 {
		return h, 8, formatErr(-1, 8, ErrUnsupportedFormat)
	}

	if h.raw&0x8000 != 0 {
		fps := -int(int8(h.raw >> 8))
		tpf := uint8(h.raw & 0xff)
		if fps <= 0 || tpf == 0 {
			return h, 12, formatErr(-1, 12, ErrBadDivision)
		}
		h.division = division{smpte: true, framesPerSecond: float64(fps), ticksPerFrame: tpf}
		if fps == 29 {
			h.division.framesPerSecond = 29.97
		}
	} else {
		if h.raw == 0 {
			return h, 12, formatErr(-1, 12, ErrBadDivision)
		}
		h.division = division{ticksPerQuarter: h.raw}
	}
	return h, 8 + length, nil
}

// parseTrack walks the events of one MTrk chunk body. base is the offset of
// body within the whole file, used for error reporting.
func parseTrack(body []byte, base, index int) (rawTrack, error) {
	var (
		tr      rawTrack
		tick    uint64
		running byte
		p       int
	)
	fail := func(at int, reason error) (rawTrack, error) {
		return rawTrack{}, formatErr(index, base+at, reason)
	}

	for p < len(body) {
		delta, n, err := readVLQ(body[p:])
		if err != nil {
			return fail(p, err)
		}
		p += n
		tick += uint64(delta)
		if p >= len(body) {
			return fail(p, ErrEventOverrun)
		}

		status := body[p]
		switch {
		case status == statusMeta:
			if p+1 >= len(body) {
				return fail(p, ErrEventOverrun)
			}
			typ := body[p+1]
			length, n, err := readVLQ(body[p+2:])
			if err != nil {
				return fail(p+2, err)
			}
			start := p + 2 + n
			if int(length) > len(body)-start {
				return fail(start, ErrEventOverrun)
			}
			data := body[start : start+int(length)]
			p = start + int(length)
			running = 0

			switch typ {
			case metaTempo:
				if len(data) == 3 {
					us := uint32(data[0])<<16 | uint32(data[1])<<8 | uint32(data[2])
					if us > 0 {
						tr.tempos = append(tr.tempos, tempoChange{tick: tick, usPerQuarter: us})
					}
				}
			case metaEndOfTrack:
				tr.endTick = tick
				return tr, nil
			}

		case status == statusSysEx || status == statusEscape:
			length, n, err := readVLQ(body[p+1:])
			if err != nil {
				return fail(p+1, err)
			}
			start := p + 1 + n
			if int(length) > len(body)-start {
				return fail(start, ErrEventOverrun)
			}
			data := body[start : start+int(length)]
			p = start + int(length)
			running = 0

			// Only complete F0 ... F7 packets are playable on their own.
			if status == statusSysEx && len(data) > 0 && data[len(data)-1] == statusEscape {
				msg := make(midi.Message, 0, len(data)+1)
				msg = append(msg, statusSysEx)
				msg = append(msg, data...)
				tr.events = append(tr.events, rawEvent{tick: tick, msg: msg})
			}

		case status >= 0xf0:
			return fail(p, ErrUnknownStatus)

		default:
			if status >= 0x80 {
				running = status
				p++
			} else if running == 0 {
				return fail(p, ErrNoRunningStatus)
			}
			size := channelDataLen(running)
			if size > len(body)-p {
				return fail(p, ErrEventOverrun)
			}
			msg := make(midi.Message, 1+size)
			msg[0] = running
			copy(msg[1:], body[p:p+size])
			p += size
			tr.events = append(tr.events, rawEvent{tick: tick, msg: msg})
		}
	}

	tr.endTick = tick
	return tr, nil
}

// channelDataLen returns the number of data bytes following a channel-voice status.
func channelDataLen(status byte) int {
	switch status & 0xf0 {
	case 0xc0, 0xd0:
		return 1
	default:
		return 2
	}
}
