package transport

import (
	"bytes"
	"math"
	"testing"

	"github.com/leandrodaf/midiplayer/internal/link"
	"github.com/leandrodaf/midiplayer/sdk/contracts"
	"gitlab.com/gomidi/midi/v2"
)

const testSampleRate = 48000

type rig struct {
	p      *Processor
	params *link.Params
	mail   *link.Mailbox[*Sequence]
	out    *link.Ring
	status *link.Status
}

func newRig(capacity int) *rig {
	r := &rig{
		params: &link.Params{},
		mail:   &link.Mailbox[*Sequence]{},
		out:    link.NewRing(capacity),
		status: &link.Status{},
	}
	r.p = NewProcessor(testSampleRate, r.params, r.mail, r.out, r.status)
	return r
}

// drain returns everything emitted so far, split into flush and other messages.
func (r *rig) drain() (events []link.Emission, flushes int) {
	for {
		e, ok := r.out.Pop()
		if !ok {
			return events, flushes
		}
		if isFlush(e.Bytes) {
			flushes++
			continue
		}
		events = append(events, e)
	}
}

func isFlush(m midi.Message) bool {
	var ch, cc, val uint8
	return m.GetControlChange(&ch, &cc, &val) && (cc == ccResetAllControllers || cc == ccAllNotesOff)
}

func note(t float64, key uint8) contracts.Event {
	return contracts.Event{Time: t, Bytes: midi.NoteOn(0, key, 100)}
}

func keyOf(t *testing.T, e link.Emission) uint8 {
	t.Helper()
	var ch, key, vel uint8
	if !e.Bytes.GetNoteOn(&ch, &key, &vel) {
		t.Fatalf("emission % x is not a note on", []byte(e.Bytes))
	}
	return key
}

func nearly(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

// scenarioProgram has events at 0.0, 0.5 and 1.0 seconds over two tracks.
func scenarioProgram() *contracts.Program {
	return &contracts.Program{
		Duration: 1.0,
		Tracks: [][]contracts.Event{
			{note(0.0, 60), note(0.5, 62)},
			{note(1.0, 64)},
		},
	}
}

func TestAdvanceScenarioFourBlocks(t *testing.T) {
	r := newRig(256)
	r.p.Load(Compile(scenarioProgram()), 0)
	r.p.SetParams(true, false, false, 0)
	if _, flushes := r.drain(); flushes != 32 {
		t.Fatalf("load should flush once, got %d flush messages", flushes)
	}

	want := [][]uint8{{60}, {62}, {}, {64}}
	clock := 10.0
	for block, keys := range want {
		r.p.Advance(clock, 0.3)
		got, _ := r.drain()
		if len(got) != len(keys) {
			t.Fatalf("block %d emitted %d events, want %d", block+1, len(got), len(keys))
		}
		for i, k := range keys {
			if key := keyOf(t, got[i]); key != k {
				t.Fatalf("block %d event %d key %d, want %d", block+1, i, key, k)
			}
		}
		clock += 0.3
	}

	if r.p.Position() != 1.0 {
		t.Fatalf("playhead = %v, want 1.0", r.p.Position())
	}
	r.p.Advance(clock, 0.3)
	if got, _ := r.drain(); len(got) != 0 {
		t.Fatalf("emitted %d events after the end", len(got))
	}
	if r.p.Position() != 1.0 || !r.p.playing {
		t.Fatalf("after end: playhead %v playing %v", r.p.Position(), r.p.playing)
	}
	if r.status.Ends() != 1 {
		t.Fatalf("Ends = %d, want 1", r.status.Ends())
	}
	r.p.Advance(clock, 0.3)
	if r.status.Ends() != 1 {
		t.Fatalf("end reported more than once")
	}
}

func TestAdvanceIntraBlockOffsets(t *testing.T) {
	r := newRig(256)
	r.p.Load(Compile(scenarioProgram()), 0)
	r.p.SetParams(true, false, false, 0)
	r.drain()

	r.p.Advance(5.0, 0.4)
	r.drain()
	r.p.Advance(5.4, 0.4)
	got, _ := r.drain()
	if len(got) != 1 {
		t.Fatalf("got %d events, want 1", len(got))
	}
	if !nearly(got[0].Offset, 0.1) || !nearly(got[0].Time, 5.5) {
		t.Fatalf("offset %v time %v, want 0.1 and 5.5", got[0].Offset, got[0].Time)
	}
}

func TestAdvanceZeroNeverEmits(t *testing.T) {
	r := newRig(256)
	r.p.Load(Compile(scenarioProgram()), 0)
	r.p.SetParams(true, false, false, 0)
	r.p.Advance(0, 0.25)
	r.drain()

	for i := 0; i < 3; i++ {
		r.p.Advance(1, 0)
		if got, flushes := r.drain(); len(got) != 0 || flushes != 0 {
			t.Fatalf("Advance(0) emitted %d events and %d flush messages", len(got), flushes)
		}
		if r.p.Position() != 0.25 {
			t.Fatalf("Advance(0) moved playhead to %v", r.p.Position())
		}
	}
}

func TestAdvanceEmitsTimelineExactlyOnce(t *testing.T) {
	var tracks [][]contracts.Event
	for tr := 0; tr < 3; tr++ {
		var evs []contracts.Event
		for i := 0; i <= 16; i++ {
			evs = append(evs, note(float64(i)*0.0625, uint8(tr*20+i)))
		}
		tracks = append(tracks, evs)
	}
	seq := Compile(&contracts.Program{Duration: 1.0, Tracks: tracks})

	blocks := []float64{0.125, 0.25, 0.0625, 0.0625, 0.03125, 0.03125, 0.4375}
	r := newRig(1024)
	r.p.Load(seq, 0)
	r.p.SetParams(true, false, false, 0)
	r.drain()

	var got []link.Emission
	for _, b := range blocks {
		r.p.Advance(0, b)
		evs, _ := r.drain()
		got = append(got, evs...)
	}
	if len(got) != len(seq.Entries) {
		t.Fatalf("emitted %d events, want %d", len(got), len(seq.Entries))
	}
	for i, e := range seq.Entries {
		if !bytes.Equal(got[i].Bytes, e.Bytes) {
			t.Fatalf("event %d = % x, want % x", i, []byte(got[i].Bytes), []byte(e.Bytes))
		}
	}
	if r.p.Position() != 1.0 {
		t.Fatalf("playhead = %v, want 1.0", r.p.Position())
	}
}

func TestLoopEmitsTimelineTwice(t *testing.T) {
	r := newRig(256)
	r.p.Load(Compile(scenarioProgram()), 0)
	r.p.SetParams(true, true, false, 0)
	r.drain()

	var keys []uint8
	for cycle := 0; cycle < 2; cycle++ {
		for i := 0; i < 4; i++ {
			r.p.Advance(0, 0.25)
		}
		evs, _ := r.drain()
		for _, e := range evs {
			keys = append(keys, keyOf(t, e))
		}
		if r.p.Position() != 0 {
			t.Fatalf("cycle %d ended at %v, want 0", cycle, r.p.Position())
		}
	}
	want := []uint8{60, 62, 64, 60, 62, 64}
	if !bytes.Equal(keys, want) {
		t.Fatalf("keys = %v, want %v", keys, want)
	}
	if r.status.Ends() != 0 {
		t.Fatalf("looping should not report an end")
	}
}

func TestLoopWrapsMidBlockWithExactOffsets(t *testing.T) {
	r := newRig(256)
	r.p.Load(Compile(scenarioProgram()), 0)
	r.p.SetParams(true, true, false, 0)
	r.p.Advance(0, 0.75)
	r.drain()

	r.p.Advance(2.0, 0.5)
	got, _ := r.drain()
	if len(got) != 2 {
		t.Fatalf("got %d events, want 2", len(got))
	}
	if keyOf(t, got[0]) != 64 || !nearly(got[0].Offset, 0.25) {
		t.Fatalf("first event key %d offset %v", keyOf(t, got[0]), got[0].Offset)
	}
	if keyOf(t, got[1]) != 60 || !nearly(got[1].Offset, 0.25) || !nearly(got[1].Time, 2.25) {
		t.Fatalf("wrapped event key %d offset %v time %v", keyOf(t, got[1]), got[1].Offset, got[1].Time)
	}
	if !nearly(r.p.Position(), 0.25) {
		t.Fatalf("playhead = %v, want 0.25", r.p.Position())
	}
}

func TestStopFlushesExactlyOnce(t *testing.T) {
	r := newRig(256)
	r.p.Load(Compile(scenarioProgram()), 0)
	r.p.SetParams(true, false, false, 0)
	r.drain()
	r.p.Advance(0, 0.1)
	r.drain()

	r.p.SetParams(false, false, false, 0.1)
	r.p.Advance(0.1, 0.1)
	r.p.SetParams(false, false, false, 0.2)
	r.p.Advance(0.2, 0.1)
	evs, flushes := r.drain()
	if flushes != 32 || len(evs) != 0 {
		t.Fatalf("stop produced %d flush messages and %d events", flushes, len(evs))
	}
	if !nearly(r.p.Position(), 0.1) {
		t.Fatalf("stopped playhead moved to %v", r.p.Position())
	}

	r.p.SetParams(true, false, false, 0.3)
	r.p.Advance(0.3, 0.5)
	evs, flushes = r.drain()
	if flushes != 0 {
		t.Fatalf("resume flushed")
	}
	if len(evs) != 1 || keyOf(t, evs[0]) != 62 {
		t.Fatalf("resume emitted %d events", len(evs))
	}
}

func TestGotoIsASilentClampedJump(t *testing.T) {
	r := newRig(256)
	r.p.Load(Compile(scenarioProgram()), 0)
	r.p.SetParams(true, false, false, 0)
	r.drain()

	r.p.Goto(0.5, 0)
	if r.p.Position() != 0.5 {
		t.Fatalf("Goto(0.5) position = %v", r.p.Position())
	}
	if evs, flushes := r.drain(); flushes != 32 || len(evs) != 0 {
		t.Fatalf("goto emitted %d events and %d flush messages", len(evs), flushes)
	}
	r.p.Advance(0, 0.1)
	evs, _ := r.drain()
	if len(evs) != 1 || keyOf(t, evs[0]) != 62 {
		t.Fatalf("after goto emitted %v", evs)
	}

	for _, c := range []struct{ in, want float64 }{{-3, 0}, {7, 1.0}, {0.25, 0.25}} {
		r.p.Goto(c.in, 0)
		if r.p.Position() != c.want {
			t.Fatalf("Goto(%v) position = %v, want %v", c.in, r.p.Position(), c.want)
		}
	}
	r.p.Goto(math.NaN(), 0)
	if r.p.Position() != 0.25 {
		t.Fatalf("Goto(NaN) moved playhead")
	}
}

func TestIdleWithoutProgram(t *testing.T) {
	r := newRig(256)
	r.p.SetParams(true, true, true, 0)
	r.p.Goto(0.5, 0)
	r.p.Advance(0, 0.5)
	if evs, flushes := r.drain(); len(evs) != 0 || flushes != 0 {
		t.Fatalf("idle processor emitted %d events and %d flush messages", len(evs), flushes)
	}
	if r.p.Position() != 0 || r.p.Loaded() {
		t.Fatalf("idle processor moved")
	}
}

func TestReplaceOnEndSwapsAtBoundary(t *testing.T) {
	a := Compile(&contracts.Program{
		Duration: 2.0,
		Tracks:   [][]contracts.Event{{note(0, 10), note(1.75, 11), note(2.0, 12)}},
	})
	b := Compile(&contracts.Program{
		Duration: 1.0,
		Tracks:   [][]contracts.Event{{note(0, 20), note(0.25, 21), note(0.75, 22)}},
	})

	r := newRig(256)
	r.p.Load(a, 0)
	r.p.SetParams(true, false, true, 0)
	r.p.Advance(0, 1.5)
	r.drain()

	r.p.Load(b, 1.5)
	if !r.p.Pending() {
		t.Fatalf("load during playback with replaceOnEnd should be deferred")
	}
	if r.p.Position() != 1.5 {
		t.Fatalf("deferred load moved playhead to %v", r.p.Position())
	}
	if _, flushes := r.drain(); flushes != 0 {
		t.Fatalf("deferred load flushed")
	}

	r.p.Advance(1.5, 1.0)
	evs, flushes := r.drain()
	if flushes != 32 {
		t.Fatalf("swap flushed %d messages, want 32", flushes)
	}
	var keys []uint8
	for _, e := range evs {
		keys = append(keys, keyOf(t, e))
	}
	if want := []uint8{11, 12, 20, 21}; !bytes.Equal(keys, want) {
		t.Fatalf("keys = %v, want %v", keys, want)
	}
	if !nearly(evs[2].Offset, 0.5) || !nearly(evs[3].Offset, 0.75) {
		t.Fatalf("offsets after swap = %v, %v", evs[2].Offset, evs[3].Offset)
	}
	if r.p.Pending() || r.p.seq != b {
		t.Fatalf("pending program was not installed")
	}
	if !nearly(r.p.Position(), 0.5) {
		t.Fatalf("playhead = %v, want 0.5", r.p.Position())
	}
}

func TestReplaceOnEndAtBlockStart(t *testing.T) {
	a := Compile(&contracts.Program{Duration: 1.0, Tracks: [][]contracts.Event{{note(0, 1)}}})
	b := Compile(&contracts.Program{Duration: 1.0, Tracks: [][]contracts.Event{{note(0, 2)}}})

	r := newRig(256)
	r.p.Load(a, 0)
	r.p.SetParams(true, false, true, 0)
	r.p.Advance(0, 1.0)
	r.p.Load(b, 1)
	r.drain()

	r.p.Advance(1, 0.5)
	evs, flushes := r.drain()
	if flushes != 32 || len(evs) != 1 || keyOf(t, evs[0]) != 2 {
		t.Fatalf("swap at block start: %d flush messages, events %v", flushes, evs)
	}
	if r.status.Ends() != 0 {
		t.Fatalf("swap should not report an end")
	}
}

func TestReplaceOnEndDisabledReplacesImmediately(t *testing.T) {
	r := newRig(256)
	r.p.Load(Compile(scenarioProgram()), 0)
	r.p.SetParams(true, false, false, 0)
	r.p.Advance(0, 0.6)
	r.drain()

	next := Compile(&contracts.Program{Duration: 1.0, Tracks: [][]contracts.Event{{note(0, 99)}}})
	r.p.Load(next, 0.6)
	if r.p.Position() != 0 || r.p.Pending() {
		t.Fatalf("immediate load: position %v pending %v", r.p.Position(), r.p.Pending())
	}
	if _, flushes := r.drain(); flushes != 32 {
		t.Fatalf("immediate load flushed %d messages", flushes)
	}
}

func TestClearingReplaceOnEndDropsPending(t *testing.T) {
	r := newRig(256)
	r.p.Load(Compile(scenarioProgram()), 0)
	r.p.SetParams(true, false, true, 0)
	r.p.Load(Compile(scenarioProgram()), 0)
	if !r.p.Pending() {
		t.Fatalf("expected pending program")
	}
	r.p.SetParams(true, false, false, 0)
	if r.p.Pending() {
		t.Fatalf("pending program survived replaceOnEnd being cleared")
	}
}

func TestFullRingDelaysInsteadOfDropping(t *testing.T) {
	var evs []contracts.Event
	for i := 0; i < 100; i++ {
		evs = append(evs, note(float64(i)*0.01, uint8(i)))
	}
	seq := Compile(&contracts.Program{Duration: 1.0, Tracks: [][]contracts.Event{evs}})

	r := newRig(64)
	r.p.Load(seq, 0)
	r.p.SetParams(true, false, false, 0)
	r.drain()

	var got []link.Emission
	for i := 0; i < 4 && len(got) < 100; i++ {
		r.p.Advance(0, 1.0)
		batch, _ := r.drain()
		got = append(got, batch...)
	}
	if len(got) != 100 {
		t.Fatalf("delivered %d events, want 100", len(got))
	}
	for i, e := range got {
		if keyOf(t, e) != uint8(i) {
			t.Fatalf("event %d out of order", i)
		}
	}
}

func TestFlushWaitsForRoomAndPrecedesEvents(t *testing.T) {
	r := newRig(64)
	r.p.Load(Compile(scenarioProgram()), 0)
	r.p.SetParams(true, false, false, 0)
	r.drain()
	for i := 0; i < 40; i++ {
		r.out.Push(link.Emission{Bytes: midi.NoteOn(0, 1, 1)})
	}

	r.p.Goto(0, 0)
	if !r.p.flushPending {
		t.Fatalf("flush should be pending on a crowded ring")
	}
	r.p.Advance(0, 0.1)
	if r.out.Len() != 40 {
		t.Fatalf("events emitted before the pending flush")
	}

	for i := 0; i < 40; i++ {
		r.out.Pop()
	}
	r.p.Advance(0, 0.1)
	first, ok := r.out.Pop()
	if !ok || !isFlush(first.Bytes) {
		t.Fatalf("flush was not delivered first")
	}
	evs, _ := r.drain()
	if len(evs) != 1 || keyOf(t, evs[0]) != 60 {
		t.Fatalf("expected the first note after the flush, got %v", evs)
	}
}

func TestProcessUsesLinkInSendOrder(t *testing.T) {
	r := newRig(256)
	first := Compile(scenarioProgram())
	r.mail.SendLoad(first)
	r.mail.SendGoto(0.5)
	r.p.Process(0, 0)
	if r.status.Position() != 0.5 {
		t.Fatalf("load then goto: position %v, want 0.5", r.status.Position())
	}

	r.mail.SendGoto(0.75)
	r.mail.SendLoad(Compile(scenarioProgram()))
	r.p.Process(0, 0)
	if r.status.Position() != 0 {
		t.Fatalf("goto then load: position %v, want 0", r.status.Position())
	}

	r.params.Playing.Store(true)
	r.p.Process(0, testSampleRate/10)
	if !nearly(r.status.Position(), 0.1) {
		t.Fatalf("position after 0.1s block = %v", r.status.Position())
	}
	if r.status.Blocks() != 3 {
		t.Fatalf("Blocks = %d, want 3", r.status.Blocks())
	}
}

func TestProcessDoesNotAllocate(t *testing.T) {
	r := newRig(1024)
	r.mail.SendLoad(Compile(scenarioProgram()))
	r.params.Playing.Store(true)
	r.params.Loop.Store(true)
	r.p.Process(0, 128)

	allocs := testing.AllocsPerRun(200, func() {
		r.p.Process(0, 4800)
		r.p.Goto(0.4, 0)
		for {
			if _, ok := r.out.Pop(); !ok {
				break
			}
		}
	})
	if allocs != 0 {
		t.Fatalf("Process allocated %v times per run", allocs)
	}
}
