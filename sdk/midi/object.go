package midi

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/leandrodaf/midiplayer/sdk/contracts"
	"gitlab.com/gomidi/midi/v2"
)

// Object exposes a sequencer to a patching host. Inlet 0 takes a file as
// []byte, a bool or number to start and stop, and contracts.Goto to jump.
// Emitted messages leave through outlet 0.
type Object struct {
	host contracts.Host
	seq  contracts.Sequencer

	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
	err    error
}

var _ contracts.Object = (*Object)(nil)

// NewObject creates a sequencer driven by the software clock and wires its
// output to host.
func NewObject(host contracts.Host, opts ...contracts.Option) (*Object, error) {
	if host == nil {
		return nil, fmt.Errorf("%w: nil host", ErrInvalidOption)
	}
	opts = append(opts, contracts.WithMidiHandler(func(msg midi.Message, _ float64) error {
		host.Emit(0, msg)
		return nil
	}))
	seq, err := NewSequencer(opts...)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	o := &Object{host: host, seq: seq, cancel: cancel, done: make(chan struct{})}
	go func() {
		defer close(o.done)
		if err := seq.Drive(ctx); err != nil && !errors.Is(err, ErrClosed) {
			host.Error(err)
		}
	}()
	return o, nil
}

// OnInlet handles data arriving at inlet index.
func (o *Object) OnInlet(index int, data any) {
	if index != 0 {
		o.host.Error(fmt.Errorf("sequencer has no inlet %d", index))
		return
	}
	switch v := data.(type) {
	case []byte:
		if err := o.seq.LoadFile(v); err != nil {
			o.host.Error(err)
		}
	case contracts.Goto:
		o.seq.Goto(v.Time)
	case *contracts.Goto:
		if v != nil {
			o.seq.Goto(v.Time)
		}
	case bool:
		o.seq.SetPlaying(v)
	default:
		if on, ok := nonZero(data); ok {
			o.seq.SetPlaying(on)
			return
		}
		o.host.Error(fmt.Errorf("sequencer inlet 0 does not accept %T", data))
	}
}

// nonZero reports whether data is a number and, if so, whether it is non-zero.
func nonZero(data any) (on, ok bool) {
	switch v := data.(type) {
	case int:
		return v != 0, true
	case int8:
		return v != 0, true
	case int16:
		return v != 0, true
	case int32:
		return v != 0, true
	case int64:
		return v != 0, true
	case uint:
		return v != 0, true
	case uint8:
		return v != 0, true
	case uint16:
		return v != 0, true
	case uint32:
		return v != 0, true
	case uint64:
		return v != 0, true
	case float32:
		return v != 0, true
	case float64:
		return v != 0, true
	}
	return false, false
}

// SetLoop mirrors the loop property.
func (o *Object) SetLoop(loop bool) {
	o.seq.SetLoop(loop)
}

// SetReplaceOnEnd mirrors the replace-on-end property.
func (o *Object) SetReplaceOnEnd(replace bool) {
	o.seq.SetReplaceOnEnd(replace)
}

// Sequencer returns the underlying sequencer.
func (o *Object) Sequencer() contracts.Sequencer {
	return o.seq
}

// Destroy stops the software clock and closes the sequencer. It is safe to
// call more than once.
func (o *Object) Destroy() error {
	o.once.Do(func() {
		o.cancel()
		<-o.done
		o.err = o.seq.Close()
	})
	return o.err
}
