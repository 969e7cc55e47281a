package mux

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/plein/meterlink/frame"
)

// DefaultCapacity is the topic table size used on the device.
const DefaultCapacity = 32

var (
	ErrTableFull       = errors.New("mux: topic table full")
	ErrTopicsExhausted = errors.New("mux: topic ids exhausted")
)

// Fallback is invoked once for every topic first seen on an incoming frame.
// It receives the triggering frame and the channel that later frames for the
// topic are delivered to. HandleTopic must not block: long running work
// belongs in its own goroutine. ctx ends when the link session does.
type Fallback interface {
	HandleTopic(ctx context.Context, f frame.Frame, ch Channel)
}

// FallbackFunc adapts a function to the Fallback interface.
type FallbackFunc func(ctx context.Context, f frame.Frame, ch Channel)

func (fn FallbackFunc) HandleTopic(ctx context.Context, f frame.Frame, ch Channel) {
	fn(ctx, f, ch)
}

// Stats counts dispatcher activity.
type Stats struct {
	// Routed counts frames delivered to an existing topic.
	Routed uint64
	// Opened counts topics created by Process or Make.
	Opened uint64
	// Released counts topics removed by Release or Reset.
	Released uint64
	// Unrouted counts frames discarded because they carried no topic.
	Unrouted uint64
}

// Dispatcher owns the topic table of one link endpoint. It is not safe for
// concurrent use; the run loop of the endpoint is its only caller.
type Dispatcher struct {
	handler  Fallback
	alloc    Allocator
	capacity int

	// keys holds the bound topics in ascending order.
	keys  []uint32
	chans map[uint32]Channel
	stats Stats
}

// NewDispatcher returns a dispatcher that allocates channels from alloc,
// binds at most capacity topics and hands unseen topics to handler.
func NewDispatcher(handler Fallback, alloc Allocator, capacity int) *Dispatcher {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Dispatcher{
		handler:  handler,
		alloc:    alloc,
		capacity: capacity,
		keys:     make([]uint32, 0, capacity),
		chans:    make(map[uint32]Channel, capacity),
	}
}

// Process routes an incoming frame. Frames without a topic are discarded.
// Frames for a bound topic are sent to its channel, blocking while the
// channel is full. The first frame of an unbound topic binds it under the
// incoming id and is handed to the fallback handler together with the new
// channel. A Close frame releases its topic.
func (d *Dispatcher) Process(ctx context.Context, f frame.Frame) error {
	return d.route(ctx, f, true)
}

// Offer routes f like Process but never waits for room. When the channel
// of a bound topic is full it returns an error matching ErrFull and f is
// not delivered; the caller may then Send it on the channel from Lookup.
func (d *Dispatcher) Offer(ctx context.Context, f frame.Frame) error {
	return d.route(ctx, f, false)
}

func (d *Dispatcher) route(ctx context.Context, f frame.Frame, wait bool) error {
	id, ok := f.TopicID()
	if !ok {
		d.stats.Unrouted++
		return nil
	}
	_, closing := f.Verb.(frame.Close)

	if ch, ok := d.chans[id]; ok {
		if closing {
			d.Release(id)
			return nil
		}
		var err error
		if wait {
			err = ch.Send(ctx, f)
		} else {
			err = ch.TrySend(f)
		}
		if err != nil {
			if errors.Is(err, ErrClosed) {
				d.Release(id)
			}
			return fmt.Errorf("mux: topic %d: %w", id, err)
		}
		d.stats.Routed++
		return nil
	}

	if closing {
		return nil
	}
	ch, err := d.insert(id)
	if err != nil {
		return err
	}
	d.handler.HandleTopic(ctx, f, ch.Clone())
	return nil
}

// Make binds the next free topic id, writes it into f and returns the
// channel for replies. The topic is bound before f is transmitted, so a
// reply can never arrive for an unknown topic.
func (d *Dispatcher) Make(f *frame.Frame) (Channel, error) {
	var id uint32
	if n := len(d.keys); n > 0 {
		last := d.keys[n-1]
		if last == math.MaxUint32 {
			return nil, ErrTopicsExhausted
		}
		id = last + 1
	}
	ch, err := d.insert(id)
	if err != nil {
		return nil, err
	}
	*f = f.WithTopic(id)
	return ch.Clone(), nil
}

func (d *Dispatcher) insert(id uint32) (Channel, error) {
	if len(d.keys) >= d.capacity {
		return nil, ErrTableFull
	}
	ch, err := d.alloc.Alloc(id)
	if err != nil {
		return nil, fmt.Errorf("mux: topic %d: %w", id, err)
	}
	i := sort.Search(len(d.keys), func(i int) bool { return d.keys[i] >= id })
	d.keys = append(d.keys, 0)
	copy(d.keys[i+1:], d.keys[i:])
	d.keys[i] = id
	d.chans[id] = ch
	d.stats.Opened++
	return ch, nil
}

// Release unbinds topic id, closing and freeing its channel. It reports
// whether the topic was bound.
func (d *Dispatcher) Release(id uint32) bool {
	ch, ok := d.chans[id]
	if !ok {
		return false
	}
	delete(d.chans, id)
	i := sort.Search(len(d.keys), func(i int) bool { return d.keys[i] >= id })
	d.keys = append(d.keys[:i], d.keys[i+1:]...)
	ch.Close()
	d.alloc.Free(ch)
	d.stats.Released++
	return true
}

// Reset releases every bound topic.
func (d *Dispatcher) Reset() {
	d.Abort(nil)
}

// Abort releases every bound topic. Channels that can carry a close cause
// report cause to their readers once drained.
func (d *Dispatcher) Abort(cause error) {
	for len(d.keys) > 0 {
		id := d.keys[len(d.keys)-1]
		if c, ok := d.chans[id].(interface{ CloseWithError(error) error }); ok && cause != nil {
			c.CloseWithError(cause)
		}
		d.Release(id)
	}
}

// Lookup returns the channel bound to topic id.
func (d *Dispatcher) Lookup(id uint32) (Channel, bool) {
	ch, ok := d.chans[id]
	if !ok {
		return nil, false
	}
	return ch.Clone(), true
}

// Len returns the number of bound topics.
func (d *Dispatcher) Len() int {
	return len(d.keys)
}

// Topics returns the bound topics in ascending order.
func (d *Dispatcher) Topics() []uint32 {
	return append([]uint32(nil), d.keys...)
}

// Stats returns a snapshot of the dispatcher counters.
func (d *Dispatcher) Stats() Stats {
	return d.stats
}
