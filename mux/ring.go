package mux

import (
	"context"
	"errors"
	"sync"

	"github.com/plein/meterlink/frame"
)

// RingSize is the number of frames each arena slot can hold.
const RingSize = 4

var ErrArenaFull = errors.New("mux: no free channel slots")

// Arena is a fixed set of fixed size frame queues, one per topic slot. All
// storage is allocated by NewArena; Alloc and Free only move slots between
// the free list and use.
type Arena struct {
	mu    sync.Mutex
	slots []ring
	free  []int
}

type ring struct {
	mu     sync.Mutex
	frames [RingSize]frame.Frame
	head   int
	n      int
	gen    uint32
	closed bool

	readable signal
	writable signal
}

// NewArena returns an arena with the given number of slots.
func NewArena(slots int) *Arena {
	a := &Arena{
		slots: make([]ring, slots),
		free:  make([]int, 0, slots),
	}
	for i := slots - 1; i >= 0; i-- {
		r := &a.slots[i]
		r.readable = newSignal()
		r.writable = newSignal()
		r.closed = true
		a.free = append(a.free, i)
	}
	return a
}

// Alloc hands out a free slot for topic.
func (a *Arena) Alloc(topic uint32) (Channel, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if len(a.free) == 0 {
		return nil, ErrArenaFull
	}
	slot := a.free[len(a.free)-1]
	a.free = a.free[:len(a.free)-1]

	r := &a.slots[slot]
	r.mu.Lock()
	r.gen++
	r.head = 0
	r.n = 0
	r.closed = false
	gen := r.gen
	r.mu.Unlock()

	return RingChannel{
		arena: a,
		slot:  slot,
		gen:   gen,
		topic: topic,
	}, nil
}

// Free returns the slot behind ch to the arena. Queued frames are dropped
// and every outstanding handle to the slot starts reporting ErrClosed.
func (a *Arena) Free(ch Channel) {
	rc, ok := ch.(RingChannel)
	if !ok || rc.arena != a {
		return
	}
	r := &a.slots[rc.slot]
	r.mu.Lock()
	if r.gen != rc.gen {
		r.mu.Unlock()
		return
	}
	r.gen++
	r.closed = true
	for i := range r.frames {
		r.frames[i] = frame.Frame{}
	}
	r.head = 0
	r.n = 0
	r.mu.Unlock()
	r.readable.notify()
	r.writable.notify()

	a.mu.Lock()
	a.free = append(a.free, rc.slot)
	a.mu.Unlock()
}

// Available returns the number of free slots.
func (a *Arena) Available() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.free)
}

// RingChannel is a handle to one arena slot. It is a small value; copies
// are clones.
type RingChannel struct {
	arena *Arena
	slot  int
	gen   uint32
	topic uint32
}

func (c RingChannel) Topic() uint32 {
	return c.topic
}

func (c RingChannel) Clone() Channel {
	return c
}

func (c RingChannel) Send(ctx context.Context, f frame.Frame) error {
	r := &c.arena.slots[c.slot]
	for {
		err := c.TrySend(f)
		if err != ErrFull {
			return err
		}
		if err := r.writable.wait(ctx); err != nil {
			return err
		}
	}
}

func (c RingChannel) TrySend(f frame.Frame) error {
	r := &c.arena.slots[c.slot]
	r.mu.Lock()
	if r.gen != c.gen || r.closed {
		r.mu.Unlock()
		r.writable.notify()
		return ErrClosed
	}
	if r.n == RingSize {
		r.mu.Unlock()
		return ErrFull
	}
	r.frames[(r.head+r.n)%RingSize] = f
	r.n++
	more := r.n < RingSize
	r.mu.Unlock()
	r.readable.notify()
	if more {
		r.writable.notify()
	}
	return nil
}

func (c RingChannel) Receive(ctx context.Context) (frame.Frame, error) {
	r := &c.arena.slots[c.slot]
	for {
		r.mu.Lock()
		if r.gen != c.gen {
			r.mu.Unlock()
			r.readable.notify()
			return frame.Frame{}, ErrClosed
		}
		if r.n > 0 {
			f := r.frames[r.head]
			r.frames[r.head] = frame.Frame{}
			r.head = (r.head + 1) % RingSize
			r.n--
			more := r.n > 0
			r.mu.Unlock()
			r.writable.notify()
			if more {
				r.readable.notify()
			}
			return f, nil
		}
		if r.closed {
			r.mu.Unlock()
			r.readable.notify()
			return frame.Frame{}, ErrClosed
		}
		r.mu.Unlock()
		if err := r.readable.wait(ctx); err != nil {
			return frame.Frame{}, err
		}
	}
}

func (c RingChannel) Close() error {
	r := &c.arena.slots[c.slot]
	r.mu.Lock()
	if r.gen != c.gen {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.mu.Unlock()
	r.readable.notify()
	r.writable.notify()
	return nil
}
