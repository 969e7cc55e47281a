// Package mux routes frames between the link and per-topic channels.
package mux

import (
	"context"
	"errors"

	"github.com/plein/meterlink/frame"
)

var (
	// ErrClosed is returned by channel operations once the channel has been
	// closed or its storage released.
	ErrClosed = errors.New("mux: channel closed")
	// ErrFull is returned by TrySend when the queue has no room.
	ErrFull = errors.New("mux: channel full")
)

// Channel is an ordered conduit of frames for one topic. Clones share the
// same queue, so a producer and a consumer can each hold a handle.
type Channel interface {
	// Topic returns the topic this channel was allocated for.
	Topic() uint32

	// Send queues f, blocking while the queue is full.
	Send(ctx context.Context, f frame.Frame) error

	// TrySend queues f if there is room and returns ErrFull otherwise.
	TrySend(f frame.Frame) error

	// Receive returns the oldest queued frame, blocking while the queue is
	// empty. After Close, queued frames are still returned before ErrClosed.
	Receive(ctx context.Context) (frame.Frame, error)

	// Clone returns another handle to the same queue.
	Clone() Channel

	// Close marks the channel closed and wakes all blocked callers.
	Close() error
}

// Allocator creates and releases channel storage for a Dispatcher.
type Allocator interface {
	Alloc(topic uint32) (Channel, error)
	Free(ch Channel)
}

// signal is a one slot wakeup. Waiters always re-check state after waking,
// so a dropped or spurious notification is harmless.
type signal chan struct{}

func newSignal() signal {
	return make(signal, 1)
}

func (s signal) notify() {
	select {
	case s <- struct{}{}:
	default:
	}
}

func (s signal) wait(ctx context.Context) error {
	select {
	case <-s:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
