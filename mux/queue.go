package mux

import (
	"context"
	"fmt"
	"sync"

	"github.com/plein/meterlink/frame"
)

// DefaultQueueLimit bounds a Queue when no limit is given.
const DefaultQueueLimit = 64

// Queue is a growable frame queue guarded by a mutex and shared by every
// handle to it. It holds at most limit frames.
type Queue struct {
	mu     sync.Mutex
	topic  uint32
	items  []frame.Frame
	limit  int
	closed bool
	cause  error

	readable signal
	writable signal
}

// NewQueue returns an empty queue for topic holding at most limit frames.
func NewQueue(topic uint32, limit int) *Queue {
	if limit <= 0 {
		limit = DefaultQueueLimit
	}
	return &Queue{
		topic:    topic,
		limit:    limit,
		readable: newSignal(),
		writable: newSignal(),
	}
}

func (q *Queue) Topic() uint32 {
	return q.topic
}

func (q *Queue) Clone() Channel {
	return q
}

// Len returns the number of queued frames.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *Queue) Send(ctx context.Context, f frame.Frame) error {
	for {
		err := q.TrySend(f)
		if err != ErrFull {
			return err
		}
		if err := q.writable.wait(ctx); err != nil {
			return err
		}
	}
}

func (q *Queue) TrySend(f frame.Frame) error {
	q.mu.Lock()
	if q.closed {
		err := q.closeErr()
		q.mu.Unlock()
		q.writable.notify()
		return err
	}
	if len(q.items) >= q.limit {
		q.mu.Unlock()
		return ErrFull
	}
	q.items = append(q.items, f)
	more := len(q.items) < q.limit
	q.mu.Unlock()
	q.readable.notify()
	if more {
		q.writable.notify()
	}
	return nil
}

func (q *Queue) Receive(ctx context.Context) (frame.Frame, error) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			f := q.items[0]
			q.items[0] = frame.Frame{}
			q.items = q.items[1:]
			more := len(q.items) > 0
			q.mu.Unlock()
			q.writable.notify()
			if more {
				q.readable.notify()
			}
			return f, nil
		}
		if q.closed {
			err := q.closeErr()
			q.mu.Unlock()
			q.readable.notify()
			return frame.Frame{}, err
		}
		q.mu.Unlock()
		if err := q.readable.wait(ctx); err != nil {
			return frame.Frame{}, err
		}
	}
}

func (q *Queue) Close() error {
	return q.CloseWithError(nil)
}

// CloseWithError closes the queue like Close. Once the queue is drained,
// Send and Receive return an error matching both ErrClosed and cause.
// Only the first close sets the cause.
func (q *Queue) CloseWithError(cause error) error {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		q.cause = cause
	}
	q.mu.Unlock()
	q.readable.notify()
	q.writable.notify()
	return nil
}

func (q *Queue) closeErr() error {
	if q.cause == nil {
		return ErrClosed
	}
	return fmt.Errorf("%w: %w", ErrClosed, q.cause)
}

// QueueAllocator allocates Queues bounded by Limit.
type QueueAllocator struct {
	Limit int
}

func (a QueueAllocator) Alloc(topic uint32) (Channel, error) {
	return NewQueue(topic, a.Limit), nil
}

// Free closes ch. Frames already queued stay readable until drained.
func (a QueueAllocator) Free(ch Channel) {
	ch.Close()
}
